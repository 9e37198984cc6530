package progress

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("progress record not found")

type (
	Repository interface {
		CreateProgress(ctx context.Context, prog Progress) (Progress, error)
		GetProgress(ctx context.Context, studentID, courseID string) (Progress, error)
		QueryProgressByStudent(ctx context.Context, studentID string) ([]Progress, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Enroll provisions a progress record for the student/course pair.
// Enrolling an already-enrolled pair is a no-op.
func (svc *Service) Enroll(ctx context.Context, studentID, courseID string) (Progress, error) {
	if prog, err := svc.repo.GetProgress(ctx, studentID, courseID); err == nil {
		return prog, nil
	} else if err != ErrNotFound {
		return Progress{}, err
	}

	return svc.repo.CreateProgress(ctx, Progress{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		CourseID:   courseID,
		EnrolledAt: time.Now().UTC(),
	})
}

func (svc *Service) QueryByStudent(ctx context.Context, studentID string) ([]Progress, error) {
	return svc.repo.QueryProgressByStudent(ctx, studentID)
}
