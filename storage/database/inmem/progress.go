package inmemdb

import (
	"context"
	"sort"

	"github.com/makena/hesabu/core/progress"
)

type progressRepository struct {
	db *progressTable
}

var _ progress.Repository = (*progressRepository)(nil)

func NewProgressRepository(db *DB) *progressRepository {
	return &progressRepository{db: db.progress}
}

func progressKey(studentID, courseID string) string {
	return studentID + "/" + courseID
}

func (repo *progressRepository) CreateProgress(_ context.Context, prog progress.Progress) (progress.Progress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := progressKey(prog.StudentID, prog.CourseID)
	if existing, ok := repo.db.table[key]; ok {
		return *existing, nil
	}
	repo.db.table[key] = &prog
	return prog, nil
}

func (repo *progressRepository) GetProgress(_ context.Context, studentID, courseID string) (progress.Progress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if prog, ok := repo.db.table[progressKey(studentID, courseID)]; ok {
		return *prog, nil
	}
	return progress.Progress{}, progress.ErrNotFound
}

func (repo *progressRepository) QueryProgressByStudent(_ context.Context, studentID string) ([]progress.Progress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	progs := make([]progress.Progress, 0)
	for _, prog := range repo.db.table {
		if prog.StudentID == studentID {
			progs = append(progs, *prog)
		}
	}
	sort.Slice(progs, func(i, j int) bool { return progs[i].EnrolledAt.Before(progs[j].EnrolledAt) })
	return progs, nil
}
