package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/makena/hesabu/core"
)

type (
	Repository interface {
		CreateEntry(ctx context.Context, entry Entry) (Entry, error)
		QueryEntriesByUser(ctx context.Context, userID string) ([]Entry, error)
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record appends an audit entry. It is fire-and-forget: persistence failures
// are logged and never surfaced to the caller.
func (svc *Service) Record(ctx context.Context, entry Entry) {
	if entry.Status == "" {
		entry.Status = StatusSuccess
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if _, err := svc.repo.CreateEntry(ctx, entry); err != nil {
		svc.logger.Error(fmt.Sprintf("recording activity %q: %v", entry.Action, err), err)
	}
}

func (svc *Service) QueryByUser(ctx context.Context, userID string) ([]Entry, error) {
	return svc.repo.QueryEntriesByUser(ctx, userID)
}
