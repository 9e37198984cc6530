package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/makena/hesabu/core/activity"
)

type activityRepository struct {
	db *activityTable
}

var _ activity.Repository = (*activityRepository)(nil)

func NewActivityRepository(db *DB) *activityRepository {
	return &activityRepository{db: db.activity}
}

func (repo *activityRepository) CreateEntry(_ context.Context, entry activity.Entry) (activity.Entry, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	repo.db.table = append(repo.db.table, entry)
	return entry, nil
}

func (repo *activityRepository) QueryEntriesByUser(_ context.Context, userID string) ([]activity.Entry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	// newest first
	entries := make([]activity.Entry, 0)
	for i := len(repo.db.table) - 1; i >= 0; i-- {
		if repo.db.table[i].UserID == userID {
			entries = append(entries, repo.db.table[i])
		}
	}
	return entries, nil
}
