package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/makena/hesabu/core/activity"
)

type activityRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Action      string    `db:"action"`
	Category    string    `db:"category"`
	Description string    `db:"description"`
	Metadata    []byte    `db:"metadata"`
	IPAddress   string    `db:"ip_address"`
	UserAgent   string    `db:"user_agent"`
	Status      string    `db:"status"`
	Timestamp   time.Time `db:"timestamp"`
}

func (row activityRow) toEntry() (activity.Entry, error) {
	entry := activity.Entry{
		ID:          row.ID,
		UserID:      row.UserID,
		Action:      row.Action,
		Category:    row.Category,
		Description: row.Description,
		IPAddress:   row.IPAddress,
		UserAgent:   row.UserAgent,
		Status:      row.Status,
		Timestamp:   row.Timestamp,
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &entry.Metadata); err != nil {
			return activity.Entry{}, errors.Wrap(err, "decoding activity metadata")
		}
	}
	return entry, nil
}

type activityRepository struct {
	db *sqlx.DB
}

var _ activity.Repository = (*activityRepository)(nil)

func NewActivityRepository(db *sqlx.DB) *activityRepository {
	return &activityRepository{db: db}
}

func (repo *activityRepository) CreateEntry(ctx context.Context, entry activity.Entry) (activity.Entry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	metadata := []byte("{}")
	if entry.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(entry.Metadata); err != nil {
			return activity.Entry{}, errors.Wrap(err, "encoding activity metadata")
		}
	}

	q := `
	INSERT INTO activity_logs (
		id, user_id, action, category, description, metadata,
		ip_address, user_agent, status, timestamp
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := repo.db.ExecContext(ctx, q,
		entry.ID, entry.UserID, entry.Action, entry.Category, entry.Description,
		metadata, entry.IPAddress, entry.UserAgent, entry.Status, entry.Timestamp,
	)
	if err != nil {
		return activity.Entry{}, errors.Wrap(err, "inserting activity entry")
	}
	return entry, nil
}

func (repo *activityRepository) QueryEntriesByUser(ctx context.Context, userID string) ([]activity.Entry, error) {
	var rows []activityRow
	q := `SELECT * FROM activity_logs WHERE user_id = $1 ORDER BY timestamp DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying activity entries")
	}

	entries := make([]activity.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
