package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/makena/hesabu/core/progress"
)

type progressRow struct {
	ID              string    `db:"id"`
	StudentID       string    `db:"student_id"`
	CourseID        string    `db:"course_id"`
	OverallProgress int       `db:"overall_progress"`
	EnrolledAt      time.Time `db:"enrolled_at"`
}

func (row progressRow) toProgress() progress.Progress {
	return progress.Progress{
		ID:              row.ID,
		StudentID:       row.StudentID,
		CourseID:        row.CourseID,
		OverallProgress: row.OverallProgress,
		EnrolledAt:      row.EnrolledAt,
	}
}

type progressRepository struct {
	db *sqlx.DB
}

var _ progress.Repository = (*progressRepository)(nil)

func NewProgressRepository(db *sqlx.DB) *progressRepository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) CreateProgress(ctx context.Context, prog progress.Progress) (progress.Progress, error) {
	q := `
	INSERT INTO student_progress (id, student_id, course_id, overall_progress, enrolled_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (student_id, course_id) DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, q, prog.ID, prog.StudentID, prog.CourseID, prog.OverallProgress, prog.EnrolledAt); err != nil {
		return progress.Progress{}, errors.Wrap(err, "inserting progress")
	}
	return prog, nil
}

func (repo *progressRepository) GetProgress(ctx context.Context, studentID, courseID string) (progress.Progress, error) {
	var row progressRow
	q := `SELECT * FROM student_progress WHERE student_id = $1 AND course_id = $2`
	if err := repo.db.GetContext(ctx, &row, q, studentID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return progress.Progress{}, progress.ErrNotFound
		}
		return progress.Progress{}, errors.Wrap(err, "querying progress")
	}
	return row.toProgress(), nil
}

func (repo *progressRepository) QueryProgressByStudent(ctx context.Context, studentID string) ([]progress.Progress, error) {
	var rows []progressRow
	q := `SELECT * FROM student_progress WHERE student_id = $1 ORDER BY enrolled_at`
	if err := repo.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "querying progress")
	}

	progs := make([]progress.Progress, 0, len(rows))
	for _, row := range rows {
		progs = append(progs, row.toProgress())
	}
	return progs, nil
}
