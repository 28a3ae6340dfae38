package repo

import (
	"context"
	"database/sql"

	"aulaplan/internal/domain"
)

const submissionColumns = `id,project_id,activity_key,author_id,comment,file_key,status,review_note,reviewer_id,created_at,updated_at`

func scanSubmissionRow(scan func(dest ...any) error) (domain.Submission, error) {
	var s domain.Submission
	var fileKey, reviewNote, reviewerID sql.NullString
	err := scan(&s.ID, &s.ProjectID, &s.ActivityKey, &s.AuthorID, &s.Comment, &fileKey, &s.Status, &reviewNote, &reviewerID, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if fileKey.Valid {
		s.FileKey = fileKey.String
	}
	if reviewNote.Valid {
		s.ReviewNote = &reviewNote.String
	}
	if reviewerID.Valid {
		s.ReviewerID = &reviewerID.String
	}
	return s, nil
}

func (r Repo) InsertSubmission(ctx context.Context, tx *sql.Tx, s domain.Submission) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO submissions(`+submissionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ProjectID, s.ActivityKey, s.AuthorID, s.Comment, nullable(s.FileKey), s.Status,
		nullableStringPtr(s.ReviewNote), nullableStringPtr(s.ReviewerID), s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) UpdateSubmission(ctx context.Context, tx *sql.Tx, s domain.Submission) error {
	res, err := tx.ExecContext(ctx, `UPDATE submissions SET comment=?, file_key=?, status=?, review_note=?, reviewer_id=?, updated_at=? WHERE id=?`,
		s.Comment, nullable(s.FileKey), s.Status, nullableStringPtr(s.ReviewNote), nullableStringPtr(s.ReviewerID), s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=?`, id)
	return scanSubmissionRow(row.Scan)
}

func (r Repo) GetSubmissionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Submission, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=?`, id)
	return scanSubmissionRow(row.Scan)
}

type SubmissionFilters struct {
	ProjectID   string
	ActivityKey string
	AuthorID    string
	Status      string
}

func (r Repo) ListSubmissions(ctx context.Context, f SubmissionFilters) ([]domain.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE 1=1`
	var args []any
	if f.ProjectID != "" {
		query += ` AND project_id=?`
		args = append(args, f.ProjectID)
	}
	if f.ActivityKey != "" {
		query += ` AND activity_key=?`
		args = append(args, f.ActivityKey)
	}
	if f.AuthorID != "" {
		query += ` AND author_id=?`
		args = append(args, f.AuthorID)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Submission
	for rows.Next() {
		s, err := scanSubmissionRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
