package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission to %s required", e.Action)
}

// Service provides project membership checks backed by SQL.
type Service struct {
	DB *sql.DB
}

func (s Service) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string) error {
	if actorID == "" {
		return errors.New("actor_id required")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}

// Role returns the actor's role on a project, or "" when not a member.
func (s Service) Role(ctx context.Context, tx *sql.Tx, projectID, actorID string) (string, error) {
	row := s.queryRow(ctx, tx, `SELECT role FROM collaborators WHERE project_id=? AND actor_id=? LIMIT 1`, projectID, actorID)
	var role string
	err := row.Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return role, err
}

// IsMember reports whether the actor is the owner or a collaborator.
func (s Service) IsMember(ctx context.Context, tx *sql.Tx, projectID, actorID string) (bool, error) {
	role, err := s.Role(ctx, tx, projectID, actorID)
	if err != nil {
		return false, err
	}
	return role != "", nil
}

// IsOwner reports whether the actor holds the owner role on the project.
func (s Service) IsOwner(ctx context.Context, tx *sql.Tx, projectID, actorID string) (bool, error) {
	role, err := s.Role(ctx, tx, projectID, actorID)
	if err != nil {
		return false, err
	}
	return role == "owner", nil
}

// CanView allows members and, for public projects, everyone.
func (s Service) CanView(ctx context.Context, tx *sql.Tx, projectID, actorID string) (bool, error) {
	if actorID != "" {
		member, err := s.IsMember(ctx, tx, projectID, actorID)
		if err != nil {
			return false, err
		}
		if member {
			return true, nil
		}
	}
	row := s.queryRow(ctx, tx, `SELECT is_public FROM projects WHERE id=? LIMIT 1`, projectID)
	var isPublic int
	err := row.Scan(&isPublic)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return isPublic != 0, nil
}

// CanEdit allows any member to edit planning and submit deliverables.
func (s Service) CanEdit(ctx context.Context, tx *sql.Tx, projectID, actorID string) (bool, error) {
	return s.IsMember(ctx, tx, projectID, actorID)
}

// CanManage allows only the owner: membership changes, reviews, deletion.
func (s Service) CanManage(ctx context.Context, tx *sql.Tx, projectID, actorID string) (bool, error) {
	return s.IsOwner(ctx, tx, projectID, actorID)
}

func (s Service) queryRow(ctx context.Context, tx *sql.Tx, query string, args ...any) *sql.Row {
	if tx != nil {
		return tx.QueryRowContext(ctx, query, args...)
	}
	return s.DB.QueryRowContext(ctx, query, args...)
}
