package repo

import (
	"context"
	"database/sql"

	"aulaplan/internal/domain"
)

func (r Repo) AddCollaborator(ctx context.Context, tx *sql.Tx, c domain.Collaborator) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO collaborators(project_id,actor_id,role,created_at) VALUES (?,?,?,?)`,
		c.ProjectID, c.ActorID, c.Role, c.CreatedAt)
	return err
}

func (r Repo) RemoveCollaborator(ctx context.Context, tx *sql.Tx, projectID, actorID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM collaborators WHERE project_id=? AND actor_id=?`, projectID, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetCollaborator(ctx context.Context, projectID, actorID string) (domain.Collaborator, error) {
	var c domain.Collaborator
	err := r.DB.QueryRowContext(ctx, `SELECT project_id,actor_id,role,created_at FROM collaborators WHERE project_id=? AND actor_id=?`, projectID, actorID).
		Scan(&c.ProjectID, &c.ActorID, &c.Role, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListCollaborators(ctx context.Context, projectID string) ([]domain.Collaborator, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id,actor_id,role,created_at FROM collaborators WHERE project_id=? ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Collaborator
	for rows.Next() {
		var c domain.Collaborator
		if err := rows.Scan(&c.ProjectID, &c.ActorID, &c.Role, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertInvitation(ctx context.Context, tx *sql.Tx, inv domain.Invitation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO invitations(id,project_id,inviter_id,invitee_id,message,status,created_at,resolved_at) VALUES (?,?,?,?,?,?,?,NULL)`,
		inv.ID, inv.ProjectID, inv.InviterID, inv.InviteeID, inv.Message, inv.Status, inv.CreatedAt)
	return err
}

func (r Repo) UpdateInvitationStatus(ctx context.Context, tx *sql.Tx, id, status, resolvedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE invitations SET status=?, resolved_at=? WHERE id=?`, status, nullable(resolvedAt), id)
	return err
}

func (r Repo) GetInvitation(ctx context.Context, id string) (domain.Invitation, error) {
	return r.getInvitation(ctx, r.DB.QueryRowContext, id)
}

func (r Repo) GetInvitationTx(ctx context.Context, tx *sql.Tx, id string) (domain.Invitation, error) {
	return r.getInvitation(ctx, tx.QueryRowContext, id)
}

func (r Repo) getInvitation(ctx context.Context, queryRow func(ctx context.Context, query string, args ...any) *sql.Row, id string) (domain.Invitation, error) {
	var inv domain.Invitation
	var resolvedAt sql.NullString
	err := queryRow(ctx, `SELECT id,project_id,inviter_id,invitee_id,message,status,created_at,resolved_at FROM invitations WHERE id=?`, id).
		Scan(&inv.ID, &inv.ProjectID, &inv.InviterID, &inv.InviteeID, &inv.Message, &inv.Status, &inv.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return inv, ErrNotFound
	}
	if err != nil {
		return inv, err
	}
	inv.UpdatedAt = inv.CreatedAt
	if resolvedAt.Valid {
		inv.UpdatedAt = resolvedAt.String
	}
	return inv, nil
}

// PendingInvitation reports whether a pending invitation already exists
// for the invitee on the project.
func (r Repo) PendingInvitation(ctx context.Context, tx *sql.Tx, projectID, inviteeID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM invitations WHERE project_id=? AND invitee_id=? AND status='pending'`, projectID, inviteeID).Scan(&n)
	return n > 0, err
}

type InvitationFilters struct {
	ProjectID string
	InviteeID string
	Status    string
}

func (r Repo) ListInvitations(ctx context.Context, f InvitationFilters) ([]domain.Invitation, error) {
	query := `SELECT id,project_id,inviter_id,invitee_id,message,status,created_at,resolved_at FROM invitations WHERE 1=1`
	var args []any
	if f.ProjectID != "" {
		query += ` AND project_id=?`
		args = append(args, f.ProjectID)
	}
	if f.InviteeID != "" {
		query += ` AND invitee_id=?`
		args = append(args, f.InviteeID)
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
	var res []domain.Invitation
	for rows.Next() {
		var inv domain.Invitation
		var resolvedAt sql.NullString
		if err := rows.Scan(&inv.ID, &inv.ProjectID, &inv.InviterID, &inv.InviteeID, &inv.Message, &inv.Status, &inv.CreatedAt, &resolvedAt); err != nil {
			return nil, err
		}
		inv.UpdatedAt = inv.CreatedAt
		if resolvedAt.Valid {
			inv.UpdatedAt = resolvedAt.String
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}

func (r Repo) InsertParticipationRequest(ctx context.Context, tx *sql.Tx, req domain.ParticipationRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO participation_requests(id,project_id,requester_id,message,status,created_at,resolved_at,resolved_by) VALUES (?,?,?,?,?,?,NULL,NULL)`,
		req.ID, req.ProjectID, req.RequesterID, req.Message, req.Status, req.CreatedAt)
	return err
}

func (r Repo) UpdateParticipationRequestStatus(ctx context.Context, tx *sql.Tx, id, status, resolvedAt, resolvedBy string) error {
	_, err := tx.ExecContext(ctx, `UPDATE participation_requests SET status=?, resolved_at=?, resolved_by=? WHERE id=?`,
		status, nullable(resolvedAt), nullable(resolvedBy), id)
	return err
}

func (r Repo) GetParticipationRequest(ctx context.Context, id string) (domain.ParticipationRequest, error) {
	return r.getParticipationRequest(ctx, r.DB.QueryRowContext, id)
}

func (r Repo) GetParticipationRequestTx(ctx context.Context, tx *sql.Tx, id string) (domain.ParticipationRequest, error) {
	return r.getParticipationRequest(ctx, tx.QueryRowContext, id)
}

func (r Repo) getParticipationRequest(ctx context.Context, queryRow func(ctx context.Context, query string, args ...any) *sql.Row, id string) (domain.ParticipationRequest, error) {
	var req domain.ParticipationRequest
	var resolvedAt sql.NullString
	err := queryRow(ctx, `SELECT id,project_id,requester_id,message,status,created_at,resolved_at FROM participation_requests WHERE id=?`, id).
		Scan(&req.ID, &req.ProjectID, &req.RequesterID, &req.Message, &req.Status, &req.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return req, ErrNotFound
	}
	if err != nil {
		return req, err
	}
	req.UpdatedAt = req.CreatedAt
	if resolvedAt.Valid {
		req.UpdatedAt = resolvedAt.String
	}
	return req, nil
}

func (r Repo) PendingParticipationRequest(ctx context.Context, tx *sql.Tx, projectID, requesterID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM participation_requests WHERE project_id=? AND requester_id=? AND status='pending'`, projectID, requesterID).Scan(&n)
	return n > 0, err
}

type RequestFilters struct {
	ProjectID   string
	RequesterID string
	Status      string
}

func (r Repo) ListParticipationRequests(ctx context.Context, f RequestFilters) ([]domain.ParticipationRequest, error) {
	query := `SELECT id,project_id,requester_id,message,status,created_at,resolved_at FROM participation_requests WHERE 1=1`
	var args []any
	if f.ProjectID != "" {
		query += ` AND project_id=?`
		args = append(args, f.ProjectID)
	}
	if f.RequesterID != "" {
		query += ` AND requester_id=?`
		args = append(args, f.RequesterID)
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
	var res []domain.ParticipationRequest
	for rows.Next() {
		var req domain.ParticipationRequest
		var resolvedAt sql.NullString
		if err := rows.Scan(&req.ID, &req.ProjectID, &req.RequesterID, &req.Message, &req.Status, &req.CreatedAt, &resolvedAt); err != nil {
			return nil, err
		}
		req.UpdatedAt = req.CreatedAt
		if resolvedAt.Valid {
			req.UpdatedAt = resolvedAt.String
		}
		res = append(res, req)
	}
	return res, rows.Err()
}
