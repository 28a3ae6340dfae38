package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"aulaplan/internal/domain"
	"aulaplan/internal/engine/auth"
	"aulaplan/internal/events"
)

// Invite creates a pending invitation from a project owner to another actor.
func (e Engine) Invite(ctx context.Context, projectID, inviterID, inviteeID, message string) (domain.Invitation, error) {
	if inviteeID == "" {
		return domain.Invitation{}, errors.New("invitee is required")
	}
	if inviteeID == inviterID {
		return domain.Invitation{}, errors.New("cannot invite yourself")
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Invitation{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invitation{}, err
	}
	defer tx.Rollback()

	ok, err := e.Auth.CanManage(ctx, tx, projectID, inviterID)
	if err != nil {
		return domain.Invitation{}, err
	}
	if !ok {
		return domain.Invitation{}, auth.ForbiddenError{Action: "invite collaborators"}
	}
	member, err := e.Auth.IsMember(ctx, tx, projectID, inviteeID)
	if err != nil {
		return domain.Invitation{}, err
	}
	if member {
		return domain.Invitation{}, errors.New("invitee is already a collaborator")
	}
	pending, err := e.Repo.PendingInvitation(ctx, tx, projectID, inviteeID)
	if err != nil {
		return domain.Invitation{}, err
	}
	if pending {
		return domain.Invitation{}, errors.New("invitation already pending")
	}
	if err := e.Auth.EnsureActor(ctx, tx, inviteeID); err != nil {
		return domain.Invitation{}, err
	}
	now := e.nowStr()
	inv := domain.Invitation{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		InviterID: inviterID,
		InviteeID: inviteeID,
		Message:   message,
		Status:    "pending",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertInvitation(ctx, tx, inv); err != nil {
		return domain.Invitation{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Invitation("invitation.created", projectID, inv.ID, inviterID, events.EventPayload{"invitee": inviteeID})); err != nil {
		return domain.Invitation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invitation{}, err
	}
	return inv, nil
}

func ensureInvitationTransition(oldStatus, newStatus string) error {
	if oldStatus == "pending" {
		switch newStatus {
		case "accepted", "declined", "revoked":
			return nil
		}
	}
	return fmt.Errorf("invalid invitation status transition %s -> %s", oldStatus, newStatus)
}

// RespondInvitation lets the invitee accept or decline. Accepting adds the
// invitee as a collaborator in the same transaction.
func (e Engine) RespondInvitation(ctx context.Context, invitationID, actorID string, accept bool) (domain.Invitation, error) {
	inv, err := e.Repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return inv, err
	}
	if inv.InviteeID != actorID {
		return inv, auth.ForbiddenError{Action: "respond to this invitation"}
	}
	newStatus := "declined"
	if accept {
		newStatus = "accepted"
	}
	if err := ensureInvitationTransition(inv.Status, newStatus); err != nil {
		return inv, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return inv, err
	}
	defer tx.Rollback()

	now := e.nowStr()
	if err := e.Repo.UpdateInvitationStatus(ctx, tx, inv.ID, newStatus, now); err != nil {
		return inv, err
	}
	if accept {
		if err := e.Repo.AddCollaborator(ctx, tx, domain.Collaborator{
			ProjectID: inv.ProjectID, ActorID: actorID, Role: "collaborator", CreatedAt: now,
		}); err != nil {
			return inv, err
		}
	}
	if err := e.Events.Append(ctx, tx, events.Invitation("invitation."+newStatus, inv.ProjectID, inv.ID, actorID, nil)); err != nil {
		return inv, err
	}
	if err := tx.Commit(); err != nil {
		return inv, err
	}
	inv.Status = newStatus
	inv.UpdatedAt = now
	return inv, nil
}

// RevokeInvitation cancels a pending invitation. Only the project owner may
// revoke.
func (e Engine) RevokeInvitation(ctx context.Context, invitationID, actorID string) (domain.Invitation, error) {
	inv, err := e.Repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return inv, err
	}
	if err := ensureInvitationTransition(inv.Status, "revoked"); err != nil {
		return inv, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return inv, err
	}
	defer tx.Rollback()

	ok, err := e.Auth.CanManage(ctx, tx, inv.ProjectID, actorID)
	if err != nil {
		return inv, err
	}
	if !ok {
		return inv, auth.ForbiddenError{Action: "revoke invitations"}
	}
	now := e.nowStr()
	if err := e.Repo.UpdateInvitationStatus(ctx, tx, inv.ID, "revoked", now); err != nil {
		return inv, err
	}
	if err := e.Events.Append(ctx, tx, events.Invitation("invitation.revoked", inv.ProjectID, inv.ID, actorID, nil)); err != nil {
		return inv, err
	}
	if err := tx.Commit(); err != nil {
		return inv, err
	}
	inv.Status = "revoked"
	inv.UpdatedAt = now
	return inv, nil
}

// RequestParticipation lets any actor ask to join a public project.
func (e Engine) RequestParticipation(ctx context.Context, projectID, requesterID, message string) (domain.ParticipationRequest, error) {
	if requesterID == "" {
		return domain.ParticipationRequest{}, errors.New("requester is required")
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.ParticipationRequest{}, err
	}
	if !p.IsPublic {
		return domain.ParticipationRequest{}, errors.New("project does not accept participation requests")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ParticipationRequest{}, err
	}
	defer tx.Rollback()

	member, err := e.Auth.IsMember(ctx, tx, projectID, requesterID)
	if err != nil {
		return domain.ParticipationRequest{}, err
	}
	if member {
		return domain.ParticipationRequest{}, errors.New("already a collaborator")
	}
	pending, err := e.Repo.PendingParticipationRequest(ctx, tx, projectID, requesterID)
	if err != nil {
		return domain.ParticipationRequest{}, err
	}
	if pending {
		return domain.ParticipationRequest{}, errors.New("request already pending")
	}
	if err := e.Auth.EnsureActor(ctx, tx, requesterID); err != nil {
		return domain.ParticipationRequest{}, err
	}
	now := e.nowStr()
	req := domain.ParticipationRequest{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		RequesterID: requesterID,
		Message:     message,
		Status:      "pending",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertParticipationRequest(ctx, tx, req); err != nil {
		return domain.ParticipationRequest{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Request("request.created", projectID, req.ID, requesterID, nil)); err != nil {
		return domain.ParticipationRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ParticipationRequest{}, err
	}
	return req, nil
}

func ensureRequestTransition(oldStatus, newStatus string) error {
	if oldStatus == "pending" && (newStatus == "approved" || newStatus == "rejected") {
		return nil
	}
	return fmt.Errorf("invalid request status transition %s -> %s", oldStatus, newStatus)
}

// ResolveRequest lets the owner approve or reject a participation request.
// Approval adds the requester as a collaborator.
func (e Engine) ResolveRequest(ctx context.Context, requestID, actorID string, approve bool) (domain.ParticipationRequest, error) {
	req, err := e.Repo.GetParticipationRequest(ctx, requestID)
	if err != nil {
		return req, err
	}
	newStatus := "rejected"
	if approve {
		newStatus = "approved"
	}
	if err := ensureRequestTransition(req.Status, newStatus); err != nil {
		return req, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, err
	}
	defer tx.Rollback()

	ok, err := e.Auth.CanManage(ctx, tx, req.ProjectID, actorID)
	if err != nil {
		return req, err
	}
	if !ok {
		return req, auth.ForbiddenError{Action: "resolve participation requests"}
	}
	now := e.nowStr()
	if err := e.Repo.UpdateParticipationRequestStatus(ctx, tx, req.ID, newStatus, now, actorID); err != nil {
		return req, err
	}
	if approve {
		if err := e.Repo.AddCollaborator(ctx, tx, domain.Collaborator{
			ProjectID: req.ProjectID, ActorID: req.RequesterID, Role: "collaborator", CreatedAt: now,
		}); err != nil {
			return req, err
		}
	}
	if err := e.Events.Append(ctx, tx, events.Request("request."+newStatus, req.ProjectID, req.ID, actorID, events.EventPayload{"requester": req.RequesterID})); err != nil {
		return req, err
	}
	if err := tx.Commit(); err != nil {
		return req, err
	}
	req.Status = newStatus
	req.UpdatedAt = now
	return req, nil
}

// RemoveCollaborator drops a collaborator. Owners cannot be removed.
func (e Engine) RemoveCollaborator(ctx context.Context, projectID, targetID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ok, err := e.Auth.CanManage(ctx, tx, projectID, actorID)
	if err != nil {
		return err
	}
	// collaborators may remove themselves
	if !ok && targetID != actorID {
		return auth.ForbiddenError{Action: "remove collaborators"}
	}
	c, err := e.Repo.GetCollaborator(ctx, projectID, targetID)
	if err != nil {
		return err
	}
	if c.Role == "owner" {
		return errors.New("cannot remove the project owner")
	}
	if err := e.Repo.RemoveCollaborator(ctx, tx, projectID, targetID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.Collaborator("collaborator.removed", projectID, targetID, actorID)); err != nil {
		return err
	}
	return tx.Commit()
}
