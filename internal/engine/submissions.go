package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"aulaplan/internal/domain"
	"aulaplan/internal/engine/auth"
	"aulaplan/internal/events"
	"aulaplan/internal/repo"
)

// SubmissionCreateOptions are parameters for submitting a deliverable
// against an activity.
type SubmissionCreateOptions struct {
	ProjectID   string
	ActivityKey string
	Comment     string
	FileKey     string
	AuthorID    string
}

// attachmentKind classifies a file key for the workspace allowed-kinds
// check. Bare http(s) URLs count as links, everything else by extension.
func attachmentKind(fileKey string) string {
	if strings.HasPrefix(fileKey, "http://") || strings.HasPrefix(fileKey, "https://") {
		return "link"
	}
	switch strings.TrimPrefix(strings.ToLower(filepath.Ext(fileKey)), ".") {
	case "pdf", "doc", "docx", "odt", "txt", "md", "ppt", "pptx", "xls", "xlsx":
		return "document"
	case "png", "jpg", "jpeg", "gif", "webp", "svg":
		return "image"
	case "mp4", "mov", "avi", "webm", "mkv":
		return "video"
	}
	return ""
}

func (e Engine) checkAttachmentKind(fileKey string) error {
	if fileKey == "" || e.Config == nil || len(e.Config.Submissions.AllowedKinds) == 0 {
		return nil
	}
	kind := attachmentKind(fileKey)
	for _, allowed := range e.Config.Submissions.AllowedKinds {
		if kind == allowed {
			return nil
		}
	}
	if kind == "" {
		kind = strings.TrimPrefix(strings.ToLower(filepath.Ext(fileKey)), ".")
	}
	if kind == "" {
		kind = "unknown"
	}
	return fmt.Errorf("workspace does not accept %s submissions", kind)
}

// SubmitDeliverable records a deliverable for one activity. The activity
// key must exist in the current planning.
func (e Engine) SubmitDeliverable(ctx context.Context, opts SubmissionCreateOptions) (domain.Submission, error) {
	if opts.ActivityKey == "" {
		return domain.Submission{}, errors.New("activity_key is required")
	}
	if opts.FileKey == "" && opts.Comment == "" {
		return domain.Submission{}, errors.New("a file or a comment is required")
	}
	if err := e.checkAttachmentKind(opts.FileKey); err != nil {
		return domain.Submission{}, err
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Submission{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()

	ok, err := e.Auth.CanEdit(ctx, tx, opts.ProjectID, opts.AuthorID)
	if err != nil {
		return domain.Submission{}, err
	}
	if !ok {
		return domain.Submission{}, auth.ForbiddenError{Action: "submit deliverables"}
	}
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM activities WHERE project_id=? AND key=?`, opts.ProjectID, opts.ActivityKey).Scan(&n); err != nil {
		return domain.Submission{}, err
	}
	if n == 0 {
		return domain.Submission{}, fmt.Errorf("activity %s not found", opts.ActivityKey)
	}
	now := e.nowStr()
	s := domain.Submission{
		ID:          uuid.NewString(),
		ProjectID:   opts.ProjectID,
		ActivityKey: opts.ActivityKey,
		AuthorID:    opts.AuthorID,
		Comment:     opts.Comment,
		FileKey:     opts.FileKey,
		Status:      "submitted",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertSubmission(ctx, tx, s); err != nil {
		return domain.Submission{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Submission("submission.created", s.ProjectID, s.ID, s.ActivityKey, opts.AuthorID)); err != nil {
		return domain.Submission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Submission{}, err
	}
	return s, nil
}

func ensureSubmissionTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case "submitted":
		if newStatus == "approved" || newStatus == "rejected" {
			return nil
		}
	case "rejected":
		if newStatus == "submitted" {
			return nil
		}
	}
	return fmt.Errorf("invalid submission status transition %s -> %s", oldStatus, newStatus)
}

// ReviewSubmission lets the owner approve or reject a submission with an
// optional note.
func (e Engine) ReviewSubmission(ctx context.Context, submissionID, actorID string, approve bool, note string) (domain.Submission, error) {
	s, err := e.Repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return s, err
	}
	newStatus := "rejected"
	if approve {
		newStatus = "approved"
	}
	if err := ensureSubmissionTransition(s.Status, newStatus); err != nil {
		return s, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()

	ok, err := e.Auth.CanManage(ctx, tx, s.ProjectID, actorID)
	if err != nil {
		return s, err
	}
	if !ok {
		return s, auth.ForbiddenError{Action: "review submissions"}
	}
	s.Status = newStatus
	s.ReviewerID = optionalString(actorID)
	s.ReviewNote = optionalString(note)
	s.UpdatedAt = e.nowStr()
	if err := e.Repo.UpdateSubmission(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, events.Submission("submission."+newStatus, s.ProjectID, s.ID, s.ActivityKey, actorID)); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

// ResubmitDeliverable lets the author revise a rejected submission.
func (e Engine) ResubmitDeliverable(ctx context.Context, submissionID, actorID, comment, fileKey string) (domain.Submission, error) {
	s, err := e.Repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return s, err
	}
	if s.AuthorID != actorID {
		return s, auth.ForbiddenError{Action: "resubmit this deliverable"}
	}
	if err := ensureSubmissionTransition(s.Status, "submitted"); err != nil {
		return s, err
	}
	if err := e.checkAttachmentKind(fileKey); err != nil {
		return s, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()

	if comment != "" {
		s.Comment = comment
	}
	if fileKey != "" {
		s.FileKey = fileKey
	}
	s.Status = "submitted"
	s.ReviewerID = nil
	s.ReviewNote = nil
	s.UpdatedAt = e.nowStr()
	if err := e.Repo.UpdateSubmission(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, events.Submission("submission.resubmitted", s.ProjectID, s.ID, s.ActivityKey, actorID)); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

// GetSubmission enforces visibility through project membership.
func (e Engine) GetSubmission(ctx context.Context, id, actorID string) (domain.Submission, error) {
	s, err := e.Repo.GetSubmission(ctx, id)
	if err != nil {
		return s, err
	}
	ok, err := e.Auth.CanView(ctx, nil, s.ProjectID, actorID)
	if err != nil {
		return s, err
	}
	if !ok {
		return domain.Submission{}, repo.ErrNotFound
	}
	return s, nil
}
