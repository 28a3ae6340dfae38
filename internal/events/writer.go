// Package events appends aulaplan's change log: one row per project,
// planning, membership or submission mutation, written inside the mutating
// transaction so the log never drifts from the state it describes.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Record is one log entry before persistence. Types follow entity.verb
// (project.created, planning.saved, invitation.accepted, ...).
type Record struct {
	Type       string
	ProjectID  string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    EventPayload
}

// Project builds a record for a project-level mutation.
func Project(typ, projectID, actorID string, payload EventPayload) Record {
	return Record{Type: typ, ProjectID: projectID, EntityKind: "project", EntityID: projectID, ActorID: actorID, Payload: payload}
}

// PlanningSaved records a full planning replacement with its row counts.
func PlanningSaved(projectID, actorID string, objectives, activities int) Record {
	return Record{Type: "planning.saved", ProjectID: projectID, EntityKind: "planning", EntityID: projectID, ActorID: actorID,
		Payload: EventPayload{"objectives": objectives, "activities": activities}}
}

// Invitation builds a record for an invitation lifecycle step.
func Invitation(typ, projectID, invitationID, actorID string, payload EventPayload) Record {
	return Record{Type: typ, ProjectID: projectID, EntityKind: "invitation", EntityID: invitationID, ActorID: actorID, Payload: payload}
}

// Request builds a record for a participation-request lifecycle step.
func Request(typ, projectID, requestID, actorID string, payload EventPayload) Record {
	return Record{Type: typ, ProjectID: projectID, EntityKind: "request", EntityID: requestID, ActorID: actorID, Payload: payload}
}

// Collaborator builds a record for a membership change.
func Collaborator(typ, projectID, targetID, actorID string) Record {
	return Record{Type: typ, ProjectID: projectID, EntityKind: "collaborator", EntityID: targetID, ActorID: actorID}
}

// Submission builds a record for a submission lifecycle step.
func Submission(typ, projectID, submissionID, activityKey, actorID string) Record {
	return Record{Type: typ, ProjectID: projectID, EntityKind: "submission", EntityID: submissionID, ActorID: actorID,
		Payload: EventPayload{"activity_key": activityKey}}
}

// Append writes a record inside the caller's transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec Record) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if rec.Payload == nil {
		rec.Payload = EventPayload{}
	}
	data, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, rec.Type, nullable(rec.ProjectID), rec.EntityKind, nullable(rec.EntityID), rec.ActorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
