package aulaplansdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Aulaplan HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	ActorID     string // sent as X-Actor-Id when no token or key is set
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID              string  `json:"id"`
	OwnerID         string  `json:"owner_id"`
	Name            string  `json:"name"`
	Planteamiento   string  `json:"planteamiento,omitempty"`
	Justificacion   string  `json:"justificacion,omitempty"`
	ObjetivoGeneral string  `json:"objetivo_general,omitempty"`
	TypeProject     string  `json:"type_project,omitempty"`
	CategoryID      *string `json:"categoryId,omitempty"`
	CoverImageKey   string  `json:"coverImageKey,omitempty"`
	CoverVideoKey   string  `json:"coverVideoKey,omitempty"`
	IsPublic        bool    `json:"isPublic"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// Activity mirrors one editor activity row inside a planning payload.
type Activity struct {
	Descripcion       string  `json:"descripcion"`
	HoursPerDay       int     `json:"hoursPerDay"`
	ObjetivoID        *string `json:"objetivoId,omitempty"`
	ResponsibleUserID *string `json:"responsibleUserId,omitempty"`
}

// Objective groups activities under one specific objective.
type Objective struct {
	ID          *string    `json:"id,omitempty"`
	Title       string     `json:"title"`
	Actividades []Activity `json:"actividades"`
}

// Planning is the full planning save payload.
type Planning struct {
	Objetivos      []Objective `json:"objetivos_especificos"`
	FechaInicio    string      `json:"fechaInicio,omitempty"`
	FechaFin       string      `json:"fechaFin,omitempty"`
	HorasPorDia    int         `json:"horasPorDia,omitempty"`
	TotalHoras     int         `json:"totalHoras,omitempty"`
	View           string      `json:"tipoVisualizacion,omitempty"`
	EndDateMode    string      `json:"end_date_mode,omitempty"`
	TotalHoursMode string      `json:"total_hours_mode,omitempty"`
}

// PlanningDoc is the stored planning as the server returns it.
type PlanningDoc struct {
	Project   Project `json:"project"`
	Objetivos []struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Position    int    `json:"position"`
		Actividades []struct {
			Key               string  `json:"key"`
			Descripcion       string  `json:"descripcion"`
			HoursPerDay       int     `json:"hoursPerDay"`
			ObjetivoID        string  `json:"objetivoId"`
			Position          int     `json:"position"`
			ResponsibleUserID *string `json:"responsibleUserId,omitempty"`
		} `json:"actividades"`
	} `json:"objetivos_especificos"`
	Schedule struct {
		FechaInicio    string `json:"fechaInicio"`
		FechaFin       string `json:"fechaFin"`
		HorasPorDia    int    `json:"horasPorDia"`
		TotalHoras     int    `json:"totalHoras"`
		DiasNecesarios int    `json:"diasNecesarios"`
		View           string `json:"tipoVisualizacion"`
	} `json:"cronograma"`
}

// Cronograma is the computed timeline for one view.
type Cronograma struct {
	View           string           `json:"tipo_visualizacion"`
	FechaInicio    string           `json:"fechaInicio"`
	FechaFin       string           `json:"fechaFin"`
	HorasPorDia    int              `json:"horasPorDia"`
	TotalHoras     int              `json:"totalHoras"`
	DiasNecesarios int              `json:"diasNecesarios"`
	Dias           []string         `json:"dias,omitempty"`
	Meses          []string         `json:"meses,omitempty"`
	Buckets        map[string][]int `json:"buckets"`
	Horas          map[string]int   `json:"horas"`
}

// Invitation represents a pending or resolved collaboration invite.
type Invitation struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	InviterID string `json:"inviter_id"`
	InviteeID string `json:"invitee_id"`
	Message   string `json:"message,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ParticipationRequest represents a join request on a public project.
type ParticipationRequest struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	RequesterID string `json:"requester_id"`
	Message     string `json:"message,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Collaborator is one project member.
type Collaborator struct {
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// Submission is student work turned in for an activity.
type Submission struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	ActivityKey string  `json:"activity_key"`
	AuthorID    string  `json:"author_id"`
	Comment     string  `json:"comment,omitempty"`
	FileKey     string  `json:"file_key,omitempty"`
	Status      string  `json:"status"`
	ReviewNote  *string `json:"review_note,omitempty"`
	ReviewerID  *string `json:"reviewer_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedProjects wraps project list responses with cursors.
type PaginatedProjects struct {
	Items      []Project `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// PaginatedEvents wraps event list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateProject creates a project owned by the authenticated actor.
func (c *Client) CreateProject(ctx context.Context, name string, fields map[string]any) (Project, error) {
	body := map[string]any{"name": name}
	for k, v := range fields {
		body[k] = v
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v1/projects", body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, ""), nil, &resp)
	return resp, err
}

// UpdateProject patches the given fields on a project.
func (c *Client) UpdateProject(ctx context.Context, projectID string, fields map[string]any) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPatch, c.projectPath(projectID, ""), fields, &resp)
	return resp, err
}

// DeleteProject removes a project and everything under it.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodDelete, c.projectPath(projectID, ""), nil, nil)
}

// ListProjects returns a page of visible projects. Set mine to restrict
// the listing to projects the authenticated actor collaborates on.
func (c *Client) ListProjects(ctx context.Context, mine bool, limit int, cursor string) (PaginatedProjects, error) {
	q := url.Values{}
	if mine {
		q.Set("mine", "true")
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v1/projects"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedProjects
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SavePlanning replaces the project's objectives, activities, and schedule.
func (c *Client) SavePlanning(ctx context.Context, projectID string, p Planning) (PlanningDoc, error) {
	var resp PlanningDoc
	err := c.do(ctx, http.MethodPut, c.projectPath(projectID, "planning"), p, &resp)
	return resp, err
}

// GetPlanning returns the stored planning document.
func (c *Client) GetPlanning(ctx context.Context, projectID string) (PlanningDoc, error) {
	var resp PlanningDoc
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "planning"), nil, &resp)
	return resp, err
}

// Schedule computes the cronograma for the stored planning. An empty view
// uses the project's saved visualization.
func (c *Client) Schedule(ctx context.Context, projectID, view string) (Cronograma, error) {
	endpoint := c.projectPath(projectID, "schedule")
	if view != "" {
		endpoint += "?view=" + url.QueryEscape(view)
	}
	var resp Cronograma
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// PreviewSchedule computes a cronograma for an unsaved planning payload.
func (c *Client) PreviewSchedule(ctx context.Context, p Planning) (Cronograma, error) {
	var resp Cronograma
	err := c.do(ctx, http.MethodPost, "v1/schedule/preview", p, &resp)
	return resp, err
}

// Invite invites another actor to collaborate on a project.
func (c *Client) Invite(ctx context.Context, projectID, inviteeID, message string) (Invitation, error) {
	body := map[string]any{"invitee_id": inviteeID}
	if message != "" {
		body["message"] = message
	}
	var resp Invitation
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "invitations"), body, &resp)
	return resp, err
}

// ListInvitations returns the project's invitations, optionally by status.
func (c *Client) ListInvitations(ctx context.Context, projectID, status string) ([]Invitation, error) {
	endpoint := c.projectPath(projectID, "invitations")
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Invitation
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RespondInvitation accepts or declines an invitation addressed to the
// authenticated actor. Status must be "accepted" or "declined".
func (c *Client) RespondInvitation(ctx context.Context, projectID, invitationID, status string) (Invitation, error) {
	body := map[string]any{"status": status}
	var resp Invitation
	endpoint := c.projectPath(projectID, "invitations/"+url.PathEscape(invitationID))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// RevokeInvitation cancels a pending invitation.
func (c *Client) RevokeInvitation(ctx context.Context, projectID, invitationID string) error {
	endpoint := c.projectPath(projectID, "invitations/"+url.PathEscape(invitationID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// RequestParticipation asks to join a public project.
func (c *Client) RequestParticipation(ctx context.Context, projectID, message string) (ParticipationRequest, error) {
	body := map[string]any{}
	if message != "" {
		body["message"] = message
	}
	var resp ParticipationRequest
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "requests"), body, &resp)
	return resp, err
}

// ListRequests returns the project's participation requests.
func (c *Client) ListRequests(ctx context.Context, projectID, status string) ([]ParticipationRequest, error) {
	endpoint := c.projectPath(projectID, "requests")
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []ParticipationRequest
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ResolveRequest approves or rejects a participation request. Status must
// be "approved" or "rejected".
func (c *Client) ResolveRequest(ctx context.Context, projectID, requestID, status string) (ParticipationRequest, error) {
	body := map[string]any{"status": status}
	var resp ParticipationRequest
	endpoint := c.projectPath(projectID, "requests/"+url.PathEscape(requestID))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// ListCollaborators returns the project's members.
func (c *Client) ListCollaborators(ctx context.Context, projectID string) ([]Collaborator, error) {
	var resp []Collaborator
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "collaborators"), nil, &resp)
	return resp, err
}

// RemoveCollaborator removes a member from the project.
func (c *Client) RemoveCollaborator(ctx context.Context, projectID, actorID string) error {
	endpoint := c.projectPath(projectID, "collaborators/"+url.PathEscape(actorID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// CreateSubmission turns in work for an activity.
func (c *Client) CreateSubmission(ctx context.Context, projectID, activityKey, comment, fileKey string) (Submission, error) {
	body := map[string]any{}
	if comment != "" {
		body["comment"] = comment
	}
	if fileKey != "" {
		body["file_key"] = fileKey
	}
	var resp Submission
	endpoint := c.projectPath(projectID, fmt.Sprintf("activities/%s/submissions", url.PathEscape(activityKey)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ListSubmissions returns the project's submissions, optionally filtered.
func (c *Client) ListSubmissions(ctx context.Context, projectID string, filters map[string]string) ([]Submission, error) {
	endpoint := c.projectPath(projectID, "submissions")
	q := url.Values{}
	for k, v := range filters {
		if v != "" {
			q.Set(k, v)
		}
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Submission
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetSubmission fetches a submission by id.
func (c *Client) GetSubmission(ctx context.Context, projectID, submissionID string) (Submission, error) {
	var resp Submission
	endpoint := c.projectPath(projectID, "submissions/"+url.PathEscape(submissionID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ReviewSubmission approves or rejects a pending submission. Status must
// be "approved" or "rejected".
func (c *Client) ReviewSubmission(ctx context.Context, projectID, submissionID, status, note string) (Submission, error) {
	body := map[string]any{"status": status}
	if note != "" {
		body["note"] = note
	}
	var resp Submission
	endpoint := c.projectPath(projectID, "submissions/"+url.PathEscape(submissionID))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// Resubmit puts a rejected submission back into review.
func (c *Client) Resubmit(ctx context.Context, projectID, submissionID, comment, fileKey string) (Submission, error) {
	body := map[string]any{}
	if comment != "" {
		body["comment"] = comment
	}
	if fileKey != "" {
		body["file_key"] = fileKey
	}
	var resp Submission
	endpoint := c.projectPath(projectID, fmt.Sprintf("submissions/%s/resubmit", url.PathEscape(submissionID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Events returns recent project events.
func (c *Client) Events(ctx context.Context, projectID string, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, projectID, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, projectID string, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.projectPath(projectID, "events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DevLogin exchanges an actor id for a bearer token on servers that have
// the dev login endpoint enabled, and stores the token on the client.
func (c *Client) DevLogin(ctx context.Context, actorID, name string) (string, error) {
	body := map[string]any{"actor_id": actorID}
	if name != "" {
		body["name"] = name
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "v1/auth/dev/login", body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(projectID, p string) string {
	base := "v1/projects/" + url.PathEscape(projectID)
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
