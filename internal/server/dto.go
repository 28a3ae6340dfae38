package server

import (
	"context"
	"encoding/json"
	"fmt"

	"aulaplan/internal/domain"
	"aulaplan/internal/engine"
	"aulaplan/internal/schedule"
)

// Wire names follow the classroom client conventions: Spanish field names,
// camelCase for the planning document, snake_case for list filters.

type CreateProjectRequest struct {
	ID              *string `json:"id,omitempty"`
	Name            string  `json:"name"`
	Planteamiento   *string `json:"planteamiento,omitempty"`
	Justificacion   *string `json:"justificacion,omitempty"`
	ObjetivoGeneral *string `json:"objetivo_general,omitempty"`
	TypeProject     *string `json:"type_project,omitempty"`
	CategoryID      *string `json:"categoryId,omitempty"`
	IsPublic        *bool   `json:"isPublic,omitempty"`
}

type UpdateProjectRequest struct {
	Name            *string `json:"name,omitempty"`
	Planteamiento   *string `json:"planteamiento,omitempty"`
	Justificacion   *string `json:"justificacion,omitempty"`
	ObjetivoGeneral *string `json:"objetivo_general,omitempty"`
	TypeProject     *string `json:"type_project,omitempty"`
	CategoryID      *string `json:"categoryId,omitempty"`
	CoverImageKey   *string `json:"coverImageKey,omitempty"`
	CoverVideoKey   *string `json:"coverVideoKey,omitempty"`
	IsPublic        *bool   `json:"isPublic,omitempty"`
	Status          *string `json:"status,omitempty"`
}

type ProjectResponse struct {
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

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:              p.ID,
		OwnerID:         p.OwnerID,
		Name:            p.Name,
		Planteamiento:   p.Planteamiento,
		Justificacion:   p.Justificacion,
		ObjetivoGeneral: p.ObjetivoGeneral,
		TypeProject:     p.TypeProject,
		CategoryID:      p.CategoryID,
		CoverImageKey:   p.CoverImageKey,
		CoverVideoKey:   p.CoverVideoKey,
		IsPublic:        p.IsPublic,
		Status:          p.Status,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, len(items))
	for i, p := range items {
		res[i] = projectResponse(p)
	}
	return res
}

// ActivityRequest mirrors the editor's activity row. Meses is a client-side
// rendering cache; the server recomputes buckets and ignores it.
type ActivityRequest struct {
	Descripcion       string  `json:"descripcion"`
	HoursPerDay       int     `json:"hoursPerDay"`
	Meses             []int   `json:"meses,omitempty"`
	ObjetivoID        *string `json:"objetivoId,omitempty"`
	ResponsibleUserID *string `json:"responsibleUserId,omitempty"`
}

type ObjectiveRequest struct {
	ID          *string           `json:"id,omitempty"`
	Title       string            `json:"title"`
	Actividades []ActivityRequest `json:"actividades,omitempty"`
}

// SavePlanningRequest is the full save payload the classroom editor posts:
// project narrative fields, the objective list, activities either nested
// per objective or as a flat list keyed by objetivoId, and the schedule
// parameters. tiempoEstimado, diasEstimados, diasNecesarios and the
// per-activity meses are client-side caches; the server re-derives them
// and ignores the input values.
type SavePlanningRequest struct {
	Name            *string            `json:"name,omitempty"`
	Planteamiento   *string            `json:"planteamiento,omitempty"`
	Justificacion   *string            `json:"justificacion,omitempty"`
	ObjetivoGeneral *string            `json:"objetivo_general,omitempty"`
	TypeProject     *string            `json:"type_project,omitempty"`
	CategoryID      *string            `json:"categoryId,omitempty"`
	CoverImageKey   *string            `json:"coverImageKey,omitempty"`
	CoverVideoKey   *string            `json:"coverVideoKey,omitempty"`
	IsPublic        *bool              `json:"isPublic,omitempty"`
	Objetivos       []ObjectiveRequest `json:"objetivos_especificos"`
	Actividades     []ActivityRequest  `json:"actividades,omitempty"`
	FechaInicio     string             `json:"fechaInicio,omitempty"`
	FechaFin        string             `json:"fechaFin,omitempty"`
	HorasPorDia     int                `json:"horasPorDia,omitempty"`
	TotalHoras      int                `json:"totalHoras,omitempty"`
	TiempoEstimado  int                `json:"tiempoEstimado,omitempty"`
	DiasEstimados   int                `json:"diasEstimados,omitempty"`
	DiasNecesarios  int                `json:"diasNecesarios,omitempty"`
	View            string             `json:"tipoVisualizacion,omitempty"`
	EndDateMode     string             `json:"end_date_mode,omitempty"`
	TotalHoursMode  string             `json:"total_hours_mode,omitempty"`
}

// objectiveInputs merges the two activity forms: rows nested inside an
// objective come first, then flat actividades attach to their objetivoId
// in payload order.
func (r SavePlanningRequest) objectiveInputs() ([]engine.ObjectiveInput, error) {
	res := make([]engine.ObjectiveInput, len(r.Objetivos))
	index := make(map[string]int, len(r.Objetivos))
	for i, o := range r.Objetivos {
		in := engine.ObjectiveInput{Title: o.Title}
		if o.ID != nil {
			in.ID = *o.ID
			index[*o.ID] = i
		}
		for _, a := range o.Actividades {
			in.Activities = append(in.Activities, activityInput(a))
		}
		res[i] = in
	}
	for i, a := range r.Actividades {
		pos, ok := index[stringOrEmpty(a.ObjetivoID)]
		if !ok {
			return nil, fmt.Errorf("actividad %d has invalid objetivoId %q", i, stringOrEmpty(a.ObjetivoID))
		}
		res[pos].Activities = append(res[pos].Activities, activityInput(a))
	}
	return res, nil
}

func activityInput(a ActivityRequest) engine.ActivityInput {
	return engine.ActivityInput{
		Descripcion:       a.Descripcion,
		Hours:             a.HoursPerDay,
		ResponsibleUserID: stringOrEmpty(a.ResponsibleUserID),
	}
}

// projectOptions carries the payload's project-level fields into the save.
func (r SavePlanningRequest) projectOptions(projectID, actorID string) engine.ProjectUpdateOptions {
	return engine.ProjectUpdateOptions{
		ID:              projectID,
		Name:            r.Name,
		Planteamiento:   r.Planteamiento,
		Justificacion:   r.Justificacion,
		ObjetivoGeneral: r.ObjetivoGeneral,
		TypeProject:     r.TypeProject,
		CategoryID:      r.CategoryID,
		CoverImageKey:   r.CoverImageKey,
		CoverVideoKey:   r.CoverVideoKey,
		IsPublic:        r.IsPublic,
		ActorID:         actorID,
	}
}

type ActivityResponse struct {
	Key               string  `json:"key"`
	Descripcion       string  `json:"descripcion"`
	HoursPerDay       int     `json:"hoursPerDay"`
	ObjetivoID        string  `json:"objetivoId"`
	Position          int     `json:"position"`
	ResponsibleUserID *string `json:"responsibleUserId,omitempty"`
}

type ObjectiveResponse struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Position    int                `json:"position"`
	Actividades []ActivityResponse `json:"actividades"`
}

type ScheduleResponse struct {
	FechaInicio    string `json:"fechaInicio"`
	FechaFin       string `json:"fechaFin"`
	HorasPorDia    int    `json:"horasPorDia"`
	TotalHoras     int    `json:"totalHoras"`
	DiasNecesarios int    `json:"diasNecesarios"`
	View           string `json:"tipoVisualizacion"`
	EndDateMode    string `json:"end_date_mode"`
	TotalHoursMode string `json:"total_hours_mode"`
}

func scheduleResponse(s domain.Schedule) ScheduleResponse {
	return ScheduleResponse{
		FechaInicio:    s.FechaInicio,
		FechaFin:       s.FechaFin,
		HorasPorDia:    s.HorasPorDia,
		TotalHoras:     s.TotalHoras,
		DiasNecesarios: s.DiasNecesarios,
		View:           s.View,
		EndDateMode:    s.EndDateMode,
		TotalHoursMode: s.TotalHoursMode,
	}
}

type PlanningResponse struct {
	Project   ProjectResponse     `json:"project"`
	Objetivos []ObjectiveResponse `json:"objetivos_especificos"`
	Schedule  ScheduleResponse    `json:"cronograma"`
}

func planningResponse(p engine.Planning) PlanningResponse {
	res := PlanningResponse{
		Project:   projectResponse(p.Project),
		Objetivos: []ObjectiveResponse{},
		Schedule:  scheduleResponse(p.Schedule),
	}
	for _, po := range p.Objectives {
		o := ObjectiveResponse{
			ID:          po.Objective.ID,
			Title:       po.Objective.Title,
			Position:    po.Objective.Position,
			Actividades: []ActivityResponse{},
		}
		for _, a := range po.Activities {
			o.Actividades = append(o.Actividades, ActivityResponse{
				Key:               a.Key,
				Descripcion:       a.Descripcion,
				HoursPerDay:       a.Hours,
				ObjetivoID:        a.ObjectiveID,
				Position:          a.Position,
				ResponsibleUserID: a.ResponsibleUserID,
			})
		}
		res.Objetivos = append(res.Objetivos, o)
	}
	return res
}

// CronogramaResponse is the computed timeline. Dias carries working-day
// dates for the day view; Meses carries YYYY-MM labels for the month view.
// Buckets maps activity key to column indices of the active view.
type CronogramaResponse struct {
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

func cronogramaResponse(c schedule.Cronograma, s domain.Schedule) CronogramaResponse {
	res := CronogramaResponse{
		View:           c.View,
		FechaInicio:    s.FechaInicio,
		FechaFin:       s.FechaFin,
		HorasPorDia:    s.HorasPorDia,
		TotalHoras:     s.TotalHoras,
		DiasNecesarios: c.DiasNecesarios,
		Buckets:        c.Buckets,
		Horas:          c.Hours,
	}
	if res.Buckets == nil {
		res.Buckets = map[string][]int{}
	}
	if res.Horas == nil {
		res.Horas = map[string]int{}
	}
	switch c.View {
	case schedule.ViewDays:
		for _, d := range c.Days {
			res.Dias = append(res.Dias, d.Format(schedule.DateLayout))
		}
	case schedule.ViewMonths:
		for _, w := range c.Windows {
			res.Meses = append(res.Meses, w.First.Format("2006-01"))
		}
	}
	return res
}

type PreviewScheduleRequest struct {
	SavePlanningRequest
}

type CategoryResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func mapCategories(items []domain.Category) []CategoryResponse {
	res := make([]CategoryResponse, len(items))
	for i, c := range items {
		res[i] = CategoryResponse{ID: c.ID, Name: c.Name, Description: c.Description}
	}
	return res
}

type CollaboratorResponse struct {
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

func mapCollaborators(items []domain.Collaborator) []CollaboratorResponse {
	res := make([]CollaboratorResponse, len(items))
	for i, c := range items {
		res[i] = CollaboratorResponse{ProjectID: c.ProjectID, ActorID: c.ActorID, Role: c.Role, CreatedAt: c.CreatedAt}
	}
	return res
}

type CreateInvitationRequest struct {
	InviteeID string  `json:"invitee_id"`
	Message   *string `json:"message,omitempty"`
}

type InvitationResponse struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	InviterID string `json:"inviter_id"`
	InviteeID string `json:"invitee_id"`
	Message   string `json:"message,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func invitationResponse(inv domain.Invitation) InvitationResponse {
	return InvitationResponse{
		ID:        inv.ID,
		ProjectID: inv.ProjectID,
		InviterID: inv.InviterID,
		InviteeID: inv.InviteeID,
		Message:   inv.Message,
		Status:    inv.Status,
		CreatedAt: inv.CreatedAt,
		UpdatedAt: inv.UpdatedAt,
	}
}

func mapInvitations(items []domain.Invitation) []InvitationResponse {
	res := make([]InvitationResponse, len(items))
	for i, inv := range items {
		res[i] = invitationResponse(inv)
	}
	return res
}

type CreateRequestRequest struct {
	Message *string `json:"message,omitempty"`
}

type ParticipationRequestResponse struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	RequesterID string `json:"requester_id"`
	Message     string `json:"message,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func requestResponse(req domain.ParticipationRequest) ParticipationRequestResponse {
	return ParticipationRequestResponse{
		ID:          req.ID,
		ProjectID:   req.ProjectID,
		RequesterID: req.RequesterID,
		Message:     req.Message,
		Status:      req.Status,
		CreatedAt:   req.CreatedAt,
		UpdatedAt:   req.UpdatedAt,
	}
}

func mapRequests(items []domain.ParticipationRequest) []ParticipationRequestResponse {
	res := make([]ParticipationRequestResponse, len(items))
	for i, req := range items {
		res[i] = requestResponse(req)
	}
	return res
}

type CreateSubmissionRequest struct {
	Comment *string `json:"comment,omitempty"`
	FileKey *string `json:"file_key,omitempty"`
}

type ReviewSubmissionRequest struct {
	Status string  `json:"status" enum:"approved,rejected"`
	Note   *string `json:"note,omitempty"`
}

type SubmissionResponse struct {
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

func submissionResponse(s domain.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:          s.ID,
		ProjectID:   s.ProjectID,
		ActivityKey: s.ActivityKey,
		AuthorID:    s.AuthorID,
		Comment:     s.Comment,
		FileKey:     s.FileKey,
		Status:      s.Status,
		ReviewNote:  s.ReviewNote,
		ReviewerID:  s.ReviewerID,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func mapSubmissions(items []domain.Submission) []SubmissionResponse {
	res := make([]SubmissionResponse, len(items))
	for i, s := range items {
		res[i] = submissionResponse(s)
	}
	return res
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, len(items))
	for i, e := range items {
		res[i] = eventResponse(e)
	}
	return res
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}
	}
	return m
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
}
