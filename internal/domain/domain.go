package domain

type Project struct {
	ID              string  `json:"id"`
	OwnerID         string  `json:"owner_id"`
	Name            string  `json:"name"`
	Planteamiento   string  `json:"planteamiento,omitempty"`
	Justificacion   string  `json:"justificacion,omitempty"`
	ObjetivoGeneral string  `json:"objetivo_general,omitempty"`
	TypeProject     string  `json:"type_project,omitempty"`
	CategoryID      *string `json:"category_id,omitempty"`
	CoverImageKey   string  `json:"cover_image_key,omitempty"`
	CoverVideoKey   string  `json:"cover_video_key,omitempty"`
	IsPublic        bool    `json:"is_public"`
	Status          string  `json:"status" enum:"active,archived"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
	UpdatedAt       string  `json:"updated_at" format:"date-time"`
}

type Objective struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Position  int    `json:"position"`
}

// Activity key space is "<objectiveId>_<activityIndex>", re-derived from
// positions on every planning save.
type Activity struct {
	Key               string  `json:"key"`
	ProjectID         string  `json:"project_id"`
	ObjectiveID       string  `json:"objective_id"`
	Position          int     `json:"position"`
	Descripcion       string  `json:"descripcion"`
	Hours             int     `json:"hours"`
	ResponsibleUserID *string `json:"responsible_user_id,omitempty"`
}

// Schedule holds the cronograma parameters for a project. EndDateMode and
// TotalHoursMode record whether the field is system-computed or a user
// override.
type Schedule struct {
	ProjectID      string  `json:"project_id"`
	FechaInicio    string  `json:"fecha_inicio" format:"date"`
	FechaFin       string  `json:"fecha_fin" format:"date"`
	HorasPorDia    int     `json:"horas_por_dia"`
	TotalHoras     int     `json:"total_horas"`
	DiasNecesarios int     `json:"dias_necesarios"`
	View           string  `json:"tipo_visualizacion" enum:"meses,dias,horas"`
	EndDateMode    string  `json:"end_date_mode" enum:"auto,manual"`
	TotalHoursMode string  `json:"total_hours_mode" enum:"auto,manual"`
	SnapshotJSON   *string `json:"snapshot_json,omitempty"`
}

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Actor struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Collaborator struct {
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role" enum:"owner,collaborator"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Invitation struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	InviterID string `json:"inviter_id"`
	InviteeID string `json:"invitee_id"`
	Message   string `json:"message,omitempty"`
	Status    string `json:"status" enum:"pending,accepted,declined,revoked"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type ParticipationRequest struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	RequesterID string `json:"requester_id"`
	Message     string `json:"message,omitempty"`
	Status      string `json:"status" enum:"pending,approved,rejected"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Submission struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	ActivityKey string  `json:"activity_key"`
	AuthorID    string  `json:"author_id"`
	Comment     string  `json:"comment,omitempty"`
	FileKey     string  `json:"file_key,omitempty"`
	Status      string  `json:"status" enum:"submitted,approved,rejected"`
	ReviewNote  *string `json:"review_note,omitempty"`
	ReviewerID  *string `json:"reviewer_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
