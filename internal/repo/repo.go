package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"aulaplan/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const projectColumns = `id,owner_id,name,planteamiento,justificacion,objetivo_general,type_project,category_id,cover_image_key,cover_video_key,is_public,status,created_at,updated_at`

func scanProjectRow(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var categoryID, coverImage, coverVideo sql.NullString
	var isPublic int
	err := scan(&p.ID, &p.OwnerID, &p.Name, &p.Planteamiento, &p.Justificacion, &p.ObjetivoGeneral,
		&p.TypeProject, &categoryID, &coverImage, &coverVideo, &isPublic, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if categoryID.Valid {
		p.CategoryID = &categoryID.String
	}
	if coverImage.Valid {
		p.CoverImageKey = coverImage.String
	}
	if coverVideo.Valid {
		p.CoverVideoKey = coverVideo.String
	}
	p.IsPublic = isPublic != 0
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.OwnerID, p.Name, p.Planteamiento, p.Justificacion, p.ObjetivoGeneral, p.TypeProject,
		nullableStringPtr(p.CategoryID), nullable(p.CoverImageKey), nullable(p.CoverVideoKey), boolInt(p.IsPublic),
		p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET name=?, planteamiento=?, justificacion=?, objetivo_general=?, type_project=?, category_id=?, cover_image_key=?, cover_video_key=?, is_public=?, status=?, updated_at=? WHERE id=?`,
		p.Name, p.Planteamiento, p.Justificacion, p.ObjetivoGeneral, p.TypeProject,
		nullableStringPtr(p.CategoryID), nullable(p.CoverImageKey), nullable(p.CoverVideoKey), boolInt(p.IsPublic),
		p.Status, p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	return scanProjectRow(row.Scan)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	return scanProjectRow(row.Scan)
}

type ProjectFilters struct {
	OwnerID         string
	MemberID        string
	CategoryID      string
	Status          string
	PublicOnly      bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	if f.MemberID != "" {
		clauses = append(clauses, "id IN (SELECT project_id FROM collaborators WHERE actor_id=?)")
		args = append(args, f.MemberID)
	}
	if f.CategoryID != "" {
		clauses = append(clauses, "category_id=?")
		args = append(args, f.CategoryID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.PublicOnly {
		clauses = append(clauses, "is_public=1")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + projectColumns + ` FROM projects ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProjectRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ReplaceObjectives(ctx context.Context, tx *sql.Tx, projectID string, objectives []domain.Objective) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM objectives WHERE project_id=?`, projectID); err != nil {
		return err
	}
	for _, o := range objectives {
		if _, err := tx.ExecContext(ctx, `INSERT INTO objectives(id,project_id,title,position) VALUES (?,?,?,?)`,
			o.ID, projectID, o.Title, o.Position); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListObjectives(ctx context.Context, projectID string) ([]domain.Objective, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,title,position FROM objectives WHERE project_id=? ORDER BY position ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Objective
	for rows.Next() {
		var o domain.Objective
		if err := rows.Scan(&o.ID, &o.ProjectID, &o.Title, &o.Position); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) ReplaceActivities(ctx context.Context, tx *sql.Tx, projectID string, activities []domain.Activity) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE project_id=?`, projectID); err != nil {
		return err
	}
	for _, a := range activities {
		if _, err := tx.ExecContext(ctx, `INSERT INTO activities(key,project_id,objective_id,position,descripcion,hours,responsible_user_id) VALUES (?,?,?,?,?,?,?)`,
			a.Key, projectID, a.ObjectiveID, a.Position, a.Descripcion, a.Hours, nullableStringPtr(a.ResponsibleUserID)); err != nil {
			return err
		}
	}
	return nil
}

// ListActivities returns the project's activities in plan order: objective
// position first, then activity position.
func (r Repo) ListActivities(ctx context.Context, projectID string) ([]domain.Activity, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT a.key,a.project_id,a.objective_id,a.position,a.descripcion,a.hours,a.responsible_user_id
FROM activities a JOIN objectives o ON o.id=a.objective_id
WHERE a.project_id=? ORDER BY o.position ASC, a.position ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var responsible sql.NullString
		if err := rows.Scan(&a.Key, &a.ProjectID, &a.ObjectiveID, &a.Position, &a.Descripcion, &a.Hours, &responsible); err != nil {
			return nil, err
		}
		if responsible.Valid {
			a.ResponsibleUserID = &responsible.String
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpsertSchedule(ctx context.Context, tx *sql.Tx, s domain.Schedule) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO schedules(project_id,fecha_inicio,fecha_fin,horas_por_dia,total_horas,dias_necesarios,view,end_date_mode,total_hours_mode,snapshot_json)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET fecha_inicio=excluded.fecha_inicio, fecha_fin=excluded.fecha_fin,
horas_por_dia=excluded.horas_por_dia, total_horas=excluded.total_horas, dias_necesarios=excluded.dias_necesarios,
view=excluded.view, end_date_mode=excluded.end_date_mode, total_hours_mode=excluded.total_hours_mode, snapshot_json=excluded.snapshot_json`,
		s.ProjectID, s.FechaInicio, s.FechaFin, s.HorasPorDia, s.TotalHoras, s.DiasNecesarios,
		s.View, s.EndDateMode, s.TotalHoursMode, nullableStringPtr(s.SnapshotJSON))
	return err
}

func (r Repo) GetSchedule(ctx context.Context, projectID string) (domain.Schedule, error) {
	var s domain.Schedule
	var snapshot sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT project_id,fecha_inicio,fecha_fin,horas_por_dia,total_horas,dias_necesarios,view,end_date_mode,total_hours_mode,snapshot_json FROM schedules WHERE project_id=?`, projectID).
		Scan(&s.ProjectID, &s.FechaInicio, &s.FechaFin, &s.HorasPorDia, &s.TotalHoras, &s.DiasNecesarios, &s.View, &s.EndDateMode, &s.TotalHoursMode, &snapshot)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if snapshot.Valid {
		s.SnapshotJSON = &snapshot.String
	}
	return s, nil
}

func (r Repo) UpsertCategory(ctx context.Context, tx *sql.Tx, c domain.Category) error {
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	_, err := exec(`INSERT INTO categories(id,name,description) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, description=excluded.description`, c.ID, c.Name, c.Description)
	return err
}

func (r Repo) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,description FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	var c domain.Category
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,description FROM categories WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &c.Description)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}

func (r Repo) LatestEvents(ctx context.Context, limit int, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, projectID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, projectID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var projectID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &projectID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if projectID.Valid {
			e.ProjectID = projectID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID, scoped to a project when
// projectID is set and workspace-wide otherwise.
func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	row := r.DB.QueryRowContext(ctx, query, args...)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
