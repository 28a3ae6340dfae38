package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"aulaplan/internal/config"
	"aulaplan/internal/db"
	"aulaplan/internal/engine"
	"aulaplan/internal/engine/auth"
	"aulaplan/internal/migrate"
	"aulaplan/internal/repo"
	"aulaplan/internal/schedule"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("aula-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if err := eng.SeedCategories(ctx); err != nil {
		t.Fatalf("seed categories: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func createProject(t *testing.T, env testEnv, owner string) string {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		Name:    "Huerta escolar",
		ActorID: owner,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p.ID
}

func TestCreateProjectAddsOwnerAndSchedule(t *testing.T) {
	env := newTestEnv(t)
	id := createProject(t, env, "teacher-1")
	c, err := env.Engine.Repo.GetCollaborator(env.Ctx, id, "teacher-1")
	if err != nil || c.Role != "owner" {
		t.Fatalf("owner collaborator missing: %v role=%s", err, c.Role)
	}
	s, err := env.Engine.Repo.GetSchedule(env.Ctx, id)
	if err != nil {
		t.Fatalf("default schedule missing: %v", err)
	}
	if s.HorasPorDia != 6 || s.EndDateMode != schedule.ModeAuto {
		t.Fatalf("unexpected default schedule: %+v", s)
	}
}

func TestProjectStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	id := createProject(t, env, "teacher-1")
	archived := "archived"
	p, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: id, Status: &archived, ActorID: "teacher-1"})
	if err != nil || p.Status != "archived" {
		t.Fatalf("archive: %v", err)
	}
	bogus := "deleted"
	if _, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: id, Status: &bogus, ActorID: "teacher-1"}); err == nil {
		t.Fatalf("expected transition error")
	}
}

func TestPrivateProjectHiddenFromStrangers(t *testing.T) {
	env := newTestEnv(t)
	id := createProject(t, env, "teacher-1")
	if _, err := env.Engine.GetProject(env.Ctx, id, "stranger"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	pub := true
	if _, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: id, IsPublic: &pub, ActorID: "teacher-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := env.Engine.GetProject(env.Ctx, id, "stranger"); err != nil {
		t.Fatalf("public project should be readable: %v", err)
	}
}

func savePlanning(t *testing.T, env testEnv, projectID string, in engine.PlanningInput) engine.Planning {
	t.Helper()
	in.ProjectID = projectID
	if in.ActorID == "" {
		in.ActorID = "teacher-1"
	}
	planning, err := env.Engine.SavePlanning(env.Ctx, in)
	if err != nil {
		t.Fatalf("save planning: %v", err)
	}
	return planning
}

func TestSavePlanningDerivesKeysAndSchedule(t *testing.T) {
	env := newTestEnv(t)
	id := createProject(t, env, "teacher-1")
	planning := savePlanning(t, env, id, engine.PlanningInput{
		FechaInicio: "2024-01-01",
		HorasPorDia: 6,
		Objectives: []engine.ObjectiveInput{
			{Title: "Preparar terreno", Activities: []engine.ActivityInput{
				{Descripcion: "Limpiar", Hours: 8},
				{Descripcion: "Abonar", Hours: 4},
			}},
		},
	})
	if len(planning.Objectives) != 1 || len(planning.Objectives[0].Activities) != 2 {
		t.Fatalf("unexpected planning shape: %+v", planning.Objectives)
	}
	objID := planning.Objectives[0].Objective.ID
	if planning.Objectives[0].Activities[0].Key != objID+"_0" {
		t.Fatalf("key = %s", planning.Objectives[0].Activities[0].Key)
	}
	s := planning.Schedule
	if s.TotalHoras != 12 || s.DiasNecesarios != 2 {
		t.Fatalf("schedule totals wrong: %+v", s)
	}
	if s.FechaFin != "2024-01-02" {
		t.Fatalf("fecha_fin = %s, want 2024-01-02", s.FechaFin)
	}
}

func TestSavePlanningSundayStartShifts(t *testing.T) {
	env := newTestEnv(t)
	id := createProject(t, env, "teacher-1")
	planning := savePlanning(t, env, id, engine.PlanningInput{
		FechaInicio: "2024-01-07",
		Objectives:  []engine.ObjectiveInput{{Title: "Obj", Activities: []engine.ActivityInput{{Descripcion: "a", Hours: 1}}}},
	})
	if planning.Schedule.FechaInicio != "2024-01-08" {
		t.Fatalf("fecha_inicio = %s, want 2024-01-08", planning.Schedule.FechaInicio)
	}
}

func TestSavePlanningManualTotalRedistributesAndRestores(t *testing.T) {
	env := newTestEnv(t)
	id := createProject(t, env, "teacher-1")
	objectives := []engine.ObjectiveInput{
		{Title: "Obj", Activities: []engine.ActivityInput{
			{Descripcion: "a", Hours: 1},
			{Descripcion: "b", Hours: 1},
			{Descripcion: "c", Hours: 1},
		}},
	}
	planning := savePlanning(t, env, id, engine.PlanningInput{
		FechaInicio:    "2024-01-01",
		Objectives:     objectives,
		TotalHoras:     7,
		TotalHoursMode: schedule.ModeManual,
	})
	hours := []int{}
	for _, a := range planning.Objectives[0].Activities {
		hours = append(hours, a.Hours)
	}
	if hours[0] != 3 || hours[1] != 2 || hours[2] != 2 {
		t.Fatalf("redistributed hours = %v, want [3 2 2]", hours)
	}
	if planning.Schedule.SnapshotJSON == nil {
		t.Fatalf("snapshot not stored")
	}

	// keep the same objective IDs so keys line up with the snapshot
	objectives[0].ID = planning.Objectives[0].Objective.ID
	objectives[0].Activities = []engine.ActivityInput{
		{Descripcion: "a", Hours: 3},
		{Descripcion: "b", Hours: 2},
		{Descripcion: "c", Hours: 2},
	}
	restored := savePlanning(t, env, id, engine.PlanningInput{
		FechaInicio:    "2024-01-01",
		Objectives:     objectives,
		TotalHoursMode: schedule.ModeAuto,
	})
	hours = hours[:0]
	for _, a := range restored.Objectives[0].Activities {
		hours = append(hours, a.Hours)
	}
	if hours[0] != 1 || hours[1] != 1 || hours[2] != 1 {
		t.Fatalf("restored hours = %v, want [1 1 1]", hours)
	}
	if restored.Schedule.TotalHoras != 3 {
		t.Fatalf("restored total = %d, want 3", restored.Schedule.TotalHoras)
	}
}

func TestComputeScheduleHonorsManualTotal(t *testing.T) {
	env := newTestEnv(t)
	id := createProject(t, env, "teacher-1")
	planning := savePlanning(t, env, id, engine.PlanningInput{
		FechaInicio:    "2024-01-01",
		HorasPorDia:    1,
		TotalHoras:     2,
		TotalHoursMode: schedule.ModeManual,
		Objectives: []engine.ObjectiveInput{
			{Title: "Obj", Activities: []engine.ActivityInput{
				{Descripcion: "a", Hours: 1},
				{Descripcion: "b", Hours: 1},
				{Descripcion: "c", Hours: 1},
			}},
		},
	})
	// per-activity hours clamp at 1, so their sum (3) exceeds the manual
	// total; the schedule must still span the manual total
	if planning.Schedule.TotalHoras != 2 || planning.Schedule.DiasNecesarios != 2 {
		t.Fatalf("stored schedule = %d horas / %d dias, want 2 / 2", planning.Schedule.TotalHoras, planning.Schedule.DiasNecesarios)
	}
	c, sched, err := env.Engine.ComputeSchedule(env.Ctx, id, schedule.ViewDays, "teacher-1")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(c.Days) != 2 || c.DiasNecesarios != 2 {
		t.Fatalf("computed %d days (dias necesarios %d), want 2", len(c.Days), c.DiasNecesarios)
	}
	if sched.FechaFin != "2024-01-02" {
		t.Fatalf("fecha_fin = %s, want 2024-01-02", sched.FechaFin)
	}
}

func TestSavePlanningManualEndDate(t *testing.T) {
	env := newTestEnv(t)
	id := createProject(t, env, "teacher-1")
	planning := savePlanning(t, env, id, engine.PlanningInput{
		FechaInicio: "2024-01-01",
		FechaFin:    "2024-02-15",
		EndDateMode: schedule.ModeManual,
		Objectives:  []engine.ObjectiveInput{{Title: "Obj", Activities: []engine.ActivityInput{{Descripcion: "a", Hours: 2}}}},
	})
	if planning.Schedule.FechaFin != "2024-02-15" {
		t.Fatalf("fecha_fin = %s", planning.Schedule.FechaFin)
	}
	if planning.Schedule.EndDateMode != schedule.ModeManual {
		t.Fatalf("mode = %s", planning.Schedule.EndDateMode)
	}
}

func TestComputeScheduleViews(t *testing.T) {
	env := newTestEnv(t)
	id := createProject(t, env, "teacher-1")
	planning := savePlanning(t, env, id, engine.PlanningInput{
		FechaInicio: "2024-01-01",
		HorasPorDia: 6,
		Objectives: []engine.ObjectiveInput{
			{Title: "Obj", Activities: []engine.ActivityInput{
				{Descripcion: "a", Hours: 8},
				{Descripcion: "b", Hours: 4},
			}},
		},
	})
	objID := planning.Objectives[0].Objective.ID
	c, _, err := env.Engine.ComputeSchedule(env.Ctx, id, schedule.ViewDays, "teacher-1")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got := c.Buckets[objID+"_0"]; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("first activity days = %v, want [0 1]", got)
	}
	if got := c.Buckets[objID+"_1"]; len(got) != 1 || got[0] != 1 {
		t.Fatalf("second activity days = %v, want [1]", got)
	}
	hoursView, _, err := env.Engine.ComputeSchedule(env.Ctx, id, schedule.ViewHours, "teacher-1")
	if err != nil {
		t.Fatalf("compute hours: %v", err)
	}
	if hoursView.Hours[objID+"_0"] != 8 {
		t.Fatalf("hours view = %v", hoursView.Hours)
	}
}

func TestInvitationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := createProject(t, env, "teacher-1")
	inv, err := env.Engine.Invite(env.Ctx, id, "teacher-1", "student-1", "join us")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := env.Engine.Invite(env.Ctx, id, "teacher-1", "student-1", ""); err == nil {
		t.Fatalf("expected duplicate pending error")
	}
	if _, err := env.Engine.RespondInvitation(env.Ctx, inv.ID, "someone-else", true); err == nil {
		t.Fatalf("only the invitee may respond")
	}
	inv, err = env.Engine.RespondInvitation(env.Ctx, inv.ID, "student-1", true)
	if err != nil || inv.Status != "accepted" {
		t.Fatalf("accept: %v status=%s", err, inv.Status)
	}
	if member, _ := env.Engine.Auth.IsMember(env.Ctx, nil, id, "student-1"); !member {
		t.Fatalf("accept should add collaborator")
	}
	if _, err := env.Engine.RespondInvitation(env.Ctx, inv.ID, "student-1", false); err == nil {
		t.Fatalf("resolved invitation cannot be responded to again")
	}
}

func TestParticipationRequestLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := createProject(t, env, "teacher-1")
	if _, err := env.Engine.RequestParticipation(env.Ctx, id, "student-2", "hi"); err == nil {
		t.Fatalf("private projects should not accept requests")
	}
	pub := true
	if _, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: id, IsPublic: &pub, ActorID: "teacher-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	req, err := env.Engine.RequestParticipation(env.Ctx, id, "student-2", "hi")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := env.Engine.ResolveRequest(env.Ctx, req.ID, "student-2", true); err == nil {
		t.Fatalf("only the owner may resolve")
	}
	req, err = env.Engine.ResolveRequest(env.Ctx, req.ID, "teacher-1", true)
	if err != nil || req.Status != "approved" {
		t.Fatalf("approve: %v status=%s", err, req.Status)
	}
	if member, _ := env.Engine.Auth.IsMember(env.Ctx, nil, id, "student-2"); !member {
		t.Fatalf("approval should add collaborator")
	}
}

func TestSubmissionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := createProject(t, env, "teacher-1")
	planning := savePlanning(t, env, id, engine.PlanningInput{
		FechaInicio: "2024-01-01",
		Objectives:  []engine.ObjectiveInput{{Title: "Obj", Activities: []engine.ActivityInput{{Descripcion: "a", Hours: 2}}}},
	})
	key := planning.Objectives[0].Activities[0].Key

	inv, err := env.Engine.Invite(env.Ctx, id, "teacher-1", "student-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RespondInvitation(env.Ctx, inv.ID, "student-1", true); err != nil {
		t.Fatal(err)
	}
	sub, err := env.Engine.SubmitDeliverable(env.Ctx, engine.SubmissionCreateOptions{
		ProjectID: id, ActivityKey: key, Comment: "listo", FileKey: "uploads/informe.pdf", AuthorID: "student-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.ReviewSubmission(env.Ctx, sub.ID, "student-1", true, ""); err == nil {
		t.Fatalf("only the owner reviews")
	}
	sub, err = env.Engine.ReviewSubmission(env.Ctx, sub.ID, "teacher-1", false, "falta detalle")
	if err != nil || sub.Status != "rejected" {
		t.Fatalf("reject: %v status=%s", err, sub.Status)
	}
	sub, err = env.Engine.ResubmitDeliverable(env.Ctx, sub.ID, "student-1", "corregido", "")
	if err != nil || sub.Status != "submitted" {
		t.Fatalf("resubmit: %v status=%s", err, sub.Status)
	}
	sub, err = env.Engine.ReviewSubmission(env.Ctx, sub.ID, "teacher-1", true, "bien")
	if err != nil || sub.Status != "approved" {
		t.Fatalf("approve: %v status=%s", err, sub.Status)
	}
	if _, err := env.Engine.ReviewSubmission(env.Ctx, sub.ID, "teacher-1", false, ""); err == nil {
		t.Fatalf("approved submission is final")
	}
}

func TestSubmitRejectsDisallowedAttachmentKind(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Submissions.AllowedKinds = []string{"document"}
	id := createProject(t, env, "teacher-1")
	planning := savePlanning(t, env, id, engine.PlanningInput{
		FechaInicio: "2024-01-01",
		Objectives:  []engine.ObjectiveInput{{Title: "Obj", Activities: []engine.ActivityInput{{Descripcion: "a", Hours: 2}}}},
	})
	key := planning.Objectives[0].Activities[0].Key

	_, err := env.Engine.SubmitDeliverable(env.Ctx, engine.SubmissionCreateOptions{
		ProjectID: id, ActivityKey: key, FileKey: "uploads/clip.mp4", AuthorID: "teacher-1",
	})
	if err == nil || !strings.Contains(err.Error(), "does not accept video submissions") {
		t.Fatalf("video should be rejected, got %v", err)
	}
	if _, err := env.Engine.SubmitDeliverable(env.Ctx, engine.SubmissionCreateOptions{
		ProjectID: id, ActivityKey: key, FileKey: "https://example.edu/recurso", AuthorID: "teacher-1",
	}); err == nil || !strings.Contains(err.Error(), "does not accept link submissions") {
		t.Fatalf("link should be rejected, got %v", err)
	}
	if _, err := env.Engine.SubmitDeliverable(env.Ctx, engine.SubmissionCreateOptions{
		ProjectID: id, ActivityKey: key, FileKey: "uploads/informe.pdf", AuthorID: "teacher-1",
	}); err != nil {
		t.Fatalf("document should be accepted: %v", err)
	}
}

func TestSubmitUnknownActivityFails(t *testing.T) {
	env := newTestEnv(t)
	id := createProject(t, env, "teacher-1")
	_, err := env.Engine.SubmitDeliverable(env.Ctx, engine.SubmissionCreateOptions{
		ProjectID: id, ActivityKey: "missing_0", Comment: "x", AuthorID: "teacher-1",
	})
	if err == nil {
		t.Fatalf("expected unknown activity error")
	}
}

func TestForbiddenErrorsAreTyped(t *testing.T) {
	env := newTestEnv(t)
	id := createProject(t, env, "teacher-1")
	_, err := env.Engine.SavePlanning(env.Ctx, engine.PlanningInput{
		ProjectID:  id,
		ActorID:    "stranger",
		Objectives: []engine.ObjectiveInput{{Title: "Obj"}},
	})
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}
