package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"aulaplan/internal/config"
	"aulaplan/internal/db"
	"aulaplan/internal/engine"
	"aulaplan/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("aula-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if err := e.SeedCategories(context.Background()); err != nil {
		t.Fatalf("seed categories: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asActor(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

func createTestProject(t *testing.T, srv *testServer, actorID string, isPublic bool) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name":       "Huerto escolar",
		"categoryId": "ciencia",
		"isPublic":   isPublic,
	}, asActor(actorID))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var p ProjectResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p.ID
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestPlanningRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	projectID := createTestProject(t, srv, "teacher-1", false)

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/projects/"+projectID+"/planning", map[string]any{
		"fechaInicio": "2024-01-01",
		"horasPorDia": 6,
		"objetivos_especificos": []map[string]any{
			{
				"title": "Preparar el terreno",
				"actividades": []map[string]any{
					{"descripcion": "Limpiar", "hoursPerDay": 8},
					{"descripcion": "Abonar", "hoursPerDay": 4},
				},
			},
		},
	}, asActor("teacher-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("save planning status %d: %s", res.StatusCode, string(data))
	}
	var planning PlanningResponse
	if err := json.Unmarshal(data, &planning); err != nil {
		t.Fatalf("unmarshal planning: %v", err)
	}
	if planning.Schedule.TotalHoras != 12 {
		t.Fatalf("total horas = %d, want 12", planning.Schedule.TotalHoras)
	}
	if planning.Schedule.DiasNecesarios != 2 {
		t.Fatalf("dias necesarios = %d, want 2", planning.Schedule.DiasNecesarios)
	}
	if planning.Schedule.FechaFin != "2024-01-02" {
		t.Fatalf("fecha fin = %s, want 2024-01-02", planning.Schedule.FechaFin)
	}
	if len(planning.Objetivos) != 1 || len(planning.Objetivos[0].Actividades) != 2 {
		t.Fatalf("unexpected planning shape: %s", string(data))
	}
	keyA := planning.Objetivos[0].Actividades[0].Key
	keyB := planning.Objetivos[0].Actividades[1].Key

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/"+projectID+"/schedule?view=dias", nil, asActor("teacher-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get schedule status %d: %s", res.StatusCode, string(data))
	}
	var cron CronogramaResponse
	if err := json.Unmarshal(data, &cron); err != nil {
		t.Fatalf("unmarshal cronograma: %v", err)
	}
	if cron.View != "dias" {
		t.Fatalf("view = %s, want dias", cron.View)
	}
	if got := cron.Buckets[keyA]; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("bucket A = %v, want [0 1]", got)
	}
	if got := cron.Buckets[keyB]; len(got) != 1 || got[0] != 1 {
		t.Fatalf("bucket B = %v, want [1]", got)
	}
	if len(cron.Dias) != 2 || cron.Dias[0] != "2024-01-01" {
		t.Fatalf("dias = %v", cron.Dias)
	}
}

func TestPlanningAcceptsFlatSavePayload(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	projectID := createTestProject(t, srv, "teacher-1", false)

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/projects/"+projectID+"/planning", map[string]any{
		"name":             "Huerto escolar renovado",
		"planteamiento":    "El patio trasero esta sin uso",
		"justificacion":    "Aprender ciencias cultivando",
		"objetivo_general": "Montar un huerto productivo",
		"type_project":     "aula",
		"isPublic":         true,
		"objetivos_especificos": []map[string]any{
			{"id": "obj-1", "title": "Preparar el terreno"},
		},
		"actividades": []map[string]any{
			{"descripcion": "Limpiar", "meses": []int{0, 1}, "objetivoId": "obj-1", "hoursPerDay": 8},
			{"descripcion": "Abonar", "meses": []int{1}, "objetivoId": "obj-1", "hoursPerDay": 4},
		},
		"fechaInicio":       "2024-01-01",
		"tipoVisualizacion": "dias",
		"horasPorDia":       6,
		"tiempoEstimado":    99,
		"diasEstimados":     99,
		"diasNecesarios":    99,
	}, asActor("teacher-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("save planning status %d: %s", res.StatusCode, string(data))
	}
	var planning PlanningResponse
	if err := json.Unmarshal(data, &planning); err != nil {
		t.Fatalf("unmarshal planning: %v", err)
	}
	if planning.Project.Name != "Huerto escolar renovado" {
		t.Fatalf("project name = %s", planning.Project.Name)
	}
	if planning.Project.Planteamiento != "El patio trasero esta sin uso" {
		t.Fatalf("planteamiento = %s", planning.Project.Planteamiento)
	}
	if !planning.Project.IsPublic {
		t.Fatalf("project should be public after save")
	}
	if len(planning.Objetivos) != 1 || len(planning.Objetivos[0].Actividades) != 2 {
		t.Fatalf("unexpected planning shape: %s", string(data))
	}
	if planning.Schedule.TotalHoras != 12 || planning.Schedule.DiasNecesarios != 2 {
		t.Fatalf("schedule = %d horas / %d dias, want 12 / 2", planning.Schedule.TotalHoras, planning.Schedule.DiasNecesarios)
	}

	// derived fields come from the allocator, not the client caches
	if planning.Schedule.FechaFin != "2024-01-02" {
		t.Fatalf("fecha fin = %s, want 2024-01-02", planning.Schedule.FechaFin)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/projects/"+projectID+"/planning", map[string]any{
		"objetivos_especificos": []map[string]any{
			{"id": "obj-1", "title": "Preparar el terreno"},
		},
		"actividades": []map[string]any{
			{"descripcion": "Limpiar", "objetivoId": "obj-9", "hoursPerDay": 8},
		},
		"fechaInicio": "2024-01-01",
	}, asActor("teacher-1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown objetivoId status %d, want 400: %s", res.StatusCode, string(data))
	}
}

func TestPreviewScheduleWithoutSaving(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/schedule/preview", map[string]any{
		"fechaInicio":       "2024-01-01",
		"horasPorDia":       6,
		"tipoVisualizacion": "horas",
		"objetivos_especificos": []map[string]any{
			{
				"title": "Objetivo",
				"actividades": []map[string]any{
					{"descripcion": "A", "hoursPerDay": 8},
				},
			},
		},
	}, asActor("teacher-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("preview status %d: %s", res.StatusCode, string(data))
	}
	var cron CronogramaResponse
	if err := json.Unmarshal(data, &cron); err != nil {
		t.Fatalf("unmarshal cronograma: %v", err)
	}
	if cron.View != "horas" {
		t.Fatalf("view = %s, want horas", cron.View)
	}
	if cron.TotalHoras != 8 {
		t.Fatalf("total horas = %d, want 8", cron.TotalHoras)
	}
	for _, h := range cron.Horas {
		if h != 8 {
			t.Fatalf("horas = %v", cron.Horas)
		}
	}
}

func TestPrivateProjectHiddenFromStrangers(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	projectID := createTestProject(t, srv, "teacher-1", false)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/"+projectID, nil, asActor("stranger"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("stranger get status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("error code = %s, want not_found", envelope.Error.Code)
	}
}

func TestInvitationFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	projectID := createTestProject(t, srv, "teacher-1", false)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+projectID+"/invitations", map[string]any{
		"invitee_id": "student-1",
	}, asActor("teacher-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("invite status %d: %s", res.StatusCode, string(data))
	}
	var inv InvitationResponse
	if err := json.Unmarshal(data, &inv); err != nil {
		t.Fatalf("unmarshal invitation: %v", err)
	}

	// duplicate invite while one is pending
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+projectID+"/invitations", map[string]any{
		"invitee_id": "student-1",
	}, asActor("teacher-1"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate invite status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/projects/"+projectID+"/invitations/"+inv.ID, map[string]any{
		"status": "accepted",
	}, asActor("student-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept status %d: %s", res.StatusCode, string(data))
	}

	// member can now read the private project
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/"+projectID, nil, asActor("student-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("member get status %d: %s", res.StatusCode, string(data))
	}
}

func TestSubmissionReviewFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	projectID := createTestProject(t, srv, "teacher-1", false)

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/projects/"+projectID+"/planning", map[string]any{
		"fechaInicio": "2024-01-01",
		"objetivos_especificos": []map[string]any{
			{
				"title": "Objetivo",
				"actividades": []map[string]any{
					{"descripcion": "Sembrar", "hoursPerDay": 4},
				},
			},
		},
	}, asActor("teacher-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("save planning status %d: %s", res.StatusCode, string(data))
	}
	var planning PlanningResponse
	if err := json.Unmarshal(data, &planning); err != nil {
		t.Fatalf("unmarshal planning: %v", err)
	}
	activityKey := planning.Objetivos[0].Actividades[0].Key

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+projectID+"/activities/"+activityKey+"/submissions", map[string]any{
		"comment": "listo",
	}, asActor("teacher-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	var sub SubmissionResponse
	if err := json.Unmarshal(data, &sub); err != nil {
		t.Fatalf("unmarshal submission: %v", err)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/projects/"+projectID+"/submissions/"+sub.ID, map[string]any{
		"status": "rejected",
		"note":   "faltan fotos",
	}, asActor("teacher-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reject status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+projectID+"/submissions/"+sub.ID+"/resubmit", map[string]any{
		"comment": "fotos adjuntas",
		"file_key": "uploads/fotos.zip",
	}, asActor("teacher-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resubmit status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/projects/"+projectID+"/submissions/"+sub.ID, map[string]any{
		"status": "approved",
	}, asActor("teacher-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &sub); err != nil {
		t.Fatalf("unmarshal submission: %v", err)
	}
	if sub.Status != "approved" {
		t.Fatalf("status = %s, want approved", sub.Status)
	}
}

func TestDevLoginAndBearerAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"actor_id": "teacher-1",
		"name":     "Profe",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if out.Token == "" {
		t.Fatal("empty token")
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + out.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me struct {
		ActorID string `json:"actor_id"`
		Source  string `json:"source"`
	}
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.ActorID != "teacher-1" || me.Source != "jwt" {
		t.Fatalf("me = %+v", me)
	}
}

func TestPublicProjectListing(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createTestProject(t, srv, "teacher-1", true)
	createTestProject(t, srv, "teacher-1", false)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var out struct {
		Items []ProjectResponse `json:"items"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(out.Items) != 1 {
		t.Fatalf("anonymous listing returned %d items, want 1", len(out.Items))
	}
	if !out.Items[0].IsPublic {
		t.Fatal("anonymous listing returned a private project")
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects?mine=true", nil, asActor("teacher-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("mine status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal mine: %v", err)
	}
	if len(out.Items) != 2 {
		t.Fatalf("mine listing returned %d items, want 2", len(out.Items))
	}
}
