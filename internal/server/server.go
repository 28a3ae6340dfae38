package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"aulaplan/internal/engine"
	"aulaplan/internal/engine/auth"
	"aulaplan/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"project not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Aulaplan API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(raw))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Aulaplan API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerCategories(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerPlanning(group, cfg.Engine)
	registerInvitations(group, cfg.Engine)
	registerRequests(group, cfg.Engine)
	registerCollaborators(group, cfg.Engine)
	registerSubmissions(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"action": fe.Action})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "status transition"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "already"),
		strings.Contains(lowered, "pending"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "cannot"),
		strings.Contains(lowered, "does not accept"):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", msg, nil)
	case strings.Contains(lowered, "invalid") ||
		strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") ||
		strings.Contains(lowered, "must be"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	devLoginPath := path.Join(basePath, "auth/dev/login")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	if !strings.HasPrefix(devLoginPath, "/") {
		devLoginPath = "/" + devLoginPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == devLoginPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Aulaplan API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerCategories(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-categories",
		Method:      http.MethodGet,
		Path:        "/categories",
		Summary:     "List project categories",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []CategoryResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListCategories(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CategoryResponse `json:"body"`
		}{Body: mapCategories(items)}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ProjectCreateOptions{
			ID:              stringOrEmpty(input.Body.ID),
			Name:            input.Body.Name,
			Planteamiento:   stringOrEmpty(input.Body.Planteamiento),
			Justificacion:   stringOrEmpty(input.Body.Justificacion),
			ObjetivoGeneral: stringOrEmpty(input.Body.ObjetivoGeneral),
			TypeProject:     stringOrEmpty(input.Body.TypeProject),
			CategoryID:      stringOrEmpty(input.Body.CategoryID),
			ActorID:         actorID,
		}
		if input.Body.IsPublic != nil {
			opts.IsPublic = *input.Body.IsPublic
		}
		p, err := e.CreateProject(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Mine     bool   `query:"mine" doc:"Only projects the caller belongs to"`
		Category string `query:"category"`
		Status   string `query:"status"`
		Limit    int    `query:"limit"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body struct {
			Items      []ProjectResponse `json:"items"`
			NextCursor string            `json:"next_cursor,omitempty"`
		} `json:"body"`
	}, error) {
		actorID := optionalActorID(ctx)
		f := repo.ProjectFilters{
			CategoryID: input.Category,
			Status:     input.Status,
			Limit:      normalizeLimit(input.Limit) + 1,
		}
		if input.Mine {
			if actorID == "" {
				return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
			}
			f.MemberID = actorID
		} else {
			// anonymous and non-member listing only sees public projects
			f.PublicOnly = true
		}
		if input.Cursor != "" {
			createdAt, id, err := parseCompositeCursor(input.Cursor)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			f.CursorCreatedAt = createdAt
			f.CursorID = id
		}
		items, err := e.Repo.ListProjects(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		next := ""
		if len(items) > limit {
			items = items[:limit]
			last := items[len(items)-1]
			next = composeCursor(last.CreatedAt, last.ID)
		}
		out := &struct {
			Body struct {
				Items      []ProjectResponse `json:"items"`
				NextCursor string            `json:"next_cursor,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Items = mapProjects(items)
		out.Body.NextCursor = next
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.GetProject(ctx, input.ProjectID, optionalActorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, engine.ProjectUpdateOptions{
			ID:              input.ProjectID,
			Name:            input.Body.Name,
			Planteamiento:   input.Body.Planteamiento,
			Justificacion:   input.Body.Justificacion,
			ObjetivoGeneral: input.Body.ObjetivoGeneral,
			TypeProject:     input.Body.TypeProject,
			CategoryID:      input.Body.CategoryID,
			CoverImageKey:   input.Body.CoverImageKey,
			CoverVideoKey:   input.Body.CoverVideoKey,
			IsPublic:        input.Body.IsPublic,
			Status:          input.Body.Status,
			ActorID:         actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProject(ctx, input.ProjectID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerPlanning(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "save-planning",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/planning",
		Summary:     "Save the planning document",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      SavePlanningRequest `json:"body"`
	}) (*struct {
		Body PlanningResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		objectives, err := input.Body.objectiveInputs()
		if err != nil {
			return nil, handleError(err)
		}
		planning, err := e.SavePlanning(ctx, engine.PlanningInput{
			ProjectID:      input.ProjectID,
			Project:        input.Body.projectOptions(input.ProjectID, actorID),
			Objectives:     objectives,
			FechaInicio:    input.Body.FechaInicio,
			FechaFin:       input.Body.FechaFin,
			HorasPorDia:    input.Body.HorasPorDia,
			TotalHoras:     input.Body.TotalHoras,
			View:           input.Body.View,
			EndDateMode:    input.Body.EndDateMode,
			TotalHoursMode: input.Body.TotalHoursMode,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlanningResponse `json:"body"`
		}{Body: planningResponse(planning)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-planning",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/planning",
		Summary:     "Get the planning document",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body PlanningResponse `json:"body"`
	}, error) {
		planning, err := e.GetPlanning(ctx, input.ProjectID, optionalActorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlanningResponse `json:"body"`
		}{Body: planningResponse(planning)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-schedule",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/schedule",
		Summary:     "Compute the cronograma",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		View      string `query:"view" enum:"meses,dias,horas"`
	}) (*struct {
		Body CronogramaResponse `json:"body"`
	}, error) {
		cron, sched, err := e.ComputeSchedule(ctx, input.ProjectID, input.View, optionalActorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CronogramaResponse `json:"body"`
		}{Body: cronogramaResponse(cron, sched)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "preview-schedule",
		Method:      http.MethodPost,
		Path:        "/schedule/preview",
		Summary:     "Compute a cronograma without saving",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body PreviewScheduleRequest `json:"body"`
	}) (*struct {
		Body CronogramaResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		objectives, err := input.Body.objectiveInputs()
		if err != nil {
			return nil, handleError(err)
		}
		cron, sched, err := e.PreviewSchedule(engine.PreviewInput{
			Objectives:     objectives,
			FechaInicio:    input.Body.FechaInicio,
			FechaFin:       input.Body.FechaFin,
			HorasPorDia:    input.Body.HorasPorDia,
			TotalHoras:     input.Body.TotalHoras,
			View:           input.Body.View,
			EndDateMode:    input.Body.EndDateMode,
			TotalHoursMode: input.Body.TotalHoursMode,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CronogramaResponse `json:"body"`
		}{Body: cronogramaResponse(cron, sched)}, nil
	})
}

func registerInvitations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-invitation",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/invitations",
		Summary:       "Invite a collaborator",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		Body      CreateInvitationRequest `json:"body"`
	}) (*struct {
		Body InvitationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.Invite(ctx, input.ProjectID, actorID, input.Body.InviteeID, stringOrEmpty(input.Body.Message))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InvitationResponse `json:"body"`
		}{Body: invitationResponse(inv)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-invitations",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/invitations",
		Summary:     "List project invitations",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Status    string `query:"status" enum:"pending,accepted,declined,revoked"`
	}) (*struct {
		Body []InvitationResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireManage(ctx, e, input.ProjectID, actorID, "list invitations"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListInvitations(ctx, repo.InvitationFilters{
			ProjectID: input.ProjectID,
			Status:    input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []InvitationResponse `json:"body"`
		}{Body: mapInvitations(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "respond-invitation",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/invitations/{invitation_id}",
		Summary:     "Accept or decline an invitation",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID    string `path:"project_id"`
		InvitationID string `path:"invitation_id"`
		Body         struct {
			Status string `json:"status" enum:"accepted,declined"`
		} `json:"body"`
	}) (*struct {
		Body InvitationResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		switch input.Body.Status {
		case "accepted", "declined":
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status must be accepted or declined", nil)
		}
		inv, err := e.RespondInvitation(ctx, input.InvitationID, actorID, input.Body.Status == "accepted")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InvitationResponse `json:"body"`
		}{Body: invitationResponse(inv)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-invitation",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/invitations/{invitation_id}",
		Summary:     "Revoke a pending invitation",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID    string `path:"project_id"`
		InvitationID string `path:"invitation_id"`
	}) (*struct {
		Body InvitationResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.RevokeInvitation(ctx, input.InvitationID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InvitationResponse `json:"body"`
		}{Body: invitationResponse(inv)}, nil
	})
}

func registerRequests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-participation-request",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/requests",
		Summary:       "Request to participate in a public project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      CreateRequestRequest `json:"body"`
	}) (*struct {
		Body ParticipationRequestResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.RequestParticipation(ctx, input.ProjectID, actorID, stringOrEmpty(input.Body.Message))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ParticipationRequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-participation-requests",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/requests",
		Summary:     "List participation requests",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Status    string `query:"status" enum:"pending,approved,rejected"`
	}) (*struct {
		Body []ParticipationRequestResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireManage(ctx, e, input.ProjectID, actorID, "list participation requests"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListParticipationRequests(ctx, repo.RequestFilters{
			ProjectID: input.ProjectID,
			Status:    input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ParticipationRequestResponse `json:"body"`
		}{Body: mapRequests(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-participation-request",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/requests/{request_id}",
		Summary:     "Approve or reject a participation request",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		RequestID string `path:"request_id"`
		Body      struct {
			Status string `json:"status" enum:"approved,rejected"`
		} `json:"body"`
	}) (*struct {
		Body ParticipationRequestResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		switch input.Body.Status {
		case "approved", "rejected":
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status must be approved or rejected", nil)
		}
		req, err := e.ResolveRequest(ctx, input.RequestID, actorID, input.Body.Status == "approved")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ParticipationRequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})
}

func registerCollaborators(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-collaborators",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/collaborators",
		Summary:     "List project collaborators",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []CollaboratorResponse `json:"body"`
	}, error) {
		// visibility piggybacks on project visibility
		if _, err := e.GetProject(ctx, input.ProjectID, optionalActorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListCollaborators(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CollaboratorResponse `json:"body"`
		}{Body: mapCollaborators(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-collaborator",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/collaborators/{actor_id}",
		Summary:     "Remove a collaborator",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ActorID   string `path:"actor_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveCollaborator(ctx, input.ProjectID, input.ActorID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSubmissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-submission",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/activities/{activity_key}/submissions",
		Summary:       "Submit a deliverable for an activity",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID   string                  `path:"project_id"`
		ActivityKey string                  `path:"activity_key"`
		Body        CreateSubmissionRequest `json:"body"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.SubmitDeliverable(ctx, engine.SubmissionCreateOptions{
			ProjectID:   input.ProjectID,
			ActivityKey: input.ActivityKey,
			AuthorID:    actorID,
			Comment:     stringOrEmpty(input.Body.Comment),
			FileKey:     stringOrEmpty(input.Body.FileKey),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-submissions",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/submissions",
		Summary:     "List project submissions",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID   string `path:"project_id"`
		ActivityKey string `query:"activity_key"`
		Status      string `query:"status" enum:"submitted,approved,rejected"`
	}) (*struct {
		Body []SubmissionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireEdit(ctx, e, input.ProjectID, actorID, "list submissions"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListSubmissions(ctx, repo.SubmissionFilters{
			ProjectID:   input.ProjectID,
			ActivityKey: input.ActivityKey,
			Status:      input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []SubmissionResponse `json:"body"`
		}{Body: mapSubmissions(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-submission",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/submissions/{submission_id}",
		Summary:     "Get a submission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID    string `path:"project_id"`
		SubmissionID string `path:"submission_id"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		s, err := e.GetSubmission(ctx, input.SubmissionID, optionalActorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-submission",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/submissions/{submission_id}",
		Summary:     "Approve or reject a submission",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID    string                  `path:"project_id"`
		SubmissionID string                  `path:"submission_id"`
		Body         ReviewSubmissionRequest `json:"body"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		switch input.Body.Status {
		case "approved", "rejected":
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status must be approved or rejected", nil)
		}
		s, err := e.ReviewSubmission(ctx, input.SubmissionID, actorID, input.Body.Status == "approved", stringOrEmpty(input.Body.Note))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resubmit-submission",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/submissions/{submission_id}/resubmit",
		Summary:     "Resubmit a rejected deliverable",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID    string                  `path:"project_id"`
		SubmissionID string                  `path:"submission_id"`
		Body         CreateSubmissionRequest `json:"body"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.ResubmitDeliverable(ctx, input.SubmissionID, actorID, stringOrEmpty(input.Body.Comment), stringOrEmpty(input.Body.FileKey))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List project events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Type      string `query:"type"`
		Limit     int    `query:"limit"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body struct {
			Items      []EventResponse `json:"items"`
			NextCursor string          `json:"next_cursor,omitempty"`
		} `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireEdit(ctx, e, input.ProjectID, actorID, "read events"); err != nil {
			return nil, handleError(err)
		}
		var cursor int64
		if input.Cursor != "" {
			v, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			cursor = v
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursor, input.ProjectID, input.Type, "", "")
		if err != nil {
			return nil, handleError(err)
		}
		next := ""
		if len(items) > limit {
			items = items[:limit]
			next = strconv.FormatInt(items[len(items)-1].ID, 10)
		}
		out := &struct {
			Body struct {
				Items      []EventResponse `json:"items"`
				NextCursor string          `json:"next_cursor,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Items = mapEvents(items)
		out.Body.NextCursor = next
		return out, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Who am I",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			ActorID     string               `json:"actor_id"`
			Source      string               `json:"source"`
			Invitations []InvitationResponse `json:"invitations"`
		} `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.ActorID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		pending, err := e.Repo.ListInvitations(ctx, repo.InvitationFilters{
			InviteeID: p.ActorID,
			Status:    "pending",
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				ActorID     string               `json:"actor_id"`
				Source      string               `json:"source"`
				Invitations []InvitationResponse `json:"invitations"`
			} `json:"body"`
		}{}
		out.Body.ActorID = p.ActorID
		out.Body.Source = p.Source
		out.Body.Invitations = mapInvitations(pending)
		return out, nil
	})
}

func registerDevAuth(api huma.API, cfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Mint a development token",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ActorID string `json:"actor_id"`
			Name    string `json:"name,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			Token string `json:"token"`
		} `json:"body"`
	}, error) {
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(cfg.JWTSecret, input.Body.ActorID, input.Body.Name)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		out := &struct {
			Body struct {
				Token string `json:"token"`
			} `json:"body"`
		}{}
		out.Body.Token = token
		return out, nil
	})
}

func requireEdit(ctx context.Context, e engine.Engine, projectID, actorID, action string) error {
	ok, err := e.Auth.CanEdit(ctx, nil, projectID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ForbiddenError{Action: action}
	}
	return nil
}

func requireManage(ctx context.Context, e engine.Engine, projectID, actorID, action string) error {
	ok, err := e.Auth.CanManage(ctx, nil, projectID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ForbiddenError{Action: action}
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

// parseCompositeCursor splits "<created_at>|<id>" list cursors.
func parseCompositeCursor(cursor string) (string, string, error) {
	idx := strings.LastIndex(cursor, "|")
	if idx <= 0 || idx == len(cursor)-1 {
		return "", "", fmt.Errorf("invalid cursor %q", cursor)
	}
	return cursor[:idx], cursor[idx+1:], nil
}

func composeCursor(createdAt, id string) string {
	return createdAt + "|" + id
}
