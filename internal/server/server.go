package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hireline/internal/domain"
	"hireline/internal/engine"
	"hireline/internal/engine/auth"
)

// Config for the HTTP API handler.
type Config struct {
	Engine     engine.Engine
	BasePath   string
	PublicPath string
	Auth       AuthConfig
	Logger     *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"cannot move candidate from new to hired"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"allowed_next\":[\"screening\",\"rejected\"]}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// publicLinkMessage is the only thing the onboarding page learns about a bad link.
const publicLinkMessage = "link invalid or expired"

// New returns an HTTP handler exposing the internal API under BasePath and the candidate
// onboarding surface under PublicPath.
func New(cfg Config) (http.Handler, error) {
	basePath := normalizePath(cfg.BasePath, "/v1")
	publicPath := normalizePath(cfg.PublicPath, "/public/onboarding")
	if cfg.Engine.Config == nil {
		return nil, errors.New("engine config required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	huma.DefaultArrayNullable = false
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
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger, cfg.Engine))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))

	hcfg := huma.DefaultConfig("Hireline API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)
	public := huma.NewGroup(api, publicPath)

	registerDocs(router, basePath)
	registerMetrics(router, cfg.Engine)
	registerHealth(group)
	registerMe(group, cfg.Engine)
	registerCandidates(group, cfg.Engine)
	registerPipeline(group, cfg.Engine)
	registerForms(group, cfg.Engine)
	registerDocuments(group, router, basePath, cfg.Engine)
	registerHRD(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerPublic(public, router, publicPath, cfg.Engine)
	registerOpenAPI(router, api, basePath, publicPath)

	return router, nil
}

func normalizePath(p, fallback string) string {
	if p == "" {
		p = fallback
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
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

// handleError maps pipeline errors to the envelope. Link errors are collapsed into one
// generic response; the engine has already logged the precise kind.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if se, ok := err.(huma.StatusError); ok {
		return se
	}
	if errors.Is(err, auth.ErrUnauthenticated) {
		return newAPIError(http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	if domain.IsLinkError(err) {
		return newAPIError(http.StatusNotFound, "invalid_link", publicLinkMessage, nil)
	}

	var (
		it  *domain.InvalidTransitionError
		uft *domain.UnsupportedFileTypeError
		ftl *domain.FileTooLargeError
		lc  *domain.LowConfidenceError
		eu  *domain.ExtractionUnavailableError
		ma  *domain.MissingAcknowledgementsError
		md  *domain.MissingDocumentsError
		ad  *domain.AlreadyDecidedError
		fnr *domain.FormNotReadyError
		ve  *domain.ValidationError
	)
	kind := domain.Kind(err)
	msg := err.Error()
	switch {
	case errors.As(err, &it):
		return newAPIError(http.StatusConflict, kind, msg, map[string]any{
			"from": it.From, "to": it.To, "allowed_next": nonNilSlice(domain.AllowedNext(it.From)),
		})
	case errors.As(err, &uft):
		return newAPIError(http.StatusUnsupportedMediaType, kind, msg, map[string]any{
			"kind": uft.Kind, "mime": uft.MIME, "allowed": uft.Allowed,
		})
	case errors.As(err, &ftl):
		return newAPIError(http.StatusRequestEntityTooLarge, kind, msg, map[string]any{"size": ftl.Size, "limit": ftl.Limit})
	case errors.As(err, &lc):
		return newAPIError(http.StatusUnprocessableEntity, kind, "image too unclear to read, upload a sharper photo", map[string]any{
			"confidence": lc.Confidence, "threshold": lc.Threshold,
		})
	case errors.As(err, &eu):
		return newAPIError(http.StatusUnprocessableEntity, kind, "document stored but could not be read, fill the fields manually", nil)
	case errors.As(err, &ma):
		return newAPIError(http.StatusUnprocessableEntity, kind, msg, map[string]any{"ids": ma.IDs})
	case errors.As(err, &md):
		return newAPIError(http.StatusUnprocessableEntity, kind, msg, map[string]any{"kinds": md.Kinds})
	case errors.As(err, &ad):
		return newAPIError(http.StatusConflict, kind, msg, map[string]any{"form_id": ad.FormID, "decision": ad.Decision})
	case errors.As(err, &fnr):
		return newAPIError(http.StatusConflict, kind, msg, map[string]any{"missing": fnr.Missing})
	case errors.As(err, &ve):
		return newAPIError(http.StatusBadRequest, kind, msg, map[string]any{"field": ve.Field})
	case errors.Is(err, domain.ErrFormLocked):
		return newAPIError(http.StatusConflict, kind, msg, nil)
	case errors.Is(err, domain.ErrCommentRequired):
		return newAPIError(http.StatusBadRequest, kind, msg, nil)
	case errors.Is(err, domain.ErrNotFound):
		return newAPIError(http.StatusNotFound, kind, msg, nil)
	default:
		slog.Default().Error("internal error", "error", err)
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
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

// requestLogger logs and meters each request by its route pattern, so tokens in public
// paths never reach the logs.
func requestLogger(logger *slog.Logger, e engine.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			e.Metrics.ObserveHTTP(r.Method, route, strconv.Itoa(status), elapsed)
			logger.LogAttrs(r.Context(), slog.LevelInfo, "http request",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", status),
				slog.Duration("duration", elapsed),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerMetrics(r chi.Router, e engine.Engine) {
	if e.Metrics == nil {
		return
	}
	r.Handle("/metrics", e.Metrics.Handler())
}

func registerOpenAPI(r chi.Router, api huma.API, basePath, publicPath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath, publicPath)
			spec, _ = json.Marshal(oas)
		})
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

func applyAuthSecurity(oas *huma.OpenAPI, basePath, publicPath string) {
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
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || strings.HasPrefix(route, publicPath) {
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
    <title>Hireline API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt;. Onboarding routes use the link token in the path.
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

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		p, _ := principalFromContext(ctx)
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     actor.UserID,
			TenantID:    actor.TenantID,
			Roles:       nonNilSlice(p.Roles),
			Permissions: nonNilSlice(actor.Permissions),
		}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

// ParseTTL accepts Go durations and whole days ("7d").
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, &domain.ValidationError{Field: "ttl", Message: "invalid day count"}
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, &domain.ValidationError{Field: "ttl", Message: "invalid duration"}
	}
	return d, nil
}
