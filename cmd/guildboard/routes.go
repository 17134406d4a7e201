package main

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/guildboard/guildboard/pkg/config"
	"github.com/guildboard/guildboard/pkg/guard"
	"github.com/guildboard/guildboard/pkg/httputil"
	"github.com/guildboard/guildboard/pkg/identity"
	"github.com/guildboard/guildboard/pkg/observability"
	"github.com/guildboard/guildboard/pkg/ratelimit"
	"github.com/guildboard/guildboard/pkg/rbac"
	"github.com/guildboard/guildboard/pkg/session"
	"github.com/guildboard/guildboard/pkg/store"
	"github.com/guildboard/guildboard/pkg/tenant"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

type createTenantRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type sessionResponse struct {
	Status       session.Status `json:"status"`
	User         *store.Profile `json:"user,omitempty"`
	OwnedTenant  *store.Tenant  `json:"owned_tenant,omitempty"`
	ActiveTenant *store.Tenant  `json:"active_tenant,omitempty"`
}

func buildRouter(cfg *config.Config, manager *session.Manager, g *guard.Guard, onboarder *tenant.Onboarder, metrics *observability.Metrics, db *sql.DB) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", healthHandler(db)).Methods(http.MethodGet)
	if metrics != nil {
		router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", loginHandler(manager)).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", registerHandler(manager)).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", logoutHandler(manager)).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", refreshHandler(manager)).Methods(http.MethodPost)
	api.HandleFunc("/auth/password-reset", passwordResetHandler(manager)).Methods(http.MethodPost)
	api.HandleFunc("/auth/magic-link", magicLinkHandler(manager)).Methods(http.MethodPost)
	api.HandleFunc("/session", sessionHandler(manager)).Methods(http.MethodGet)

	// Tenant creation needs a signed-in user but no tenant scope yet
	api.Handle("/tenants", g.Handler(createTenantHandler(onboarder), guard.RouteOptions{})).Methods(http.MethodPost)

	// Job board routes, guarded per their declared requirements
	router.Handle("/jobs", g.Handler(listJobsPlaceholder(), guard.RouteOptions{
		TenantScoped: true,
		RequiredPermissions: []rbac.Permission{
			{Action: rbac.ActionRead, Resource: rbac.ResourceJobs},
		},
	})).Methods(http.MethodGet)

	router.Handle("/jobs", g.Handler(createJobPlaceholder(), guard.RouteOptions{
		TenantScoped:      true,
		RequireOnboarding: true,
		RequiredPermissions: []rbac.Permission{
			{Action: rbac.ActionCreate, Resource: rbac.ResourceJobs},
		},
	})).Methods(http.MethodPost)

	router.Handle("/settings", g.Handler(settingsPlaceholder(), guard.RouteOptions{
		TenantScoped: true,
		RequiredPermissions: []rbac.Permission{
			{Action: rbac.ActionUpdate, Resource: rbac.ResourceSettings},
		},
	})).Methods(http.MethodGet, http.MethodPut)

	router.Handle("/platform", g.Handler(platformPlaceholder(), guard.RouteOptions{
		RequiredPermissions: []rbac.Permission{
			{Action: rbac.ActionManage, Resource: rbac.ResourcePlatform},
		},
	})).Methods(http.MethodGet)

	return router
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		httputil.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

func loginHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
		if !httputil.RequireNonEmpty(w, req.Email, "email") || !httputil.RequireNonEmpty(w, req.Password, "password") {
			return
		}

		if err := manager.Login(r.Context(), req.Email, req.Password); err != nil {
			writeOperationError(w, err)
			return
		}
		writeSnapshot(w, manager)
	}
}

func registerHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
		if !httputil.RequireNonEmpty(w, req.Email, "email") || !httputil.RequireNonEmpty(w, req.Password, "password") {
			return
		}

		result, err := manager.Register(r.Context(), identity.SignUpParams{
			Email:    req.Email,
			Password: req.Password,
			FullName: req.FullName,
		})
		if err != nil {
			if errors.Is(err, session.ErrPartialRegistration) {
				httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{
					Error: "registration incomplete, sign in to finish account setup",
					Code:  "partial_registration",
				})
				return
			}
			writeOperationError(w, err)
			return
		}

		httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
			"user_id":              result.UserID,
			"email":                result.Email,
			"verification_pending": result.VerificationPending,
		})
	}
}

func logoutHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := manager.Logout(r.Context()); err != nil {
			// Local state is already cleared; report the revocation failure
			writeOperationError(w, err)
			return
		}
		httputil.WriteNoContent(w)
	}
}

func refreshHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := manager.Refresh(r.Context()); err != nil {
			writeOperationError(w, err)
			return
		}
		writeSnapshot(w, manager)
	}
}

func passwordResetHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
		if !httputil.RequireNonEmpty(w, req.Email, "email") {
			return
		}

		if err := manager.SendPasswordReset(r.Context(), req.Email); err != nil {
			writeOperationError(w, err)
			return
		}
		httputil.WriteNoContent(w)
	}
}

func magicLinkHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
		if !httputil.RequireNonEmpty(w, req.Email, "email") {
			return
		}

		if err := manager.SendMagicLink(r.Context(), req.Email); err != nil {
			writeOperationError(w, err)
			return
		}
		httputil.WriteNoContent(w)
	}
}

func createTenantHandler(onboarder *tenant.Onboarder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createTenantRequest
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
		if !httputil.RequireNonEmpty(w, req.Slug, "slug") {
			return
		}

		created, err := onboarder.CreateTenant(r.Context(), req.Name, req.Slug)
		if err != nil {
			switch {
			case errors.Is(err, tenant.ErrInvalidSlug):
				httputil.WriteBadRequest(w, "slug must be a valid subdomain label")
			case errors.Is(err, tenant.ErrSlugTaken):
				httputil.WriteErrorMessage(w, http.StatusConflict, "slug already in use")
			case errors.Is(err, tenant.ErrAlreadyOwner):
				httputil.WriteErrorMessage(w, http.StatusConflict, "user already owns a tenant")
			case errors.Is(err, tenant.ErrNotAuthenticated):
				httputil.WriteUnauthorized(w, "sign in to create a tenant")
			default:
				httputil.WriteInternalError(w)
			}
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, created)
	})
}

func sessionHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeSnapshot(w, manager)
	}
}

func writeSnapshot(w http.ResponseWriter, manager *session.Manager) {
	state := manager.Snapshot()
	httputil.WriteSuccess(w, sessionResponse{
		Status:       state.Status,
		User:         state.User,
		OwnedTenant:  state.OwnedTenant,
		ActiveTenant: state.ActiveTenant,
	})
}

// writeOperationError maps session operation failures onto HTTP responses,
// keeping rate limit and identity errors distinct
func writeOperationError(w http.ResponseWriter, err error) {
	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		httputil.WriteRateLimited(w, limitErr)
		return
	}
	if authErr, ok := identity.IsAuthError(err); ok {
		httputil.WriteAuthError(w, authErr)
		return
	}
	if errors.Is(err, identity.ErrNoSession) {
		httputil.WriteUnauthorized(w, "no active session")
		return
	}
	httputil.WriteInternalError(w)
}

func listJobsPlaceholder() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteSuccess(w, map[string]interface{}{"jobs": []string{}})
	})
}

func createJobPlaceholder() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusCreated, map[string]string{"status": "created"})
	})
}

func settingsPlaceholder() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteSuccess(w, map[string]string{"status": "ok"})
	})
}

func platformPlaceholder() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteSuccess(w, map[string]string{"status": "ok"})
	})
}
