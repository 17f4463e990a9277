package http

import (
	"net/http"

	"github.com/go-auth-api/internal/application/audit"
	"github.com/go-auth-api/internal/application/auth"
	"github.com/go-auth-api/internal/application/authz"
	"github.com/go-auth-api/internal/application/passcode"
	"github.com/go-auth-api/internal/config"
	"github.com/go-auth-api/internal/metrics"
	"github.com/go-auth-api/internal/transport/http/handler"
	appmiddleware "github.com/go-auth-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10 — applied to the credential endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	passcodeSvc := passcode.NewService(passcode.ServiceDeps{
		Passcodes: deps.PasscodeRepo,
		Users:     deps.UserRepo,
		Notifier:  deps.Notifier,
		TTL:       cfg.PasscodeTTL,
		Length:    cfg.PasscodeLength,
	})
	resolver := authz.NewResolver(deps.RoleRepo, cfg.PermissionsCache)
	recorder := audit.NewRecorder(deps.AuditLogRepo)
	authSvc := auth.NewService(auth.ServiceDeps{
		Users:     deps.UserRepo,
		Passcodes: passcodeSvc,
		Tokens:    deps.TokenProvider,
		Ledger:    deps.RevocationRepo,
		Perms:     resolver,
		Audit:     recorder,
		Notifier:  deps.Notifier,
	})

	authMw := appmiddleware.Auth(deps.TokenProvider, deps.RevocationRepo)

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc)
	auditH := handler.NewAuditHandler(deps.AuditLogRepo)

	r.Get("/health", healthH.Ping)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Public — rate limited where a credential or passcode is in play.
			r.With(sensitiveRL.Limit).Post("/register", authH.Register)
			r.With(sensitiveRL.Limit).Post("/verify-account", authH.VerifyAccount)
			r.With(sensitiveRL.Limit).Post("/resend-otp", authH.ResendOTP)
			r.With(sensitiveRL.Limit).Post("/login", authH.Login)
			r.With(sensitiveRL.Limit).Post("/verify-login", authH.VerifyLogin)
			r.Post("/refresh", authH.Refresh)

			// Authenticated
			r.Group(func(r chi.Router) {
				r.Use(authMw)
				r.Post("/logout", authH.Logout)
				r.Post("/logout-all", authH.LogoutAll)
				r.Get("/me", authH.Me)
			})
		})

		// Operator surface
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Use(appmiddleware.RequirePermission("audit:read"))
			r.Get("/audit/users/{id}", auditH.ListByUser)
		})
	})

	return r
}
