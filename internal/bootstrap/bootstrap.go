// Package bootstrap wires configuration, storage, services, and HTTP routing
// into a runnable application.
package bootstrap

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/wildme/houston/internal/cache"
	"github.com/wildme/houston/internal/config"
	"github.com/wildme/houston/internal/handlers"
	"github.com/wildme/houston/internal/metrics"
	"github.com/wildme/houston/internal/middleware"
	"github.com/wildme/houston/internal/services"
	"github.com/wildme/houston/internal/store"

	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"
)

// Application holds every initialized component.
type Application struct {
	Config *config.Config

	Store        *store.Store
	Metrics      metrics.Recorder
	ConsentCache cache.Cache[services.ConsentRequest]

	Audit   *services.AuditService
	Users   *services.UserService
	Clients *services.ClientService
	Tokens  *services.TokenService
	Grants  *services.GrantEngine
	Authz   *services.AuthorizationService

	Router *gin.Engine
}

// New builds the application graph without starting anything.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg}

	db, err := store.New(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	app.Store = db

	app.Metrics = metrics.Init(cfg.MetricsEnabled)

	app.ConsentCache, err = newConsentCache(cfg)
	if err != nil {
		return nil, err
	}

	app.Audit = services.NewAuditService(db, cfg.AuditEnabled, cfg.AuditBufferSize)
	app.Users = services.NewUserService(db, app.Metrics)
	app.Clients = services.NewClientService(db, cfg, app.Audit)
	app.Tokens = services.NewTokenService(db, cfg, app.Audit, app.Metrics)
	app.Grants = services.NewGrantEngine(db, cfg, app.Users, app.Tokens, app.Audit, app.Metrics)
	app.Authz = services.NewAuthorizationService(db, cfg, app.ConsentCache, app.Grants, app.Audit)

	router, err := setupRouter(app)
	if err != nil {
		return nil, err
	}
	app.Router = router

	return app, nil
}

// Run starts the HTTP server, the expiry sweeper, and blocks until shutdown.
func Run(cfg *config.Config) error {
	app, err := New(cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	m := graceful.NewManager()

	m.AddRunningJob(func(ctx context.Context) error {
		app.Tokens.StartSweeper(ctx, cfg.SweepInterval)
		<-ctx.Done()
		return nil
	})

	m.AddRunningJob(func(ctx context.Context) error {
		log.Printf("[Server] Listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	m.AddShutdownJob(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("[Server] Shutdown error: %v", err)
		}
		if err := app.Audit.Shutdown(ctx); err != nil {
			log.Printf("[Server] Audit shutdown error: %v", err)
		}
		return app.ConsentCache.Close()
	})

	<-m.Done()
	return nil
}

// newConsentCache selects the pending-consent cache backend. Memory suffices
// for a single instance; Redis keeps the consent flow working behind a load
// balancer.
func newConsentCache(cfg *config.Config) (cache.Cache[services.ConsentRequest], error) {
	switch cfg.ConsentCacheBackend {
	case config.ConsentCacheRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := cache.NewRueidisCache[services.ConsentRequest](
			ctx,
			cfg.RedisAddr,
			cfg.RedisPassword,
			cfg.RedisDB,
			"consent",
		)
		if err != nil {
			return nil, err
		}
		log.Printf("[Cache] Consent cache backed by Redis at %s", cfg.RedisAddr)
		return c, nil
	default:
		return cache.NewMemoryCache[services.ConsentRequest](), nil
	}
}

// setupGinMode maps debug config onto gin's global mode.
func setupGinMode(cfg *config.Config) {
	if cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}

// handlerSet groups the constructed HTTP handlers.
type handlerSet struct {
	token     *handlers.TokenHandler
	authorize *handlers.AuthorizeHandler
	session   *handlers.SessionHandler
	clients   *handlers.ClientHandler
	users     *handlers.UserHandler
}

func newHandlerSet(app *Application) handlerSet {
	return handlerSet{
		token:     handlers.NewTokenHandler(app.Grants, app.Tokens),
		authorize: handlers.NewAuthorizeHandler(app.Authz),
		session: handlers.NewSessionHandler(
			app.Config, app.Users, app.Clients, app.Tokens, app.Metrics,
		),
		clients: handlers.NewClientHandler(app.Clients),
		users:   handlers.NewUserHandler(app.Users),
	}
}

// gateSet groups the authentication and authorization middleware.
type gateSet struct {
	gate     *middleware.Gate
	enforcer *middleware.RuleEnforcer
	registry *middleware.Registry
}

func newGateSet(app *Application) gateSet {
	gate := middleware.NewGate(app.Config, app.Tokens, app.Metrics)
	enforcer := middleware.NewRuleEnforcer(app.Config, app.Metrics, app.Audit)
	return gateSet{
		gate:     gate,
		enforcer: enforcer,
		registry: middleware.NewRegistry(gate, enforcer),
	}
}
