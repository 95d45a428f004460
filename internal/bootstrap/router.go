package bootstrap

import (
	"log"
	"net/http"

	"github.com/wildme/houston/internal/metrics"
	"github.com/wildme/houston/internal/middleware"
	"github.com/wildme/houston/internal/permissions"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func setupRouter(app *Application) (*gin.Engine, error) {
	setupGinMode(app.Config)
	r := gin.New()

	r.Use(metrics.HTTPMetricsMiddleware(app.Metrics))
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.IPMiddleware())

	setupSessionMiddleware(r, app)

	r.GET("/healthz", func(c *gin.Context) {
		if err := app.Store.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if app.Config.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Printf("[Server] Prometheus metrics enabled at /metrics")
	}

	h := newHandlerSet(app)
	gates := newGateSet(app)

	var limiter gin.HandlerFunc
	if app.Config.RateLimitEnabled {
		var err error
		limiter, err = middleware.NewRateLimiter(app.Config)
		if err != nil {
			return nil, err
		}
	} else {
		limiter = func(c *gin.Context) { c.Next() }
	}

	registerRoutes(r, app, h, gates, limiter)
	return r, nil
}

func setupSessionMiddleware(r *gin.Engine, app *Application) {
	store := cookie.NewStore([]byte(app.Config.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		Secure:   !app.Config.DebugMode,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("houston_session", store))
}

func registerRoutes(
	r *gin.Engine,
	app *Application,
	h handlerSet,
	gates gateSet,
	limiter gin.HandlerFunc,
) {
	// Interactive login flow
	r.GET("/login", h.session.LoginPage)
	r.POST("/login", limiter, h.session.Login)
	r.POST("/logout", h.session.Logout)

	// OAuth2 protocol endpoints
	oauth := r.Group("/auth/oauth2")
	{
		oauth.POST("/token", limiter, h.token.Token)
		oauth.POST("/revoke", limiter, h.token.Revoke)

		authorize := oauth.Group("", middleware.RequireSession(app.Users))
		{
			authorize.GET("/authorize", h.authorize.Authorize)
			authorize.POST("/authorize", h.authorize.Decide)
		}
	}

	// Client management, protected by the gate and rule registry
	clients := r.Group("/auth/oauth2_clients")
	gates.registry.Handle(clients, http.MethodPost, "/", middleware.Binding{
		Scopes: []string{"auth:write"},
		Rule:   func(c *gin.Context) permissions.Rule { return permissions.WriteAccess() },
	}, h.clients.Create)
	gates.registry.Handle(clients, http.MethodGet, "/", middleware.Binding{
		Scopes: []string{"auth:read"},
		Rule:   func(c *gin.Context) permissions.Rule { return permissions.ActiveUser() },
	}, h.clients.List)
	gates.registry.Handle(clients, http.MethodDelete, "/:client_id", middleware.Binding{
		Scopes: []string{"auth:write"},
		Rule: func(c *gin.Context) permissions.Rule {
			client, err := app.Clients.GetClient(c.Param("client_id"))
			if err != nil {
				// Unknown object: fall through to the admin arm, which still
				// requires privilege before the handler reports 404.
				return permissions.Admin()
			}
			return permissions.OwnerWithWriteOrAdmin(client)
		},
	}, h.clients.Delete)

	// User management resource
	users := r.Group("/api/v1/users")
	gates.registry.Handle(users, http.MethodGet, "/", middleware.Binding{
		Scopes: []string{"users:read"},
		Rule:   func(c *gin.Context) permissions.Rule { return permissions.Admin() },
	}, h.users.List)
	gates.registry.Handle(users, http.MethodPost, "/", middleware.Binding{
		Scopes: []string{"users:write"},
		Rule:   func(c *gin.Context) permissions.Rule { return permissions.Admin() },
	}, h.users.Create)
	gates.registry.Handle(users, http.MethodGet, "/:id", middleware.Binding{
		Scopes: []string{"users:read"},
		Rule: func(c *gin.Context) permissions.Rule {
			target, err := app.Users.GetUserByID(c.Param("id"))
			if err != nil {
				return permissions.Admin()
			}
			return permissions.OwnerOrAdmin(target)
		},
	}, h.users.Get)
	gates.registry.Handle(users, http.MethodPost, "/:id/admin", middleware.Binding{
		Scopes: []string{"admin:write"},
		Rule:   func(c *gin.Context) permissions.Rule { return permissions.AdminWithPassword() },
	}, h.users.SetAdmin)
	gates.registry.Handle(users, http.MethodDelete, "/:id", middleware.Binding{
		Scopes: []string{"users:write"},
		Rule:   func(c *gin.Context) permissions.Rule { return permissions.Admin() },
	}, h.users.Deactivate)
}
