// Package routes assembles the Gin engine: ambient middleware, CORS, public
// and session-protected groups.
package routes

import (
	"context"
	"net/http"
	"slices"
	"time"

	"student-records-api/internal/auth"
	"student-records-api/internal/handlers"
	"student-records-api/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Deps are the handlers and collaborators the router wires together.
type Deps struct {
	Auth     *handlers.AuthHandler
	Students *handlers.StudentHandler
	Events   *handlers.EventsHandler
	Sessions auth.SessionValidator
	// AuthLimiter throttles register and login. Nil disables it.
	AuthLimiter *middleware.RateLimiter

	// TrustedProxies are the proxies whose X-Forwarded-For sets the client
	// IP. Empty trusts none.
	TrustedProxies []string
	// AllowedOrigins enables CORS for browser clients. Empty disables it;
	// "*" allows any origin without credentials.
	AllowedOrigins []string
	// Checks are run by /health, keyed by dependency name.
	Checks map[string]HealthCheck
}

// SetupRoutes returns the configured engine.
func SetupRoutes(d Deps) *gin.Engine {
	ginRouter := gin.New()
	if err := ginRouter.SetTrustedProxies(d.TrustedProxies); err != nil {
		log.Error().Err(err).Strs("trusted_proxies", d.TrustedProxies).Msg("invalid trusted proxies, trusting none")
		_ = ginRouter.SetTrustedProxies(nil)
	}
	ginRouter.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.Metrics(),
	)
	if len(d.AllowedOrigins) > 0 {
		ginRouter.Use(cors.New(corsConfig(d.AllowedOrigins)))
	}
	ginRouter.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/events", "/metrics"})))

	ginRouter.NoRoute(func(c *gin.Context) {
		middleware.AbortError(c, http.StatusNotFound, middleware.CodeNotFound, "route not found")
	})

	// Health check endpoint
	ginRouter.GET("/health", health(d.Checks))
	ginRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public routes (no authentication required)
	public := ginRouter.Group("/auth")
	if d.AuthLimiter != nil {
		public.Use(d.AuthLimiter.Handler())
	}
	{
		public.POST("/register", d.Auth.Register)
		public.POST("/login", d.Auth.Login)
	}

	// Protected routes (authentication required)
	protected := ginRouter.Group("")
	protected.Use(middleware.SessionAuth(d.Sessions))
	{
		protected.POST("/auth/logout", d.Auth.Logout)

		students := protected.Group("/students")
		students.POST("/load-csv", d.Students.LoadCSV)
		students.DELETE("/bulk-delete", d.Students.BulkDelete)
		students.POST("/", d.Students.Create)
		students.GET("/", d.Students.List)
		students.GET("/:id", d.Students.Get)
		students.PUT("/:id", d.Students.Update)
		students.DELETE("/:id", d.Students.Delete)

		protected.GET("/faculties/:faculty/students", d.Students.FacultyStudents)
		protected.GET("/faculties/:faculty/average_grade", d.Students.FacultyAverage)
		protected.GET("/courses/", d.Students.Courses)

		if d.Events != nil {
			protected.GET("/events", d.Events.Serve)
		}
	}

	return ginRouter
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		// Credentials must stay off with a wildcard origin.
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Str("dependency", name).Msg("health check failed")
				result[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			result[name] = "up"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":       state,
			"dependencies": result,
		})
	}
}
