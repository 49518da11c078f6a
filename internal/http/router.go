package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"profile-api/internal/domain"
	"profile-api/internal/metrics"
	"profile-api/internal/service"
)

// RouterDeps agrupa handlers e infraestructura que necesita el router.
type RouterDeps struct {
	Auth   *AuthHandler
	Users  *UserHandler
	Posts  *PostHandler
	Tokens *service.TokenService

	// AuthLimiter limita /register, /login y /forgotpassword por IP.
	AuthLimiter *IPRateLimiter
	Metrics     *metrics.Collector
	// MetricsHandler se monta en GET /metrics cuando no es nil.
	MetricsHandler http.Handler
	// Ready se usa en GET /healthz.
	Ready func(ctx context.Context) error

	// UploadDir y UploadURL sirven imagenes guardadas en disco.
	UploadDir string
	UploadURL string
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(logger *zap.Logger, deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y metricas.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), metricsMiddleware(deps.Metrics))

	r.GET("/healthz", healthHandler(deps.Ready))
	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}
	if deps.UploadDir != "" && deps.UploadURL != "" {
		r.Static(deps.UploadURL, deps.UploadDir)
	}

	api := r.Group("/", jsonContentTypeMiddleware())
	limit := deps.AuthLimiter.Middleware()
	session := AuthMiddleware(deps.Tokens, domain.PurposeSession)
	sessionOrReset := AuthMiddleware(deps.Tokens, domain.PurposeSession, domain.PurposeResetPassword)

	api.POST("/register", limit, deps.Auth.Register)
	api.GET("/register/confirm", deps.Auth.Confirm)
	api.POST("/login", limit, deps.Auth.Login)
	api.GET("/logout", session, deps.Auth.Logout)
	api.POST("/forgotpassword", limit, deps.Auth.ForgotPassword)
	api.POST("/changepassword", sessionOrReset, deps.Auth.ChangePassword)

	posts := api.Group("/post", session)
	posts.POST("/create", deps.Posts.Create)
	posts.DELETE("/:postId", deps.Posts.Delete)
	posts.GET("/info/:postId", deps.Posts.Info)

	users := api.Group("/user", session)
	users.POST("/update", deps.Users.Update)
	users.POST("/avatar", deps.Users.SetAvatar)
	users.DELETE("/avatar", deps.Users.DeleteAvatar)
	users.GET("/profile", deps.Users.Profile)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Info("request", fields...)
	}
}

// metricsMiddleware registra cada request con la ruta de Gin, no el path crudo.
func metricsMiddleware(m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		m.RecordRequest(c.FullPath(), c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

func healthHandler(ready func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
