package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"focusfriends/backend/internal/gateway"
	"focusfriends/backend/internal/handler"
	"focusfriends/backend/internal/middleware"
	"focusfriends/backend/internal/service"
)

type Handlers struct {
	Auth    *handler.AuthHandler
	Timer   *handler.TimerHandler
	Social  *handler.SocialHandler
	Gateway *gateway.ConnectionManager
}

func New(
	authService *service.AuthService,
	handlers Handlers,
	corsOrigins []string,
	logger *zap.Logger,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := gin.New()
	engine.Use(middleware.RequestLogger(logger), middleware.Recovery(logger), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	pages := engine.Group("/")
	pages.Use(middleware.Guard(authService))
	pages.GET("/dashboard", handler.Page("dashboard"))
	pages.GET("/login", handler.Page("login"))
	pages.GET("/signup", handler.Page("signup"))

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", handlers.Auth.Register)
	auth.POST("/login", handlers.Auth.Login)
	auth.POST("/logout", handlers.Auth.Logout)

	protected := api.Group("")
	protected.Use(middleware.Auth(authService))
	protected.GET("/me", handlers.Auth.Me)

	protected.GET("/timer", handlers.Timer.GetState)
	protected.POST("/timer/start", handlers.Timer.Start)
	protected.POST("/timer/pause", handlers.Timer.Pause)
	protected.POST("/timer/resume", handlers.Timer.Resume)
	protected.POST("/timer/stop", handlers.Timer.Stop)
	protected.PUT("/timer/duration", handlers.Timer.SetDuration)
	protected.GET("/sessions/history", handlers.Timer.GetHistory)

	protected.GET("/friends", handlers.Social.Friends)
	protected.GET("/feed", handlers.Social.Feed)
	protected.GET("/leaderboard", handlers.Social.Leaderboard)
	protected.POST("/nudges", handlers.Social.SendNudge)

	if handlers.Gateway != nil {
		engine.GET("/ws", middleware.Auth(authService), handlers.Gateway.Handle)
	}

	return engine
}
