package routes

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/forumkit/forumkit/config"
	"github.com/forumkit/forumkit/controllers"
	"github.com/forumkit/forumkit/hooks"
	"github.com/forumkit/forumkit/middleware"
	"github.com/forumkit/forumkit/services"
	"github.com/forumkit/forumkit/store"
	"github.com/forumkit/forumkit/tokens"
	"github.com/forumkit/forumkit/utils"
)

// SetupRouter wires the services, middlewares and controllers.
func SetupRouter(db *gorm.DB) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	st := store.New(db)
	registry := hooks.NewRegistry()
	cache := utils.RedisCache{}
	serializer := tokens.NewSerializer(cfg.SecretKey, time.Duration(cfg.AccountTokenMinutes)*time.Minute)
	mailer := services.NewSMTPMailer()

	settingsService := services.NewSettingsService(st, cache, registry)
	forumService := services.NewForumService(st, settingsService, registry)
	trackerService := services.NewTrackerService(st, settingsService)
	authService := services.NewAuthService(st, settingsService, registry)
	registerService := services.NewRegistrationService(st, settingsService, registry, serializer, mailer)
	accountService := services.NewAccountService(st, settingsService, registry, serializer, mailer)
	messageService := services.NewMessageService(st)
	statsService := services.NewStatsService(st, cache)

	authController := controllers.NewAuthController(authService, registerService, accountService)
	forumController := controllers.NewForumController(st, forumService, trackerService, settingsService)
	messageController := controllers.NewMessageController(st, messageService)
	statsController := controllers.NewStatsController(statsService)
	settingsController := controllers.NewSettingsController(settingsService)

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	api.Use(middleware.Session(st))

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/activate/resend", authController.InitiateActivation)
	authGroup.POST("/activate/:token", authController.Activate)
	authGroup.POST("/forgot-password", authController.ForgotPassword)
	authGroup.POST("/reset-password/:token", authController.ResetPassword)
	authGroup.POST("/logout", middleware.AuthRequired(st), authController.Logout)
	authGroup.POST("/reauth", middleware.AuthRequired(st), authController.Reauth)
	authGroup.GET("/me", middleware.AuthRequired(st), authController.Me)

	userGroup := api.Group("/user", middleware.AuthRequired(st))
	userGroup.PATCH("/email", authController.UpdateEmail)
	userGroup.PATCH("/password", authController.UpdatePassword)
	userGroup.PATCH("/details", authController.UpdateDetails)
	userGroup.PATCH("/settings", authController.UpdateSettings)

	// Guest-readable board surface
	api.GET("/board", forumController.Index)
	api.GET("/stats", statsController.Board)
	api.GET("/forums/:id", forumController.GetForum)
	api.GET("/topics/:id", forumController.GetTopic)

	// Authenticated forum mutations
	forumGroup := api.Group("", middleware.AuthRequired(st))
	forumGroup.POST("/forums/:id/topics", forumController.CreateTopic)
	forumGroup.POST("/forums/:id/markread", forumController.MarkForumRead)
	forumGroup.POST("/topics/:id/posts", forumController.CreatePost)
	forumGroup.DELETE("/topics/:id", forumController.DeleteTopic)
	forumGroup.POST("/topics/:id/hide", forumController.HideTopic)
	forumGroup.POST("/topics/:id/unhide", forumController.UnhideTopic)
	forumGroup.POST("/topics/:id/move", forumController.MoveTopic)
	forumGroup.POST("/topics/:id/lock", forumController.LockTopic)
	forumGroup.POST("/topics/:id/track", forumController.TrackTopic)
	forumGroup.DELETE("/topics/:id/track", forumController.UntrackTopic)
	forumGroup.GET("/topics/tracked", forumController.TrackedTopics)
	forumGroup.PATCH("/posts/:id", forumController.EditPost)
	forumGroup.DELETE("/posts/:id", forumController.DeletePost)
	forumGroup.POST("/posts/:id/hide", forumController.HidePost)
	forumGroup.POST("/posts/:id/unhide", forumController.UnhidePost)
	forumGroup.POST("/posts/:id/report", forumController.ReportPost)
	forumGroup.GET("/reports", forumController.ListReports)
	forumGroup.POST("/reports/:id/zap", forumController.ZapReport)

	messageGroup := api.Group("/messages", middleware.AuthRequired(st))
	messageGroup.GET("", messageController.List)
	messageGroup.POST("", messageController.Start)
	messageGroup.POST("/:id/reply", messageController.Reply)
	messageGroup.POST("/:id/read", messageController.MarkRead)
	messageGroup.POST("/:id/trash", messageController.Trash)
	messageGroup.POST("/:id/restore", messageController.Restore)
	messageGroup.DELETE("/:id", messageController.Delete)

	adminGroup := api.Group("/admin", middleware.AuthRequired(st), middleware.AdminRequired())
	adminGroup.GET("/settings", settingsController.Get)
	adminGroup.PATCH("/settings", settingsController.Update)
	adminGroup.POST("/forums/:id/recalculate", forumController.RecalculateForum)

	return r
}
