package main

import (
	"github.com/forumkit/forumkit/config"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/routes"
	"github.com/forumkit/forumkit/services"
	"github.com/forumkit/forumkit/store"
	"github.com/forumkit/forumkit/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.Group{}, &models.User{},
		&models.Category{}, &models.Forum{}, &models.Topic{}, &models.Post{},
		&models.ForumRead{}, &models.TopicRead{},
		&models.Report{}, &models.Conversation{}, &models.Message{},
		&models.SettingsGroup{}, &models.Setting{},
	)

	if err := services.Bootstrap(store.New(db)); err != nil {
		utils.Sugar.Fatalf("bootstrap failed: %v", err)
	}

	r := routes.SetupRouter(db)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
