package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/forumkit/forumkit/services"
	"github.com/forumkit/forumkit/utils"
)

// StatsController exposes the board index aggregates.
type StatsController struct {
	stats *services.StatsService
}

// NewStatsController wires the stats endpoint.
func NewStatsController(stats *services.StatsService) *StatsController {
	return &StatsController{stats: stats}
}

// Board returns user/topic/post counts, the newest member and the online
// count.
func (s *StatsController) Board(ctx *gin.Context) {
	stats, err := s.stats.Board()
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, stats)
}
