package services

import (
	"encoding/json"
	"time"

	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/store"
	"github.com/forumkit/forumkit/utils"
)

// BoardStats is the aggregate snapshot shown on the board index.
type BoardStats struct {
	UserCount  int64  `json:"user_count"`
	TopicCount int64  `json:"topic_count"`
	PostCount  int64  `json:"post_count"`
	Online     int64  `json:"online"`
	NewestUser string `json:"newest_user"`
}

const statsCacheKey = "board:stats"

// StatsService computes board-wide aggregates with a short cache in front, so
// the index page never fans out into four counts per request.
type StatsService struct {
	store *store.Store
	cache Cache
}

// NewStatsService wires the stats service.
func NewStatsService(st *store.Store, cache Cache) *StatsService {
	return &StatsService{store: st, cache: cache}
}

// Board returns the current board snapshot.
func (s *StatsService) Board() (*BoardStats, error) {
	if b, ok := s.cache.Get(statsCacheKey); ok {
		var stats BoardStats
		if err := json.Unmarshal(b, &stats); err == nil {
			stats.Online = int64(utils.OnlineCount())
			return &stats, nil
		}
	}

	var stats BoardStats
	db := s.store.DB()
	if err := db.Model(&models.User{}).Count(&stats.UserCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Topic{}).Where("hidden = ?", false).Count(&stats.TopicCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Post{}).Where("hidden = ?", false).Count(&stats.PostCount).Error; err != nil {
		return nil, err
	}
	var newest models.User
	if err := db.Order("id DESC").First(&newest).Error; err == nil {
		stats.NewestUser = newest.Username
	}
	if b, err := json.Marshal(stats); err == nil {
		s.cache.Set(statsCacheKey, b, time.Minute)
	}
	stats.Online = int64(utils.OnlineCount())
	return &stats, nil
}
