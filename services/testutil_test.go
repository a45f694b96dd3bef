package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/forumkit/forumkit/hooks"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/store"
	"github.com/forumkit/forumkit/utils"
)

// memCache is an in-process Cache for tests.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	return b, ok
}

func (c *memCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

func (c *memCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// recordingMailer captures outgoing tokens instead of delivering mail.
type recordingMailer struct {
	activationTokens []string
	resetTokens      []string
}

func (m *recordingMailer) SendActivationToken(email, username, token string) error {
	m.activationTokens = append(m.activationTokens, token)
	return nil
}

func (m *recordingMailer) SendResetToken(email, username, token string) error {
	m.resetTokens = append(m.resetTokens, token)
	return nil
}

// testEnv bundles a fresh sqlite-backed store with seeded defaults.
type testEnv struct {
	store    *store.Store
	registry *hooks.Registry
	cache    *memCache
	settings *SettingsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&models.Group{}, &models.User{},
		&models.Category{}, &models.Forum{}, &models.Topic{}, &models.Post{},
		&models.ForumRead{}, &models.TopicRead{},
		&models.Report{}, &models.Conversation{}, &models.Message{},
		&models.SettingsGroup{}, &models.Setting{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.New(db)
	if err := Bootstrap(st); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	registry := hooks.NewRegistry()
	cache := newMemCache()
	settings := NewSettingsService(st, cache, registry)
	return &testEnv{store: st, registry: registry, cache: cache, settings: settings}
}

func (e *testEnv) group(t *testing.T, name string) *models.Group {
	t.Helper()
	var g models.Group
	if err := e.store.FindOneBy(&g, "name = ?", name); err != nil {
		t.Fatalf("load group %s: %v", name, err)
	}
	return &g
}

func (e *testEnv) createUser(t *testing.T, username, groupName string) *models.User {
	t.Helper()
	hash, err := utils.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := &models.User{
		Username:       username,
		Email:          username + "@example.com",
		PasswordHash:   hash,
		Activated:      true,
		PrimaryGroupID: e.group(t, groupName).ID,
	}
	if err := e.store.Add(user); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	// reload with group associations for permission checks
	if err := e.store.DB().Preload("PrimaryGroup").Preload("SecondaryGroups").
		First(user, user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return user
}

func (e *testEnv) createForum(t *testing.T, title string) *models.Forum {
	t.Helper()
	category := &models.Category{Title: "General", Position: 1}
	if err := e.store.Add(category); err != nil {
		t.Fatalf("create category: %v", err)
	}
	forum := &models.Forum{CategoryID: category.ID, Title: title}
	if err := e.store.Add(forum); err != nil {
		t.Fatalf("create forum: %v", err)
	}
	return forum
}

func (e *testEnv) reloadForum(t *testing.T, id uint) *models.Forum {
	t.Helper()
	var f models.Forum
	if err := e.store.Get(&f, id); err != nil {
		t.Fatalf("reload forum: %v", err)
	}
	return &f
}

func (e *testEnv) reloadTopic(t *testing.T, id uint) *models.Topic {
	t.Helper()
	var topic models.Topic
	if err := e.store.Get(&topic, id); err != nil {
		t.Fatalf("reload topic: %v", err)
	}
	return &topic
}

func (e *testEnv) reloadPost(t *testing.T, id uint) *models.Post {
	t.Helper()
	var p models.Post
	if err := e.store.Get(&p, id); err != nil {
		t.Fatalf("reload post: %v", err)
	}
	return &p
}

func (e *testEnv) reloadUser(t *testing.T, id uint) *models.User {
	t.Helper()
	var u models.User
	if err := e.store.Get(&u, id); err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return &u
}
