package services

import (
	"encoding/json"
	"time"

	"github.com/forumkit/forumkit/apperr"
	"github.com/forumkit/forumkit/hooks"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/store"
)

// Settings keys read by the core.
const (
	KeyTrackerLength        = "TRACKER_LENGTH"
	KeyTopicsPerPage        = "TOPICS_PER_PAGE"
	KeyPostsPerPage         = "POSTS_PER_PAGE"
	KeyUsersPerPage         = "USERS_PER_PAGE"
	KeyActivateAccount      = "ACTIVATE_ACCOUNT"
	KeyAuthRatelimitEnabled = "AUTH_RATELIMIT_ENABLED"
	KeyAuthRequests         = "AUTH_REQUESTS"
	KeyAuthTimeout          = "AUTH_TIMEOUT"
	KeyAvatarWidth          = "AVATAR_WIDTH"
	KeyAvatarHeight         = "AVATAR_HEIGHT"
	KeyAvatarSize           = "AVATAR_SIZE"
	KeyAvatarTypes          = "AVATAR_TYPES"
	KeyTitleLength          = "TITLE_LENGTH"
)

const settingsCacheKey = "settings"

// Cache is the process-wide read-through cache the settings store memoises
// into. The Redis-backed implementation lives in utils.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

// SettingsService is the typed key/value configuration store. Reads go
// through a memoised dictionary; writes update rows and invalidate the cache
// inside the same transaction scope.
type SettingsService struct {
	store    *store.Store
	cache    Cache
	registry *hooks.Registry
}

// NewSettingsService wires the settings store.
func NewSettingsService(st *store.Store, cache Cache, registry *hooks.Registry) *SettingsService {
	return &SettingsService{store: st, cache: cache, registry: registry}
}

// AsDict returns every setting decoded by its value type, memoised under the
// settings cache key.
func (s *SettingsService) AsDict() (map[string]interface{}, error) {
	if b, ok := s.cache.Get(settingsCacheKey); ok {
		var dict map[string]interface{}
		if err := json.Unmarshal(b, &dict); err == nil {
			return dict, nil
		}
	}

	var rows []models.Setting
	if err := s.store.FindBy(&rows, "1 = 1"); err != nil {
		return nil, err
	}
	dict := make(map[string]interface{}, len(rows))
	for i := range rows {
		v, err := rows[i].DecodedValue()
		if err != nil {
			return nil, err
		}
		dict[rows[i].Key] = v
	}
	if b, err := json.Marshal(dict); err == nil {
		s.cache.Set(settingsCacheKey, b, time.Hour)
	}
	return dict, nil
}

// Update writes the given key/value pairs and invalidates the cache within
// the same transaction scope. Unknown keys fail the whole update.
func (s *SettingsService) Update(values map[string]interface{}) error {
	if len(values) == 0 {
		return nil
	}
	err := s.store.Tx(func(tx *store.Store) error {
		for key, value := range values {
			var row models.Setting
			if err := tx.FindOneBy(&row, "`key` = ?", key); err != nil {
				if err == apperr.ErrNotFound {
					return apperr.NewValidationError(key, "unknown setting")
				}
				return err
			}
			encoded, err := models.EncodeSettingValue(row.ValueType, value)
			if err != nil {
				return apperr.NewValidationError(key, err.Error())
			}
			row.Value = encoded
			if err := tx.Save(&row); err != nil {
				return err
			}
		}
		s.cache.Delete(settingsCacheKey)
		return nil
	})
	if err != nil {
		return err
	}
	return s.registry.Notify(hooks.SettingsUpdated, values)
}

// Int returns an integer setting or the fallback when missing or mistyped.
func (s *SettingsService) Int(key string, fallback int) int {
	dict, err := s.AsDict()
	if err != nil {
		return fallback
	}
	switch v := dict[key].(type) {
	case int:
		return v
	case float64:
		// JSON round-trips numbers as float64
		return int(v)
	default:
		return fallback
	}
}

// Bool returns a boolean setting or the fallback.
func (s *SettingsService) Bool(key string, fallback bool) bool {
	dict, err := s.AsDict()
	if err != nil {
		return fallback
	}
	if v, ok := dict[key].(bool); ok {
		return v
	}
	return fallback
}

// String returns a string setting or the fallback.
func (s *SettingsService) String(key string, fallback string) string {
	dict, err := s.AsDict()
	if err != nil {
		return fallback
	}
	if v, ok := dict[key].(string); ok {
		return v
	}
	return fallback
}

// Strings returns a selectmultiple setting as a string slice.
func (s *SettingsService) Strings(key string) []string {
	dict, err := s.AsDict()
	if err != nil {
		return nil
	}
	switch v := dict[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, it := range v {
			if str, ok := it.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
