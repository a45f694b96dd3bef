package services

import (
	"errors"
	"testing"

	"github.com/forumkit/forumkit/apperr"
)

func TestSettingsAsDictMemoises(t *testing.T) {
	env := newTestEnv(t)

	dict, err := env.settings.AsDict()
	if err != nil {
		t.Fatalf("AsDict: %v", err)
	}
	if _, ok := dict[KeyTrackerLength]; !ok {
		t.Fatal("seeded settings missing from dict")
	}
	if _, ok := env.cache.Get("settings"); !ok {
		t.Error("AsDict must populate the cache")
	}
}

func TestSettingsTypedReaders(t *testing.T) {
	env := newTestEnv(t)

	if got := env.settings.Int(KeyTrackerLength, -1); got != 7 {
		t.Errorf("tracker length = %d, want 7", got)
	}
	if got := env.settings.Bool(KeyActivateAccount, false); !got {
		t.Error("activate account must default to true")
	}
	if got := env.settings.Int("NO_SUCH_KEY", 42); got != 42 {
		t.Errorf("missing key fallback = %d, want 42", got)
	}
	if got := env.settings.Strings(KeyAvatarTypes); len(got) != 3 {
		t.Errorf("avatar types = %v, want three entries", got)
	}
}

func TestSettingsUpdateInvalidatesCache(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.settings.AsDict(); err != nil {
		t.Fatalf("AsDict: %v", err)
	}
	if err := env.settings.Update(map[string]interface{}{KeyTrackerLength: 14}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, ok := env.cache.Get("settings"); ok {
		t.Error("Update must drop the cached dict")
	}
	if got := env.settings.Int(KeyTrackerLength, -1); got != 14 {
		t.Errorf("tracker length after update = %d, want 14", got)
	}
}

func TestSettingsUpdateRejectsUnknownKey(t *testing.T) {
	env := newTestEnv(t)

	err := env.settings.Update(map[string]interface{}{
		"NO_SUCH_KEY": 1,
	})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	// The known key in the same batch must not have been applied either.
	err = env.settings.Update(map[string]interface{}{
		KeyTrackerLength: 14,
		"NO_SUCH_KEY":    1,
	})
	if err == nil {
		t.Fatal("batch with unknown key must fail")
	}
	if got := env.settings.Int(KeyTrackerLength, -1); got != 7 {
		t.Errorf("tracker length = %d, failed batch must roll back", got)
	}
}
