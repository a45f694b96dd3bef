package services

import (
	"errors"
	"testing"
	"time"

	"github.com/forumkit/forumkit/apperr"
	"github.com/forumkit/forumkit/hooks"
	"github.com/forumkit/forumkit/store"
	"github.com/forumkit/forumkit/tokens"
)

func newRegisterFixture(t *testing.T) (*testEnv, *RegistrationService, *recordingMailer) {
	env := newTestEnv(t)
	mailer := &recordingMailer{}
	serializer := tokens.NewSerializer("test-secret", time.Hour)
	svc := NewRegistrationService(env.store, env.settings, env.registry, serializer, mailer)
	return env, svc, mailer
}

func TestRegisterCreatesDeactivatedAccountAndMailsToken(t *testing.T) {
	env, svc, mailer := newRegisterFixture(t)

	user, err := svc.Register(UserRegistrationInfo{
		Username: "newbie",
		Password: "hunter22",
		Email:    "newbie@example.com",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Activated {
		t.Error("account must start deactivated while activation is required")
	}
	if user.PrimaryGroupID != env.group(t, "Member").ID {
		t.Error("account must land in the default member group")
	}
	if user.PasswordHash == "hunter22" || user.PasswordHash == "" {
		t.Error("password must be stored hashed")
	}
	if len(mailer.activationTokens) != 1 {
		t.Fatalf("activation tokens sent = %d, want 1", len(mailer.activationTokens))
	}
}

func TestRegisterWithoutActivationRequirement(t *testing.T) {
	env, svc, mailer := newRegisterFixture(t)
	if err := env.settings.Update(map[string]interface{}{KeyActivateAccount: false}); err != nil {
		t.Fatalf("settings update: %v", err)
	}

	user, err := svc.Register(UserRegistrationInfo{
		Username: "newbie",
		Password: "hunter22",
		Email:    "newbie@example.com",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !user.Activated {
		t.Error("account must be active when activation is not required")
	}
	if len(mailer.activationTokens) != 0 {
		t.Error("no activation mail when activation is not required")
	}
}

func TestRegisterAggregatesEveryFailure(t *testing.T) {
	env, svc, _ := newRegisterFixture(t)
	env.createUser(t, "taken", "Member")

	_, err := svc.Register(UserRegistrationInfo{
		Username: "x!",                // too short and bad characters
		Password: "pw",
		Email:    "taken@example.com", // already used
	})
	var sv *apperr.StopValidation
	if !errors.As(err, &sv) {
		t.Fatalf("err = %v, want StopValidation", err)
	}
	if len(sv.Reasons) < 2 {
		t.Errorf("reasons = %d, want at least username and email failures", len(sv.Reasons))
	}
}

func TestRegisterRejectsCaseInsensitiveDuplicates(t *testing.T) {
	env, svc, _ := newRegisterFixture(t)
	env.createUser(t, "alice", "Member")

	_, err := svc.Register(UserRegistrationInfo{
		Username: "ALICE",
		Password: "hunter22",
		Email:    "other@example.com",
	})
	var sv *apperr.StopValidation
	if !errors.As(err, &sv) {
		t.Fatalf("err = %v, want StopValidation", err)
	}
}

func TestRegisterRejectsBlacklistedUsernames(t *testing.T) {
	_, svc, _ := newRegisterFixture(t)

	_, err := svc.Register(UserRegistrationInfo{
		Username: "Admin",
		Password: "hunter22",
		Email:    "admin@example.com",
	})
	var sv *apperr.StopValidation
	if !errors.As(err, &sv) {
		t.Fatalf("err = %v, want StopValidation", err)
	}
}

func TestRegisterRunsPluginValidators(t *testing.T) {
	env, svc, _ := newRegisterFixture(t)
	env.registry.Register(hooks.GatherRegistrationValidators, func(args ...interface{}) (interface{}, error) {
		return RegistrationValidator(func(tx *store.Store, info UserRegistrationInfo) *apperr.ValidationError {
			if info.Language == "" {
				return apperr.NewValidationError("language", "language is required")
			}
			return nil
		}), nil
	})

	_, err := svc.Register(UserRegistrationInfo{
		Username: "newbie",
		Password: "hunter22",
		Email:    "newbie@example.com",
	})
	var sv *apperr.StopValidation
	if !errors.As(err, &sv) {
		t.Fatalf("err = %v, want StopValidation from plugin validator", err)
	}
}
