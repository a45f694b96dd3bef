package services

import (
	"errors"
	"testing"
	"time"

	"github.com/forumkit/forumkit/apperr"
	"github.com/forumkit/forumkit/tokens"
	"github.com/forumkit/forumkit/utils"
)

func newAccountFixture(t *testing.T) (*testEnv, *AccountService, *recordingMailer, *tokens.Serializer) {
	env := newTestEnv(t)
	mailer := &recordingMailer{}
	serializer := tokens.NewSerializer("test-secret", time.Hour)
	svc := NewAccountService(env.store, env.settings, env.registry, serializer, mailer)
	return env, svc, mailer, serializer
}

func TestActivationRoundtrip(t *testing.T) {
	env, svc, mailer, _ := newAccountFixture(t)
	user := env.createUser(t, "alice", "Member")
	user.Activated = false
	if err := env.store.Save(user); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := svc.InitiateActivation("alice@example.com"); err != nil {
		t.Fatalf("InitiateActivation: %v", err)
	}
	if len(mailer.activationTokens) != 1 {
		t.Fatalf("tokens sent = %d, want 1", len(mailer.activationTokens))
	}
	activated, err := svc.Activate(mailer.activationTokens[0])
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !activated.Activated {
		t.Error("account must be active after Activate")
	}

	// Consuming the token again fails on the already-activated check.
	if _, err := svc.Activate(mailer.activationTokens[0]); err == nil {
		t.Error("second activation must be rejected")
	}
}

func TestActivateRejectsWrongOperation(t *testing.T) {
	env, svc, _, serializer := newAccountFixture(t)
	user := env.createUser(t, "alice", "Member")

	raw, err := serializer.Dumps(tokens.Token{UserID: user.ID, Operation: tokens.OpResetPassword})
	if err != nil {
		t.Fatalf("Dumps: %v", err)
	}
	_, err = svc.Activate(raw)
	var te *apperr.TokenError
	if !errors.As(err, &te) || te.Kind != apperr.TokenInvalid {
		t.Fatalf("err = %v, want TokenError{invalid}", err)
	}
}

func TestResetRequiresMatchingEmail(t *testing.T) {
	env, svc, mailer, _ := newAccountFixture(t)
	env.createUser(t, "alice", "Member")

	if err := svc.InitiateReset("alice@example.com"); err != nil {
		t.Fatalf("InitiateReset: %v", err)
	}
	if len(mailer.resetTokens) != 1 {
		t.Fatalf("reset tokens sent = %d, want 1", len(mailer.resetTokens))
	}

	_, err := svc.Reset(mailer.resetTokens[0], "someone-else@example.com", "new password")
	var sv *apperr.StopValidation
	if !errors.As(err, &sv) {
		t.Fatalf("err = %v, want StopValidation for wrong email", err)
	}

	reset, err := svc.Reset(mailer.resetTokens[0], "ALICE@example.com", "new password")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !utils.CheckPassword(reset.PasswordHash, "new password") {
		t.Error("reset must set the new password")
	}
	if reset.LoginAttempts != 0 || reset.LastFailedLogin != nil {
		t.Error("reset must clear the lockout counters")
	}
}

func TestResetRejectsTamperedToken(t *testing.T) {
	env, svc, _, _ := newAccountFixture(t)
	env.createUser(t, "alice", "Member")

	other := tokens.NewSerializer("different-secret", time.Hour)
	raw, err := other.Dumps(tokens.Token{UserID: 1, Operation: tokens.OpResetPassword})
	if err != nil {
		t.Fatalf("Dumps: %v", err)
	}
	_, err = svc.Reset(raw, "alice@example.com", "new password")
	var te *apperr.TokenError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TokenError", err)
	}
}

func TestUpdateEmailValidation(t *testing.T) {
	env, svc, _, _ := newAccountFixture(t)
	user := env.createUser(t, "alice", "Member")
	env.createUser(t, "bob", "Member")

	err := svc.UpdateEmail(user, EmailChange{OldEmail: "wrong@example.com", NewEmail: "bob@example.com"})
	var sv *apperr.StopValidation
	if !errors.As(err, &sv) {
		t.Fatalf("err = %v, want StopValidation", err)
	}
	// wrong old email + taken new email
	if len(sv.Reasons) < 2 {
		t.Errorf("reasons = %d, want both failures reported", len(sv.Reasons))
	}

	if err := svc.UpdateEmail(user, EmailChange{OldEmail: "alice@example.com", NewEmail: "fresh@example.com"}); err != nil {
		t.Fatalf("UpdateEmail: %v", err)
	}
	if env.reloadUser(t, user.ID).Email != "fresh@example.com" {
		t.Error("email must be updated")
	}
}

func TestUpdatePasswordValidation(t *testing.T) {
	env, svc, _, _ := newAccountFixture(t)
	user := env.createUser(t, "alice", "Member")

	err := svc.UpdatePassword(user, PasswordChange{OldPassword: "wrong", NewPassword: "brand new pw"})
	var sv *apperr.StopValidation
	if !errors.As(err, &sv) {
		t.Fatalf("err = %v, want StopValidation", err)
	}

	if err := svc.UpdatePassword(user, PasswordChange{OldPassword: "correct horse", NewPassword: "brand new pw"}); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if !utils.CheckPassword(env.reloadUser(t, user.ID).PasswordHash, "brand new pw") {
		t.Error("new password must be in effect")
	}
}

func TestUpdateDetailsAppliesPartialChange(t *testing.T) {
	env, svc, _, _ := newAccountFixture(t)
	user := env.createUser(t, "alice", "Member")

	location := "Berlin"
	signature := "<script>alert(1)</script>cheers"
	err := svc.UpdateDetails(user, DetailsChange{Location: &location, Signature: &signature})
	if err != nil {
		t.Fatalf("UpdateDetails: %v", err)
	}
	reloaded := env.reloadUser(t, user.ID)
	if reloaded.Location != "Berlin" {
		t.Error("location must be updated")
	}
	if reloaded.Signature == signature {
		t.Error("signature must be sanitized")
	}
	if reloaded.Website != "" {
		t.Error("untouched fields must stay untouched")
	}
}
