package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/forumkit/forumkit/apperr"
	"github.com/forumkit/forumkit/hooks"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/store"
	"github.com/forumkit/forumkit/utils"
)

// AuthService runs the hook-driven login pipeline. Providers on the
// authenticate hook answer with a user under the first-non-nil policy; the
// built-ins are the lockout gate followed by the password provider. Failure
// handlers persist their bookkeeping even though the main unit of work rolls
// back.
type AuthService struct {
	store    *store.Store
	settings *SettingsService
	registry *hooks.Registry
}

// NewAuthService wires the service and registers the built-in providers and
// handlers on the registry. Plugins registered before or after the built-ins
// keep their chain order.
func NewAuthService(st *store.Store, settings *SettingsService, registry *hooks.Registry) *AuthService {
	s := &AuthService{store: st, settings: settings, registry: registry}
	registry.Register(hooks.Authenticate, s.lockoutGate)
	registry.Register(hooks.Authenticate, s.passwordProvider)
	registry.Register(hooks.AuthenticationFailed, s.markFailedLogin)
	registry.Register(hooks.PostAuthenticate, s.requireActivated)
	registry.Register(hooks.PostAuthenticate, s.resetLoginTracking)
	registry.Register(hooks.ReauthAttempt, s.passwordReauth)
	registry.Register(hooks.ReauthFailed, s.markFailedLogin)
	return s
}

// findByIdentifier matches the login identifier against username or email,
// case-insensitively.
func (s *AuthService) findByIdentifier(tx *store.Store, identifier string) (*models.User, error) {
	ident := models.NormalizeIdentifier(identifier)
	var user models.User
	err := tx.DB().Preload("PrimaryGroup").Preload("SecondaryGroups").
		Where("lower(username) = ? OR lower(email) = ?", ident, ident).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &apperr.PersistenceError{Message: "user lookup failed", Err: err}
	}
	return &user, nil
}

// Login runs the full pipeline. On any stop-authentication outcome the failure
// handlers run in their own committed transaction before the error surfaces,
// so attempt counters survive the rollback of the main unit of work.
func (s *AuthService) Login(identifier, secret string) (*models.User, error) {
	var user *models.User
	err := s.store.Tx(func(tx *store.Store) error {
		res, err := s.registry.FirstNonNil(hooks.Authenticate, tx, identifier, secret)
		if err != nil {
			return err
		}
		if res == nil {
			return &apperr.StopAuthentication{Reason: "wrong username or password"}
		}
		u, ok := res.(*models.User)
		if !ok {
			return &apperr.StopAuthentication{Reason: "wrong username or password"}
		}
		if err := s.registry.Notify(hooks.PostAuthenticate, tx, u); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		var sa *apperr.StopAuthentication
		if errors.As(err, &sa) {
			s.dispatchFailure(identifier)
		}
		return nil, err
	}
	return user, nil
}

// Reauth re-checks the credentials of an already-authenticated user, e.g.
// before security-sensitive changes.
func (s *AuthService) Reauth(user *models.User, secret string) error {
	err := s.store.Tx(func(tx *store.Store) error {
		res, err := s.registry.FirstNonNil(hooks.ReauthAttempt, tx, user, secret)
		if err != nil {
			return err
		}
		if ok, _ := res.(bool); !ok {
			return &apperr.StopAuthentication{Reason: "wrong password"}
		}
		return s.registry.Notify(hooks.PostReauth, tx, user)
	})
	if err != nil {
		var sa *apperr.StopAuthentication
		if errors.As(err, &sa) {
			s.dispatchReauthFailure(user.Username)
		}
		return err
	}
	return nil
}

// dispatchFailure runs the failure handlers in a fresh committed transaction.
func (s *AuthService) dispatchFailure(identifier string) {
	err := s.store.Tx(func(tx *store.Store) error {
		return s.registry.Notify(hooks.AuthenticationFailed, tx, identifier)
	})
	if err != nil {
		utils.Sugar.Warnw("authentication failure handler error", "error", err)
	}
}

func (s *AuthService) dispatchReauthFailure(identifier string) {
	err := s.store.Tx(func(tx *store.Store) error {
		return s.registry.Notify(hooks.ReauthFailed, tx, identifier)
	})
	if err != nil {
		utils.Sugar.Warnw("reauth failure handler error", "error", err)
	}
}

// --- built-in hook callbacks -------------------------------------------------

// lockoutGate stops the pipeline while an account sits inside the lockout
// window. It never authenticates anyone itself.
func (s *AuthService) lockoutGate(args ...interface{}) (interface{}, error) {
	tx := args[0].(*store.Store)
	identifier := args[1].(string)
	if !s.settings.Bool(KeyAuthRatelimitEnabled, true) {
		return nil, nil
	}
	limit := s.settings.Int(KeyAuthRequests, 3)
	window := time.Duration(s.settings.Int(KeyAuthTimeout, 15)) * time.Minute

	user, err := s.findByIdentifier(tx, identifier)
	if err != nil || user == nil {
		return nil, err
	}
	if user.LoginAttempts >= limit && user.LastFailedLogin != nil &&
		time.Since(*user.LastFailedLogin) < window {
		return nil, &apperr.StopAuthentication{Reason: "too many failed login attempts, try again later"}
	}
	return nil, nil
}

// passwordProvider checks the password against the stored bcrypt hash. An
// unknown identifier burns a dummy comparison so timing does not reveal which
// accounts exist.
func (s *AuthService) passwordProvider(args ...interface{}) (interface{}, error) {
	tx := args[0].(*store.Store)
	identifier := args[1].(string)
	secret := args[2].(string)

	user, err := s.findByIdentifier(tx, identifier)
	if err != nil {
		return nil, err
	}
	if user == nil {
		utils.DummyPasswordCheck(secret)
		return nil, nil
	}
	if !utils.CheckPassword(user.PasswordHash, secret) {
		return nil, nil
	}
	return user, nil
}

// markFailedLogin increments the attempt counter and stamps the failure time.
func (s *AuthService) markFailedLogin(args ...interface{}) (interface{}, error) {
	tx := args[0].(*store.Store)
	identifier := args[1].(string)
	user, err := s.findByIdentifier(tx, identifier)
	if err != nil || user == nil {
		return nil, err
	}
	now := time.Now().UTC()
	user.LoginAttempts++
	user.LastFailedLogin = &now
	return nil, tx.Save(user)
}

// requireActivated blocks login for accounts that never confirmed their email.
func (s *AuthService) requireActivated(args ...interface{}) (interface{}, error) {
	user := args[1].(*models.User)
	if !user.Activated {
		return nil, &apperr.StopAuthentication{Reason: "account is not activated"}
	}
	return nil, nil
}

// resetLoginTracking clears the lockout counters and stamps the visit.
func (s *AuthService) resetLoginTracking(args ...interface{}) (interface{}, error) {
	tx := args[0].(*store.Store)
	user := args[1].(*models.User)
	now := time.Now().UTC()
	user.LoginAttempts = 0
	user.LastFailedLogin = nil
	user.LastSeen = &now
	return nil, tx.Save(user)
}

// passwordReauth answers the reauth hook with a bool.
func (s *AuthService) passwordReauth(args ...interface{}) (interface{}, error) {
	user := args[1].(*models.User)
	secret := args[2].(string)
	if utils.CheckPassword(user.PasswordHash, secret) {
		return true, nil
	}
	return nil, nil
}
