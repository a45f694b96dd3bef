package services

import (
	"regexp"
	"strings"

	"github.com/forumkit/forumkit/apperr"
	"github.com/forumkit/forumkit/hooks"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/store"
	"github.com/forumkit/forumkit/tokens"
	"github.com/forumkit/forumkit/utils"
)

// UserRegistrationInfo carries everything a registration attempt provides.
type UserRegistrationInfo struct {
	Username string
	Password string
	Email    string
	Language string
	GroupID  uint
}

// RegistrationValidator checks one aspect of a registration attempt. It
// returns a *apperr.ValidationError to reject, nil to accept. Validators never
// write.
type RegistrationValidator func(tx *store.Store, info UserRegistrationInfo) *apperr.ValidationError

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// RegistrationService runs every validator, aggregates the failures and only
// creates the account when all of them pass. Plugins contribute extra
// validators through the gather hook and observe outcomes through the failure
// and post-process hooks.
type RegistrationService struct {
	store      *store.Store
	settings   *SettingsService
	registry   *hooks.Registry
	serializer *tokens.Serializer
	mailer     Mailer

	usernameMinLength int
	usernameMaxLength int
	usernameBlacklist []string
}

// NewRegistrationService wires the registration flow with the built-in
// username rules.
func NewRegistrationService(st *store.Store, settings *SettingsService, registry *hooks.Registry, serializer *tokens.Serializer, mailer Mailer) *RegistrationService {
	return &RegistrationService{
		store:             st,
		settings:          settings,
		registry:          registry,
		serializer:        serializer,
		mailer:            mailer,
		usernameMinLength: 3,
		usernameMaxLength: 30,
		usernameBlacklist: []string{"admin", "administrator", "moderator", "root", "webmaster"},
	}
}

// validators returns the built-in chain followed by plugin-contributed ones.
func (s *RegistrationService) validators() ([]RegistrationValidator, error) {
	chain := []RegistrationValidator{
		s.validateUsernameRequirements,
		s.validateUsernameUnique,
		s.validateEmailFormat,
		s.validateEmailUnique,
	}
	extra, err := s.registry.Collect(hooks.GatherRegistrationValidators)
	if err != nil {
		return nil, err
	}
	for _, it := range extra {
		if v, ok := it.(RegistrationValidator); ok {
			chain = append(chain, v)
		}
	}
	return chain, nil
}

// Register validates and creates an account. All validators run even after
// the first failure so the caller sees every problem at once. When account
// activation is required the activation token is mailed before the
// transaction commits; the user row is created deactivated.
func (s *RegistrationService) Register(info UserRegistrationInfo) (*models.User, error) {
	info.Username = strings.TrimSpace(info.Username)
	info.Email = strings.TrimSpace(info.Email)

	var created *models.User
	err := s.store.Tx(func(tx *store.Store) error {
		chain, err := s.validators()
		if err != nil {
			return err
		}
		var reasons []*apperr.ValidationError
		for _, validate := range chain {
			if ve := validate(tx, info); ve != nil {
				reasons = append(reasons, ve)
			}
		}
		if len(reasons) > 0 {
			stop := &apperr.StopValidation{Reasons: reasons}
			if err := s.registry.Notify(hooks.RegistrationFailureHandler, info, stop); err != nil {
				return err
			}
			return stop
		}

		hash, err := utils.HashPassword(info.Password)
		if err != nil {
			return err
		}
		groupID := info.GroupID
		if groupID == 0 {
			var member models.Group
			if err := tx.FindOneBy(&member, "name = ?", "Member"); err != nil {
				return err
			}
			groupID = member.ID
		}
		requireActivation := s.settings.Bool(KeyActivateAccount, true)
		user := &models.User{
			Username:       info.Username,
			Email:          info.Email,
			PasswordHash:   hash,
			Language:       info.Language,
			PrimaryGroupID: groupID,
			Activated:      !requireActivation,
		}
		if err := tx.Add(user); err != nil {
			return err
		}
		if requireActivation {
			token, err := s.serializer.Dumps(tokens.Token{UserID: user.ID, Operation: tokens.OpActivateAccount})
			if err != nil {
				return err
			}
			if err := s.mailer.SendActivationToken(user.Email, user.Username, token); err != nil {
				return err
			}
		}
		if err := s.registry.Notify(hooks.RegistrationPostProcessor, tx, user); err != nil {
			return err
		}
		created = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// --- built-in validators -----------------------------------------------------

func (s *RegistrationService) validateUsernameRequirements(tx *store.Store, info UserRegistrationInfo) *apperr.ValidationError {
	name := models.NormalizeIdentifier(info.Username)
	if len(name) < s.usernameMinLength || len(name) > s.usernameMaxLength {
		return apperr.NewValidationError("username", "username length is out of bounds")
	}
	if !usernameRe.MatchString(info.Username) {
		return apperr.NewValidationError("username", "username may only contain letters, numbers and underscores")
	}
	for _, banned := range s.usernameBlacklist {
		if name == banned {
			return apperr.NewValidationError("username", "this username is not allowed")
		}
	}
	return nil
}

func (s *RegistrationService) validateUsernameUnique(tx *store.Store, info UserRegistrationInfo) *apperr.ValidationError {
	var count int64
	name := models.NormalizeIdentifier(info.Username)
	if err := tx.DB().Model(&models.User{}).
		Where("lower(username) = ?", name).Count(&count).Error; err != nil {
		return apperr.NewValidationError("username", "could not verify username")
	}
	if count > 0 {
		return apperr.NewValidationError("username", "this username is already taken")
	}
	return nil
}

func (s *RegistrationService) validateEmailFormat(tx *store.Store, info UserRegistrationInfo) *apperr.ValidationError {
	if !emailRe.MatchString(info.Email) {
		return apperr.NewValidationError("email", "invalid email address")
	}
	return nil
}

func (s *RegistrationService) validateEmailUnique(tx *store.Store, info UserRegistrationInfo) *apperr.ValidationError {
	var count int64
	email := models.NormalizeIdentifier(info.Email)
	if err := tx.DB().Model(&models.User{}).
		Where("lower(email) = ?", email).Count(&count).Error; err != nil {
		return apperr.NewValidationError("email", "could not verify email")
	}
	if count > 0 {
		return apperr.NewValidationError("email", "an account with this email already exists")
	}
	return nil
}
