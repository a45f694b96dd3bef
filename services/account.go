package services

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/forumkit/forumkit/apperr"
	"github.com/forumkit/forumkit/hooks"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/store"
	"github.com/forumkit/forumkit/tokens"
	"github.com/forumkit/forumkit/utils"
)

// EmailChange is the change set for the email update flow.
type EmailChange struct {
	OldEmail string
	NewEmail string
}

// PasswordChange is the change set for the password update flow.
type PasswordChange struct {
	OldPassword string
	NewPassword string
}

// DetailsChange is the change set for the profile details update flow. Nil
// pointers leave the field untouched.
type DetailsChange struct {
	Birthday  *time.Time
	Location  *string
	Website   *string
	AvatarURL *string
	Signature *string
}

// UserSettingsChange is the change set for a user's own preferences.
type UserSettingsChange struct {
	Language string
}

// AccountService owns the account lifecycle outside login: activation,
// password reset, and the validated update flows for email, password, details
// and per-user settings. Each update flow runs its full validator chain and
// aggregates the failures before anything is written.
type AccountService struct {
	store      *store.Store
	settings   *SettingsService
	registry   *hooks.Registry
	serializer *tokens.Serializer
	mailer     Mailer

	client *http.Client
}

// NewAccountService wires the account lifecycle service.
func NewAccountService(st *store.Store, settings *SettingsService, registry *hooks.Registry, serializer *tokens.Serializer, mailer Mailer) *AccountService {
	return &AccountService{
		store:      st,
		settings:   settings,
		registry:   registry,
		serializer: serializer,
		mailer:     mailer,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *AccountService) findByEmail(tx *store.Store, email string) (*models.User, error) {
	var user models.User
	err := tx.FindOneBy(&user, "lower(email) = ?", models.NormalizeIdentifier(email))
	if err == apperr.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// --- activation --------------------------------------------------------------

// InitiateActivation mails a fresh activation token. Unknown or already
// activated accounts are rejected.
func (s *AccountService) InitiateActivation(email string) error {
	user, err := s.findByEmail(s.store, email)
	if err != nil {
		return err
	}
	if user == nil {
		return apperr.NewValidationError("email", "no account with this email exists")
	}
	if user.Activated {
		return apperr.NewValidationError("email", "account is already activated")
	}
	token, err := s.serializer.Dumps(tokens.Token{UserID: user.ID, Operation: tokens.OpActivateAccount})
	if err != nil {
		return err
	}
	return s.mailer.SendActivationToken(user.Email, user.Username, token)
}

// Activate consumes an activation token and flips the account active.
func (s *AccountService) Activate(rawToken string) (*models.User, error) {
	token, err := s.serializer.Loads(rawToken)
	if err != nil {
		return nil, err
	}
	if token.Operation != tokens.OpActivateAccount {
		return nil, &apperr.TokenError{Kind: apperr.TokenInvalid}
	}
	var user models.User
	err = s.store.Tx(func(tx *store.Store) error {
		if err := tx.Get(&user, token.UserID); err != nil {
			return err
		}
		if user.Activated {
			return apperr.NewValidationError("activated", "account is already activated")
		}
		user.Activated = true
		return tx.Save(&user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// --- password reset ----------------------------------------------------------

// InitiateReset mails a password reset token.
func (s *AccountService) InitiateReset(email string) error {
	user, err := s.findByEmail(s.store, email)
	if err != nil {
		return err
	}
	if user == nil {
		return apperr.NewValidationError("email", "no account with this email exists")
	}
	token, err := s.serializer.Dumps(tokens.Token{UserID: user.ID, Operation: tokens.OpResetPassword})
	if err != nil {
		return err
	}
	return s.mailer.SendResetToken(user.Email, user.Username, token)
}

// Reset consumes a reset token and sets a new password. The email supplied in
// the form must belong to the token's account; the check defeats tokens that
// leaked without their context.
func (s *AccountService) Reset(rawToken, email, newPassword string) (*models.User, error) {
	token, err := s.serializer.Loads(rawToken)
	if err != nil {
		return nil, err
	}
	if token.Operation != tokens.OpResetPassword {
		return nil, &apperr.TokenError{Kind: apperr.TokenInvalid}
	}
	var user models.User
	err = s.store.Tx(func(tx *store.Store) error {
		if err := tx.Get(&user, token.UserID); err != nil {
			return err
		}
		if models.NormalizeIdentifier(user.Email) != models.NormalizeIdentifier(email) {
			return &apperr.StopValidation{Reasons: []*apperr.ValidationError{
				apperr.NewValidationError("email", "wrong email"),
			}}
		}
		hash, err := utils.HashPassword(newPassword)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
		user.LoginAttempts = 0
		user.LastFailedLogin = nil
		return tx.Save(&user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// --- update flows ------------------------------------------------------------

// UpdateEmail validates and applies an email change, then notifies the email
// updated hook.
func (s *AccountService) UpdateEmail(user *models.User, change EmailChange) error {
	err := s.store.Tx(func(tx *store.Store) error {
		var reasons []*apperr.ValidationError
		if models.NormalizeIdentifier(change.OldEmail) != models.NormalizeIdentifier(user.Email) {
			reasons = append(reasons, apperr.NewValidationError("old_email", "old email does not match"))
		}
		if models.NormalizeIdentifier(change.OldEmail) == models.NormalizeIdentifier(change.NewEmail) {
			reasons = append(reasons, apperr.NewValidationError("new_email", "new email must differ from the old one"))
		}
		var count int64
		if err := tx.DB().Model(&models.User{}).
			Where("lower(email) = ? AND id <> ?", models.NormalizeIdentifier(change.NewEmail), user.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			reasons = append(reasons, apperr.NewValidationError("new_email", "an account with this email already exists"))
		}
		if err := s.collectValidationErrors(hooks.GatherEmailValidators, &reasons, tx, user, change); err != nil {
			return err
		}
		if len(reasons) > 0 {
			return &apperr.StopValidation{Reasons: reasons}
		}
		user.Email = change.NewEmail
		return tx.Save(user)
	})
	if err != nil {
		return err
	}
	return s.registry.Notify(hooks.EmailUpdated, user)
}

// UpdatePassword validates and applies a password change.
func (s *AccountService) UpdatePassword(user *models.User, change PasswordChange) error {
	err := s.store.Tx(func(tx *store.Store) error {
		var reasons []*apperr.ValidationError
		if !utils.CheckPassword(user.PasswordHash, change.OldPassword) {
			reasons = append(reasons, apperr.NewValidationError("old_password", "old password is wrong"))
		}
		if change.OldPassword == change.NewPassword {
			reasons = append(reasons, apperr.NewValidationError("new_password", "new password must differ from the old one"))
		}
		if len(change.NewPassword) < 6 {
			reasons = append(reasons, apperr.NewValidationError("new_password", "password must be at least 6 characters"))
		}
		if err := s.collectValidationErrors(hooks.GatherPasswordValidators, &reasons, tx, user, change); err != nil {
			return err
		}
		if len(reasons) > 0 {
			return &apperr.StopValidation{Reasons: reasons}
		}
		hash, err := utils.HashPassword(change.NewPassword)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
		return tx.Save(user)
	})
	if err != nil {
		return err
	}
	return s.registry.Notify(hooks.PasswordUpdated, user)
}

// UpdateDetails validates and applies a profile details change. The avatar URL
// is fetched and checked against the configured type, size and dimension
// limits before it is accepted.
func (s *AccountService) UpdateDetails(user *models.User, change DetailsChange) error {
	err := s.store.Tx(func(tx *store.Store) error {
		var reasons []*apperr.ValidationError
		if change.AvatarURL != nil && *change.AvatarURL != "" {
			if ve := s.validateAvatarURL(*change.AvatarURL); ve != nil {
				reasons = append(reasons, ve)
			}
		}
		if err := s.collectValidationErrors(hooks.GatherDetailsValidators, &reasons, tx, user, change); err != nil {
			return err
		}
		if len(reasons) > 0 {
			return &apperr.StopValidation{Reasons: reasons}
		}
		if change.Birthday != nil {
			user.Birthday = change.Birthday
		}
		if change.Location != nil {
			user.Location = *change.Location
		}
		if change.Website != nil {
			user.Website = *change.Website
		}
		if change.AvatarURL != nil {
			user.AvatarURL = *change.AvatarURL
		}
		if change.Signature != nil {
			user.Signature = utils.Sanitize(*change.Signature)
		}
		return tx.Save(user)
	})
	if err != nil {
		return err
	}
	return s.registry.Notify(hooks.DetailsUpdated, user)
}

// UpdateUserSettings applies a user's own preference change and notifies the
// settings updated hook.
func (s *AccountService) UpdateUserSettings(user *models.User, change UserSettingsChange) error {
	err := s.store.Tx(func(tx *store.Store) error {
		user.Language = change.Language
		return tx.Save(user)
	})
	if err != nil {
		return err
	}
	return s.registry.Notify(hooks.SettingsUpdated, user)
}

// collectValidationErrors runs a gather hook and folds returned validation
// errors into the accumulator.
func (s *AccountService) collectValidationErrors(hook string, reasons *[]*apperr.ValidationError, args ...interface{}) error {
	results, err := s.registry.Collect(hook, args...)
	if err != nil {
		return err
	}
	for _, res := range results {
		switch v := res.(type) {
		case *apperr.ValidationError:
			*reasons = append(*reasons, v)
		case []*apperr.ValidationError:
			*reasons = append(*reasons, v...)
		}
	}
	return nil
}

// validateAvatarURL downloads the image head and rejects wrong content types,
// oversized files and oversized dimensions.
func (s *AccountService) validateAvatarURL(url string) *apperr.ValidationError {
	resp, err := s.client.Get(url)
	if err != nil {
		return apperr.NewValidationError("avatar", "avatar could not be fetched")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apperr.NewValidationError("avatar", "avatar could not be fetched")
	}

	allowed := s.settings.Strings(KeyAvatarTypes)
	contentType := resp.Header.Get("Content-Type")
	typeOK := len(allowed) == 0
	for _, t := range allowed {
		if t == contentType {
			typeOK = true
			break
		}
	}
	if !typeOK {
		return apperr.NewValidationError("avatar", fmt.Sprintf("avatar type %s is not allowed", contentType))
	}

	maxBytes := int64(s.settings.Int(KeyAvatarSize, 200)) * 1024
	if resp.ContentLength > 0 && resp.ContentLength > maxBytes {
		return apperr.NewValidationError("avatar", "avatar file is too large")
	}

	cfg, _, err := image.DecodeConfig(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return apperr.NewValidationError("avatar", "avatar is not a readable image")
	}
	maxW := s.settings.Int(KeyAvatarWidth, 200)
	maxH := s.settings.Int(KeyAvatarHeight, 200)
	if cfg.Width > maxW || cfg.Height > maxH {
		return apperr.NewValidationError("avatar", fmt.Sprintf("avatar must be at most %dx%d pixels", maxW, maxH))
	}
	return nil
}
