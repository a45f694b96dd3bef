package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/forumkit/forumkit/config"
	"github.com/forumkit/forumkit/middleware"
	"github.com/forumkit/forumkit/services"
	"github.com/forumkit/forumkit/utils"
)

// AuthController exposes the account lifecycle over HTTP: registration,
// login/logout, activation, password reset and the profile update flows.
type AuthController struct {
	auth     *services.AuthService
	register *services.RegistrationService
	account  *services.AccountService
}

// NewAuthController wires the auth endpoints.
func NewAuthController(auth *services.AuthService, register *services.RegistrationService, account *services.AccountService) *AuthController {
	return &AuthController{auth: auth, register: register, account: account}
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	Language string `json:"language"`
}

// Register creates an account. The response never includes a session token
// when activation is still pending.
func (a *AuthController) Register(ctx *gin.Context) {
	var req registerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	user, err := a.register.Register(services.UserRegistrationInfo{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Language: req.Language,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	resp := gin.H{"user": user}
	if user.Activated {
		token, err := a.issueSession(user.ID, user.Username)
		if err != nil {
			writeError(ctx, err)
			return
		}
		resp["token"] = token
	}
	utils.Success(ctx, resp)
}

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login runs the authentication pipeline and issues a session token.
func (a *AuthController) Login(ctx *gin.Context) {
	var req loginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	user, err := a.auth.Login(req.Login, req.Password)
	if err != nil {
		writeError(ctx, err)
		return
	}
	token, err := a.issueSession(user.ID, user.Username)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"token": token, "user": user})
}

// Logout revokes the current session token.
func (a *AuthController) Logout(ctx *gin.Context) {
	if v, ok := ctx.Get(middleware.ContextTokenKey); ok {
		if token, ok := v.(string); ok && token != "" {
			ttl := time.Duration(config.Get().SessionTokenHours) * time.Hour
			utils.BlacklistToken(token, time.Now().Add(ttl))
		}
	}
	utils.Success(ctx, gin.H{"logged_out": true})
}

type reauthRequest struct {
	Password string `json:"password" binding:"required"`
}

// Reauth re-checks the password of the current session.
func (a *AuthController) Reauth(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	var req reauthRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	if err := a.auth.Reauth(user, req.Password); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"reauthenticated": true})
}

// Me returns the current account.
func (a *AuthController) Me(ctx *gin.Context) {
	utils.Success(ctx, middleware.CurrentUser(ctx))
}

type emailOnlyRequest struct {
	Email string `json:"email" binding:"required"`
}

// InitiateActivation mails a fresh activation token.
func (a *AuthController) InitiateActivation(ctx *gin.Context) {
	var req emailOnlyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	if err := a.account.InitiateActivation(req.Email); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"sent": true})
}

// Activate consumes the activation token from the path.
func (a *AuthController) Activate(ctx *gin.Context) {
	user, err := a.account.Activate(ctx.Param("token"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}

// ForgotPassword mails a reset token.
func (a *AuthController) ForgotPassword(ctx *gin.Context) {
	var req emailOnlyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	if err := a.account.InitiateReset(req.Email); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"sent": true})
}

type resetPasswordRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

// ResetPassword consumes a reset token and sets the new password.
func (a *AuthController) ResetPassword(ctx *gin.Context) {
	var req resetPasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	user, err := a.account.Reset(ctx.Param("token"), req.Email, req.Password)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}

type updateEmailRequest struct {
	OldEmail string `json:"old_email" binding:"required"`
	NewEmail string `json:"new_email" binding:"required"`
}

// UpdateEmail runs the validated email change flow.
func (a *AuthController) UpdateEmail(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	var req updateEmailRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	err := a.account.UpdateEmail(user, services.EmailChange{OldEmail: req.OldEmail, NewEmail: req.NewEmail})
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}

type updatePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// UpdatePassword runs the validated password change flow.
func (a *AuthController) UpdatePassword(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	var req updatePasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	err := a.account.UpdatePassword(user, services.PasswordChange{OldPassword: req.OldPassword, NewPassword: req.NewPassword})
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"updated": true})
}

type updateDetailsRequest struct {
	Birthday  *time.Time `json:"birthday"`
	Location  *string    `json:"location"`
	Website   *string    `json:"website"`
	AvatarURL *string    `json:"avatar_url"`
	Signature *string    `json:"signature"`
}

// UpdateDetails runs the validated profile details change flow.
func (a *AuthController) UpdateDetails(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	var req updateDetailsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	err := a.account.UpdateDetails(user, services.DetailsChange{
		Birthday:  req.Birthday,
		Location:  req.Location,
		Website:   req.Website,
		AvatarURL: req.AvatarURL,
		Signature: req.Signature,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}

type updateUserSettingsRequest struct {
	Language string `json:"language" binding:"required"`
}

// UpdateSettings applies the user's own preference change.
func (a *AuthController) UpdateSettings(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	var req updateUserSettingsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	if err := a.account.UpdateUserSettings(user, services.UserSettingsChange{Language: req.Language}); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}

func (a *AuthController) issueSession(userID uint, username string) (string, error) {
	ttl := time.Duration(config.Get().SessionTokenHours) * time.Hour
	return utils.GenerateSessionToken(userID, username, ttl)
}
