package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/permissions"
	"github.com/forumkit/forumkit/store"
	"github.com/forumkit/forumkit/utils"
)

const (
	// ContextUserKey stores the loaded *models.User in Gin context.
	ContextUserKey = "current_user"
	// ContextTokenKey stores the raw bearer token for logout.
	ContextTokenKey = "session_token"
)

// CurrentUser returns the user loaded by the auth middleware, nil for guests.
func CurrentUser(ctx *gin.Context) *models.User {
	if v, ok := ctx.Get(ContextUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

func bearerToken(ctx *gin.Context) string {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// loadSessionUser resolves a bearer token to a user with groups preloaded.
// Returns nil without error when the token is absent or invalid.
func loadSessionUser(st *store.Store, ctx *gin.Context) (*models.User, string) {
	token := bearerToken(ctx)
	if token == "" || utils.IsTokenBlacklisted(token) {
		return nil, ""
	}
	claims, err := utils.ParseSessionToken(token)
	if err != nil {
		return nil, ""
	}
	var user models.User
	err = st.DB().Preload("PrimaryGroup").Preload("SecondaryGroups").
		First(&user, claims.UserID).Error
	if err != nil {
		return nil, ""
	}
	return &user, token
}

// Session loads the current user when a valid bearer token is present and
// lets the request through either way. Guests see guest-visible handlers.
func Session(st *store.Store) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user, token := loadSessionUser(st, ctx)
		if user != nil {
			if bannedForceLogout(ctx, user, token) {
				return
			}
			ctx.Set(ContextUserKey, user)
			ctx.Set(ContextTokenKey, token)
			utils.MarkOnline(user.ID)
		}
		ctx.Next()
	}
}

// AuthRequired rejects requests without a valid, non-revoked session.
func AuthRequired(st *store.Store) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user, token := loadSessionUser(st, ctx)
		if user == nil {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "authentication required")
			ctx.Abort()
			return
		}
		if bannedForceLogout(ctx, user, token) {
			return
		}
		ctx.Set(ContextUserKey, user)
		ctx.Set(ContextTokenKey, token)
		utils.MarkOnline(user.ID)
		ctx.Next()
	}
}

// AdminRequired rejects non-admin sessions. Must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user := CurrentUser(ctx)
		if user == nil || !permissions.IsAdmin(user) {
			utils.Error(ctx, http.StatusForbidden, 40301, "admin access required")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// bannedForceLogout revokes the session of a user who was banned between
// requests and rejects the call.
func bannedForceLogout(ctx *gin.Context, user *models.User, token string) bool {
	if !permissions.For(user).Banned {
		return false
	}
	utils.BlacklistToken(token, time.Now().Add(72*time.Hour))
	utils.Error(ctx, http.StatusForbidden, 40302, "account banned, session revoked")
	ctx.Abort()
	return true
}
