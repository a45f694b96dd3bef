package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/forumkit/forumkit/apperr"
	"github.com/forumkit/forumkit/utils"
)

// writeError maps domain errors onto the uniform JSON envelope. Anything not
// in the taxonomy is a 500 without detail leakage.
func writeError(ctx *gin.Context, err error) {
	var sv *apperr.StopValidation
	if errors.As(err, &sv) {
		utils.Respond(ctx, http.StatusUnprocessableEntity, 42200, "validation failed", gin.H{"reasons": sv.Reasons})
		return
	}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		utils.Respond(ctx, http.StatusUnprocessableEntity, 42201, "validation failed", gin.H{"reasons": []*apperr.ValidationError{ve}})
		return
	}
	var sa *apperr.StopAuthentication
	if errors.As(err, &sa) {
		utils.Error(ctx, http.StatusUnauthorized, 40110, sa.Reason)
		return
	}
	var te *apperr.TokenError
	if errors.As(err, &te) {
		utils.Error(ctx, http.StatusBadRequest, 40010, te.Error())
		return
	}
	var fl *apperr.ForceLogout
	if errors.As(err, &fl) {
		utils.Error(ctx, http.StatusForbidden, 40310, fl.Reason)
		return
	}
	if errors.Is(err, apperr.ErrNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40400, "not found")
		return
	}
	if errors.Is(err, apperr.ErrForbidden) {
		utils.Error(ctx, http.StatusForbidden, 40300, "forbidden")
		return
	}
	utils.Sugar.Errorw("request failed", "path", ctx.FullPath(), "error", err)
	utils.Error(ctx, http.StatusInternalServerError, 50000, "internal error")
}

// uintParam parses a numeric path parameter.
func uintParam(ctx *gin.Context, name string) (uint, bool) {
	raw := strings.TrimSpace(ctx.Param(name))
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || n == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid "+name)
		return 0, false
	}
	return uint(n), true
}
