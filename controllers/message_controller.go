package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/forumkit/forumkit/apperr"
	"github.com/forumkit/forumkit/middleware"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/services"
	"github.com/forumkit/forumkit/store"
	"github.com/forumkit/forumkit/utils"
)

// MessageController exposes private conversations. Every endpoint requires a
// session; guests have no mailbox.
type MessageController struct {
	store    *store.Store
	messages *services.MessageService
}

// NewMessageController wires the message endpoints.
func NewMessageController(st *store.Store, messages *services.MessageService) *MessageController {
	return &MessageController{store: st, messages: messages}
}

type startConversationRequest struct {
	ToUsername string `json:"to_username" binding:"required"`
	Subject    string `json:"subject" binding:"required"`
	Message    string `json:"message" binding:"required"`
}

// Start opens a conversation with another user.
func (m *MessageController) Start(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	var req startConversationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	var to models.User
	err := m.store.FindOneBy(&to, "lower(username) = ?", models.NormalizeIdentifier(req.ToUsername))
	if err == apperr.ErrNotFound {
		writeError(ctx, apperr.NewValidationError("to_username", "no such user"))
		return
	}
	if err != nil {
		writeError(ctx, err)
		return
	}
	conversation, err := m.messages.Start(user, &to, req.Subject, req.Message)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"conversation": conversation})
}

type replyRequest struct {
	Message string `json:"message" binding:"required"`
}

// Reply appends a message to a conversation the user participates in.
func (m *MessageController) Reply(ctx *gin.Context) {
	conversationID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	var req replyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	if err := m.messages.Reply(user, conversationID, req.Message); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"sent": true})
}

// List returns the inbox, or the trash with ?trash=1.
func (m *MessageController) List(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	trash, _ := strconv.ParseBool(ctx.Query("trash"))
	conversations, err := m.messages.List(user, trash)
	if err != nil {
		writeError(ctx, err)
		return
	}
	unread, err := m.messages.UnreadCount(user)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"conversations": conversations, "unread": unread})
}

// MarkRead clears the unread flag on the user's copy.
func (m *MessageController) MarkRead(ctx *gin.Context) {
	conversationID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	if err := m.messages.MarkRead(middleware.CurrentUser(ctx), conversationID); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"read": true})
}

// Trash moves the user's copy to the trash.
func (m *MessageController) Trash(ctx *gin.Context) {
	conversationID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	if err := m.messages.MoveToTrash(middleware.CurrentUser(ctx), conversationID); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"trashed": true})
}

// Restore pulls the user's copy back out of the trash.
func (m *MessageController) Restore(ctx *gin.Context) {
	conversationID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	if err := m.messages.Restore(middleware.CurrentUser(ctx), conversationID); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"restored": true})
}

// Delete removes the user's copy permanently.
func (m *MessageController) Delete(ctx *gin.Context) {
	conversationID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	if err := m.messages.Delete(middleware.CurrentUser(ctx), conversationID); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"deleted": true})
}
