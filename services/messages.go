package services

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forumkit/forumkit/apperr"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/store"
	"github.com/forumkit/forumkit/utils"
)

// MessageService handles private conversations. Every exchange exists as two
// copies, one per participant, linked by a shared id; trashing or deleting one
// copy never touches the other mailbox.
type MessageService struct {
	store *store.Store
}

// NewMessageService wires the private message service.
func NewMessageService(st *store.Store) *MessageService {
	return &MessageService{store: st}
}

// Start opens a conversation between two users and delivers the first
// message into both mailboxes. The sender's copy starts read, the
// recipient's unread.
func (s *MessageService) Start(from, to *models.User, subject, message string) (*models.Conversation, error) {
	subject = strings.TrimSpace(subject)
	message = strings.TrimSpace(message)
	if subject == "" {
		return nil, apperr.NewValidationError("subject", "subject must not be empty")
	}
	if message == "" {
		return nil, apperr.NewValidationError("message", "message must not be empty")
	}
	if from.ID == to.ID {
		return nil, apperr.NewValidationError("to_user", "cannot message yourself")
	}

	var senderCopy *models.Conversation
	err := s.store.Tx(func(tx *store.Store) error {
		now := time.Now().UTC()
		shared := uuid.NewString()
		body := utils.Sanitize(message)

		mine := &models.Conversation{
			SharedID:    shared,
			UserID:      from.ID,
			FromUserID:  &from.ID,
			ToUserID:    &to.ID,
			Subject:     subject,
			Unread:      false,
			DateCreated: now,
		}
		theirs := &models.Conversation{
			SharedID:    shared,
			UserID:      to.ID,
			FromUserID:  &from.ID,
			ToUserID:    &to.ID,
			Subject:     subject,
			Unread:      true,
			DateCreated: now,
		}
		for _, c := range []*models.Conversation{mine, theirs} {
			if err := tx.Add(c); err != nil {
				return err
			}
			msg := &models.Message{
				ConversationID: c.ID,
				UserID:         &from.ID,
				Message:        body,
				DateCreated:    now,
			}
			if err := tx.Add(msg); err != nil {
				return err
			}
		}
		senderCopy = mine
		return nil
	})
	if err != nil {
		return nil, err
	}
	return senderCopy, nil
}

// Reply appends a message to every copy of the conversation and marks the
// other participants' copies unread.
func (s *MessageService) Reply(sender *models.User, conversationID uint, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return apperr.NewValidationError("message", "message must not be empty")
	}
	return s.store.Tx(func(tx *store.Store) error {
		var mine models.Conversation
		if err := tx.Get(&mine, conversationID); err != nil {
			return err
		}
		if mine.UserID != sender.ID {
			return apperr.ErrForbidden
		}
		var copies []models.Conversation
		if err := tx.FindBy(&copies, "shared_id = ?", mine.SharedID); err != nil {
			return err
		}
		now := time.Now().UTC()
		body := utils.Sanitize(message)
		for i := range copies {
			msg := &models.Message{
				ConversationID: copies[i].ID,
				UserID:         &sender.ID,
				Message:        body,
				DateCreated:    now,
			}
			if err := tx.Add(msg); err != nil {
				return err
			}
			if copies[i].UserID != sender.ID {
				copies[i].Unread = true
				copies[i].Trash = false
				if err := tx.Save(&copies[i]); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// MarkRead clears the unread flag on the user's copy.
func (s *MessageService) MarkRead(user *models.User, conversationID uint) error {
	return s.store.Tx(func(tx *store.Store) error {
		var c models.Conversation
		if err := tx.Get(&c, conversationID); err != nil {
			return err
		}
		if c.UserID != user.ID {
			return apperr.ErrForbidden
		}
		c.Unread = false
		return tx.Save(&c)
	})
}

// MoveToTrash flags the user's copy as trashed without touching the sibling.
func (s *MessageService) MoveToTrash(user *models.User, conversationID uint) error {
	return s.setTrash(user, conversationID, true)
}

// Restore clears the trash flag on the user's copy.
func (s *MessageService) Restore(user *models.User, conversationID uint) error {
	return s.setTrash(user, conversationID, false)
}

func (s *MessageService) setTrash(user *models.User, conversationID uint, trash bool) error {
	return s.store.Tx(func(tx *store.Store) error {
		var c models.Conversation
		if err := tx.Get(&c, conversationID); err != nil {
			return err
		}
		if c.UserID != user.ID {
			return apperr.ErrForbidden
		}
		c.Trash = trash
		return tx.Save(&c)
	})
}

// Delete removes the user's copy and its messages permanently.
func (s *MessageService) Delete(user *models.User, conversationID uint) error {
	return s.store.Tx(func(tx *store.Store) error {
		var c models.Conversation
		if err := tx.Get(&c, conversationID); err != nil {
			return err
		}
		if c.UserID != user.ID {
			return apperr.ErrForbidden
		}
		if err := tx.DB().Where("conversation_id = ?", c.ID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&c)
	})
}

// List returns the user's inbox or trash, newest first.
func (s *MessageService) List(user *models.User, trash bool) ([]models.Conversation, error) {
	var out []models.Conversation
	err := s.store.DB().
		Preload("Messages").
		Where("user_id = ? AND trash = ? AND draft = ?", user.ID, trash, false).
		Order("date_created DESC").
		Find(&out).Error
	if err != nil {
		return nil, &apperr.PersistenceError{Message: "conversation list failed", Err: err}
	}
	return out, nil
}

// UnreadCount returns how many unread conversation copies the user has.
func (s *MessageService) UnreadCount(user *models.User) (int64, error) {
	var n int64
	err := s.store.DB().Model(&models.Conversation{}).
		Where("user_id = ? AND unread = ? AND trash = ?", user.ID, true, false).
		Count(&n).Error
	if err != nil {
		return 0, &apperr.PersistenceError{Message: "unread count failed", Err: err}
	}
	return n, nil
}
