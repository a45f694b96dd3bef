package services

import (
	"time"

	"github.com/forumkit/forumkit/apperr"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/store"
)

// TrackerService answers "is this unread for this user" and records read
// marks. Everything outside the tracker window counts as read, guests track
// nothing, and marking the last unread topic in a forum upgrades the per-topic
// rows into a single forum-level mark.
type TrackerService struct {
	store    *store.Store
	settings *SettingsService
}

// NewTrackerService wires the unread tracker.
func NewTrackerService(st *store.Store, settings *SettingsService) *TrackerService {
	return &TrackerService{store: st, settings: settings}
}

// window returns the tracker cutoff. ok is false when tracking is disabled.
func (s *TrackerService) window() (time.Time, bool) {
	days := s.settings.Int(KeyTrackerLength, 7)
	if days <= 0 {
		return time.Time{}, false
	}
	return time.Now().UTC().AddDate(0, 0, -days), true
}

// TopicIsUnread reports whether the topic holds posts the user has not seen.
// Guests, disabled tracking and topics older than the window all read as read.
func (s *TrackerService) TopicIsUnread(user *models.User, topic *models.Topic) (bool, error) {
	if user == nil || topic.Hidden {
		return false, nil
	}
	cutoff, ok := s.window()
	if !ok {
		return false, nil
	}
	if topic.LastUpdated.Before(cutoff) {
		return false, nil
	}

	var fr models.ForumRead
	err := s.store.FindOneBy(&fr, "user_id = ? AND forum_id = ?", user.ID, topic.ForumID)
	if err != nil && err != apperr.ErrNotFound {
		return false, err
	}
	if err == nil && fr.Cleared != nil && !fr.Cleared.Before(topic.LastUpdated) {
		return false, nil
	}

	var tr models.TopicRead
	err = s.store.FindOneBy(&tr, "user_id = ? AND topic_id = ?", user.ID, topic.ID)
	if err == apperr.ErrNotFound {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return tr.LastRead.Before(topic.LastUpdated), nil
}

// ForumIsUnread reports whether the forum holds topic activity inside the
// window that the user has not seen.
func (s *TrackerService) ForumIsUnread(user *models.User, forum *models.Forum) (bool, error) {
	if user == nil {
		return false, nil
	}
	cutoff, ok := s.window()
	if !ok {
		return false, nil
	}
	if forum.LastPostCreated == nil || forum.LastPostCreated.Before(cutoff) {
		return false, nil
	}

	var fr models.ForumRead
	err := s.store.FindOneBy(&fr, "user_id = ? AND forum_id = ?", user.ID, forum.ID)
	if err == apperr.ErrNotFound {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if fr.Cleared != nil && !fr.Cleared.Before(*forum.LastPostCreated) {
		return false, nil
	}
	if !fr.LastRead.Before(*forum.LastPostCreated) {
		return false, nil
	}
	// The forum-level mark is stale; unread only if some tracked topic really
	// is newer than its per-topic mark.
	n, err := s.unreadTopicCount(s.store, user, forum.ID, cutoff, fr.Cleared)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// unreadTopicCount counts non-hidden topics inside the window whose newest
// post the user has not read, in one aggregate query.
func (s *TrackerService) unreadTopicCount(st *store.Store, user *models.User, forumID uint, cutoff time.Time, cleared *time.Time) (int64, error) {
	q := st.DB().Model(&models.Topic{}).
		Joins("LEFT JOIN topic_reads ON topic_reads.topic_id = topics.id AND topic_reads.user_id = ?", user.ID).
		Where("topics.forum_id = ? AND topics.hidden = ?", forumID, false).
		Where("topics.last_updated >= ?", cutoff).
		Where("topic_reads.last_read IS NULL OR topic_reads.last_read < topics.last_updated")
	if cleared != nil {
		q = q.Where("topics.last_updated > ?", *cleared)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// UpdateRead records that the user has read the topic now. When that was the
// forum's last unread topic the per-forum mark is refreshed as well, so forum
// listings need no per-topic scan. Already-read topics are a no-op.
func (s *TrackerService) UpdateRead(user *models.User, topic *models.Topic) error {
	unread, err := s.TopicIsUnread(user, topic)
	if err != nil || !unread {
		return err
	}
	cutoff, ok := s.window()
	if !ok {
		return nil
	}
	return s.store.Tx(func(tx *store.Store) error {
		now := time.Now().UTC()
		var tr models.TopicRead
		err := tx.FindOneBy(&tr, "user_id = ? AND topic_id = ?", user.ID, topic.ID)
		switch err {
		case nil:
			tr.LastRead = now
			if err := tx.Save(&tr); err != nil {
				return err
			}
		case apperr.ErrNotFound:
			tr = models.TopicRead{UserID: user.ID, TopicID: topic.ID, LastRead: now}
			if err := tx.Add(&tr); err != nil {
				return err
			}
		default:
			return err
		}

		var fr models.ForumRead
		var cleared *time.Time
		err = tx.FindOneBy(&fr, "user_id = ? AND forum_id = ?", user.ID, topic.ForumID)
		haveForumRead := err == nil
		if err != nil && err != apperr.ErrNotFound {
			return err
		}
		if haveForumRead {
			cleared = fr.Cleared
		}

		left, err := s.unreadTopicCount(tx, user, topic.ForumID, cutoff, cleared)
		if err != nil {
			return err
		}
		if left > 0 {
			return nil
		}
		if haveForumRead {
			fr.LastRead = now
			return tx.Save(&fr)
		}
		fr = models.ForumRead{UserID: user.ID, ForumID: topic.ForumID, LastRead: now}
		return tx.Add(&fr)
	})
}

// TrackTopic subscribes the user to the topic. Tracking an already tracked
// topic is a no-op.
func (s *TrackerService) TrackTopic(user *models.User, topicID uint) error {
	return s.store.Tx(func(tx *store.Store) error {
		var topic models.Topic
		if err := tx.Get(&topic, topicID); err != nil {
			return err
		}
		var n int64
		err := tx.DB().Table("topic_trackers").
			Where("user_id = ? AND topic_id = ?", user.ID, topic.ID).
			Count(&n).Error
		if err != nil {
			return &apperr.PersistenceError{Message: "track lookup failed", Err: err}
		}
		if n > 0 {
			return nil
		}
		if err := tx.DB().Model(user).Association("TrackedTopics").Append(&topic); err != nil {
			return &apperr.PersistenceError{Message: "track failed", Err: err}
		}
		return nil
	})
}

// UntrackTopic drops the user's subscription to the topic.
func (s *TrackerService) UntrackTopic(user *models.User, topicID uint) error {
	return s.store.Tx(func(tx *store.Store) error {
		var topic models.Topic
		if err := tx.Get(&topic, topicID); err != nil {
			return err
		}
		if err := tx.DB().Model(user).Association("TrackedTopics").Delete(&topic); err != nil {
			return &apperr.PersistenceError{Message: "untrack failed", Err: err}
		}
		return nil
	})
}

// TrackedTopics lists the user's subscriptions, newest activity first.
func (s *TrackerService) TrackedTopics(user *models.User) ([]models.Topic, error) {
	var topics []models.Topic
	err := s.store.DB().
		Joins("JOIN topic_trackers ON topic_trackers.topic_id = topics.id").
		Where("topic_trackers.user_id = ?", user.ID).
		Order("topics.last_updated DESC").
		Find(&topics).Error
	if err != nil {
		return nil, &apperr.PersistenceError{Message: "tracked topics lookup failed", Err: err}
	}
	return topics, nil
}

// MarkForumRead declares every topic in the forum read: drops the user's
// per-topic rows for the forum and stamps both LastRead and Cleared.
func (s *TrackerService) MarkForumRead(user *models.User, forum *models.Forum) error {
	return s.store.Tx(func(tx *store.Store) error {
		sub := tx.DB().Model(&models.Topic{}).Select("id").Where("forum_id = ?", forum.ID)
		if err := tx.DB().Where("user_id = ? AND topic_id IN (?)", user.ID, sub).
			Delete(&models.TopicRead{}).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		var fr models.ForumRead
		err := tx.FindOneBy(&fr, "user_id = ? AND forum_id = ?", user.ID, forum.ID)
		switch err {
		case nil:
			fr.LastRead = now
			fr.Cleared = &now
			return tx.Save(&fr)
		case apperr.ErrNotFound:
			fr = models.ForumRead{UserID: user.ID, ForumID: forum.ID, LastRead: now, Cleared: &now}
			return tx.Add(&fr)
		default:
			return err
		}
	})
}
