package services

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/forumkit/forumkit/apperr"
	"github.com/forumkit/forumkit/hooks"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/store"
	"github.com/forumkit/forumkit/utils"
)

// ForumService owns the forum aggregate: topics, posts, the denormalised
// counters and the last-post snapshot columns. Every mutating operation runs
// inside one transaction, and counters are recomputed from COUNT queries on
// destructive paths instead of being adjusted by deltas, so a crashed delete
// can never leave a drifted counter behind.
type ForumService struct {
	store    *store.Store
	settings *SettingsService
	registry *hooks.Registry
}

// NewForumService wires the forum aggregate service.
func NewForumService(st *store.Store, settings *SettingsService, registry *hooks.Registry) *ForumService {
	return &ForumService{store: st, settings: settings, registry: registry}
}

// --- loaders -----------------------------------------------------------------

func (s *ForumService) loadPostChain(tx *store.Store, postID uint) (*models.Post, *models.Topic, *models.Forum, error) {
	var post models.Post
	if err := tx.Get(&post, postID); err != nil {
		return nil, nil, nil, err
	}
	var topic models.Topic
	if err := tx.Get(&topic, post.TopicID); err != nil {
		return nil, nil, nil, err
	}
	var forum models.Forum
	if err := tx.Get(&forum, topic.ForumID); err != nil {
		return nil, nil, nil, err
	}
	return &post, &topic, &forum, nil
}

func (s *ForumService) loadTopicChain(tx *store.Store, topicID uint) (*models.Topic, *models.Forum, error) {
	var topic models.Topic
	if err := tx.Get(&topic, topicID); err != nil {
		return nil, nil, err
	}
	var forum models.Forum
	if err := tx.Get(&forum, topic.ForumID); err != nil {
		return nil, nil, err
	}
	return &topic, &forum, nil
}

// --- counter queries ---------------------------------------------------------

func (s *ForumService) topicPostCount(tx *store.Store, topic *models.Topic) (int, error) {
	if topic.Hidden {
		return 0, nil
	}
	var n int64
	err := tx.DB().Model(&models.Post{}).
		Where("topic_id = ? AND hidden = ?", topic.ID, false).
		Count(&n).Error
	return int(n), err
}

func (s *ForumService) forumTopicCount(tx *store.Store, forumID uint) (int, error) {
	var n int64
	err := tx.DB().Model(&models.Topic{}).
		Where("forum_id = ? AND hidden = ?", forumID, false).
		Count(&n).Error
	return int(n), err
}

func (s *ForumService) forumPostCount(tx *store.Store, forumID uint) (int, error) {
	var n int64
	err := tx.DB().Model(&models.Post{}).
		Joins("JOIN topics ON topics.id = posts.topic_id").
		Where("topics.forum_id = ? AND topics.hidden = ? AND posts.hidden = ?", forumID, false, false).
		Count(&n).Error
	return int(n), err
}

func (s *ForumService) recomputeUserPostCount(tx *store.Store, userID *uint) error {
	if userID == nil {
		return nil
	}
	var user models.User
	if err := tx.Get(&user, *userID); err != nil {
		if err == apperr.ErrNotFound {
			return nil
		}
		return err
	}
	var n int64
	err := tx.DB().Model(&models.Post{}).
		Joins("JOIN topics ON topics.id = posts.topic_id").
		Where("posts.user_id = ? AND posts.hidden = ? AND topics.hidden = ?", *userID, false, false).
		Count(&n).Error
	if err != nil {
		return err
	}
	user.PostCount = int(n)
	return tx.Save(&user)
}

func (s *ForumService) recomputeTopicAuthors(tx *store.Store, topicID uint) error {
	var authorIDs []uint
	err := tx.DB().Model(&models.Post{}).
		Distinct("user_id").
		Where("topic_id = ? AND user_id IS NOT NULL", topicID).
		Pluck("user_id", &authorIDs).Error
	if err != nil {
		return err
	}
	for i := range authorIDs {
		if err := s.recomputeUserPostCount(tx, &authorIDs[i]); err != nil {
			return err
		}
	}
	return nil
}

// --- last-post maintenance ---------------------------------------------------

// setForumLastPost is the only place that writes the forum last-post pointer
// and its snapshot columns, so the five fields cannot drift apart. A nil post
// clears the snapshot.
func (s *ForumService) setForumLastPost(forum *models.Forum, post *models.Post, topic *models.Topic) {
	if post == nil {
		forum.LastPostID = nil
		forum.LastPostUserID = nil
		forum.LastPostTitle = ""
		forum.LastPostUsername = ""
		forum.LastPostCreated = nil
		return
	}
	id := post.ID
	created := post.DateCreated
	forum.LastPostID = &id
	forum.LastPostUserID = post.UserID
	forum.LastPostTitle = topic.Title
	forum.LastPostUsername = post.Username
	forum.LastPostCreated = &created
}

// refreshForumLastPost recomputes the forum snapshot from the newest
// non-hidden post in a non-hidden topic. Hidden topics drop out of the
// snapshot entirely.
func (s *ForumService) refreshForumLastPost(tx *store.Store, forum *models.Forum) error {
	var post models.Post
	err := tx.DB().Model(&models.Post{}).
		Joins("JOIN topics ON topics.id = posts.topic_id").
		Where("topics.forum_id = ? AND topics.hidden = ? AND posts.hidden = ?", forum.ID, false, false).
		Order("posts.date_created DESC").
		First(&post).Error
	if err == gorm.ErrRecordNotFound {
		s.setForumLastPost(forum, nil, nil)
		return nil
	}
	if err != nil {
		return err
	}
	var topic models.Topic
	if err := tx.Get(&topic, post.TopicID); err != nil {
		return err
	}
	s.setForumLastPost(forum, &post, &topic)
	return nil
}

// refreshTopicLastPost repoints the topic at its newest non-hidden post and
// mirrors that post's creation time into LastUpdated for the unread tracker.
// The first post of a visible topic is never hidden, so at least one row
// always matches.
func (s *ForumService) refreshTopicLastPost(tx *store.Store, topic *models.Topic) error {
	var post models.Post
	err := tx.DB().
		Where("topic_id = ? AND hidden = ?", topic.ID, false).
		Order("date_created DESC").
		First(&post).Error
	if err == gorm.ErrRecordNotFound {
		topic.LastPostID = nil
		return nil
	}
	if err != nil {
		return err
	}
	id := post.ID
	topic.LastPostID = &id
	topic.LastUpdated = post.DateCreated
	return nil
}

// reconcileAfterPostChange recomputes topic and forum counters and both
// last-post pointers after a post was deleted, hidden or unhidden.
func (s *ForumService) reconcileAfterPostChange(tx *store.Store, topic *models.Topic, forum *models.Forum, authorID *uint) error {
	if !topic.Hidden {
		if err := s.refreshTopicLastPost(tx, topic); err != nil {
			return err
		}
	}
	var err error
	if topic.PostCount, err = s.topicPostCount(tx, topic); err != nil {
		return err
	}
	if err := tx.Save(topic); err != nil {
		return err
	}
	if err := s.refreshForumLastPost(tx, forum); err != nil {
		return err
	}
	if forum.TopicCount, err = s.forumTopicCount(tx, forum.ID); err != nil {
		return err
	}
	if forum.PostCount, err = s.forumPostCount(tx, forum.ID); err != nil {
		return err
	}
	if err := tx.Save(forum); err != nil {
		return err
	}
	return s.recomputeUserPostCount(tx, authorID)
}

// --- post operations ---------------------------------------------------------

// PostCreate appends a reply to a topic and rolls the counters, the topic and
// forum last-post pointers and the author's post count forward in one
// transaction.
func (s *ForumService) PostCreate(user *models.User, topicID uint, content string) (*models.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.NewValidationError("content", "post content must not be empty")
	}
	var created *models.Post
	err := s.store.Tx(func(tx *store.Store) error {
		topic, forum, err := s.loadTopicChain(tx, topicID)
		if err != nil {
			return err
		}
		// Lock state is a permission concern: the resolver refuses regular
		// members but lets moderators reply into a locked topic.
		now := time.Now().UTC()
		post := &models.Post{
			TopicID:     topic.ID,
			UserID:      &user.ID,
			Username:    user.Username,
			Content:     utils.Sanitize(content),
			DateCreated: now,
		}
		if err := s.registry.Notify(hooks.EventPostSaveBefore, post); err != nil {
			return err
		}
		if err := tx.Add(post); err != nil {
			return err
		}
		if !topic.Hidden {
			id := post.ID
			topic.LastPostID = &id
			topic.LastUpdated = post.DateCreated
			topic.PostCount++
			if err := tx.Save(topic); err != nil {
				return err
			}
			s.setForumLastPost(forum, post, topic)
			forum.PostCount++
			if err := tx.Save(forum); err != nil {
				return err
			}
			user.PostCount++
			if err := tx.Save(user); err != nil {
				return err
			}
		} else if err := tx.Save(topic); err != nil {
			return err
		}
		if err := s.registry.Notify(hooks.EventPostSaveAfter, post, true); err != nil {
			return err
		}
		created = post
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// PostEdit replaces a post's content and stamps the modification metadata.
func (s *ForumService) PostEdit(editor *models.User, postID uint, content string) (*models.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.NewValidationError("content", "post content must not be empty")
	}
	var edited *models.Post
	err := s.store.Tx(func(tx *store.Store) error {
		var post models.Post
		if err := tx.Get(&post, postID); err != nil {
			return err
		}
		now := time.Now().UTC()
		post.Content = utils.Sanitize(content)
		post.DateModified = &now
		post.ModifiedBy = editor.Username
		if err := s.registry.Notify(hooks.EventPostSaveBefore, &post); err != nil {
			return err
		}
		if err := tx.Save(&post); err != nil {
			return err
		}
		if err := s.registry.Notify(hooks.EventPostSaveAfter, &post, false); err != nil {
			return err
		}
		edited = &post
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edited, nil
}

// PostDelete removes a post. Deleting the first post deletes the whole topic.
// Counters are recomputed by COUNT after the row is gone.
func (s *ForumService) PostDelete(postID uint) error {
	return s.store.Tx(func(tx *store.Store) error {
		post, topic, forum, err := s.loadPostChain(tx, postID)
		if err != nil {
			return err
		}
		if post.IsFirst(topic) {
			return s.topicDelete(tx, topic, forum)
		}
		authorID := post.UserID
		if err := tx.Delete(post); err != nil {
			return err
		}
		return s.reconcileAfterPostChange(tx, topic, forum, authorID)
	})
}

// PostHide tombstones a post. Hiding the first post hides the whole topic.
// Already-hidden posts are a no-op.
func (s *ForumService) PostHide(mod *models.User, postID uint) error {
	return s.store.Tx(func(tx *store.Store) error {
		post, topic, forum, err := s.loadPostChain(tx, postID)
		if err != nil {
			return err
		}
		if post.IsFirst(topic) {
			return s.topicHide(tx, mod, topic, forum)
		}
		if post.Hidden {
			return nil
		}
		now := time.Now().UTC()
		post.Hidden = true
		post.HiddenAt = &now
		post.HiddenBy = &mod.ID
		if err := tx.Save(post); err != nil {
			return err
		}
		return s.reconcileAfterPostChange(tx, topic, forum, post.UserID)
	})
}

// PostUnhide restores a tombstoned post. Unhiding the first post restores the
// whole topic. Visible posts are a no-op.
func (s *ForumService) PostUnhide(postID uint) error {
	return s.store.Tx(func(tx *store.Store) error {
		post, topic, forum, err := s.loadPostChain(tx, postID)
		if err != nil {
			return err
		}
		if post.IsFirst(topic) {
			return s.topicUnhide(tx, topic, forum)
		}
		if !post.Hidden {
			return nil
		}
		post.Hidden = false
		post.HiddenAt = nil
		post.HiddenBy = nil
		if err := tx.Save(post); err != nil {
			return err
		}
		return s.reconcileAfterPostChange(tx, topic, forum, post.UserID)
	})
}

// --- topic operations --------------------------------------------------------

// TopicCreate opens a topic together with its first post in one transaction
// and rolls the forum snapshot and counters forward.
func (s *ForumService) TopicCreate(user *models.User, forumID uint, title, content string) (*models.Topic, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" {
		return nil, apperr.NewValidationError("title", "topic title must not be empty")
	}
	if max := s.settings.Int(KeyTitleLength, 151); len([]rune(title)) > max {
		return nil, apperr.NewValidationError("title", "topic title is too long")
	}
	if content == "" {
		return nil, apperr.NewValidationError("content", "topic content must not be empty")
	}
	var created *models.Topic
	err := s.store.Tx(func(tx *store.Store) error {
		var forum models.Forum
		if err := tx.Get(&forum, forumID); err != nil {
			return err
		}
		if forum.IsExternal() {
			return apperr.NewValidationError("forum", "external forums cannot hold topics")
		}
		now := time.Now().UTC()
		topic := &models.Topic{
			ForumID:     forum.ID,
			Title:       title,
			UserID:      &user.ID,
			Username:    user.Username,
			DateCreated: now,
			LastUpdated: now,
		}
		if err := s.registry.Notify(hooks.EventTopicSaveBefore, topic); err != nil {
			return err
		}
		if err := tx.Add(topic); err != nil {
			return err
		}
		post := &models.Post{
			TopicID:     topic.ID,
			UserID:      &user.ID,
			Username:    user.Username,
			Content:     utils.Sanitize(content),
			DateCreated: now,
		}
		if err := tx.Add(post); err != nil {
			return err
		}
		postID := post.ID
		topic.FirstPostID = &postID
		topic.LastPostID = &postID
		topic.PostCount = 1
		if err := tx.Save(topic); err != nil {
			return err
		}
		s.setForumLastPost(&forum, post, topic)
		forum.TopicCount++
		forum.PostCount++
		if err := tx.Save(&forum); err != nil {
			return err
		}
		user.PostCount++
		if err := tx.Save(user); err != nil {
			return err
		}
		if err := s.registry.Notify(hooks.EventTopicSaveAfter, topic, true); err != nil {
			return err
		}
		created = topic
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// TopicDelete removes a topic with all its posts and read rows, then
// recomputes the forum counters and snapshot and every author's post count.
func (s *ForumService) TopicDelete(topicID uint) error {
	return s.store.Tx(func(tx *store.Store) error {
		topic, forum, err := s.loadTopicChain(tx, topicID)
		if err != nil {
			return err
		}
		return s.topicDelete(tx, topic, forum)
	})
}

func (s *ForumService) topicDelete(tx *store.Store, topic *models.Topic, forum *models.Forum) error {
	var authorIDs []uint
	err := tx.DB().Model(&models.Post{}).
		Distinct("user_id").
		Where("topic_id = ? AND user_id IS NOT NULL", topic.ID).
		Pluck("user_id", &authorIDs).Error
	if err != nil {
		return err
	}
	if err := tx.DB().Where("topic_id = ?", topic.ID).Delete(&models.TopicRead{}).Error; err != nil {
		return err
	}
	if err := tx.DB().Exec("DELETE FROM topic_trackers WHERE topic_id = ?", topic.ID).Error; err != nil {
		return err
	}
	if err := tx.DB().Where("topic_id = ?", topic.ID).Delete(&models.Post{}).Error; err != nil {
		return err
	}
	if err := tx.Delete(topic); err != nil {
		return err
	}
	if err := s.refreshForumLastPost(tx, forum); err != nil {
		return err
	}
	if forum.TopicCount, err = s.forumTopicCount(tx, forum.ID); err != nil {
		return err
	}
	if forum.PostCount, err = s.forumPostCount(tx, forum.ID); err != nil {
		return err
	}
	if err := tx.Save(forum); err != nil {
		return err
	}
	for i := range authorIDs {
		if err := s.recomputeUserPostCount(tx, &authorIDs[i]); err != nil {
			return err
		}
	}
	return nil
}

// TopicHide tombstones a topic together with its first post. The topic keeps
// its own last-post pointer so an unhide can restore it, but it drops out of
// the forum snapshot and all counters.
func (s *ForumService) TopicHide(mod *models.User, topicID uint) error {
	return s.store.Tx(func(tx *store.Store) error {
		topic, forum, err := s.loadTopicChain(tx, topicID)
		if err != nil {
			return err
		}
		return s.topicHide(tx, mod, topic, forum)
	})
}

func (s *ForumService) topicHide(tx *store.Store, mod *models.User, topic *models.Topic, forum *models.Forum) error {
	if topic.Hidden {
		return nil
	}
	now := time.Now().UTC()
	topic.Hidden = true
	topic.HiddenAt = &now
	topic.HiddenBy = &mod.ID
	topic.PostCount = 0
	if err := tx.Save(topic); err != nil {
		return err
	}
	if topic.FirstPostID != nil {
		var first models.Post
		if err := tx.Get(&first, *topic.FirstPostID); err != nil {
			return err
		}
		first.Hidden = true
		first.HiddenAt = &now
		first.HiddenBy = &mod.ID
		if err := tx.Save(&first); err != nil {
			return err
		}
	}
	if err := s.refreshForumLastPost(tx, forum); err != nil {
		return err
	}
	var err error
	if forum.TopicCount, err = s.forumTopicCount(tx, forum.ID); err != nil {
		return err
	}
	if forum.PostCount, err = s.forumPostCount(tx, forum.ID); err != nil {
		return err
	}
	if err := tx.Save(forum); err != nil {
		return err
	}
	return s.recomputeTopicAuthors(tx, topic.ID)
}

// TopicUnhide restores a tombstoned topic and its first post. The forum
// snapshot is recomputed, so the topic's last post only takes the pointer back
// when it is still the newest in the forum.
func (s *ForumService) TopicUnhide(topicID uint) error {
	return s.store.Tx(func(tx *store.Store) error {
		topic, forum, err := s.loadTopicChain(tx, topicID)
		if err != nil {
			return err
		}
		return s.topicUnhide(tx, topic, forum)
	})
}

func (s *ForumService) topicUnhide(tx *store.Store, topic *models.Topic, forum *models.Forum) error {
	if !topic.Hidden {
		return nil
	}
	topic.Hidden = false
	topic.HiddenAt = nil
	topic.HiddenBy = nil
	if topic.FirstPostID != nil {
		var first models.Post
		if err := tx.Get(&first, *topic.FirstPostID); err != nil {
			return err
		}
		first.Hidden = false
		first.HiddenAt = nil
		first.HiddenBy = nil
		if err := tx.Save(&first); err != nil {
			return err
		}
	}
	if err := s.refreshTopicLastPost(tx, topic); err != nil {
		return err
	}
	var err error
	if topic.PostCount, err = s.topicPostCount(tx, topic); err != nil {
		return err
	}
	if err := tx.Save(topic); err != nil {
		return err
	}
	if err := s.refreshForumLastPost(tx, forum); err != nil {
		return err
	}
	if forum.TopicCount, err = s.forumTopicCount(tx, forum.ID); err != nil {
		return err
	}
	if forum.PostCount, err = s.forumPostCount(tx, forum.ID); err != nil {
		return err
	}
	if err := tx.Save(forum); err != nil {
		return err
	}
	return s.recomputeTopicAuthors(tx, topic.ID)
}

// TopicMove reassigns a topic to another forum, resets its per-user read rows
// and recomputes counters and snapshots on both sides.
func (s *ForumService) TopicMove(topicID, newForumID uint) error {
	return s.store.Tx(func(tx *store.Store) error {
		topic, oldForum, err := s.loadTopicChain(tx, topicID)
		if err != nil {
			return err
		}
		if oldForum.ID == newForumID {
			return nil
		}
		var newForum models.Forum
		if err := tx.Get(&newForum, newForumID); err != nil {
			return err
		}
		if newForum.IsExternal() {
			return apperr.NewValidationError("forum", "external forums cannot hold topics")
		}
		topic.ForumID = newForum.ID
		if err := tx.Save(topic); err != nil {
			return err
		}
		if err := tx.DB().Where("topic_id = ?", topic.ID).Delete(&models.TopicRead{}).Error; err != nil {
			return err
		}
		for _, f := range []*models.Forum{oldForum, &newForum} {
			if err := s.refreshForumLastPost(tx, f); err != nil {
				return err
			}
			if f.TopicCount, err = s.forumTopicCount(tx, f.ID); err != nil {
				return err
			}
			if f.PostCount, err = s.forumPostCount(tx, f.ID); err != nil {
				return err
			}
			if err := tx.Save(f); err != nil {
				return err
			}
		}
		return nil
	})
}

// TopicSetLocked flips the locked flag.
func (s *ForumService) TopicSetLocked(topicID uint, locked bool) error {
	return s.store.Tx(func(tx *store.Store) error {
		var topic models.Topic
		if err := tx.Get(&topic, topicID); err != nil {
			return err
		}
		topic.Locked = locked
		return tx.Save(&topic)
	})
}

// TopicTouch bumps the view counter without touching timestamps.
func (s *ForumService) TopicTouch(topicID uint) error {
	err := s.store.DB().Model(&models.Topic{}).
		Where("id = ?", topicID).
		UpdateColumn("views", gorm.Expr("views + 1")).Error
	if err != nil {
		return &apperr.PersistenceError{Message: "view bump failed", Err: err}
	}
	return nil
}

// Recalculate rebuilds a forum's counters and optionally its last-post
// snapshot from scratch. Used by admin tooling when counters drifted.
func (s *ForumService) Recalculate(forumID uint, lastPost bool) error {
	return s.store.Tx(func(tx *store.Store) error {
		var forum models.Forum
		if err := tx.Get(&forum, forumID); err != nil {
			return err
		}
		var err error
		if forum.TopicCount, err = s.forumTopicCount(tx, forum.ID); err != nil {
			return err
		}
		if forum.PostCount, err = s.forumPostCount(tx, forum.ID); err != nil {
			return err
		}
		if lastPost {
			if err := s.refreshForumLastPost(tx, &forum); err != nil {
				return err
			}
		}
		return tx.Save(&forum)
	})
}

// --- reports -----------------------------------------------------------------

// ReportPost files a report against a post.
func (s *ForumService) ReportPost(reporter *models.User, postID uint, reason string) (*models.Report, error) {
	var report *models.Report
	err := s.store.Tx(func(tx *store.Store) error {
		var post models.Post
		if err := tx.Get(&post, postID); err != nil {
			return err
		}
		pid := post.ID
		report = &models.Report{
			ReporterID: &reporter.ID,
			PostID:     &pid,
			Reason:     strings.TrimSpace(reason),
			ReportedAt: time.Now().UTC(),
		}
		return tx.Add(report)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ZapReport marks a report as handled. Already-zapped reports are a no-op.
func (s *ForumService) ZapReport(mod *models.User, reportID uint) error {
	return s.store.Tx(func(tx *store.Store) error {
		var report models.Report
		if err := tx.Get(&report, reportID); err != nil {
			return err
		}
		if report.Zapped() {
			return nil
		}
		now := time.Now().UTC()
		report.ZappedAt = &now
		report.ZappedBy = &mod.ID
		return tx.Save(&report)
	})
}
