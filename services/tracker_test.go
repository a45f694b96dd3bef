package services

import (
	"testing"
	"time"

	"github.com/forumkit/forumkit/models"
)

func newTrackerFixture(t *testing.T) (*testEnv, *ForumService, *TrackerService, *models.User, *models.Forum) {
	env := newTestEnv(t)
	forums := NewForumService(env.store, env.settings, env.registry)
	tracker := NewTrackerService(env.store, env.settings)
	user := env.createUser(t, "alice", "Member")
	forum := env.createForum(t, "General")
	return env, forums, tracker, user, forum
}

func TestNewPostMarksTopicAndForumUnread(t *testing.T) {
	env, forums, tracker, author, forum := newTrackerFixture(t)
	reader := env.createUser(t, "bob", "Member")

	topic, err := forums.TopicCreate(author, forum.ID, "fresh", "body")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}

	unread, err := tracker.TopicIsUnread(reader, env.reloadTopic(t, topic.ID))
	if err != nil {
		t.Fatalf("TopicIsUnread: %v", err)
	}
	if !unread {
		t.Error("fresh topic must be unread for a user who never saw it")
	}
	forumUnread, err := tracker.ForumIsUnread(reader, env.reloadForum(t, forum.ID))
	if err != nil {
		t.Fatalf("ForumIsUnread: %v", err)
	}
	if !forumUnread {
		t.Error("forum with a fresh topic must be unread")
	}
}

func TestUpdateReadUpgradesToForumLevelMark(t *testing.T) {
	env, forums, tracker, author, forum := newTrackerFixture(t)
	reader := env.createUser(t, "bob", "Member")

	topic, err := forums.TopicCreate(author, forum.ID, "only one", "body")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if err := tracker.UpdateRead(reader, env.reloadTopic(t, topic.ID)); err != nil {
		t.Fatalf("UpdateRead: %v", err)
	}

	unread, err := tracker.TopicIsUnread(reader, env.reloadTopic(t, topic.ID))
	if err != nil {
		t.Fatalf("TopicIsUnread: %v", err)
	}
	if unread {
		t.Error("topic must be read after UpdateRead")
	}

	// The only topic was read, so a forum-level row must exist now.
	var fr models.ForumRead
	if err := env.store.FindOneBy(&fr, "user_id = ? AND forum_id = ?", reader.ID, forum.ID); err != nil {
		t.Fatalf("forum read row missing: %v", err)
	}
	forumUnread, err := tracker.ForumIsUnread(reader, env.reloadForum(t, forum.ID))
	if err != nil {
		t.Fatalf("ForumIsUnread: %v", err)
	}
	if forumUnread {
		t.Error("forum must be read once its last topic was read")
	}

	// A new reply flips both back to unread.
	time.Sleep(5 * time.Millisecond)
	if _, err := forums.PostCreate(author, topic.ID, "bump"); err != nil {
		t.Fatalf("PostCreate: %v", err)
	}
	unread, err = tracker.TopicIsUnread(reader, env.reloadTopic(t, topic.ID))
	if err != nil {
		t.Fatalf("TopicIsUnread: %v", err)
	}
	if !unread {
		t.Error("new reply must make the topic unread again")
	}
	forumUnread, err = tracker.ForumIsUnread(reader, env.reloadForum(t, forum.ID))
	if err != nil {
		t.Fatalf("ForumIsUnread: %v", err)
	}
	if !forumUnread {
		t.Error("new reply must make the forum unread again")
	}
}

func TestUpdateReadLeavesForumUnreadWhileOtherTopicsPending(t *testing.T) {
	env, forums, tracker, author, forum := newTrackerFixture(t)
	reader := env.createUser(t, "bob", "Member")

	first, err := forums.TopicCreate(author, forum.ID, "first", "body")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	if _, err := forums.TopicCreate(author, forum.ID, "second", "body"); err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if err := tracker.UpdateRead(reader, env.reloadTopic(t, first.ID)); err != nil {
		t.Fatalf("UpdateRead: %v", err)
	}
	forumUnread, err := tracker.ForumIsUnread(reader, env.reloadForum(t, forum.ID))
	if err != nil {
		t.Fatalf("ForumIsUnread: %v", err)
	}
	if !forumUnread {
		t.Error("forum must stay unread while the second topic is pending")
	}
}

func TestMarkForumReadClearsEverything(t *testing.T) {
	env, forums, tracker, author, forum := newTrackerFixture(t)
	reader := env.createUser(t, "bob", "Member")

	topic, err := forums.TopicCreate(author, forum.ID, "first", "body")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	if _, err := forums.TopicCreate(author, forum.ID, "second", "body"); err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if err := tracker.MarkForumRead(reader, env.reloadForum(t, forum.ID)); err != nil {
		t.Fatalf("MarkForumRead: %v", err)
	}

	var rows []models.TopicRead
	if err := env.store.FindBy(&rows, "user_id = ?", reader.ID); err != nil {
		t.Fatalf("list topic reads: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("per-topic rows left after clear: %d", len(rows))
	}
	unread, err := tracker.TopicIsUnread(reader, env.reloadTopic(t, topic.ID))
	if err != nil {
		t.Fatalf("TopicIsUnread: %v", err)
	}
	if unread {
		t.Error("cleared forum must read all its topics as read")
	}
	forumUnread, err := tracker.ForumIsUnread(reader, env.reloadForum(t, forum.ID))
	if err != nil {
		t.Fatalf("ForumIsUnread: %v", err)
	}
	if forumUnread {
		t.Error("cleared forum must be read")
	}

	// Activity after the clear marks it unread again.
	time.Sleep(5 * time.Millisecond)
	if _, err := forums.PostCreate(author, topic.ID, "bump"); err != nil {
		t.Fatalf("PostCreate: %v", err)
	}
	forumUnread, err = tracker.ForumIsUnread(reader, env.reloadForum(t, forum.ID))
	if err != nil {
		t.Fatalf("ForumIsUnread: %v", err)
	}
	if !forumUnread {
		t.Error("post after the clear must make the forum unread again")
	}
}

func TestTrackerDisabledAndGuests(t *testing.T) {
	env, forums, tracker, author, forum := newTrackerFixture(t)
	reader := env.createUser(t, "bob", "Member")

	topic, err := forums.TopicCreate(author, forum.ID, "anything", "body")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}

	// Guests never track.
	unread, err := tracker.TopicIsUnread(nil, env.reloadTopic(t, topic.ID))
	if err != nil || unread {
		t.Errorf("guest topic unread = (%v, %v), want (false, nil)", unread, err)
	}
	unread, err = tracker.ForumIsUnread(nil, env.reloadForum(t, forum.ID))
	if err != nil || unread {
		t.Errorf("guest forum unread = (%v, %v), want (false, nil)", unread, err)
	}

	// TRACKER_LENGTH = 0 disables the tracker for everyone.
	if err := env.settings.Update(map[string]interface{}{KeyTrackerLength: 0}); err != nil {
		t.Fatalf("settings update: %v", err)
	}
	unread, err = tracker.TopicIsUnread(reader, env.reloadTopic(t, topic.ID))
	if err != nil || unread {
		t.Errorf("disabled tracker topic unread = (%v, %v), want (false, nil)", unread, err)
	}
	if err := tracker.UpdateRead(reader, env.reloadTopic(t, topic.ID)); err != nil {
		t.Fatalf("UpdateRead with disabled tracker: %v", err)
	}
	var rows []models.TopicRead
	if err := env.store.FindBy(&rows, "user_id = ?", reader.ID); err != nil {
		t.Fatalf("list topic reads: %v", err)
	}
	if len(rows) != 0 {
		t.Error("disabled tracker must not write read rows")
	}
}

func TestTopicOutsideWindowIsRead(t *testing.T) {
	env, forums, tracker, author, forum := newTrackerFixture(t)
	reader := env.createUser(t, "bob", "Member")

	topic, err := forums.TopicCreate(author, forum.ID, "ancient", "body")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	// Age the topic past the tracker window.
	old := time.Now().UTC().AddDate(0, 0, -30)
	err = env.store.DB().Model(&models.Topic{}).
		Where("id = ?", topic.ID).
		Update("last_updated", old).Error
	if err != nil {
		t.Fatalf("age topic: %v", err)
	}

	unread, err := tracker.TopicIsUnread(reader, env.reloadTopic(t, topic.ID))
	if err != nil || unread {
		t.Errorf("aged topic unread = (%v, %v), want (false, nil)", unread, err)
	}
}

func TestHiddenTopicIsNeverUnread(t *testing.T) {
	env, forums, tracker, author, forum := newTrackerFixture(t)
	reader := env.createUser(t, "bob", "Member")
	mod := env.createUser(t, "maude", "Moderator")

	topic, err := forums.TopicCreate(author, forum.ID, "hush", "body")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	if err := forums.TopicHide(mod, topic.ID); err != nil {
		t.Fatalf("TopicHide: %v", err)
	}
	unread, err := tracker.TopicIsUnread(reader, env.reloadTopic(t, topic.ID))
	if err != nil || unread {
		t.Errorf("hidden topic unread = (%v, %v), want (false, nil)", unread, err)
	}
}

func TestTopicTrackingLifecycle(t *testing.T) {
	env, forums, tracker, author, forum := newTrackerFixture(t)
	reader := env.createUser(t, "bob", "Member")

	topic, err := forums.TopicCreate(author, forum.ID, "followed", "body")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	if _, err := forums.TopicCreate(author, forum.ID, "ignored", "body"); err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}

	if err := tracker.TrackTopic(reader, topic.ID); err != nil {
		t.Fatalf("TrackTopic: %v", err)
	}
	// tracking twice must not duplicate the subscription
	if err := tracker.TrackTopic(reader, topic.ID); err != nil {
		t.Fatalf("second TrackTopic: %v", err)
	}

	tracked, err := tracker.TrackedTopics(reader)
	if err != nil {
		t.Fatalf("TrackedTopics: %v", err)
	}
	if len(tracked) != 1 || tracked[0].ID != topic.ID {
		t.Fatalf("tracked = %d topics, want exactly the followed one", len(tracked))
	}

	if err := tracker.UntrackTopic(reader, topic.ID); err != nil {
		t.Fatalf("UntrackTopic: %v", err)
	}
	if tracked, err = tracker.TrackedTopics(reader); err != nil || len(tracked) != 0 {
		t.Errorf("after untrack: %d topics left (err=%v), want none", len(tracked), err)
	}

	if err := tracker.TrackTopic(reader, topic.ID); err != nil {
		t.Fatalf("re-track: %v", err)
	}
	if err := forums.TopicDelete(topic.ID); err != nil {
		t.Fatalf("TopicDelete: %v", err)
	}
	if tracked, err = tracker.TrackedTopics(reader); err != nil || len(tracked) != 0 {
		t.Errorf("deleting the topic must drop its subscriptions, %d left (err=%v)", len(tracked), err)
	}
}
