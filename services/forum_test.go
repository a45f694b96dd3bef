package services

import (
	"testing"
	"time"

	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/permissions"
)

func newForumFixture(t *testing.T) (*testEnv, *ForumService, *models.User, *models.Forum) {
	env := newTestEnv(t)
	svc := NewForumService(env.store, env.settings, env.registry)
	user := env.createUser(t, "alice", "Member")
	forum := env.createForum(t, "Announcements")
	return env, svc, user, forum
}

func TestTopicCreateRollsCountersForward(t *testing.T) {
	env, svc, user, forum := newForumFixture(t)

	topic, err := svc.TopicCreate(user, forum.ID, "hello world", "first post body")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	if topic.FirstPostID == nil || topic.LastPostID == nil {
		t.Fatal("topic must point at its first post")
	}
	if *topic.FirstPostID != *topic.LastPostID {
		t.Errorf("fresh topic: first post %d != last post %d", *topic.FirstPostID, *topic.LastPostID)
	}
	if topic.PostCount != 1 {
		t.Errorf("topic post count = %d, want 1", topic.PostCount)
	}

	f := env.reloadForum(t, forum.ID)
	if f.TopicCount != 1 || f.PostCount != 1 {
		t.Errorf("forum counters = (%d, %d), want (1, 1)", f.TopicCount, f.PostCount)
	}
	if f.LastPostID == nil || *f.LastPostID != *topic.LastPostID {
		t.Error("forum last post must point at the topic's first post")
	}
	if f.LastPostTitle != "hello world" || f.LastPostUsername != "alice" {
		t.Errorf("snapshot = (%q, %q), want (hello world, alice)", f.LastPostTitle, f.LastPostUsername)
	}
	if f.LastPostCreated == nil {
		t.Error("forum last post created must be set")
	}
	if u := env.reloadUser(t, user.ID); u.PostCount != 1 {
		t.Errorf("author post count = %d, want 1", u.PostCount)
	}
}

func TestPostCreateAndDeleteRoundtrip(t *testing.T) {
	env, svc, user, forum := newForumFixture(t)

	topic, err := svc.TopicCreate(user, forum.ID, "roundtrip", "opening")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	reply, err := svc.PostCreate(user, topic.ID, "a reply")
	if err != nil {
		t.Fatalf("PostCreate: %v", err)
	}

	tp := env.reloadTopic(t, topic.ID)
	if tp.PostCount != 2 {
		t.Errorf("topic post count = %d, want 2", tp.PostCount)
	}
	if tp.LastPostID == nil || *tp.LastPostID != reply.ID {
		t.Error("topic last post must be the reply")
	}
	if !tp.LastUpdated.Equal(reply.DateCreated) {
		t.Errorf("topic last updated %v must mirror reply creation %v", tp.LastUpdated, reply.DateCreated)
	}
	f := env.reloadForum(t, forum.ID)
	if f.PostCount != 2 {
		t.Errorf("forum post count = %d, want 2", f.PostCount)
	}
	if f.LastPostID == nil || *f.LastPostID != reply.ID {
		t.Error("forum last post must be the reply")
	}

	if err := svc.PostDelete(reply.ID); err != nil {
		t.Fatalf("PostDelete: %v", err)
	}
	tp = env.reloadTopic(t, topic.ID)
	if tp.PostCount != 1 {
		t.Errorf("after delete: topic post count = %d, want 1", tp.PostCount)
	}
	if tp.LastPostID == nil || *tp.LastPostID != *tp.FirstPostID {
		t.Error("after delete: topic last post must fall back to the first post")
	}
	f = env.reloadForum(t, forum.ID)
	if f.TopicCount != 1 || f.PostCount != 1 {
		t.Errorf("after delete: forum counters = (%d, %d), want (1, 1)", f.TopicCount, f.PostCount)
	}
	if f.LastPostID == nil || *f.LastPostID != *tp.FirstPostID {
		t.Error("after delete: forum last post must fall back to the first post")
	}
	if u := env.reloadUser(t, user.ID); u.PostCount != 1 {
		t.Errorf("after delete: author post count = %d, want 1", u.PostCount)
	}
}

func TestDeleteFirstPostDeletesTopic(t *testing.T) {
	env, svc, user, forum := newForumFixture(t)

	topic, err := svc.TopicCreate(user, forum.ID, "doomed", "body")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	if err := svc.PostDelete(*topic.FirstPostID); err != nil {
		t.Fatalf("PostDelete: %v", err)
	}

	var gone models.Topic
	if err := env.store.Get(&gone, topic.ID); err == nil {
		t.Fatal("topic must be deleted together with its first post")
	}
	f := env.reloadForum(t, forum.ID)
	if f.TopicCount != 0 || f.PostCount != 0 {
		t.Errorf("forum counters = (%d, %d), want (0, 0)", f.TopicCount, f.PostCount)
	}
	if f.LastPostID != nil || f.LastPostCreated != nil || f.LastPostTitle != "" {
		t.Error("forum snapshot must be cleared when the only topic disappears")
	}
}

func TestHideFirstPostHidesWholeTopic(t *testing.T) {
	env, svc, user, forum := newForumFixture(t)
	mod := env.createUser(t, "maude", "Moderator")

	topic, err := svc.TopicCreate(user, forum.ID, "to hide", "body")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := svc.PostCreate(user, topic.ID, "a reply"); err != nil {
		t.Fatalf("PostCreate: %v", err)
	}

	if err := svc.PostHide(mod, *topic.FirstPostID); err != nil {
		t.Fatalf("PostHide: %v", err)
	}

	tp := env.reloadTopic(t, topic.ID)
	if !tp.Hidden {
		t.Fatal("hiding the first post must hide the topic")
	}
	if tp.HiddenBy == nil || *tp.HiddenBy != mod.ID {
		t.Error("topic must record who hid it")
	}
	if tp.PostCount != 0 {
		t.Errorf("hidden topic post count = %d, want 0", tp.PostCount)
	}
	first := env.reloadPost(t, *topic.FirstPostID)
	if !first.Hidden {
		t.Error("first post must be hidden with the topic")
	}
	f := env.reloadForum(t, forum.ID)
	if f.TopicCount != 0 || f.PostCount != 0 {
		t.Errorf("forum counters = (%d, %d), want (0, 0)", f.TopicCount, f.PostCount)
	}
	if f.LastPostID != nil {
		t.Error("hidden topic must drop out of the forum snapshot")
	}
	if u := env.reloadUser(t, user.ID); u.PostCount != 0 {
		t.Errorf("author post count = %d, want 0 while topic hidden", u.PostCount)
	}

	// idempotent
	if err := svc.PostHide(mod, *topic.FirstPostID); err != nil {
		t.Fatalf("second PostHide: %v", err)
	}

	if err := svc.TopicUnhide(topic.ID); err != nil {
		t.Fatalf("TopicUnhide: %v", err)
	}
	tp = env.reloadTopic(t, topic.ID)
	if tp.Hidden || tp.HiddenAt != nil || tp.HiddenBy != nil {
		t.Error("unhide must clear the tombstone")
	}
	if tp.PostCount != 2 {
		t.Errorf("restored topic post count = %d, want 2", tp.PostCount)
	}
	f = env.reloadForum(t, forum.ID)
	if f.TopicCount != 1 || f.PostCount != 2 {
		t.Errorf("restored forum counters = (%d, %d), want (1, 2)", f.TopicCount, f.PostCount)
	}
	if u := env.reloadUser(t, user.ID); u.PostCount != 2 {
		t.Errorf("restored author post count = %d, want 2", u.PostCount)
	}
}

func TestHideReplyKeepsTopicVisible(t *testing.T) {
	env, svc, user, forum := newForumFixture(t)
	mod := env.createUser(t, "maude", "Moderator")

	topic, err := svc.TopicCreate(user, forum.ID, "visible", "body")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	reply, err := svc.PostCreate(user, topic.ID, "a reply")
	if err != nil {
		t.Fatalf("PostCreate: %v", err)
	}

	if err := svc.PostHide(mod, reply.ID); err != nil {
		t.Fatalf("PostHide: %v", err)
	}
	tp := env.reloadTopic(t, topic.ID)
	if tp.Hidden {
		t.Fatal("hiding a reply must not hide the topic")
	}
	if tp.PostCount != 1 {
		t.Errorf("topic post count = %d, want 1", tp.PostCount)
	}
	if tp.LastPostID == nil || *tp.LastPostID != *tp.FirstPostID {
		t.Error("topic last post must fall back to the first post")
	}
	f := env.reloadForum(t, forum.ID)
	if f.PostCount != 1 {
		t.Errorf("forum post count = %d, want 1", f.PostCount)
	}

	if err := svc.PostUnhide(reply.ID); err != nil {
		t.Fatalf("PostUnhide: %v", err)
	}
	tp = env.reloadTopic(t, topic.ID)
	if tp.PostCount != 2 {
		t.Errorf("restored topic post count = %d, want 2", tp.PostCount)
	}
	if tp.LastPostID == nil || *tp.LastPostID != reply.ID {
		t.Error("restored topic last post must be the reply again")
	}
	f = env.reloadForum(t, forum.ID)
	if f.LastPostID == nil || *f.LastPostID != reply.ID {
		t.Error("restored forum last post must be the reply again")
	}
}

func TestTopicMoveRecomputesBothForums(t *testing.T) {
	env, svc, user, forum := newForumFixture(t)
	tracker := NewTrackerService(env.store, env.settings)
	reader := env.createUser(t, "rita", "Member")
	other := &models.Forum{CategoryID: forum.CategoryID, Title: "Other"}
	if err := env.store.Add(other); err != nil {
		t.Fatalf("create forum: %v", err)
	}

	topic, err := svc.TopicCreate(user, forum.ID, "wanderer", "body")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := svc.PostCreate(user, topic.ID, "a reply"); err != nil {
		t.Fatalf("PostCreate: %v", err)
	}
	if err := tracker.UpdateRead(reader, env.reloadTopic(t, topic.ID)); err != nil {
		t.Fatalf("UpdateRead: %v", err)
	}
	if unread, err := tracker.TopicIsUnread(reader, env.reloadTopic(t, topic.ID)); err != nil || unread {
		t.Fatalf("topic must read as read before the move (unread=%v err=%v)", unread, err)
	}

	if err := svc.TopicMove(topic.ID, other.ID); err != nil {
		t.Fatalf("TopicMove: %v", err)
	}

	src := env.reloadForum(t, forum.ID)
	if src.TopicCount != 0 || src.PostCount != 0 || src.LastPostID != nil {
		t.Errorf("source forum not emptied: (%d, %d)", src.TopicCount, src.PostCount)
	}
	dst := env.reloadForum(t, other.ID)
	if dst.TopicCount != 1 || dst.PostCount != 2 {
		t.Errorf("target forum counters = (%d, %d), want (1, 2)", dst.TopicCount, dst.PostCount)
	}
	if dst.LastPostID == nil {
		t.Error("target forum must adopt the topic's last post")
	}
	if tp := env.reloadTopic(t, topic.ID); tp.ForumID != other.ID {
		t.Error("topic must belong to the target forum")
	}

	var rows int64
	if err := env.store.DB().Model(&models.TopicRead{}).
		Where("topic_id = ?", topic.ID).Count(&rows).Error; err != nil {
		t.Fatalf("count read rows: %v", err)
	}
	if rows != 0 {
		t.Errorf("move must drop the topic's read rows, %d left", rows)
	}
	if unread, err := tracker.TopicIsUnread(reader, env.reloadTopic(t, topic.ID)); err != nil || !unread {
		t.Errorf("moved topic must read as unread again (unread=%v err=%v)", unread, err)
	}
}

func TestModeratorPostsDespiteLocks(t *testing.T) {
	env, svc, user, forum := newForumFixture(t)
	mod := env.createUser(t, "maude", "Moderator")
	if err := env.store.DB().Model(forum).Association("Moderators").Append(mod); err != nil {
		t.Fatalf("assign moderator: %v", err)
	}

	topic, err := svc.TopicCreate(user, forum.ID, "contested", "body")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	if err := svc.TopicSetLocked(topic.ID, true); err != nil {
		t.Fatalf("TopicSetLocked: %v", err)
	}

	locked := env.reloadTopic(t, topic.ID)
	var withMods models.Forum
	if err := env.store.DB().Preload("Moderators").First(&withMods, forum.ID).Error; err != nil {
		t.Fatalf("reload forum: %v", err)
	}
	if !permissions.CanPostReply(mod, locked, &withMods) {
		t.Fatal("assigned moderator must pass the reply check in a locked topic")
	}
	reply, err := svc.PostCreate(mod, locked.ID, "closing note")
	if err != nil {
		t.Fatalf("PostCreate in locked topic: %v", err)
	}
	tp := env.reloadTopic(t, topic.ID)
	if tp.PostCount != 2 || tp.LastPostID == nil || *tp.LastPostID != reply.ID {
		t.Errorf("locked topic must record the moderator's reply, count=%d", tp.PostCount)
	}

	withMods.Locked = true
	if err := env.store.Save(&withMods); err != nil {
		t.Fatalf("lock forum: %v", err)
	}
	if !permissions.CanPostTopic(mod, &withMods) {
		t.Fatal("assigned moderator must pass the topic check in a locked forum")
	}
	if _, err := svc.TopicCreate(mod, forum.ID, "announcement", "posted while locked"); err != nil {
		t.Fatalf("TopicCreate in locked forum: %v", err)
	}
}

func TestPostEditStampsModification(t *testing.T) {
	env, svc, user, forum := newForumFixture(t)
	editor := env.createUser(t, "eddy", "Moderator")

	topic, err := svc.TopicCreate(user, forum.ID, "editable", "original")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	edited, err := svc.PostEdit(editor, *topic.FirstPostID, "rewritten")
	if err != nil {
		t.Fatalf("PostEdit: %v", err)
	}
	if edited.Content != "rewritten" {
		t.Errorf("content = %q, want rewritten", edited.Content)
	}
	if edited.DateModified == nil || edited.ModifiedBy != "eddy" {
		t.Error("edit must stamp modification time and editor")
	}
}

func TestReportLifecycle(t *testing.T) {
	env, svc, user, forum := newForumFixture(t)
	mod := env.createUser(t, "maude", "Moderator")

	topic, err := svc.TopicCreate(user, forum.ID, "reportable", "body")
	if err != nil {
		t.Fatalf("TopicCreate: %v", err)
	}
	report, err := svc.ReportPost(user, *topic.FirstPostID, "spam")
	if err != nil {
		t.Fatalf("ReportPost: %v", err)
	}
	if report.Zapped() {
		t.Fatal("fresh report must not be zapped")
	}
	if err := svc.ZapReport(mod, report.ID); err != nil {
		t.Fatalf("ZapReport: %v", err)
	}
	var reloaded models.Report
	if err := env.store.Get(&reloaded, report.ID); err != nil {
		t.Fatalf("reload report: %v", err)
	}
	if !reloaded.Zapped() || reloaded.ZappedBy == nil || *reloaded.ZappedBy != mod.ID {
		t.Error("zap must stamp resolver and time")
	}
	// idempotent
	if err := svc.ZapReport(mod, report.ID); err != nil {
		t.Fatalf("second ZapReport: %v", err)
	}
}

func TestTopicCreateValidation(t *testing.T) {
	_, svc, user, forum := newForumFixture(t)

	if _, err := svc.TopicCreate(user, forum.ID, "   ", "body"); err == nil {
		t.Error("empty title must be rejected")
	}
	if _, err := svc.TopicCreate(user, forum.ID, "ok", ""); err == nil {
		t.Error("empty content must be rejected")
	}
}
