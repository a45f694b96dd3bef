package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/forumkit/forumkit/apperr"
	"github.com/forumkit/forumkit/middleware"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/permissions"
	"github.com/forumkit/forumkit/services"
	"github.com/forumkit/forumkit/store"
	"github.com/forumkit/forumkit/utils"
)

// ForumController exposes the forum aggregate: the category index, forum and
// topic views with unread markers, and every topic/post mutation.
type ForumController struct {
	store    *store.Store
	forums   *services.ForumService
	tracker  *services.TrackerService
	settings *services.SettingsService
}

// NewForumController wires the forum endpoints.
func NewForumController(st *store.Store, forums *services.ForumService, tracker *services.TrackerService, settings *services.SettingsService) *ForumController {
	return &ForumController{store: st, forums: forums, tracker: tracker, settings: settings}
}

func pageParams(ctx *gin.Context, defaultSize int) (page, pageSize int) {
	page, pageSize = 1, defaultSize
	if v := strings.TrimSpace(ctx.Query("page")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := strings.TrimSpace(ctx.Query("page_size")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			pageSize = n
		}
	}
	return page, pageSize
}

// loadForum fetches a forum with its access groups and moderators.
func (f *ForumController) loadForum(id uint) (*models.Forum, error) {
	var forum models.Forum
	err := f.store.DB().Preload("Groups").Preload("Moderators").First(&forum, id).Error
	if err != nil {
		return nil, apperr.ErrNotFound
	}
	return &forum, nil
}

type forumView struct {
	models.Forum
	Unread bool `json:"unread"`
}

// Index lists all categories with their forums, decorated with per-user unread
// markers.
func (f *ForumController) Index(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	var categories []models.Category
	err := f.store.DB().Preload("Forums", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Order("position ASC").Find(&categories).Error
	if err != nil {
		writeError(ctx, &apperr.PersistenceError{Message: "category list failed", Err: err})
		return
	}
	out := make([]gin.H, 0, len(categories))
	for i := range categories {
		forums := make([]forumView, 0, len(categories[i].Forums))
		for j := range categories[i].Forums {
			forum := categories[i].Forums[j]
			unread, err := f.tracker.ForumIsUnread(user, &forum)
			if err != nil {
				writeError(ctx, err)
				return
			}
			forums = append(forums, forumView{Forum: forum, Unread: unread})
		}
		out = append(out, gin.H{
			"id":          categories[i].ID,
			"title":       categories[i].Title,
			"description": categories[i].Description,
			"position":    categories[i].Position,
			"forums":      forums,
		})
	}
	utils.Success(ctx, gin.H{"categories": out})
}

type topicView struct {
	models.Topic
	Unread bool `json:"unread"`
}

// GetForum returns one forum page: its topics ordered important-first then by
// recency, each carrying an unread marker. Hidden topics stay visible to users
// with the viewhidden flag only.
func (f *ForumController) GetForum(ctx *gin.Context) {
	forumID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	forum, err := f.loadForum(forumID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if !permissions.CanAccessForum(user, forum) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	if forum.IsExternal() {
		utils.Success(ctx, gin.H{"forum": forum, "external": forum.External})
		return
	}

	page, pageSize := pageParams(ctx, f.settings.Int(services.KeyTopicsPerPage, 10))
	q := f.store.DB().Model(&models.Topic{}).Where("forum_id = ?", forum.ID)
	if !permissions.CanViewHidden(user) {
		q = q.Where("hidden = ?", false)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		writeError(ctx, &apperr.PersistenceError{Message: "topic count failed", Err: err})
		return
	}
	var topics []models.Topic
	err = q.Order("important DESC, last_updated DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&topics).Error
	if err != nil {
		writeError(ctx, &apperr.PersistenceError{Message: "topic list failed", Err: err})
		return
	}
	views := make([]topicView, 0, len(topics))
	for i := range topics {
		unread, err := f.tracker.TopicIsUnread(user, &topics[i])
		if err != nil {
			writeError(ctx, err)
			return
		}
		views = append(views, topicView{Topic: topics[i], Unread: unread})
	}
	utils.Success(ctx, gin.H{
		"forum":  forum,
		"topics": views,
		"pagination": gin.H{
			"page": page, "page_size": pageSize, "total": total,
		},
	})
}

// GetTopic returns one topic page, bumps the view counter and records the
// read mark for the current user.
func (f *ForumController) GetTopic(ctx *gin.Context) {
	topicID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	var topic models.Topic
	if err := f.store.Get(&topic, topicID); err != nil {
		writeError(ctx, err)
		return
	}
	forum, err := f.loadForum(topic.ForumID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if !permissions.CanAccessForum(user, forum) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	if topic.Hidden && !permissions.CanViewHidden(user) {
		writeError(ctx, apperr.ErrNotFound)
		return
	}

	page, pageSize := pageParams(ctx, f.settings.Int(services.KeyPostsPerPage, 10))
	q := f.store.DB().Model(&models.Post{}).Where("topic_id = ?", topic.ID)
	if !permissions.CanViewHidden(user) {
		q = q.Where("hidden = ?", false)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		writeError(ctx, &apperr.PersistenceError{Message: "post count failed", Err: err})
		return
	}
	var posts []models.Post
	err = q.Order("date_created ASC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&posts).Error
	if err != nil {
		writeError(ctx, &apperr.PersistenceError{Message: "post list failed", Err: err})
		return
	}

	if err := f.forums.TopicTouch(topic.ID); err != nil {
		utils.Sugar.Warnw("view bump failed", "topic", topic.ID, "error", err)
	}
	if user != nil {
		if err := f.tracker.UpdateRead(user, &topic); err != nil {
			utils.Sugar.Warnw("read mark failed", "topic", topic.ID, "user", user.ID, "error", err)
		}
	}
	utils.Success(ctx, gin.H{
		"topic": topic,
		"posts": posts,
		"pagination": gin.H{
			"page": page, "page_size": pageSize, "total": total,
		},
	})
}

type createTopicRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// CreateTopic opens a topic in the forum from the path.
func (f *ForumController) CreateTopic(ctx *gin.Context) {
	forumID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	forum, err := f.loadForum(forumID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if !permissions.CanPostTopic(user, forum) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	var req createTopicRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	topic, err := f.forums.TopicCreate(user, forum.ID, req.Title, req.Content)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"topic": topic})
}

type postContentRequest struct {
	Content string `json:"content" binding:"required"`
}

// CreatePost replies to the topic from the path.
func (f *ForumController) CreatePost(ctx *gin.Context) {
	topicID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	var topic models.Topic
	if err := f.store.Get(&topic, topicID); err != nil {
		writeError(ctx, err)
		return
	}
	forum, err := f.loadForum(topic.ForumID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if !permissions.CanPostReply(user, &topic, forum) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	var req postContentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	post, err := f.forums.PostCreate(user, topic.ID, req.Content)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"post": post})
}

// postContext loads post, topic and forum for a post-level permission check.
func (f *ForumController) postContext(ctx *gin.Context) (*models.Post, *models.Topic, *models.Forum, bool) {
	postID, ok := uintParam(ctx, "id")
	if !ok {
		return nil, nil, nil, false
	}
	var post models.Post
	if err := f.store.Get(&post, postID); err != nil {
		writeError(ctx, err)
		return nil, nil, nil, false
	}
	var topic models.Topic
	if err := f.store.Get(&topic, post.TopicID); err != nil {
		writeError(ctx, err)
		return nil, nil, nil, false
	}
	forum, err := f.loadForum(topic.ForumID)
	if err != nil {
		writeError(ctx, err)
		return nil, nil, nil, false
	}
	return &post, &topic, forum, true
}

// EditPost replaces a post's content.
func (f *ForumController) EditPost(ctx *gin.Context) {
	post, topic, forum, ok := f.postContext(ctx)
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	if !permissions.CanEditPost(user, post, topic, forum) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	var req postContentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	edited, err := f.forums.PostEdit(user, post.ID, req.Content)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"post": edited})
}

// DeletePost removes a post, or the whole topic when it is the first post.
func (f *ForumController) DeletePost(ctx *gin.Context) {
	post, topic, forum, ok := f.postContext(ctx)
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	allowed := permissions.CanDeletePost(user, post, topic, forum)
	if post.IsFirst(topic) {
		allowed = permissions.CanDeleteTopic(user, topic, forum)
	}
	if !allowed {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	if err := f.forums.PostDelete(post.ID); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"deleted": true})
}

// HidePost tombstones a post.
func (f *ForumController) HidePost(ctx *gin.Context) {
	post, _, forum, ok := f.postContext(ctx)
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	if !permissions.CanHide(user) || !permissions.CanModerate(user, forum) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	if err := f.forums.PostHide(user, post.ID); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"hidden": true})
}

// UnhidePost restores a tombstoned post.
func (f *ForumController) UnhidePost(ctx *gin.Context) {
	post, _, forum, ok := f.postContext(ctx)
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	if !permissions.CanHide(user) || !permissions.CanModerate(user, forum) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	if err := f.forums.PostUnhide(post.ID); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"hidden": false})
}

// topicContext loads topic and forum for a topic-level permission check.
func (f *ForumController) topicContext(ctx *gin.Context) (*models.Topic, *models.Forum, bool) {
	topicID, ok := uintParam(ctx, "id")
	if !ok {
		return nil, nil, false
	}
	var topic models.Topic
	if err := f.store.Get(&topic, topicID); err != nil {
		writeError(ctx, err)
		return nil, nil, false
	}
	forum, err := f.loadForum(topic.ForumID)
	if err != nil {
		writeError(ctx, err)
		return nil, nil, false
	}
	return &topic, forum, true
}

// DeleteTopic removes a topic with all its posts.
func (f *ForumController) DeleteTopic(ctx *gin.Context) {
	topic, forum, ok := f.topicContext(ctx)
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	if !permissions.CanDeleteTopic(user, topic, forum) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	if err := f.forums.TopicDelete(topic.ID); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"deleted": true})
}

// HideTopic tombstones a topic together with its first post.
func (f *ForumController) HideTopic(ctx *gin.Context) {
	topic, forum, ok := f.topicContext(ctx)
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	if !permissions.CanHide(user) || !permissions.CanModerate(user, forum) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	if err := f.forums.TopicHide(user, topic.ID); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"hidden": true})
}

// UnhideTopic restores a tombstoned topic.
func (f *ForumController) UnhideTopic(ctx *gin.Context) {
	topic, forum, ok := f.topicContext(ctx)
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	if !permissions.CanHide(user) || !permissions.CanModerate(user, forum) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	if err := f.forums.TopicUnhide(topic.ID); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"hidden": false})
}

type moveTopicRequest struct {
	ForumID uint `json:"forum_id" binding:"required"`
}

// MoveTopic reassigns a topic to another forum. The user must moderate both.
func (f *ForumController) MoveTopic(ctx *gin.Context) {
	topic, forum, ok := f.topicContext(ctx)
	if !ok {
		return
	}
	var req moveTopicRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	user := middleware.CurrentUser(ctx)
	target, err := f.loadForum(req.ForumID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if !permissions.CanModerate(user, forum) || !permissions.CanModerate(user, target) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	if err := f.forums.TopicMove(topic.ID, target.ID); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"moved": true})
}

type lockTopicRequest struct {
	Locked bool `json:"locked"`
}

// LockTopic flips the locked flag on a topic.
func (f *ForumController) LockTopic(ctx *gin.Context) {
	topic, forum, ok := f.topicContext(ctx)
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	if !permissions.CanModerate(user, forum) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	var req lockTopicRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	if err := f.forums.TopicSetLocked(topic.ID, req.Locked); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"locked": req.Locked})
}

// MarkForumRead declares every topic in a forum read for the current user.
func (f *ForumController) MarkForumRead(ctx *gin.Context) {
	forumID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	forum, err := f.loadForum(forumID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if !permissions.CanAccessForum(user, forum) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	if err := f.tracker.MarkForumRead(user, forum); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"marked": true})
}

// TrackTopic subscribes the current user to a topic.
func (f *ForumController) TrackTopic(ctx *gin.Context) {
	topic, forum, ok := f.topicContext(ctx)
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	if !permissions.CanAccessForum(user, forum) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	if err := f.tracker.TrackTopic(user, topic.ID); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"tracked": true})
}

// UntrackTopic drops the current user's subscription to a topic.
func (f *ForumController) UntrackTopic(ctx *gin.Context) {
	topic, _, ok := f.topicContext(ctx)
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	if err := f.tracker.UntrackTopic(user, topic.ID); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"tracked": false})
}

// TrackedTopics lists the current user's subscribed topics.
func (f *ForumController) TrackedTopics(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	topics, err := f.tracker.TrackedTopics(user)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"topics": topics})
}

type reportRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ReportPost files a report against a post.
func (f *ForumController) ReportPost(ctx *gin.Context) {
	post, _, forum, ok := f.postContext(ctx)
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	if !permissions.CanAccessForum(user, forum) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	var req reportRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	report, err := f.forums.ReportPost(user, post.ID, req.Reason)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"report": report})
}

// ListReports returns open reports, newest first. Moderators only.
func (f *ForumController) ListReports(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	if !permissions.IsModerator(user) && !permissions.IsAdmin(user) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	var reports []models.Report
	err := f.store.DB().Where("zapped_at IS NULL").Order("reported_at DESC").Find(&reports).Error
	if err != nil {
		writeError(ctx, &apperr.PersistenceError{Message: "report list failed", Err: err})
		return
	}
	utils.Success(ctx, gin.H{"reports": reports})
}

// ZapReport resolves a report. Moderators only.
func (f *ForumController) ZapReport(ctx *gin.Context) {
	reportID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	if !permissions.IsModerator(user) && !permissions.IsAdmin(user) {
		writeError(ctx, apperr.ErrForbidden)
		return
	}
	if err := f.forums.ZapReport(user, reportID); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"zapped": true})
}

// RecalculateForum rebuilds a forum's counters. Admin only via routing.
func (f *ForumController) RecalculateForum(ctx *gin.Context) {
	forumID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	if err := f.forums.Recalculate(forumID, true); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"recalculated": true})
}
