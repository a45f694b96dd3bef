// Package permissions answers discrete capability questions about a user in a
// context (a forum, a topic, a post, or nothing). All predicates are pure
// functions over already-loaded model data.
package permissions

import "github.com/forumkit/forumkit/models"

// Perms is the effective flag set of a user, folded once across the primary
// and all secondary groups. A nil user resolves to the guest set.
type Perms struct {
	Admin    bool
	SuperMod bool
	Mod      bool
	Banned   bool
	Guest    bool

	EditPost    bool
	DeletePost  bool
	DeleteTopic bool
	PostTopic   bool
	PostReply   bool
	ModEditUser bool
	ModBanUser  bool
	ViewHidden  bool
	MakeHidden  bool
}

// For computes the effective permission set for a user. Membership in a
// banned group strips every other flag.
func For(user *models.User) Perms {
	if user == nil {
		return Perms{Guest: true}
	}
	var p Perms
	for _, g := range user.Groups() {
		if g.Banned {
			return Perms{Banned: true}
		}
		p.Admin = p.Admin || g.Admin
		p.SuperMod = p.SuperMod || g.SuperMod
		p.Mod = p.Mod || g.Mod
		p.Guest = p.Guest || g.Guest
		p.EditPost = p.EditPost || g.EditPost
		p.DeletePost = p.DeletePost || g.DeletePost
		p.DeleteTopic = p.DeleteTopic || g.DeleteTopic
		p.PostTopic = p.PostTopic || g.PostTopic
		p.PostReply = p.PostReply || g.PostReply
		p.ModEditUser = p.ModEditUser || g.ModEditUser
		p.ModBanUser = p.ModBanUser || g.ModBanUser
		p.ViewHidden = p.ViewHidden || g.ViewHidden
		p.MakeHidden = p.MakeHidden || g.MakeHidden
	}
	return p
}

// IsAdmin reports whether any effective group has the admin flag.
func IsAdmin(user *models.User) bool {
	return For(user).Admin
}

// IsModerator reports mod or super-mod membership.
func IsModerator(user *models.User) bool {
	p := For(user)
	return p.Mod || p.SuperMod
}

// CanModerate reports whether the user moderates the given forum: admins and
// super mods everywhere, mods only where assigned.
func CanModerate(user *models.User, forum *models.Forum) bool {
	if user == nil || forum == nil {
		return false
	}
	p := For(user)
	if p.Banned {
		return false
	}
	if p.Admin || p.SuperMod {
		return true
	}
	if !p.Mod {
		return false
	}
	for _, m := range forum.Moderators {
		if m.ID == user.ID {
			return true
		}
	}
	return false
}

// CanAccessForum reports whether the user's groups intersect the forum's
// access groups. Banned users keep read access to publicly listed forums.
func CanAccessForum(user *models.User, forum *models.Forum) bool {
	if forum == nil {
		return false
	}
	if len(forum.Groups) == 0 {
		return true
	}
	if user == nil {
		for _, g := range forum.Groups {
			if g.Guest {
				return true
			}
		}
		return false
	}
	for _, fg := range forum.Groups {
		if user.InGroup(fg.ID) {
			return true
		}
	}
	return false
}

// CanPostReply checks whether the user may reply in the topic.
func CanPostReply(user *models.User, topic *models.Topic, forum *models.Forum) bool {
	if user == nil || topic == nil || forum == nil {
		return false
	}
	if CanModerate(user, forum) {
		return true
	}
	p := For(user)
	return p.PostReply && !topic.Locked && !forum.Locked
}

// CanPostTopic checks whether the user may open a new topic in the forum.
func CanPostTopic(user *models.User, forum *models.Forum) bool {
	if user == nil || forum == nil || forum.IsExternal() {
		return false
	}
	if CanModerate(user, forum) {
		return true
	}
	p := For(user)
	return p.PostTopic && !forum.Locked
}

// CanEditPost checks moderator override or ownership plus the editpost flag
// on an unlocked topic and forum.
func CanEditPost(user *models.User, post *models.Post, topic *models.Topic, forum *models.Forum) bool {
	return ownerCapability(user, post, topic, forum, func(p Perms) bool { return p.EditPost })
}

// CanDeletePost is the deletepost analogue of CanEditPost.
func CanDeletePost(user *models.User, post *models.Post, topic *models.Topic, forum *models.Forum) bool {
	return ownerCapability(user, post, topic, forum, func(p Perms) bool { return p.DeletePost })
}

// CanDeleteTopic checks moderator override or ownership of the topic plus the
// deletetopic flag.
func CanDeleteTopic(user *models.User, topic *models.Topic, forum *models.Forum) bool {
	if user == nil || topic == nil || forum == nil {
		return false
	}
	if CanModerate(user, forum) {
		return true
	}
	p := For(user)
	if p.Banned || !p.DeleteTopic {
		return false
	}
	owns := topic.UserID != nil && *topic.UserID == user.ID
	return owns && !topic.Locked && !forum.Locked
}

// CanViewHidden reports the viewhidden flag in any effective group.
func CanViewHidden(user *models.User) bool {
	return For(user).ViewHidden
}

// CanHide reports the makehidden flag in any effective group.
func CanHide(user *models.User) bool {
	return For(user).MakeHidden
}

func ownerCapability(user *models.User, post *models.Post, topic *models.Topic, forum *models.Forum, flag func(Perms) bool) bool {
	if user == nil || post == nil || topic == nil || forum == nil {
		return false
	}
	if CanModerate(user, forum) {
		return true
	}
	p := For(user)
	if p.Banned || !flag(p) {
		return false
	}
	owns := post.UserID != nil && *post.UserID == user.ID
	return owns && !topic.Locked && !forum.Locked
}
