package services

import (
	"github.com/forumkit/forumkit/apperr"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/store"
)

type settingSeed struct {
	key       string
	value     interface{}
	valueType string
	name      string
	desc      string
}

var defaultSettings = []settingSeed{
	{KeyTrackerLength, 7, models.SettingInteger, "Tracker length", "Days a topic stays in the unread tracker. 0 disables tracking."},
	{KeyTopicsPerPage, 10, models.SettingInteger, "Topics per page", "Topics shown on a forum page."},
	{KeyPostsPerPage, 10, models.SettingInteger, "Posts per page", "Posts shown on a topic page."},
	{KeyUsersPerPage, 10, models.SettingInteger, "Users per page", "Users shown on the member list."},
	{KeyTitleLength, 151, models.SettingInteger, "Title length", "Maximum length of a topic title."},
	{KeyActivateAccount, true, models.SettingBoolean, "Account activation", "Require email activation before login."},
	{KeyAuthRatelimitEnabled, true, models.SettingBoolean, "Login rate limit", "Lock accounts after repeated failed logins."},
	{KeyAuthRequests, 3, models.SettingInteger, "Login attempts", "Failed logins before the lockout window applies."},
	{KeyAuthTimeout, 15, models.SettingInteger, "Login timeout", "Lockout window in minutes."},
	{KeyAvatarWidth, 200, models.SettingInteger, "Avatar width", "Maximum avatar width in pixels."},
	{KeyAvatarHeight, 200, models.SettingInteger, "Avatar height", "Maximum avatar height in pixels."},
	{KeyAvatarSize, 200, models.SettingInteger, "Avatar size", "Maximum avatar size in kilobytes."},
	{KeyAvatarTypes, []string{"image/png", "image/jpeg", "image/gif"}, models.SettingSelectMultiple, "Avatar types", "Allowed avatar content types."},
}

var defaultGroups = []models.Group{
	{Name: "Administrator", Description: "The administrator group", Admin: true,
		EditPost: true, DeletePost: true, DeleteTopic: true, PostTopic: true, PostReply: true,
		ModEditUser: true, ModBanUser: true, ViewHidden: true, MakeHidden: true},
	{Name: "Super Moderator", Description: "The super moderator group", SuperMod: true,
		EditPost: true, DeletePost: true, DeleteTopic: true, PostTopic: true, PostReply: true,
		ModEditUser: true, ModBanUser: true, ViewHidden: true, MakeHidden: true},
	{Name: "Moderator", Description: "The moderator group", Mod: true,
		EditPost: true, DeletePost: true, DeleteTopic: true, PostTopic: true, PostReply: true,
		ViewHidden: true, MakeHidden: true},
	{Name: "Member", Description: "The default member group",
		EditPost: true, PostTopic: true, PostReply: true},
	{Name: "Banned", Description: "The banned group", Banned: true},
	{Name: "Guest", Description: "The guest group", Guest: true},
}

// Bootstrap seeds the default groups and settings when missing. Existing rows
// are never overwritten, so admin edits survive restarts.
func Bootstrap(st *store.Store) error {
	return st.Tx(func(tx *store.Store) error {
		for i := range defaultGroups {
			var existing models.Group
			err := tx.FindOneBy(&existing, "name = ?", defaultGroups[i].Name)
			if err == apperr.ErrNotFound {
				g := defaultGroups[i]
				if err := tx.Add(&g); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
		}

		var group models.SettingsGroup
		err := tx.FindOneBy(&group, "`key` = ?", "general")
		if err == apperr.ErrNotFound {
			group = models.SettingsGroup{Key: "general", Name: "General", Description: "Core board settings"}
			if err := tx.Add(&group); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		for _, seed := range defaultSettings {
			var existing models.Setting
			err := tx.FindOneBy(&existing, "`key` = ?", seed.key)
			if err == apperr.ErrNotFound {
				encoded, encErr := models.EncodeSettingValue(seed.valueType, seed.value)
				if encErr != nil {
					return encErr
				}
				row := models.Setting{
					Key:         seed.key,
					Value:       encoded,
					ValueType:   seed.valueType,
					GroupKey:    group.Key,
					Name:        seed.name,
					Description: seed.desc,
				}
				if err := tx.Add(&row); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}
