package guildmodels

import (
	"fmt"
	"regexp"
)

//MaxBindingsPerMessage is the number of emoji-role pairs a single managed message can hold.
//Discord limits both embed fields and distinct reactions on a message, so this is a hard cap.
const MaxBindingsPerMessage = 20

//ManagedMessage identifies a chat message which acts as a reaction-for-role panel.
//GroupID is a surrogate key referenced by the panel's bindings.
type ManagedMessage struct {
	GroupID     string `gorm:"primaryKey;size:36" gorethink:"id" json:"group_id"`
	GuildID     string `gorm:"size:32;not null;uniqueIndex:idx_rfr_message,priority:1" gorethink:"guild_id" json:"guild_id"`
	ChannelID   string `gorm:"size:32;not null;uniqueIndex:idx_rfr_message,priority:2" gorethink:"channel_id" json:"channel_id"`
	MessageID   string `gorm:"size:32;not null;uniqueIndex:idx_rfr_message,priority:3" gorethink:"message_id" json:"message_id"`
	Title       string `gorm:"size:256" gorethink:"title" json:"title"`
	Description string `gorm:"size:2048" gorethink:"description" json:"description"`
}

//TableName sets the table used for managed messages
func (ManagedMessage) TableName() string {
	return "rfr_messages"
}

//Ref returns the guild/channel/message triple for this managed message
func (m *ManagedMessage) Ref() MessageRef {
	return MessageRef{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.MessageID,
	}
}

//EmojiRoleBinding maps one emoji to one role on a single managed message.
//EmojiID is the emoji's identity (see EmojiIdentity) and is what uniqueness is enforced on, so a custom emoji
//that was renamed or typed with a different name still counts as the same emoji.
type EmojiRoleBinding struct {
	ID       uint   `gorm:"primaryKey" gorethink:"-" json:"-"`
	GroupID  string `gorm:"size:36;not null;uniqueIndex:idx_rfr_group_emoji,priority:1;uniqueIndex:idx_rfr_group_role,priority:1" gorethink:"group_id" json:"group_id"`
	EmojiKey string `gorm:"size:128;not null" gorethink:"emoji_key" json:"emoji_key"`
	EmojiID  string `gorm:"size:128;not null;uniqueIndex:idx_rfr_group_emoji,priority:2" gorethink:"emoji_id" json:"emoji_id"`
	RoleID   string `gorm:"size:32;not null;uniqueIndex:idx_rfr_group_role,priority:2" gorethink:"role_id" json:"role_id"`
}

var customEmojiKeyRegex = regexp.MustCompile(`^<a?:[A-Za-z0-9_~]+:(\d+)>$`)

//EmojiIdentity reduces an emoji key to the part that identifies the emoji: the snowflake of a custom emoji,
//or the `:alias:` key of a unicode emoji.
func EmojiIdentity(key string) string {
	if m := customEmojiKeyRegex.FindStringSubmatch(key); m != nil {
		return m[1]
	}
	return key
}

//TableName sets the table used for emoji-role bindings
func (EmojiRoleBinding) TableName() string {
	return "rfr_bindings"
}

//GuildRequiredRole is a role which a member must hold (any one of) to use reaction roles in a guild.
type GuildRequiredRole struct {
	GuildID string `gorm:"primaryKey;size:32" gorethink:"guild_id" json:"guild_id"`
	RoleID  string `gorm:"primaryKey;size:32" gorethink:"role_id" json:"role_id"`
}

//TableName sets the table used for required roles
func (GuildRequiredRole) TableName() string {
	return "rfr_required_roles"
}

//MessageRef contains the details needed to specify a single discord message
type MessageRef struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

//Link returns a URL which jumps to the referenced message in the discord client
func (r MessageRef) Link() string {
	return fmt.Sprintf("https://discord.com/channels/%v/%v/%v", r.GuildID, r.ChannelID, r.MessageID)
}
