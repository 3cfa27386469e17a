package discord

import (
	"context"
	"errors"
	"iter"

	"github.com/bwmarrin/discordgo"
	"github.com/callummance/koala/rfr"
)

//Platform performs the chat operations the reaction-role engine needs through the Discord REST API.
//Errors caused by missing members, channels, messages or roles are reported as rfr.ResolutionError.
type Platform struct {
	s *discordgo.Session
}

//NewPlatform wraps a discordgo session
func NewPlatform(s *discordgo.Session) *Platform {
	return &Platform{s: s}
}

//target names the entities an API call referred to, so that a not-found error can say which one is gone
type target struct {
	guild   string
	channel string
	message string
	user    string
	role    string
}

func resolutionErr(err error, t target) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return err
	}
	var (
		kind rfr.ResolutionKind
		id   string
	)
	switch restErr.Message.Code {
	case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser:
		kind, id = rfr.UnknownMember, t.user
	case discordgo.ErrCodeUnknownChannel:
		kind, id = rfr.UnknownChannel, t.channel
	case discordgo.ErrCodeUnknownMessage:
		kind, id = rfr.UnknownMessage, t.message
	case discordgo.ErrCodeUnknownRole:
		kind, id = rfr.UnknownRole, t.role
	default:
		return err
	}
	return &rfr.ResolutionError{Kind: kind, ID: id, GuildID: t.guild, Err: err}
}

func (p *Platform) Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	m, err := p.s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, resolutionErr(err, target{guild: guildID, user: userID})
	}
	return m, nil
}

func (p *Platform) Members(ctx context.Context, guildID string) iter.Seq2[*discordgo.Member, error] {
	return guildMembers(func(after string, limit int) ([]*discordgo.Member, error) {
		return p.s.GuildMembers(guildID, after, limit, discordgo.WithContext(ctx))
	})
}

func (p *Platform) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	err := p.s.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
	return resolutionErr(err, target{guild: guildID, user: userID, role: roleID})
}

func (p *Platform) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	err := p.s.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
	return resolutionErr(err, target{guild: guildID, user: userID, role: roleID})
}

func (p *Platform) Message(ctx context.Context, channelID, messageID string) (*discordgo.Message, error) {
	m, err := p.s.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, resolutionErr(err, target{channel: channelID, message: messageID})
	}
	return m, nil
}

func (p *Platform) SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error) {
	m, err := p.s.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return "", resolutionErr(err, target{channel: channelID})
	}
	return m.ID, nil
}

func (p *Platform) EditEmbed(ctx context.Context, channelID, messageID string, embed *discordgo.MessageEmbed) error {
	_, err := p.s.ChannelMessageEditEmbed(channelID, messageID, embed, discordgo.WithContext(ctx))
	return resolutionErr(err, target{channel: channelID, message: messageID})
}

func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := p.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	return resolutionErr(err, target{channel: channelID, message: messageID})
}

func (p *Platform) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	err := p.s.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx))
	return resolutionErr(err, target{channel: channelID, message: messageID})
}

func (p *Platform) RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error {
	err := p.s.MessageReactionRemove(channelID, messageID, emoji, userID, discordgo.WithContext(ctx))
	return resolutionErr(err, target{channel: channelID, message: messageID, user: userID})
}

func (p *Platform) ClearReaction(ctx context.Context, channelID, messageID, emoji string) error {
	err := p.s.MessageReactionsRemoveEmoji(channelID, messageID, emoji, discordgo.WithContext(ctx))
	return resolutionErr(err, target{channel: channelID, message: messageID})
}

//LockReactions stops everyone but the bot from adding new reactions in a channel. Members can still use
//the reactions already on a message. Existing permission overwrites are kept.
func (p *Platform) LockReactions(ctx context.Context, guildID, channelID string) error {
	ch, err := p.s.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return resolutionErr(err, target{guild: guildID, channel: channelID})
	}
	botID := ""
	if p.s.State != nil && p.s.State.User != nil {
		botID = p.s.State.User.ID
	}
	//The @everyone role shares its ID with the guild
	everyone := findOverwrite(ch.PermissionOverwrites, guildID)
	err = p.s.ChannelPermissionSet(channelID, guildID, discordgo.PermissionOverwriteTypeRole,
		everyone.Allow&^discordgo.PermissionAddReactions,
		everyone.Deny|discordgo.PermissionAddReactions,
		discordgo.WithContext(ctx))
	if err != nil {
		return resolutionErr(err, target{guild: guildID, channel: channelID})
	}
	if botID == "" {
		return nil
	}
	self := findOverwrite(ch.PermissionOverwrites, botID)
	err = p.s.ChannelPermissionSet(channelID, botID, discordgo.PermissionOverwriteTypeMember,
		self.Allow|discordgo.PermissionAddReactions,
		self.Deny&^discordgo.PermissionAddReactions,
		discordgo.WithContext(ctx))
	return resolutionErr(err, target{guild: guildID, channel: channelID, user: botID})
}

func findOverwrite(overwrites []*discordgo.PermissionOverwrite, id string) discordgo.PermissionOverwrite {
	for _, o := range overwrites {
		if o != nil && o.ID == id {
			return *o
		}
	}
	return discordgo.PermissionOverwrite{ID: id}
}

//GuildRoles lists the roles of a guild, preferring the gateway's cached state
func (p *Platform) GuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	if p.s.State != nil {
		if g, err := p.s.State.Guild(guildID); err == nil && len(g.Roles) > 0 {
			return g.Roles, nil
		}
	}
	roles, err := p.s.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, resolutionErr(err, target{guild: guildID})
	}
	return roles, nil
}

//GuildOwner returns the user ID of a guild's owner
func (p *Platform) GuildOwner(ctx context.Context, guildID string) (string, error) {
	if p.s.State != nil {
		if g, err := p.s.State.Guild(guildID); err == nil && g.OwnerID != "" {
			return g.OwnerID, nil
		}
	}
	g, err := p.s.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", resolutionErr(err, target{guild: guildID})
	}
	return g.OwnerID, nil
}
