//Package rfr implements reaction-for-role panels: chat messages whose reactions grant and revoke roles.
package rfr

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"github.com/callummance/koala/guildmodels"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

//ReactionEvent is a reaction added to or removed from a message in a guild
type ReactionEvent struct {
	GuildID   string
	ChannelID string
	MessageID string
	Emoji     *discordgo.Emoji
	UserID    string
	IsBot     bool
}

//Engine resolves reaction events against managed messages and keeps member roles consistent with them.
//Role membership on the platform is the durable state; every event re-derives what to do from it.
type Engine struct {
	store    Store
	platform Platform
	locks    *keyedMutex
}

//New creates an Engine backed by the given store and platform
func New(store Store, platform Platform) *Engine {
	return &Engine{
		store:    store,
		platform: platform,
		locks:    newKeyedMutex(),
	}
}

func eventLogger(ev ReactionEvent, action string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"event_id": uuid.NewString(),
		"action":   action,
		"guild":    ev.GuildID,
		"channel":  ev.ChannelID,
		"message":  ev.MessageID,
		"emoji":    EventEmojiKey(ev.Emoji),
		"user":     ev.UserID,
	})
}

//OnReactionAdded grants the bound role when an eligible member reacts to a managed message.
//Reactions without a binding are retracted, and a member who is no longer eligible loses every
//reaction role in the guild. Only storage failures are returned.
func (e *Engine) OnReactionAdded(ctx context.Context, ev ReactionEvent) error {
	if ev.GuildID == "" || ev.IsBot {
		return nil
	}
	msg, err := e.store.GetManagedMessage(ctx, ev.GuildID, ev.ChannelID, ev.MessageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	log := eventLogger(ev, "add")

	unlock := e.locks.Lock(memberKey(ev.GuildID, ev.UserID))
	defer unlock()

	bindings, err := e.store.GetBindings(ctx, msg.GroupID)
	if err != nil {
		return err
	}
	binding := findBinding(bindings, EventEmojiKey(ev.Emoji))
	if binding == nil {
		log.Warn("Reaction on managed message has no binding; retracting it")
		e.retract(ctx, log, msg, ev.Emoji, ev.UserID)
		return nil
	}

	required, err := e.store.ListRequiredRoles(ctx, ev.GuildID)
	if err != nil {
		return err
	}
	var member *discordgo.Member
	if len(required) > 0 {
		member, err = e.platform.Member(ctx, ev.GuildID, ev.UserID)
		if err != nil {
			logResolution(log, err, "Failed to fetch reacting member")
			e.retract(ctx, log, msg, ev.Emoji, ev.UserID)
			return nil
		}
	}
	if member == nil || IsEligible(member.Roles, required) {
		err := e.platform.AddRole(ctx, ev.GuildID, ev.UserID, binding.RoleID)
		if err != nil {
			logResolution(log.WithField("role", binding.RoleID), err, "Failed to grant reaction role")
			if IsResolution(err, UnknownRole) {
				e.retract(ctx, log, msg, ev.Emoji, ev.UserID)
			}
			return nil
		}
		log.WithField("role", binding.RoleID).Info("Granted reaction role")
		return nil
	}

	log.Info("Member is not eligible for reaction roles; sweeping their reaction roles")
	return e.sweep(ctx, log, ev.GuildID, ev.UserID, member.Roles)
}

//OnReactionRemoved revokes the bound role when a member removes their reaction from a managed message.
//Removal is never gated on eligibility.
func (e *Engine) OnReactionRemoved(ctx context.Context, ev ReactionEvent) error {
	if ev.GuildID == "" {
		return nil
	}
	msg, err := e.store.GetManagedMessage(ctx, ev.GuildID, ev.ChannelID, ev.MessageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	bindings, err := e.store.GetBindings(ctx, msg.GroupID)
	if err != nil {
		return err
	}
	binding := findBinding(bindings, EventEmojiKey(ev.Emoji))
	if binding == nil {
		return nil
	}
	log := eventLogger(ev, "remove").WithField("role", binding.RoleID)

	isBot := ev.IsBot
	if !isBot {
		member, err := e.platform.Member(ctx, ev.GuildID, ev.UserID)
		if err != nil {
			logResolution(log, err, "Failed to fetch member whose reaction was removed")
			return nil
		}
		isBot = member.User != nil && member.User.Bot
	}
	if isBot {
		return nil
	}

	unlock := e.locks.Lock(memberKey(ev.GuildID, ev.UserID))
	defer unlock()

	if err := e.platform.RemoveRole(ctx, ev.GuildID, ev.UserID, binding.RoleID); err != nil {
		logResolution(log, err, "Failed to revoke reaction role")
		return nil
	}
	log.Info("Revoked reaction role")
	return nil
}

//OnMessageDeleted forgets a managed message whose chat message has been deleted
func (e *Engine) OnMessageDeleted(ctx context.Context, guildID, channelID, messageID string) error {
	if guildID == "" {
		return nil
	}
	msg, err := e.store.GetManagedMessage(ctx, guildID, channelID, messageID)
	if err != nil || msg == nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"guild":   guildID,
		"channel": channelID,
		"message": messageID,
		"group":   msg.GroupID,
	}).Info("Managed message was deleted; removing it from the database")
	return e.store.DeleteManagedMessage(ctx, guildID, channelID, messageID)
}

//sweep strips every reaction role a member holds in the guild and removes their reactions from all
//managed messages there.
func (e *Engine) sweep(ctx context.Context, log *logrus.Entry, guildID, userID string, memberRoles []string) error {
	bound, err := e.store.ListGuildRolesBound(ctx, guildID)
	if err != nil {
		return err
	}
	held := make(map[string]struct{}, len(memberRoles))
	for _, r := range memberRoles {
		held[r] = struct{}{}
	}
	for _, roleID := range bound {
		if _, ok := held[roleID]; !ok {
			continue
		}
		if err := e.platform.RemoveRole(ctx, guildID, userID, roleID); err != nil {
			logResolution(log.WithField("role", roleID), err, "Failed to strip reaction role")
		}
	}

	msgs, err := e.store.ListManagedMessages(ctx, guildID)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		bindings, err := e.store.GetBindings(ctx, msg.GroupID)
		if err != nil {
			return err
		}
		for _, b := range bindings {
			err := e.platform.RemoveReaction(ctx, msg.ChannelID, msg.MessageID, ReactionAPIName(b.EmojiKey), userID)
			if err != nil {
				logResolution(log.WithField("group", msg.GroupID), err, "Failed to remove reaction during sweep")
				if IsResolution(err, UnknownMessage) || IsResolution(err, UnknownChannel) {
					break
				}
			}
		}
	}
	return nil
}

//retract removes a single member's reaction from a managed message
func (e *Engine) retract(ctx context.Context, log *logrus.Entry, msg *guildmodels.ManagedMessage, emoji *discordgo.Emoji, userID string) {
	if emoji == nil {
		return
	}
	apiName := emoji.APIName()
	if err := e.platform.RemoveReaction(ctx, msg.ChannelID, msg.MessageID, apiName, userID); err != nil {
		logResolution(log, err, "Failed to retract reaction")
	}
}

func findBinding(bindings []guildmodels.EmojiRoleBinding, emojiKey string) *guildmodels.EmojiRoleBinding {
	for i := range bindings {
		if SameEmoji(bindings[i].EmojiKey, emojiKey) {
			return &bindings[i]
		}
	}
	return nil
}

func logResolution(log *logrus.Entry, err error, msg string) {
	var re *ResolutionError
	if errors.As(err, &re) {
		log.WithFields(logrus.Fields{
			"kind":       re.Kind.String(),
			"missing_id": re.ID,
		}).Warnf("%v: %v", msg, err)
		return
	}
	log.Errorf("%v: %v", msg, err)
}
