package rfr

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/bwmarrin/discordgo"
	"github.com/callummance/koala/guildmodels"
	"github.com/sirupsen/logrus"
)

//CreateManagedMessage posts a new reaction-role panel in a channel and starts managing it.
//The channel is locked so that only the bot can add new reactions there.
func (e *Engine) CreateManagedMessage(ctx context.Context, guildID, channelID, title, description string) (*guildmodels.ManagedMessage, error) {
	if err := e.platform.LockReactions(ctx, guildID, channelID); err != nil {
		return nil, err
	}
	draft := guildmodels.ManagedMessage{
		GuildID:     guildID,
		ChannelID:   channelID,
		Title:       title,
		Description: description,
	}
	messageID, err := e.platform.SendEmbed(ctx, channelID, ComposePanel(&draft, nil))
	if err != nil {
		return nil, err
	}
	draft.MessageID = messageID
	msg, err := e.store.CreateManagedMessage(ctx, draft)
	if err != nil {
		//Don't leave an unmanaged panel lying around
		if delErr := e.platform.DeleteMessage(ctx, channelID, messageID); delErr != nil {
			logrus.Warnf("Failed to delete panel %v:%v after store failure: %v", channelID, messageID, delErr)
		}
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"guild":   guildID,
		"channel": channelID,
		"message": messageID,
		"group":   msg.GroupID,
	}).Info("Created managed message")
	return msg, nil
}

//DeleteManagedMessage stops managing a message and deletes its panel
func (e *Engine) DeleteManagedMessage(ctx context.Context, guildID, channelID, messageID string) error {
	if err := e.store.DeleteManagedMessage(ctx, guildID, channelID, messageID); err != nil {
		return err
	}
	if err := e.platform.DeleteMessage(ctx, channelID, messageID); err != nil && !IsResolution(err, UnknownMessage) {
		logrus.Warnf("Failed to delete panel %v:%v: %v", channelID, messageID, err)
	}
	return nil
}

//ManagedMessage returns the managed message with the given group ID
func (e *Engine) ManagedMessage(ctx context.Context, groupID string) (*guildmodels.ManagedMessage, error) {
	msg, err := e.store.GetManagedMessageByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownGroup, groupID)
	}
	return msg, nil
}

//FindManagedMessage returns the managed message for a guild/channel/message triple, or nil
func (e *Engine) FindManagedMessage(ctx context.Context, guildID, channelID, messageID string) (*guildmodels.ManagedMessage, error) {
	return e.store.GetManagedMessage(ctx, guildID, channelID, messageID)
}

//ListManagedMessages returns every managed message in a guild
func (e *Engine) ListManagedMessages(ctx context.Context, guildID string) ([]guildmodels.ManagedMessage, error) {
	return e.store.ListManagedMessages(ctx, guildID)
}

//Bindings returns the bindings on a managed message
func (e *Engine) Bindings(ctx context.Context, groupID string) ([]guildmodels.EmojiRoleBinding, error) {
	if _, err := e.ManagedMessage(ctx, groupID); err != nil {
		return nil, err
	}
	return e.store.GetBindings(ctx, groupID)
}

//RemainingSlots returns how many more bindings a managed message can hold
func (e *Engine) RemainingSlots(ctx context.Context, groupID string) (int, error) {
	bindings, err := e.Bindings(ctx, groupID)
	if err != nil {
		return 0, err
	}
	return guildmodels.MaxBindingsPerMessage - len(bindings), nil
}

//AddBindings adds emoji-role pairs to a managed message, updating its panel and seeding the reactions.
//It returns the number of new bindings. Storage errors stop the batch; bindings added before the error
//are kept and counted.
func (e *Engine) AddBindings(ctx context.Context, groupID string, pairs []Binding) (int, error) {
	msg, err := e.ManagedMessage(ctx, groupID)
	if err != nil {
		return 0, err
	}
	existing, err := e.store.GetBindings(ctx, groupID)
	if err != nil {
		return 0, err
	}
	remaining := guildmodels.MaxBindingsPerMessage - len(existing)
	added := make([]Binding, 0, len(pairs))
	var addErr error
	for _, pair := range pairs {
		if hasExactBinding(existing, pair) {
			continue
		}
		if len(added) >= remaining {
			addErr = fmt.Errorf("%w: at most %d bindings per message", ErrBindingLimit, guildmodels.MaxBindingsPerMessage)
			break
		}
		if err := e.store.AddBinding(ctx, groupID, pair.EmojiKey, pair.RoleID); err != nil {
			addErr = err
			break
		}
		added = append(added, pair)
		existing = append(existing, guildmodels.EmojiRoleBinding{GroupID: groupID, EmojiKey: pair.EmojiKey, RoleID: pair.RoleID})
	}
	if len(added) > 0 {
		e.refreshPanel(ctx, msg)
		for _, pair := range added {
			if err := e.platform.AddReaction(ctx, msg.ChannelID, msg.MessageID, ReactionAPIName(pair.EmojiKey)); err != nil {
				logrus.Warnf("Failed to seed reaction %v on %v:%v: %v", pair.EmojiKey, msg.ChannelID, msg.MessageID, err)
			}
		}
	}
	return len(added), addErr
}

//RemoveBindings removes bindings selected by emoji or role from a managed message, clearing the matching
//reactions and updating its panel. It returns the number of bindings removed.
func (e *Engine) RemoveBindings(ctx context.Context, groupID string, selectors []Selector) (int, error) {
	msg, err := e.ManagedMessage(ctx, groupID)
	if err != nil {
		return 0, err
	}
	existing, err := e.store.GetBindings(ctx, groupID)
	if err != nil {
		return 0, err
	}
	removed := 0
	var removeErr error
	for _, sel := range selectors {
		target := selectBinding(existing, sel)
		n, err := e.store.RemoveBinding(ctx, groupID, sel.EmojiKey, sel.RoleID)
		if err != nil {
			removeErr = err
			break
		}
		removed += int(n)
		if n > 0 && target != nil {
			err := e.platform.ClearReaction(ctx, msg.ChannelID, msg.MessageID, ReactionAPIName(target.EmojiKey))
			if err != nil {
				logrus.Warnf("Failed to clear reaction %v on %v:%v: %v", target.EmojiKey, msg.ChannelID, msg.MessageID, err)
			}
		}
	}
	if removed > 0 {
		e.refreshPanel(ctx, msg)
	}
	return removed, removeErr
}

//EditManagedMessage changes the title and description shown on a managed message's panel
func (e *Engine) EditManagedMessage(ctx context.Context, groupID, title, description string) error {
	msg, err := e.ManagedMessage(ctx, groupID)
	if err != nil {
		return err
	}
	if err := e.store.UpdateManagedMessage(ctx, groupID, title, description); err != nil {
		return err
	}
	msg.Title = title
	msg.Description = description
	e.refreshPanel(ctx, msg)
	return nil
}

//Fix re-renders a managed message's panel and re-seeds its reactions. If the chat message no longer
//exists the managed message is deleted and a ResolutionError is returned.
func (e *Engine) Fix(ctx context.Context, groupID string) error {
	msg, err := e.ManagedMessage(ctx, groupID)
	if err != nil {
		return err
	}
	live, err := e.platform.Message(ctx, msg.ChannelID, msg.MessageID)
	if err != nil {
		if IsResolution(err, UnknownMessage) || IsResolution(err, UnknownChannel) {
			logrus.Warnf("Managed message %v is gone from discord; deleting it", groupID)
			if delErr := e.store.DeleteManagedMessage(ctx, msg.GuildID, msg.ChannelID, msg.MessageID); delErr != nil {
				return delErr
			}
		}
		return err
	}
	bindings, err := e.store.GetBindings(ctx, groupID)
	if err != nil {
		return err
	}
	for _, stale := range staleFields(live, bindings) {
		err := &ResolutionError{Kind: UnknownField, ID: stale, GuildID: msg.GuildID}
		logrus.WithField("group", groupID).Warnf("Panel shows a field with no binding: %v", err)
	}
	if err := e.platform.EditEmbed(ctx, msg.ChannelID, msg.MessageID, ComposePanel(msg, bindings)); err != nil {
		return err
	}
	for _, b := range bindings {
		if err := e.platform.AddReaction(ctx, msg.ChannelID, msg.MessageID, ReactionAPIName(b.EmojiKey)); err != nil {
			logrus.Warnf("Failed to seed reaction %v on %v:%v: %v", b.EmojiKey, msg.ChannelID, msg.MessageID, err)
		}
	}
	return nil
}

//SetRequiredRoles replaces the roles gating reaction roles in a guild
func (e *Engine) SetRequiredRoles(ctx context.Context, guildID string, roleIDs []string) error {
	return e.store.SetRequiredRoles(ctx, guildID, dedupe(roleIDs))
}

//AddRequiredRole adds a role to those gating reaction roles in a guild
func (e *Engine) AddRequiredRole(ctx context.Context, guildID, roleID string) error {
	return e.store.AddRequiredRole(ctx, guildID, roleID)
}

//RemoveRequiredRole removes a role from those gating reaction roles in a guild
func (e *Engine) RemoveRequiredRole(ctx context.Context, guildID, roleID string) error {
	return e.store.RemoveRequiredRole(ctx, guildID, roleID)
}

//ListRequiredRoles returns the roles gating reaction roles in a guild
func (e *Engine) ListRequiredRoles(ctx context.Context, guildID string) ([]string, error) {
	return e.store.ListRequiredRoles(ctx, guildID)
}

//EnforceGuild sweeps every non-bot member of a guild who holds a reaction role but is not eligible for
//one. It returns the number of members swept.
func (e *Engine) EnforceGuild(ctx context.Context, guildID string) (int, error) {
	required, err := e.store.ListRequiredRoles(ctx, guildID)
	if err != nil {
		return 0, err
	}
	if len(required) == 0 {
		return 0, nil
	}
	bound, err := e.store.ListGuildRolesBound(ctx, guildID)
	if err != nil {
		return 0, err
	}
	return e.enforce(ctx, guildID, required, bound, e.platform.Members(ctx, guildID))
}

func (e *Engine) enforce(ctx context.Context, guildID string, required, bound []string, members iter.Seq2[*discordgo.Member, error]) (int, error) {
	swept := 0
	for member, err := range members {
		if err != nil {
			return swept, err
		}
		if member.User == nil || member.User.Bot || IsEligible(member.Roles, required) {
			continue
		}
		if !holdsAny(member.Roles, bound) {
			continue
		}
		log := logrus.WithFields(logrus.Fields{"guild": guildID, "user": member.User.ID, "action": "enforce"})
		unlock := e.locks.Lock(memberKey(guildID, member.User.ID))
		sweepErr := e.sweep(ctx, log, guildID, member.User.ID, member.Roles)
		unlock()
		if sweepErr != nil {
			return swept, sweepErr
		}
		swept++
	}
	return swept, nil
}

func (e *Engine) refreshPanel(ctx context.Context, msg *guildmodels.ManagedMessage) {
	bindings, err := e.store.GetBindings(ctx, msg.GroupID)
	if err != nil {
		logrus.Warnf("Failed to load bindings to refresh panel %v: %v", msg.GroupID, err)
		return
	}
	if err := e.platform.EditEmbed(ctx, msg.ChannelID, msg.MessageID, ComposePanel(msg, bindings)); err != nil {
		logResolution(logrus.WithField("group", msg.GroupID), err, "Failed to refresh panel")
	}
}

func staleFields(live *discordgo.Message, bindings []guildmodels.EmojiRoleBinding) []string {
	if live == nil || len(live.Embeds) == 0 {
		return nil
	}
	var stale []string
	for _, field := range live.Embeds[0].Fields {
		found := false
		for _, b := range bindings {
			if field.Name == DisplayEmoji(b.EmojiKey) {
				found = true
				break
			}
		}
		if !found {
			stale = append(stale, field.Name)
		}
	}
	return stale
}

func hasExactBinding(existing []guildmodels.EmojiRoleBinding, pair Binding) bool {
	for _, b := range existing {
		if SameEmoji(b.EmojiKey, pair.EmojiKey) && b.RoleID == pair.RoleID {
			return true
		}
	}
	return false
}

func selectBinding(existing []guildmodels.EmojiRoleBinding, sel Selector) *guildmodels.EmojiRoleBinding {
	for i := range existing {
		if sel.EmojiKey != "" {
			if SameEmoji(existing[i].EmojiKey, sel.EmojiKey) {
				return &existing[i]
			}
		} else if existing[i].RoleID == sel.RoleID {
			return &existing[i]
		}
	}
	return nil
}

func holdsAny(memberRoles []string, roles []string) bool {
	for _, r := range memberRoles {
		for _, b := range roles {
			if r == b {
				return true
			}
		}
	}
	return false
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	return res
}

//IsUserError reports whether err was caused by operator input rather than an internal failure
func IsUserError(err error) bool {
	var pe *ParseError
	var re *ResolutionError
	return errors.Is(err, ErrUnknownGroup) || errors.Is(err, ErrBindingLimit) || errors.As(err, &pe) || errors.As(err, &re)
}
