package bot

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/callummance/koala/guildmodels"
	"github.com/callummance/koala/rfr"
)

//Embeds can hold at most 25 fields
const maxListedPanels int = 25

var rfrCommands = map[string]command{
	"create": {
		syntax:     "`!rfr create [#channel] [title]` followed by an optional description on the next lines",
		predicates: adminOnly,
		run:        runRFRCreate,
	},
	"delete": {
		syntax:     "`!rfr delete <message link>`",
		predicates: adminOnly,
		run:        runRFRDelete,
	},
	"addroles": {
		syntax:     "`!rfr addroles <message link>` followed by one `<emoji>, <role>` pair per line",
		predicates: adminOnly,
		run:        runRFRAddRoles,
	},
	"removeroles": {
		syntax:     "`!rfr removeroles <message link>` followed by one emoji or role per line",
		predicates: adminOnly,
		run:        runRFRRemoveRoles,
	},
	"list": {
		syntax:     "`!rfr list`",
		predicates: adminOnly,
		run:        runRFRList,
	},
	"fix": {
		syntax:     "`!rfr fix <message link>`",
		predicates: adminOnly,
		run:        runRFRFix,
	},
	"edittitle": {
		syntax:     "`!rfr edittitle <message link> <title>`",
		predicates: adminOnly,
		run:        runRFREditTitle,
	},
	"editdescription": {
		syntax:     "`!rfr editdescription <message link>` followed by the new description on the next lines",
		predicates: adminOnly,
		run:        runRFREditDescription,
	},
	"addrequiredrole": {
		syntax:     "`!rfr addrequiredrole <role>`",
		predicates: adminOnly,
		run:        runRFRAddRequiredRole,
	},
	"removerequiredrole": {
		syntax:     "`!rfr removerequiredrole <role>`",
		predicates: adminOnly,
		run:        runRFRRemoveRequiredRole,
	},
	"setrequiredroles": {
		syntax:     "`!rfr setrequiredroles [@role ...]` or one role per line; no roles clears the requirement",
		predicates: adminOnly,
		run:        runRFRSetRequiredRoles,
	},
	"listrequiredroles": {
		syntax:     "`!rfr listrequiredroles`",
		predicates: adminOnly,
		run:        runRFRListRequiredRoles,
	},
	"enforce": {
		syntax:     "`!rfr enforce`",
		predicates: adminOnly,
		run:        runRFREnforce,
	},
}

func rfrSyntax() string {
	var sb strings.Builder
	for _, name := range slices.Sorted(maps.Keys(rfrCommands)) {
		sb.WriteString(rfrCommands[name].syntax)
		sb.WriteString("\n")
	}
	return sb.String()
}

//runRFR dispatches `!rfr <subcommand>`
func runRFR(ctx context.Context, b *KoalaBot, req request) KoalaResponse {
	name, args := nextWord(req.args)
	sub, ok := rfrCommands[name]
	if !ok {
		if name == "" {
			return req.syntaxError("No subcommand was given")
		}
		return req.syntaxError(fmt.Sprintf("I don't know the subcommand `%v`", name))
	}
	return b.execute(ctx, sub, request{
		msg:     req.msg,
		command: req.command + " " + name,
		syntax:  sub.syntax,
		args:    args,
	})
}

//managedMessage finds the panel a message link, channel:message pair or group ID refers to
func (b *KoalaBot) managedMessage(ctx context.Context, req request, refStr string) (*guildmodels.ManagedMessage, KoalaResponse) {
	refStr = strings.TrimSpace(refStr)
	if refStr == "" {
		return nil, req.syntaxError("No message was given")
	}
	guildID := req.msg.GuildID
	if ref, ok := interpretMessageRef(refStr); ok {
		if ref.guildID != "" && ref.guildID != guildID {
			return nil, req.syntaxError("That message is in a different server")
		}
		msg, err := b.Engine.FindManagedMessage(ctx, guildID, ref.channelID, ref.messageID)
		if err != nil {
			return nil, req.failure(err)
		}
		if msg == nil {
			return nil, req.syntaxError("That message is not a reaction-role panel")
		}
		return msg, nil
	}
	msg, err := b.Engine.ManagedMessage(ctx, refStr)
	if err != nil {
		return nil, req.failure(err)
	}
	if msg.GuildID != guildID {
		return nil, req.failure(fmt.Errorf("%w: %v", rfr.ErrUnknownGroup, refStr))
	}
	return msg, nil
}

func runRFRCreate(ctx context.Context, b *KoalaBot, req request) KoalaResponse {
	first, rest := splitFirstLine(req.args)
	channelID := req.msg.ChannelID
	title := first
	if word, remainder := nextWord(first); word != "" {
		if ch, ok := interpretChannel(word); ok {
			channelID = ch
			title = strings.TrimSpace(remainder)
		}
	}
	description := strings.TrimSpace(strings.Join(rest, "\n"))

	msg, err := b.Engine.CreateManagedMessage(ctx, req.msg.GuildID, channelID, title, description)
	if err != nil {
		return req.failure(err)
	}
	return req.success("Created a new reaction-role panel. Add roles to it with `!rfr addroles`.", map[string]string{
		"Message":  msg.Ref().Link(),
		"Group ID": msg.GroupID,
	})
}

func runRFRDelete(ctx context.Context, b *KoalaBot, req request) KoalaResponse {
	ref, _ := splitFirstLine(req.args)
	msg, resp := b.managedMessage(ctx, req, ref)
	if resp != nil {
		return resp
	}
	if err := b.Engine.DeleteManagedMessage(ctx, msg.GuildID, msg.ChannelID, msg.MessageID); err != nil {
		return req.failure(err)
	}
	return req.success("Deleted the reaction-role panel.", nil)
}

func runRFRAddRoles(ctx context.Context, b *KoalaBot, req request) KoalaResponse {
	ref, lines := splitFirstLine(req.args)
	msg, resp := b.managedMessage(ctx, req, ref)
	if resp != nil {
		return resp
	}
	remaining, err := b.Engine.RemainingSlots(ctx, msg.GroupID)
	if err != nil {
		return req.failure(err)
	}
	if remaining <= 0 {
		return req.syntaxError(fmt.Sprintf("That panel already has the maximum of %d roles", guildmodels.MaxBindingsPerMessage))
	}

	problems := make(map[string]string)
	var pairs []rfr.Binding
	seen := 0
	for binding, err := range rfr.ParseBindings(b.newRoleResolver(ctx), req.msg.GuildID, lines, remaining) {
		seen++
		if err != nil {
			var pe *rfr.ParseError
			if !errors.As(err, &pe) {
				return req.internalError("Failed to look up roles", err)
			}
			problems[fmt.Sprintf("Line %d", pe.Line)] = pe.Reason
			continue
		}
		pairs = append(pairs, binding)
	}
	if skipped := nonBlank(lines) - seen; skipped > 0 {
		problems["Skipped"] = fmt.Sprintf("%d line(s) were ignored as a panel holds at most %d roles", skipped, guildmodels.MaxBindingsPerMessage)
	}
	if len(pairs) == 0 && len(problems) == 0 {
		return req.syntaxError("No `<emoji>, <role>` pairs were given")
	}

	added, err := b.Engine.AddBindings(ctx, msg.GroupID, pairs)
	if err != nil {
		if !isUserError(err) {
			return req.internalError(fmt.Sprintf("Failed after adding %d role(s)", added), err)
		}
		problems["Error"] = err.Error()
	}
	summary := fmt.Sprintf("Added %d role(s) to the panel.", added)
	if already := len(pairs) - added; err == nil && already > 0 {
		summary += fmt.Sprintf(" %d were already on it.", already)
	}
	if len(problems) > 0 {
		return req.partialSuccess(summary, problems)
	}
	return req.success(summary, nil)
}

func runRFRRemoveRoles(ctx context.Context, b *KoalaBot, req request) KoalaResponse {
	ref, lines := splitFirstLine(req.args)
	msg, resp := b.managedMessage(ctx, req, ref)
	if resp != nil {
		return resp
	}

	problems := make(map[string]string)
	var selectors []rfr.Selector
	for sel, err := range rfr.ParseSelectors(b.newRoleResolver(ctx), req.msg.GuildID, lines) {
		if err != nil {
			var pe *rfr.ParseError
			if !errors.As(err, &pe) {
				return req.internalError("Failed to look up roles", err)
			}
			problems[fmt.Sprintf("Line %d", pe.Line)] = pe.Reason
			continue
		}
		selectors = append(selectors, sel)
	}
	if len(selectors) == 0 && len(problems) == 0 {
		return req.syntaxError("No emoji or roles to remove were given")
	}

	removed, err := b.Engine.RemoveBindings(ctx, msg.GroupID, selectors)
	if err != nil {
		return req.internalError(fmt.Sprintf("Failed after removing %d role(s)", removed), err)
	}
	summary := fmt.Sprintf("Removed %d role(s) from the panel.", removed)
	if len(problems) > 0 {
		return req.partialSuccess(summary, problems)
	}
	return req.success(summary, nil)
}

func runRFRList(ctx context.Context, b *KoalaBot, req request) KoalaResponse {
	msgs, err := b.Engine.ListManagedMessages(ctx, req.msg.GuildID)
	if err != nil {
		return req.failure(err)
	}
	if len(msgs) == 0 {
		return req.success("There are no reaction-role panels in this server.", nil)
	}
	data := make(map[string]string, len(msgs))
	for i, msg := range msgs {
		if i >= maxListedPanels {
			break
		}
		bindings, err := b.Engine.Bindings(ctx, msg.GroupID)
		if err != nil {
			return req.failure(err)
		}
		title := msg.Title
		if title == "" {
			title = "Untitled"
		}
		data[fmt.Sprintf("%v (%v)", title, msg.GroupID)] = fmt.Sprintf("%v | %d role(s)", msg.Ref().Link(), len(bindings))
	}
	description := fmt.Sprintf("This server has %d reaction-role panel(s).", len(msgs))
	if len(msgs) > maxListedPanels {
		description += fmt.Sprintf(" Showing the first %d.", maxListedPanels)
	}
	return req.success(description, data)
}

func runRFRFix(ctx context.Context, b *KoalaBot, req request) KoalaResponse {
	ref, _ := splitFirstLine(req.args)
	msg, resp := b.managedMessage(ctx, req, ref)
	if resp != nil {
		return resp
	}
	if err := b.Engine.Fix(ctx, msg.GroupID); err != nil {
		if rfr.IsResolution(err, rfr.UnknownMessage) || rfr.IsResolution(err, rfr.UnknownChannel) {
			return req.success("That panel no longer exists on discord, so I have stopped managing it.", nil)
		}
		return req.failure(err)
	}
	return req.success("Refreshed the panel and its reactions.", nil)
}

func runRFREditTitle(ctx context.Context, b *KoalaBot, req request) KoalaResponse {
	first, _ := splitFirstLine(req.args)
	ref, title := nextWord(first)
	msg, resp := b.managedMessage(ctx, req, ref)
	if resp != nil {
		return resp
	}
	if err := b.Engine.EditManagedMessage(ctx, msg.GroupID, strings.TrimSpace(title), msg.Description); err != nil {
		return req.failure(err)
	}
	return req.success("Updated the panel title.", nil)
}

func runRFREditDescription(ctx context.Context, b *KoalaBot, req request) KoalaResponse {
	ref, lines := splitFirstLine(req.args)
	msg, resp := b.managedMessage(ctx, req, ref)
	if resp != nil {
		return resp
	}
	description := strings.TrimSpace(strings.Join(lines, "\n"))
	if err := b.Engine.EditManagedMessage(ctx, msg.GroupID, msg.Title, description); err != nil {
		return req.failure(err)
	}
	return req.success("Updated the panel description.", nil)
}

//resolveRoles resolves every role in roleStrs, or returns a response describing the first failure
func (b *KoalaBot) resolveRoles(ctx context.Context, req request, roleStrs []string) ([]string, KoalaResponse) {
	resolver := b.newRoleResolver(ctx)
	res := make([]string, 0, len(roleStrs))
	for _, roleStr := range roleStrs {
		roleID, err := resolver.ResolveRole(req.msg.GuildID, roleStr)
		if err != nil {
			return nil, req.internalError("Failed to look up the server's roles", err)
		}
		if roleID == "" {
			return nil, req.syntaxError(fmt.Sprintf("I couldn't find a role matching `%v`", roleStr))
		}
		res = append(res, roleID)
	}
	return res, nil
}

func runRFRAddRequiredRole(ctx context.Context, b *KoalaBot, req request) KoalaResponse {
	roleStr, _ := splitFirstLine(req.args)
	if roleStr == "" {
		return req.syntaxError("No role was given")
	}
	roles, resp := b.resolveRoles(ctx, req, []string{roleStr})
	if resp != nil {
		return resp
	}
	if err := b.Engine.AddRequiredRole(ctx, req.msg.GuildID, roles[0]); err != nil {
		return req.failure(err)
	}
	return req.success(fmt.Sprintf("Members now need <@&%v> (or another required role) to use reaction roles.", roles[0]), nil)
}

func runRFRRemoveRequiredRole(ctx context.Context, b *KoalaBot, req request) KoalaResponse {
	roleStr, _ := splitFirstLine(req.args)
	if roleStr == "" {
		return req.syntaxError("No role was given")
	}
	roles, resp := b.resolveRoles(ctx, req, []string{roleStr})
	if resp != nil {
		return resp
	}
	if err := b.Engine.RemoveRequiredRole(ctx, req.msg.GuildID, roles[0]); err != nil {
		return req.failure(err)
	}
	return req.success(fmt.Sprintf("<@&%v> is no longer a required role.", roles[0]), nil)
}

func runRFRSetRequiredRoles(ctx context.Context, b *KoalaBot, req request) KoalaResponse {
	roles, resp := b.resolveRoles(ctx, req, roleArgs(req.args))
	if resp != nil {
		return resp
	}
	if err := b.Engine.SetRequiredRoles(ctx, req.msg.GuildID, roles); err != nil {
		return req.failure(err)
	}
	if len(roles) == 0 {
		return req.success("Cleared the required roles; anyone can now use reaction roles.", nil)
	}
	return req.success(fmt.Sprintf("Members now need one of %v to use reaction roles.", mentionRoles(roles)), nil)
}

func runRFRListRequiredRoles(ctx context.Context, b *KoalaBot, req request) KoalaResponse {
	roles, err := b.Engine.ListRequiredRoles(ctx, req.msg.GuildID)
	if err != nil {
		return req.failure(err)
	}
	if len(roles) == 0 {
		return req.success("No roles are required; anyone can use reaction roles.", nil)
	}
	return req.success(fmt.Sprintf("Members need one of %v to use reaction roles.", mentionRoles(roles)), nil)
}

func runRFREnforce(ctx context.Context, b *KoalaBot, req request) KoalaResponse {
	swept, err := b.Engine.EnforceGuild(ctx, req.msg.GuildID)
	if err != nil {
		return req.internalError(fmt.Sprintf("Failed after removing reaction roles from %d member(s)", swept), err)
	}
	return req.success(fmt.Sprintf("Removed reaction roles from %d member(s) who no longer hold a required role.", swept), nil)
}

func mentionRoles(roleIDs []string) string {
	mentions := make([]string, 0, len(roleIDs))
	for _, id := range roleIDs {
		mentions = append(mentions, fmt.Sprintf("<@&%v>", id))
	}
	return strings.Join(mentions, ", ")
}

func nonBlank(lines []string) int {
	n := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}
