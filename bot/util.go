package bot

import (
	"context"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
)

//Allows @mentions, double quotation marked role names, bare role IDs or bare role names
var (
	roleMentionRegex = regexp.MustCompile(`^<@&(\d+)>$`)
	quotedRoleRegex  = regexp.MustCompile(`^"([^"]*)"$`)
	roleIDRegex      = regexp.MustCompile(`^\d{15,21}$`)
	anyMentionRegex  = regexp.MustCompile(`<@&\d+>`)
)

//roleResolver finds roles in a guild, fetching the guild's role list at most once
type roleResolver struct {
	ctx   context.Context
	info  guildInfo
	roles []*discordgo.Role
}

func (b *KoalaBot) newRoleResolver(ctx context.Context) *roleResolver {
	return &roleResolver{ctx: ctx, info: b.info}
}

//ResolveRole returns the ID of the role described by roleStr, or an empty ID if no role matches
func (r *roleResolver) ResolveRole(guildID, roleStr string) (string, error) {
	roleStr = strings.TrimSpace(roleStr)
	if roleStr == "" {
		return "", nil
	}
	if r.roles == nil {
		roles, err := r.info.GuildRoles(r.ctx, guildID)
		if err != nil {
			return "", err
		}
		r.roles = roles
	}

	switch {
	case roleMentionRegex.MatchString(roleStr):
		//We have a role id directly
		return r.byID(roleMentionRegex.FindStringSubmatch(roleStr)[1]), nil
	case quotedRoleRegex.MatchString(roleStr):
		//We have a quoted role name
		return r.byName(quotedRoleRegex.FindStringSubmatch(roleStr)[1]), nil
	case roleIDRegex.MatchString(roleStr):
		if id := r.byID(roleStr); id != "" {
			return id, nil
		}
		return r.byName(roleStr), nil
	default:
		return r.byName(roleStr), nil
	}
}

func (r *roleResolver) byID(id string) string {
	for _, role := range r.roles {
		if role.ID == id {
			return role.ID
		}
	}
	return ""
}

//byName prefers an exact match over a case-insensitive one
func (r *roleResolver) byName(name string) string {
	for _, role := range r.roles {
		if role.Name == name {
			return role.ID
		}
	}
	for _, role := range r.roles {
		if strings.EqualFold(role.Name, name) {
			return role.ID
		}
	}
	return ""
}

//Allows message links or channel_id:message_id pairs
var messageRegex = regexp.MustCompile(`^(?:https://(?:(?:ptb|canary)\.)?discord(?:app)?\.com/channels/(\d+)/(\d+)/(\d+))$|^(\d+):(\d+)$`)

//messageRef identifies a chat message
type messageRef struct {
	guildID   string
	channelID string
	messageID string
}

func interpretMessageRef(messageStr string) (*messageRef, bool) {
	matches := messageRegex.FindStringSubmatch(strings.TrimSpace(messageStr))
	switch {
	case matches == nil:
		return nil, false
	case matches[3] != "":
		//Message link
		return &messageRef{guildID: matches[1], channelID: matches[2], messageID: matches[3]}, true
	default:
		//Channel and message IDs
		return &messageRef{channelID: matches[4], messageID: matches[5]}, true
	}
}

var channelMentionRegex = regexp.MustCompile(`^<#(\d+)>$`)

func interpretChannel(channelStr string) (string, bool) {
	matches := channelMentionRegex.FindStringSubmatch(strings.TrimSpace(channelStr))
	if matches == nil {
		return "", false
	}
	return matches[1], true
}

//nextWord splits the first whitespace separated word from s. The remainder keeps its line breaks.
func nextWord(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	idx := strings.IndexAny(s, " \t\n")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimLeft(s[idx:], " \t")
}

//splitFirstLine returns the first line of s and the lines after it
func splitFirstLine(s string) (string, []string) {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	return strings.TrimSpace(lines[0]), lines[1:]
}

//roleArgs splits a role list: every @mention on a line counts, otherwise the line is one role
func roleArgs(s string) []string {
	var res []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if mentions := anyMentionRegex.FindAllString(line, -1); len(mentions) > 0 {
			res = append(res, mentions...)
			continue
		}
		res = append(res, line)
	}
	return res
}
