package rfr

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/callummance/koala/guildmodels"
)

const (
	defaultPanelTitle       string = "React for Role"
	defaultPanelDescription string = "React to this message to get a role!"
	panelColour             int    = 0x5865f2
	panelFooter             string = "Remove your reaction to lose the role"
)

//ComposePanel builds the embed shown on a managed message, one field per binding
func ComposePanel(msg *guildmodels.ManagedMessage, bindings []guildmodels.EmojiRoleBinding) *discordgo.MessageEmbed {
	title := msg.Title
	if title == "" {
		title = defaultPanelTitle
	}
	description := msg.Description
	if description == "" {
		description = defaultPanelDescription
	}
	fields := make([]*discordgo.MessageEmbedField, 0, len(bindings))
	for _, b := range bindings {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   DisplayEmoji(b.EmojiKey),
			Value:  fmt.Sprintf("<@&%v>", b.RoleID),
			Inline: true,
		})
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Type:        discordgo.EmbedTypeRich,
		Description: description,
		Color:       panelColour,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: panelFooter,
		},
	}
}
