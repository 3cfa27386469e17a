package rfr

import (
	"context"
	"iter"

	"github.com/bwmarrin/discordgo"
)

//Platform is the set of chat platform capabilities the engine drives.
//Implementations report missing entities as *ResolutionError.
type Platform interface {
	Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error)
	Members(ctx context.Context, guildID string) iter.Seq2[*discordgo.Member, error]
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error

	Message(ctx context.Context, channelID, messageID string) (*discordgo.Message, error)
	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error)
	EditEmbed(ctx context.Context, channelID, messageID string, embed *discordgo.MessageEmbed) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error
	ClearReaction(ctx context.Context, channelID, messageID, emoji string) error

	//LockReactions stops everyone but the bot from adding new reactions in a channel
	LockReactions(ctx context.Context, guildID, channelID string) error
}
