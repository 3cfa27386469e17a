package bot

import (
	"context"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

const discordDevUIDEnvVar string = "KOALA_DISCORD_DEV_UID"

//Rejection explains why a predicate refused to let a command run
type Rejection struct {
	//Tag names the predicate which failed
	Tag    string
	Reason string
}

//predicate is checked before a command runs. A nil rejection lets the command proceed.
type predicate func(ctx context.Context, b *KoalaBot, msg *discordgo.Message) (*Rejection, error)

func guildOnly(_ context.Context, _ *KoalaBot, msg *discordgo.Message) (*Rejection, error) {
	if msg.GuildID == "" {
		return &Rejection{Tag: "guild_only", Reason: "This command can only be used in a server."}, nil
	}
	return nil, nil
}

func fromAdmin(ctx context.Context, b *KoalaBot, msg *discordgo.Message) (*Rejection, error) {
	isAdmin, err := b.isFromAdmin(ctx, msg.Member, msg.Author, msg.GuildID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return &Rejection{Tag: "from_admin", Reason: "This command can only be used by server admins."}, nil
	}
	return nil, nil
}

func (b *KoalaBot) isFromAdmin(ctx context.Context, member *discordgo.Member, user *discordgo.User, guildID string) (bool, error) {
	if user == nil {
		return false, nil
	}
	//Works if from dev
	if isDev(user.ID) {
		return true, nil
	}
	//Works if from server owner
	ownerID, err := b.info.GuildOwner(ctx, guildID)
	if err != nil {
		logrus.Warnf("Failed to fetch guild object from Discord API when checking if user %v is admin for server %v", user.ID, guildID)
		return false, err
	} else if ownerID == user.ID {
		return true, nil
	}
	//Works if user has an admin role
	localGuild, err := b.guilds.GetOrCreateGuild(ctx, guildID)
	if err != nil {
		logrus.Warnf("Failed to fetch guild object from Database when checking if user %v is admin for server %v", user.ID, guildID)
		return false, err
	}
	if member == nil {
		return false, nil
	}
	return localGuild.HasAdminRole(member.Roles), nil
}

func isDev(userID string) bool {
	devUID, exists := os.LookupEnv(discordDevUIDEnvVar)
	if !exists || devUID == "" {
		return false
	}
	return userID == devUID
}
