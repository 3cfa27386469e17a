//Package bot runs the koala discord bot: it feeds gateway events to the reaction-role engine and
//interprets `!` commands from server admins.
package bot

import (
	"context"
	"net/url"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/callummance/koala/discord"
	"github.com/callummance/koala/guildmodels"
	"github.com/callummance/koala/rfr"
	"github.com/sirupsen/logrus"
)

const eventTimeout = 30 * time.Second

//GuildStore holds the per-guild settings the bot needs besides reaction-role state
type GuildStore interface {
	GetOrCreateGuild(ctx context.Context, id string) (*guildmodels.DiscordGuild, error)
	AddAdminRole(ctx context.Context, gid string, roleID string) (int, error)
}

//guildInfo looks up guild details from discord
type guildInfo interface {
	GuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error)
	GuildOwner(ctx context.Context, guildID string) (string, error)
}

//KoalaBot represents an instance of the discord bot, containing handles to the various external connections.
type KoalaBot struct {
	DiscordConnection *discord.EventSource
	Engine            *rfr.Engine
	guilds            GuildStore
	info              guildInfo
}

//Init creates a new KoalaBot instance on top of the given stores and connects it to discord
func Init(store rfr.Store, guilds GuildStore) (*KoalaBot, error) {
	res := KoalaBot{guilds: guilds}

	disc, err := discord.NewEventSource(&res)
	if err != nil {
		logrus.Errorf("Cannot start bot due to error initializing discord connection: %v", err)
		return nil, err
	}
	platform := disc.Platform()
	res.DiscordConnection = disc
	res.Engine = rfr.New(store, platform)
	res.info = platform

	//Only start receiving events once everything is wired up
	if err := disc.Start(); err != nil {
		logrus.Errorf("Cannot start bot due to error opening discord connection: %v", err)
		return nil, err
	}
	return &res, nil
}

//BotAddURL generates a URL that can be used to add the bot to a server
func (b *KoalaBot) BotAddURL() (*url.URL, error) {
	return b.DiscordConnection.BotAddURL()
}

//DiscordSession returns a handle to the underlying discord session
func (b *KoalaBot) DiscordSession() *discordgo.Session {
	return b.DiscordConnection.Session()
}

//Close cleanly terminates the bot instance
func (b *KoalaBot) Close() {
	logrus.Info("Terminating bot...")
	b.DiscordConnection.Close()
}

//HandleReactionAdd passes a new reaction on to the engine
func (b *KoalaBot) HandleReactionAdd(ev rfr.ReactionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := b.Engine.OnReactionAdded(ctx, ev); err != nil {
		logrus.Errorf("Failed to process reaction on %v:%v from %v: %v", ev.ChannelID, ev.MessageID, ev.UserID, err)
	}
}

//HandleReactionRemove passes a removed reaction on to the engine
func (b *KoalaBot) HandleReactionRemove(ev rfr.ReactionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := b.Engine.OnReactionRemoved(ctx, ev); err != nil {
		logrus.Errorf("Failed to process reaction removal on %v:%v from %v: %v", ev.ChannelID, ev.MessageID, ev.UserID, err)
	}
}

//HandleMessageDelete forgets managed messages which have been deleted
func (b *KoalaBot) HandleMessageDelete(m *discordgo.MessageDelete) {
	if m.Message == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := b.Engine.OnMessageDeleted(ctx, m.GuildID, m.ChannelID, m.ID); err != nil {
		logrus.Errorf("Failed to process deletion of message %v:%v: %v", m.ChannelID, m.ID, err)
	}
}
