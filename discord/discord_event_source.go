//Package discord connects to the Discord gateway, dispatches events to a handler and implements the
//platform operations reaction-role panels need.
package discord

import (
	"fmt"
	"net/url"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/callummance/koala/rfr"
	"github.com/sirupsen/logrus"
)

const discordTokenEnvVar = "KOALA_DISCORD_BOT_TOKEN"
const botScope = "bot"
const permissions = discordgo.PermissionAllText | discordgo.PermissionAllChannel | discordgo.PermissionAddReactions | discordgo.PermissionManageRoles

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsMessageContent

//EventHandler is a struct which can handle all the events the discord listener generates.
type EventHandler interface {
	HandleMessage(*discordgo.MessageCreate)
	HandleReactionAdd(rfr.ReactionEvent)
	HandleReactionRemove(rfr.ReactionEvent)
	HandleMessageDelete(*discordgo.MessageDelete)
}

//EventSource represents a connection to the Discord gateway
type EventSource struct {
	discordClient *discordgo.Session
	handler       EventHandler
}

//NewEventSource creates a discord client using the token from the environment and registers handler for
//its events. No events are delivered until Start is called.
func NewEventSource(handler EventHandler) (*EventSource, error) {
	//Get token from environment variable
	apiTok, exists := os.LookupEnv(discordTokenEnvVar)
	if !exists {
		logrus.Errorf("`%v` env variable was not set.", discordTokenEnvVar)
		return nil, fmt.Errorf("`%v` env variable was not set", discordTokenEnvVar)
	}

	//Create new client
	dc, err := discordgo.New("Bot " + apiTok)
	if err != nil {
		logrus.Warnf("Failed to create Discord gateway client due to %v", err)
		return nil, err
	}
	dispatch := EventSource{
		discordClient: dc,
		handler:       handler,
	}

	//Register event handlers
	dc.AddHandler(dispatch.dispatchMessageCreateEvent)
	dc.AddHandler(dispatch.dispatchReactionAddEvent)
	dc.AddHandler(dispatch.dispatchReactionRemoveEvent)
	dc.AddHandler(dispatch.dispatchMessageDeleteEvent)

	//Register intents
	dc.Identify.Intents = intents

	return &dispatch, nil
}

//Start opens the websocket connection to the gateway
func (d *EventSource) Start() error {
	err := d.discordClient.Open()
	if err != nil {
		logrus.Errorf("Failed to connect to discord websockets gateway; encountered error %v", err)
		return err
	}
	return nil
}

//BotAddURL generates a URL that can be used to add the bot to a server
func (d *EventSource) BotAddURL() (*url.URL, error) {
	user, err := d.discordClient.User("@me")
	if err != nil {
		return nil, err
	}
	return botAddURL(user.ID)
}

func botAddURL(clientID string) (*url.URL, error) {
	url, err := url.Parse("https://discord.com/api/oauth2/authorize")
	if err != nil {
		return nil, err
	}
	q := url.Query()
	q.Set("client_id", clientID)
	q.Set("scope", botScope)
	q.Set("permissions", fmt.Sprintf("%d", permissions))
	url.RawQuery = q.Encode()

	return url, nil
}

//Close cleanly terminates the Discord connection
func (d *EventSource) Close() {
	logrus.Info("Terminating discord event listener...")
	_ = d.discordClient.Close()
}

//Session returns a handle to the underlying discordgo session
func (d *EventSource) Session() *discordgo.Session {
	return d.discordClient
}

//Platform returns the platform operations backed by this connection
func (d *EventSource) Platform() *Platform {
	return NewPlatform(d.discordClient)
}

//recoverHandler prevents a panic in a handler from crashing the whole bot
func recoverHandler(event string) {
	if r := recover(); r != nil {
		logrus.Errorf("Bot handler thread panicked whilst handling %v: %v", event, r)
	}
}

func isSelf(s *discordgo.Session, userID string) bool {
	return s.State != nil && s.State.User != nil && s.State.User.ID == userID
}

func (d *EventSource) dispatchMessageCreateEvent(s *discordgo.Session, m *discordgo.MessageCreate) {
	//Ignore messages created by bot
	if m.Author == nil || isSelf(s, m.Author.ID) {
		logrus.Debug("Got a message from self; Ignoring.")
		return
	}
	defer recoverHandler("message create")

	logrus.Debugf("Got message `%v`", m.Content)
	d.handler.HandleMessage(m)
}

func (d *EventSource) dispatchReactionAddEvent(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	defer recoverHandler("reaction add")

	ev := reactionEvent(s, r.MessageReaction)
	if r.Member != nil && r.Member.User != nil && r.Member.User.Bot {
		ev.IsBot = true
	}
	d.handler.HandleReactionAdd(ev)
}

func (d *EventSource) dispatchReactionRemoveEvent(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	defer recoverHandler("reaction remove")

	d.handler.HandleReactionRemove(reactionEvent(s, r.MessageReaction))
}

func (d *EventSource) dispatchMessageDeleteEvent(s *discordgo.Session, m *discordgo.MessageDelete) {
	defer recoverHandler("message delete")

	d.handler.HandleMessageDelete(m)
}

func reactionEvent(s *discordgo.Session, r *discordgo.MessageReaction) rfr.ReactionEvent {
	emoji := r.Emoji
	return rfr.ReactionEvent{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		Emoji:     &emoji,
		UserID:    r.UserID,
		IsBot:     isSelf(s, r.UserID),
	}
}
