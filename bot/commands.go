package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/callummance/koala/db"
	"github.com/callummance/koala/rfr"
	"github.com/sirupsen/logrus"
)

const commandPrefix string = "!"
const commandTimeout = 2 * time.Minute

//request is a single command invocation
type request struct {
	msg *discordgo.Message
	//The full command name, including any subcommand
	command string
	syntax  string
	//Everything after the command name
	args string
}

type commandHandler func(ctx context.Context, b *KoalaBot, req request) KoalaResponse

//command pairs a handler with the predicates that must all pass, in order, before it runs
type command struct {
	syntax     string
	predicates []predicate
	run        commandHandler
}

var adminOnly = []predicate{guildOnly, fromAdmin}

var commands = map[string]command{
	"addadminrole": {
		syntax:     handleAddAdminRoleSyntax,
		predicates: adminOnly,
		run:        runAddAdminRole,
	},
	"rfr": {
		syntax: rfrSyntax(),
		run:    runRFR,
	},
}

//HandleMessage is called upon every recieved message. It checks if the message is a command, and executes it.
func (b *KoalaBot) HandleMessage(msg *discordgo.MessageCreate) {
	if msg.Message == nil || !strings.HasPrefix(msg.Content, commandPrefix) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result := b.runCommand(ctx, msg.Message)
	if result == nil {
		return
	}
	//Respond
	result.WriteToLog()
	resp := result.DiscordResponse()
	resp.Reference = &discordgo.MessageReference{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
	}
	_, err := b.DiscordSession().ChannelMessageSendComplex(msg.ChannelID, resp, discordgo.WithContext(ctx))
	if err != nil {
		logrus.Errorf("Failed to send response to command due to error %v", err)
	}
}

//runCommand interprets a message as a command. It returns nil for messages which are not a known command.
func (b *KoalaBot) runCommand(ctx context.Context, msg *discordgo.Message) KoalaResponse {
	name, args := nextWord(strings.TrimPrefix(msg.Content, commandPrefix))
	cmd, ok := commands[name]
	if !ok {
		return nil
	}
	return b.execute(ctx, cmd, request{
		msg:     msg,
		command: commandPrefix + name,
		syntax:  cmd.syntax,
		args:    args,
	})
}

func (b *KoalaBot) execute(ctx context.Context, cmd command, req request) KoalaResponse {
	for _, check := range cmd.predicates {
		rejection, err := check(ctx, b, req.msg)
		if err != nil {
			logrus.Warnf("Failed to check whether %v may run %v due to error %v", authorID(req.msg), req.command, err)
			return req.internalError("Failed to check whether you may run this command", err)
		}
		if rejection != nil {
			return req.notAllowed(rejection)
		}
	}
	return cmd.run(ctx, b, req)
}

/**************************
/   Response constructors
/**************************/

func (req request) success(description string, data map[string]string) KoalaResponse {
	return KoalaResponseSuccess{
		command:     req.command,
		commandMsg:  req.msg.Content,
		description: description,
		data:        data,
		timestamp:   time.Now(),
	}
}

func (req request) partialSuccess(description string, data map[string]string) KoalaResponse {
	return KoalaResponsePartialSuccess{
		command:     req.command,
		commandMsg:  req.msg.Content,
		description: description,
		data:        data,
		timestamp:   time.Now(),
	}
}

func (req request) syntaxError(description string) KoalaResponse {
	return KoalaResponseSyntaxError{
		command:     req.command,
		commandMsg:  req.msg.Content,
		description: description,
		syntax:      req.syntax,
		timestamp:   time.Now(),
	}
}

func (req request) internalError(description string, err error) KoalaResponse {
	return KoalaResponseInternalError{
		command:     req.command,
		commandMsg:  req.msg.Content,
		description: description,
		data:        map[string]string{"Cause": err.Error()},
		timestamp:   time.Now(),
	}
}

func (req request) notAllowed(rejection *Rejection) KoalaResponse {
	return KoalaResponseNotAllowed{
		command:     req.command,
		commandMsg:  req.msg.Content,
		tag:         rejection.Tag,
		description: rejection.Reason,
		timestamp:   time.Now(),
	}
}

//failure turns an error from the engine into a response, blaming the user only when their input caused it
func (req request) failure(err error) KoalaResponse {
	if isUserError(err) {
		return req.syntaxError(err.Error())
	}
	return req.internalError(fmt.Sprintf("Failed to run %v", req.command), err)
}

func isUserError(err error) bool {
	return rfr.IsUserError(err) || errors.Is(err, db.ErrConstraint) || errors.Is(err, db.ErrNotFound)
}

func authorID(msg *discordgo.Message) string {
	if msg.Author == nil {
		return ""
	}
	return msg.Author.ID
}
