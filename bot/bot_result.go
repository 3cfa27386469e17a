package bot

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

const (
	successMessageColour int = 0x28bd00
	warnMessageColour    int = 0xbdb900
	errorMessageColour   int = 0xbd1b00
)

//KoalaResponse represents the result of a command which can be both communicated over discord and written to the log.
type KoalaResponse interface {
	DiscordResponse() *discordgo.MessageSend
	WriteToLog()
}

//KoalaResponseSuccess will be returned when a command has been successfully completed
type KoalaResponseSuccess struct {
	//The base command name
	command string
	//The entire text contents of the message
	commandMsg string
	//Optional human-readable details of what was done
	description string
	//A map containing fields which should be included in the embed
	data map[string]string
	//The time the success was logged at
	timestamp time.Time
}

//DiscordResponse builds a MessageSend object which can be sent back to whoever sent a command message.
func (r KoalaResponseSuccess) DiscordResponse() *discordgo.MessageSend {
	description := r.description
	if description == "" {
		description = fmt.Sprintf("Completed %v command successfully!", r.command)
	}
	embed := discordgo.MessageEmbed{
		Title:       "Success! \\o/",
		Type:        discordgo.EmbedTypeRich,
		Description: description,
		Timestamp:   r.timestamp.Format(time.RFC3339),
		Color:       successMessageColour,
		Footer:      logFooter(r.timestamp),
		Fields:      stringMapToFields(r.data),
	}
	return messageSend(&embed)
}

//WriteToLog dumps data on a discord command response to the log
func (r KoalaResponseSuccess) WriteToLog() {
	logrus.Infof("%v Completed command %v successfully.", logLineLabel(r.timestamp), r.commandMsg)
}

//KoalaResponsePartialSuccess will be returned when a command has executed but with issues
type KoalaResponsePartialSuccess struct {
	//The base command name
	command string
	//The entire text contents of the message
	commandMsg string
	//A human-readable description of the issue
	description string
	//A map containing fields which should be included in the embed
	data map[string]string
	//The time the success was logged at
	timestamp time.Time
}

//DiscordResponse builds a MessageSend object which can be sent back to whoever sent a command message.
func (r KoalaResponsePartialSuccess) DiscordResponse() *discordgo.MessageSend {
	description := fmt.Sprintf("Completed %v command but with errors: \n%v", r.command, r.description)
	embed := discordgo.MessageEmbed{
		Title:       "Partial success...",
		Type:        discordgo.EmbedTypeRich,
		Description: description,
		Timestamp:   r.timestamp.Format(time.RFC3339),
		Color:       warnMessageColour,
		Footer:      logFooter(r.timestamp),
		Fields:      stringMapToFields(r.data),
	}
	return messageSend(&embed)
}

//WriteToLog dumps data on a discord command response to the log
func (r KoalaResponsePartialSuccess) WriteToLog() {
	logrus.Infof("%v Completed command %v but with errors: %v.", logLineLabel(r.timestamp), r.commandMsg, r.data)
}

//KoalaResponseSyntaxError will be returned when there was an issue with the user's input
type KoalaResponseSyntaxError struct {
	//The base command name
	command string
	//The entire text contents of the message
	commandMsg string
	//A human-readable description of the issue
	description string
	//A description of the correct syntax
	syntax string
	//The time the error was logged at
	timestamp time.Time
}

//DiscordResponse builds a MessageSend object which can be sent back to whoever sent a command message.
func (r KoalaResponseSyntaxError) DiscordResponse() *discordgo.MessageSend {
	description := fmt.Sprintf("Sorry, but there was a problem with the data you supplied for the %v command: \n%v", r.command, r.description)
	fields := map[string]string{
		"Your command": r.commandMsg,
	}
	if r.syntax != "" {
		fields["Correct syntax"] = r.syntax
	}
	embed := discordgo.MessageEmbed{
		Title:       "Uh-oh, there was something wrong with that command",
		Type:        discordgo.EmbedTypeRich,
		Description: description,
		Timestamp:   r.timestamp.Format(time.RFC3339),
		Color:       errorMessageColour,
		Footer:      logFooter(r.timestamp),
		Fields:      stringMapToFields(fields),
	}
	return messageSend(&embed)
}

//WriteToLog dumps data on a discord command response to the log
func (r KoalaResponseSyntaxError) WriteToLog() {
	logrus.Infof("%v Syntax error in command %v: %v", logLineLabel(r.timestamp), r.commandMsg, r.description)
}

//KoalaResponseInternalError will be returned when there was some kind of error within the bot or when communicating with
//APIs
type KoalaResponseInternalError struct {
	//The base command name
	command string
	//The entire text contents of the message
	commandMsg string
	//A human-readable description of the issue
	description string
	//A map containing fields which should be included in the embed
	data map[string]string
	//The time the error was logged at
	timestamp time.Time
}

//DiscordResponse builds a MessageSend object which can be sent back to whoever sent a command message.
func (r KoalaResponseInternalError) DiscordResponse() *discordgo.MessageSend {
	description := fmt.Sprintf("Oops! I encountered an unexpected error whilst running your %v command. Please try again later or file a bug report.", r.command)
	dataWithDescription := make(map[string]string, len(r.data)+1)
	maps.Copy(dataWithDescription, r.data)
	dataWithDescription["Error"] = r.description
	embed := discordgo.MessageEmbed{
		Title:       "Oops, something went wrong ;w;",
		Type:        discordgo.EmbedTypeRich,
		Description: description,
		Timestamp:   r.timestamp.Format(time.RFC3339),
		Color:       errorMessageColour,
		Footer:      logFooter(r.timestamp),
		Fields:      stringMapToFields(dataWithDescription),
	}
	return messageSend(&embed)
}

//WriteToLog dumps data on a discord command response to the log
func (r KoalaResponseInternalError) WriteToLog() {
	logrus.Errorf("%v Internal error in whilst executing command %v: %v | data: %v", logLineLabel(r.timestamp), r.commandMsg, r.description, r.data)
}

//KoalaResponseNotAllowed will be returned when a command predicate rejected the message
type KoalaResponseNotAllowed struct {
	//The base command name
	command string
	//The entire text contents of the message
	commandMsg string
	//Which predicate rejected the command
	tag string
	//A human-readable description of the issue
	description string
	//The time the error was logged at
	timestamp time.Time
}

//DiscordResponse builds a MessageSend object which can be sent back to whoever sent a command message.
func (r KoalaResponseNotAllowed) DiscordResponse() *discordgo.MessageSend {
	fields := map[string]string{
		"Reason":  r.description,
		"Command": r.commandMsg,
	}
	embed := discordgo.MessageEmbed{
		Title:       "That's illegal m8",
		Type:        discordgo.EmbedTypeRich,
		Description: "I'm sorry Dave, I can't let you do that...",
		Timestamp:   r.timestamp.Format(time.RFC3339),
		Color:       errorMessageColour,
		Footer:      logFooter(r.timestamp),
		Fields:      stringMapToFields(fields),
	}
	return messageSend(&embed)
}

//WriteToLog dumps data on a discord command response to the log
func (r KoalaResponseNotAllowed) WriteToLog() {
	logrus.Infof("%v Rejected command `%v` (%v) | description: %v", logLineLabel(r.timestamp), r.commandMsg, r.tag, r.description)
}

/////////////////////
//Utility Functions//
/////////////////////
func logLineLabel(t time.Time) string {
	return fmt.Sprintf("#%v# | ", t.UnixNano())
}

func logFooter(t time.Time) *discordgo.MessageEmbedFooter {
	return &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf("Log ID: %d", t.UnixNano()),
	}
}

func messageSend(embed *discordgo.MessageEmbed) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		TTS:    false,
		Files:  []*discordgo.File{},
	}
}

//stringMapToFields turns fields into embed fields ordered by name
func stringMapToFields(fields map[string]string) []*discordgo.MessageEmbedField {
	var res []*discordgo.MessageEmbedField
	for _, fieldName := range slices.Sorted(maps.Keys(fields)) {
		field := discordgo.MessageEmbedField{
			Name:   fieldName,
			Value:  fields[fieldName],
			Inline: false,
		}
		res = append(res, &field)
	}
	return res
}
