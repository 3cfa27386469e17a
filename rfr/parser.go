package rfr

import (
	"fmt"
	"iter"
	"strings"
)

//RoleResolver looks up a role from operator text (a mention, an ID or a name).
//It returns an empty ID without error when no role matches.
type RoleResolver interface {
	ResolveRole(guildID, text string) (string, error)
}

//Binding is a parsed emoji-role pair ready to be added to a managed message
type Binding struct {
	Line     int
	EmojiKey string
	RoleID   string
}

//Selector identifies a binding to remove, either by emoji or by role
type Selector struct {
	Line     int
	EmojiKey string
	RoleID   string
}

const bindingSeparator = ","

//ParseBindings lazily parses lines of `<emoji>, <role>` pairs. Each line yields either a Binding or an
//error; unparsable lines do not stop the sequence. Iteration ends once remaining bindings were produced.
func ParseBindings(resolver RoleResolver, guildID string, lines []string, remaining int) iter.Seq2[Binding, error] {
	return func(yield func(Binding, error) bool) {
		produced := 0
		for i, line := range lines {
			if produced >= remaining {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			b, err := parseBindingLine(resolver, guildID, i+1, text)
			if err == nil {
				produced++
			}
			if !yield(b, err) {
				return
			}
		}
	}
}

func parseBindingLine(resolver RoleResolver, guildID string, lineNo int, text string) (Binding, error) {
	parts := strings.Split(text, bindingSeparator)
	switch {
	case len(parts) < 2:
		return Binding{}, &ParseError{Line: lineNo, Text: text, Reason: "expected `<emoji>, <role>`"}
	case len(parts) > 2:
		return Binding{}, &ParseError{Line: lineNo, Text: text, Reason: "more than one separator on the line"}
	}
	emojiText := strings.TrimSpace(parts[0])
	roleText := strings.TrimSpace(parts[1])
	emojiKey, ok := ParseEmoji(emojiText)
	if !ok {
		return Binding{}, &ParseError{Line: lineNo, Text: text, Reason: fmt.Sprintf("`%v` is not an emoji I can use", emojiText)}
	}
	if roleText == "" {
		return Binding{}, &ParseError{Line: lineNo, Text: text, Reason: "no role was given"}
	}
	roleID, err := resolver.ResolveRole(guildID, roleText)
	if err != nil {
		return Binding{}, fmt.Errorf("line %d: failed to look up role `%v`: %w", lineNo, roleText, err)
	}
	if roleID == "" {
		return Binding{}, &ParseError{Line: lineNo, Text: text, Reason: fmt.Sprintf("could not find a role matching `%v`", roleText)}
	}
	return Binding{Line: lineNo, EmojiKey: emojiKey, RoleID: roleID}, nil
}

//ParseSelectors lazily parses lines which each name a single emoji or role to remove
func ParseSelectors(resolver RoleResolver, guildID string, lines []string) iter.Seq2[Selector, error] {
	return func(yield func(Selector, error) bool) {
		for i, line := range lines {
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if !yield(parseSelectorLine(resolver, guildID, i+1, text)) {
				return
			}
		}
	}
}

func parseSelectorLine(resolver RoleResolver, guildID string, lineNo int, text string) (Selector, error) {
	if strings.Contains(text, bindingSeparator) {
		return Selector{}, &ParseError{Line: lineNo, Text: text, Reason: "expected a single emoji or role"}
	}
	if key, ok := ParseEmoji(text); ok {
		return Selector{Line: lineNo, EmojiKey: key}, nil
	}
	roleID, err := resolver.ResolveRole(guildID, text)
	if err != nil {
		return Selector{}, fmt.Errorf("line %d: failed to look up role `%v`: %w", lineNo, text, err)
	}
	if roleID == "" {
		return Selector{}, &ParseError{Line: lineNo, Text: text, Reason: "not an emoji or a known role"}
	}
	return Selector{Line: lineNo, RoleID: roleID}, nil
}
