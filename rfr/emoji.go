package rfr

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/callummance/koala/guildmodels"
	"github.com/kyokomi/emoji/v2"
)

const variationSelector = "\ufe0f"

var customEmojiRegex = regexp.MustCompile(`^<(a?):([A-Za-z0-9_~]+):(\d+)>$`)

var (
	aliasToGlyph = emoji.CodeMap()
	glyphToAlias = emoji.RevCodeMap()
)

//ParseEmoji interprets operator supplied text as a single emoji and returns its key.
//Custom emoji are kept in their `<a?:name:id>` form. Unicode emoji, whether typed as a glyph or as any of
//their aliases, become the same `:alias:` that a reaction with that glyph produces.
func ParseEmoji(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if m := customEmojiRegex.FindStringSubmatch(text); m != nil {
		return customKey(m[1] == "a", m[2], m[3]), true
	}
	if glyph, ok := aliasToGlyph[text]; ok {
		if key, ok := unicodeKey(strings.TrimSpace(glyph)); ok {
			return key, true
		}
		return text, true
	}
	return unicodeKey(text)
}

//EventEmojiKey returns the key for an emoji attached to a reaction event. Unicode emoji missing from the
//emoji table fall back to their raw glyph, which never matches a stored binding.
func EventEmojiKey(e *discordgo.Emoji) string {
	if e == nil {
		return ""
	}
	if e.ID != "" {
		return customKey(e.Animated, e.Name, e.ID)
	}
	if key, ok := unicodeKey(e.Name); ok {
		return key
	}
	return e.Name
}

//SameEmoji compares two emoji keys. Custom emoji are compared by ID as reaction events do not reliably
//carry the animated flag or the current name.
func SameEmoji(a, b string) bool {
	return guildmodels.EmojiIdentity(a) == guildmodels.EmojiIdentity(b)
}

//ReactionAPIName converts an emoji key into the form the reaction endpoints expect
func ReactionAPIName(key string) string {
	if m := customEmojiRegex.FindStringSubmatch(key); m != nil {
		return fmt.Sprintf("%v:%v", m[2], m[3])
	}
	if glyph, ok := aliasToGlyph[key]; ok {
		return strings.TrimSpace(glyph)
	}
	return key
}

//DisplayEmoji renders an emoji key so that it shows as the emoji in message text
func DisplayEmoji(key string) string {
	if customEmojiRegex.MatchString(key) {
		return key
	}
	if glyph, ok := aliasToGlyph[key]; ok {
		return strings.TrimSpace(glyph)
	}
	return key
}

func customKey(animated bool, name, id string) string {
	if animated {
		return fmt.Sprintf("<a:%v:%v>", name, id)
	}
	return fmt.Sprintf("<:%v:%v>", name, id)
}

func unicodeKey(glyph string) (string, bool) {
	if glyph == "" {
		return "", false
	}
	candidates := []string{glyph, strings.TrimSuffix(glyph, variationSelector), glyph + variationSelector}
	for _, c := range candidates {
		if aliases, ok := glyphToAlias[c]; ok && len(aliases) > 0 {
			return aliases[0], true
		}
	}
	return "", false
}
