package bot

import (
	"context"
	"slices"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestNextWord(t *testing.T) {
	tests := []struct {
		in, word, rest string
	}{
		{"rfr list", "rfr", "list"},
		{"  addroles 1:2\nline", "addroles", "1:2\nline"},
		{"create\nbody", "create", "\nbody"},
		{"", "", ""},
	}
	for _, tt := range tests {
		word, rest := nextWord(tt.in)
		if word != tt.word || rest != tt.rest {
			t.Errorf("nextWord(%q) = %q, %q; want %q, %q", tt.in, word, rest, tt.word, tt.rest)
		}
	}
}

func TestSplitFirstLine(t *testing.T) {
	first, rest := splitFirstLine(" 1:2 \r\na\nb")
	if first != "1:2" || !slices.Equal(rest, []string{"a", "b"}) {
		t.Errorf("splitFirstLine() = %q, %q", first, rest)
	}
}

func TestInterpretMessageRef(t *testing.T) {
	tests := []struct {
		in   string
		want *messageRef
	}{
		{"https://discord.com/channels/1/2/3", &messageRef{guildID: "1", channelID: "2", messageID: "3"}},
		{"https://canary.discord.com/channels/1/2/3", &messageRef{guildID: "1", channelID: "2", messageID: "3"}},
		{"https://discordapp.com/channels/1/2/3", &messageRef{guildID: "1", channelID: "2", messageID: "3"}},
		{" 2:3 ", &messageRef{channelID: "2", messageID: "3"}},
		{"https://example.com/channels/1/2/3", nil},
		{"not-a-message", nil},
	}
	for _, tt := range tests {
		got, ok := interpretMessageRef(tt.in)
		if tt.want == nil {
			if ok {
				t.Errorf("interpretMessageRef(%q) = %+v, want no match", tt.in, got)
			}
			continue
		}
		if !ok || *got != *tt.want {
			t.Errorf("interpretMessageRef(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestInterpretChannel(t *testing.T) {
	if id, ok := interpretChannel("<#123>"); !ok || id != "123" {
		t.Errorf("interpretChannel(<#123>) = %q, %v", id, ok)
	}
	if _, ok := interpretChannel("Title"); ok {
		t.Errorf("interpretChannel(Title) matched")
	}
}

func TestRoleArgs(t *testing.T) {
	got := roleArgs("<@&1> <@&2>\nMember\n\n\"Two Words\"")
	want := []string{"<@&1>", "<@&2>", "Member", "\"Two Words\""}
	if !slices.Equal(got, want) {
		t.Errorf("roleArgs() = %q, want %q", got, want)
	}
}

func TestRoleResolver(t *testing.T) {
	fake := &fakeDiscord{roles: []*discordgo.Role{
		{ID: "111111111111111111", Name: "Member"},
		{ID: "222222222222222222", Name: "member"},
		{ID: "333333333333333333", Name: "Two Words"},
	}}
	b := &KoalaBot{info: fake}
	r := b.newRoleResolver(context.Background())
	tests := []struct {
		in, want string
	}{
		{"<@&333333333333333333>", "333333333333333333"},
		{"<@&999>", ""},
		{"\"Two Words\"", "333333333333333333"},
		{"Two Words", "333333333333333333"},
		{"member", "222222222222222222"},
		{"MEMBER", "111111111111111111"},
		{"111111111111111111", "111111111111111111"},
		{"Nobody", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := r.ResolveRole(testGuild, tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ResolveRole(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}
