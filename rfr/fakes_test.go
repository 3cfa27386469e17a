package rfr

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/callummance/koala/db"
)

func newTestStore(t *testing.T) *db.Connection {
	t.Helper()
	conn, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "rfr.sqlite"))
	if err != nil {
		t.Fatalf("db.Open() error: %v", err)
	}
	t.Cleanup(conn.Close)
	return conn
}

//fakePlatform records every mutation as a short string and keeps member roles in memory
type fakePlatform struct {
	mu              sync.Mutex
	members         map[string]*discordgo.Member
	missingRoles    map[string]bool
	missingMessages map[string]bool
	embeds          map[string]*discordgo.MessageEmbed
	calls           []string
	nextMessage     int
	sendErr         error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		members:         make(map[string]*discordgo.Member),
		missingRoles:    make(map[string]bool),
		missingMessages: make(map[string]bool),
		embeds:          make(map[string]*discordgo.MessageEmbed),
	}
}

func (p *fakePlatform) addMember(guildID, userID string, bot bool, roles ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members[guildID+":"+userID] = &discordgo.Member{
		GuildID: guildID,
		User:    &discordgo.User{ID: userID, Bot: bot},
		Roles:   roles,
	}
}

func (p *fakePlatform) rolesOf(guildID, userID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.members[guildID+":"+userID]
	if !ok {
		return nil
	}
	return append([]string(nil), m.Roles...)
}

func (p *fakePlatform) record(format string, args ...interface{}) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakePlatform) callsWithPrefix(prefix string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var res []string
	for _, c := range p.calls {
		if strings.HasPrefix(c, prefix) {
			res = append(res, c)
		}
	}
	return res
}

func (p *fakePlatform) Member(_ context.Context, guildID, userID string) (*discordgo.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.members[guildID+":"+userID]
	if !ok {
		return nil, &ResolutionError{Kind: UnknownMember, ID: userID, GuildID: guildID}
	}
	copied := *m
	copied.Roles = append([]string(nil), m.Roles...)
	return &copied, nil
}

func (p *fakePlatform) Members(ctx context.Context, guildID string) iter.Seq2[*discordgo.Member, error] {
	return func(yield func(*discordgo.Member, error) bool) {
		p.mu.Lock()
		var ms []*discordgo.Member
		for key, m := range p.members {
			if strings.HasPrefix(key, guildID+":") {
				copied := *m
				copied.Roles = append([]string(nil), m.Roles...)
				ms = append(ms, &copied)
			}
		}
		p.mu.Unlock()
		for _, m := range ms {
			if !yield(m, nil) {
				return
			}
		}
	}
}

func (p *fakePlatform) AddRole(_ context.Context, guildID, userID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.missingRoles[roleID] {
		return &ResolutionError{Kind: UnknownRole, ID: roleID, GuildID: guildID}
	}
	p.record("addrole %v %v %v", guildID, userID, roleID)
	if m, ok := p.members[guildID+":"+userID]; ok {
		m.Roles = append(m.Roles, roleID)
	}
	return nil
}

func (p *fakePlatform) RemoveRole(_ context.Context, guildID, userID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("removerole %v %v %v", guildID, userID, roleID)
	if m, ok := p.members[guildID+":"+userID]; ok {
		kept := m.Roles[:0]
		for _, r := range m.Roles {
			if r != roleID {
				kept = append(kept, r)
			}
		}
		m.Roles = kept
	}
	return nil
}

func (p *fakePlatform) Message(_ context.Context, channelID, messageID string) (*discordgo.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.missingMessages[messageID] {
		return nil, &ResolutionError{Kind: UnknownMessage, ID: messageID}
	}
	msg := &discordgo.Message{ID: messageID, ChannelID: channelID}
	if embed, ok := p.embeds[messageID]; ok {
		msg.Embeds = []*discordgo.MessageEmbed{embed}
	}
	return msg, nil
}

func (p *fakePlatform) SendEmbed(_ context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return "", p.sendErr
	}
	p.nextMessage++
	id := fmt.Sprintf("m%d", p.nextMessage)
	p.embeds[id] = embed
	p.record("send %v %v", channelID, id)
	return id, nil
}

func (p *fakePlatform) EditEmbed(_ context.Context, channelID, messageID string, embed *discordgo.MessageEmbed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.embeds[messageID] = embed
	p.record("edit %v %v", channelID, messageID)
	return nil
}

func (p *fakePlatform) DeleteMessage(_ context.Context, channelID, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("delete %v %v", channelID, messageID)
	return nil
}

func (p *fakePlatform) AddReaction(_ context.Context, channelID, messageID, emoji string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("react %v %v %v", channelID, messageID, emoji)
	return nil
}

func (p *fakePlatform) RemoveReaction(_ context.Context, channelID, messageID, emoji, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("unreact %v %v %v %v", channelID, messageID, emoji, userID)
	return nil
}

func (p *fakePlatform) ClearReaction(_ context.Context, channelID, messageID, emoji string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("clear %v %v %v", channelID, messageID, emoji)
	return nil
}

func (p *fakePlatform) LockReactions(_ context.Context, guildID, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("lock %v %v", guildID, channelID)
	return nil
}

//fakeResolver resolves role names and mentions from a fixed table
type fakeResolver map[string]string

func (r fakeResolver) ResolveRole(_ string, text string) (string, error) {
	if text == "explode" {
		return "", fmt.Errorf("discord is down")
	}
	return r[text], nil
}
