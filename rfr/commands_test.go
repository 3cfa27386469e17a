package rfr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/callummance/koala/db"
	"github.com/callummance/koala/guildmodels"
)

func TestCreateManagedMessage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	platform := newFakePlatform()
	e := New(store, platform)

	msg, err := e.CreateManagedMessage(ctx, testGuild, testChannel, "Pronouns", "")
	if err != nil {
		t.Fatalf("CreateManagedMessage() error: %v", err)
	}
	if msg.GroupID == "" || msg.MessageID != "m1" {
		t.Errorf("unexpected managed message %+v", msg)
	}
	wantCalls := []string{"lock g1 c1", "send c1 m1"}
	if !slices.Equal(platform.calls, wantCalls) {
		t.Errorf("calls = %v, want %v", platform.calls, wantCalls)
	}
	if embed := platform.embeds["m1"]; embed.Title != "Pronouns" || embed.Description != defaultPanelDescription {
		t.Errorf("panel = %q / %q", embed.Title, embed.Description)
	}
	found, err := e.FindManagedMessage(ctx, testGuild, testChannel, "m1")
	if err != nil || found == nil || found.GroupID != msg.GroupID {
		t.Errorf("FindManagedMessage() = %+v, %v", found, err)
	}
}

func TestCreateManagedMessageSendFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	platform := newFakePlatform()
	platform.sendErr = &ResolutionError{Kind: UnknownChannel, ID: testChannel}
	e := New(store, platform)

	if _, err := e.CreateManagedMessage(ctx, testGuild, testChannel, "", ""); !IsResolution(err, UnknownChannel) {
		t.Fatalf("CreateManagedMessage() error = %v, want UNKNOWN_CHANNEL", err)
	}
	msgs, err := store.ListManagedMessages(ctx, testGuild)
	if err != nil {
		t.Fatalf("ListManagedMessages() error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("managed messages = %+v, want none", msgs)
	}
}

func TestUnknownGroup(t *testing.T) {
	e := New(newTestStore(t), newFakePlatform())
	if _, err := e.ManagedMessage(context.Background(), "missing"); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("ManagedMessage() error = %v, want ErrUnknownGroup", err)
	}
	if _, err := e.AddBindings(context.Background(), "missing", nil); !IsUserError(err) {
		t.Errorf("AddBindings() error = %v, want a user error", err)
	}
}

func TestAddBindings(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	n, err := f.engine.AddBindings(ctx, f.msg.GroupID, []Binding{
		{EmojiKey: "<:star:1>", RoleID: "R1"},
		{EmojiKey: "<:moon:3>", RoleID: "R3"},
	})
	if err != nil {
		t.Fatalf("AddBindings() error: %v", err)
	}
	if n != 1 {
		t.Errorf("added %d, want 1", n)
	}
	if got := f.platform.callsWithPrefix("react"); !slices.Equal(got, []string{"react c1 m1 moon:3"}) {
		t.Errorf("seeded reactions = %v", got)
	}
	embed := f.platform.embeds[testMessage]
	if embed == nil || len(embed.Fields) != 3 {
		t.Fatalf("panel = %+v, want 3 fields", embed)
	}
	if embed.Fields[2].Name != "<:moon:3>" || embed.Fields[2].Value != "<@&R3>" {
		t.Errorf("new field = %+v", embed.Fields[2])
	}

	n, err = f.engine.AddBindings(ctx, f.msg.GroupID, []Binding{{EmojiKey: "<:moon:3>", RoleID: "R3"}})
	if err != nil || n != 0 {
		t.Errorf("re-adding binding = %d, %v; want 0, nil", n, err)
	}
}

func TestAddBindingsConflict(t *testing.T) {
	f := newEngineFixture(t)
	n, err := f.engine.AddBindings(context.Background(), f.msg.GroupID, []Binding{
		{EmojiKey: "<:moon:3>", RoleID: "R3"},
		{EmojiKey: "<:star:1>", RoleID: "R9"},
		{EmojiKey: "<:sun:4>", RoleID: "R4"},
	})
	if !errors.Is(err, db.ErrConstraint) {
		t.Errorf("AddBindings() error = %v, want a constraint violation", err)
	}
	if n != 1 {
		t.Errorf("added %d before the conflict, want 1", n)
	}
}

func TestAddBindingsSameEmojiTypedDifferently(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	alias, _ := ParseEmoji(":thumbsup:")
	glyph, _ := ParseEmoji("👍")

	n, err := f.engine.AddBindings(ctx, f.msg.GroupID, []Binding{
		{EmojiKey: alias, RoleID: "R3"},
		{EmojiKey: glyph, RoleID: "R4"},
	})
	if !errors.Is(err, db.ErrConstraint) {
		t.Errorf("AddBindings() error = %v, want a constraint violation", err)
	}
	if n != 1 {
		t.Errorf("added %d, want 1", n)
	}

	//A renamed custom emoji is still the emoji already bound
	n, err = f.engine.AddBindings(ctx, f.msg.GroupID, []Binding{{EmojiKey: "<:shiny:1>", RoleID: "R5"}})
	if !errors.Is(err, db.ErrConstraint) || n != 0 {
		t.Errorf("AddBindings(renamed emoji) = %d, %v; want 0 and a constraint violation", n, err)
	}
	n, err = f.engine.AddBindings(ctx, f.msg.GroupID, []Binding{{EmojiKey: "<a:shiny:1>", RoleID: "R1"}})
	if err != nil || n != 0 {
		t.Errorf("AddBindings(renamed duplicate) = %d, %v; want 0, nil", n, err)
	}

	bindings, err := f.store.GetBindings(ctx, f.msg.GroupID)
	if err != nil {
		t.Fatalf("GetBindings() error: %v", err)
	}
	if len(bindings) != 3 {
		t.Errorf("got %d bindings, want 3: %+v", len(bindings), bindings)
	}
}

func TestAddBindingsLimit(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	var pairs []Binding
	for i := 10; i <= 10+guildmodels.MaxBindingsPerMessage; i++ {
		pairs = append(pairs, Binding{EmojiKey: fmt.Sprintf("<:e%d:%d>", i, i), RoleID: fmt.Sprintf("R%d", i)})
	}
	n, err := f.engine.AddBindings(ctx, f.msg.GroupID, pairs)
	if !errors.Is(err, ErrBindingLimit) {
		t.Errorf("AddBindings() error = %v, want ErrBindingLimit", err)
	}
	if n != 18 {
		t.Errorf("added %d, want 18", n)
	}
	remaining, err := f.engine.RemainingSlots(ctx, f.msg.GroupID)
	if err != nil || remaining != 0 {
		t.Errorf("RemainingSlots() = %d, %v; want 0, nil", remaining, err)
	}
}

func TestRemoveBindings(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	n, err := f.engine.RemoveBindings(ctx, f.msg.GroupID, []Selector{{RoleID: "R2"}, {EmojiKey: "<:moon:3>"}})
	if err != nil {
		t.Fatalf("RemoveBindings() error: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if got := f.platform.callsWithPrefix("clear"); !slices.Equal(got, []string{"clear c1 m1 heart:2"}) {
		t.Errorf("cleared reactions = %v", got)
	}
	bindings, err := f.engine.Bindings(ctx, f.msg.GroupID)
	if err != nil {
		t.Fatalf("Bindings() error: %v", err)
	}
	if len(bindings) != 1 || bindings[0].RoleID != "R1" {
		t.Errorf("bindings = %+v, want only R1", bindings)
	}
	if embed := f.platform.embeds[testMessage]; embed == nil || len(embed.Fields) != 1 {
		t.Errorf("panel = %+v, want 1 field", embed)
	}
}

func TestEditManagedMessage(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	if err := f.engine.EditManagedMessage(ctx, f.msg.GroupID, "Colours", "Pick one"); err != nil {
		t.Fatalf("EditManagedMessage() error: %v", err)
	}
	msg, err := f.engine.ManagedMessage(ctx, f.msg.GroupID)
	if err != nil {
		t.Fatalf("ManagedMessage() error: %v", err)
	}
	if msg.Title != "Colours" || msg.Description != "Pick one" {
		t.Errorf("stored message = %+v", msg)
	}
	if embed := f.platform.embeds[testMessage]; embed == nil || embed.Title != "Colours" {
		t.Errorf("panel = %+v", embed)
	}
}

func TestFixReseedsPanel(t *testing.T) {
	f := newEngineFixture(t)
	f.platform.embeds[testMessage] = &discordgo.MessageEmbed{
		Fields: []*discordgo.MessageEmbedField{{Name: "<:old:7>", Value: "<@&R7>"}},
	}

	if err := f.engine.Fix(context.Background(), f.msg.GroupID); err != nil {
		t.Fatalf("Fix() error: %v", err)
	}
	reactions := f.platform.callsWithPrefix("react")
	if len(reactions) != 2 {
		t.Errorf("seeded reactions = %v, want 2", reactions)
	}
	if embed := f.platform.embeds[testMessage]; len(embed.Fields) != 2 {
		t.Errorf("panel fields = %+v, want 2", embed.Fields)
	}
}

func TestFixDeletesVanishedMessage(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.platform.missingMessages[testMessage] = true

	if err := f.engine.Fix(ctx, f.msg.GroupID); !IsResolution(err, UnknownMessage) {
		t.Fatalf("Fix() error = %v, want UNKNOWN_MESSAGE", err)
	}
	if _, err := f.engine.ManagedMessage(ctx, f.msg.GroupID); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("managed message survived Fix: %v", err)
	}
}

func TestRequiredRoleCommands(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	if err := f.engine.SetRequiredRoles(ctx, testGuild, []string{"V", "W", "V", ""}); err != nil {
		t.Fatalf("SetRequiredRoles() error: %v", err)
	}
	if err := f.engine.AddRequiredRole(ctx, testGuild, "X"); err != nil {
		t.Fatalf("AddRequiredRole() error: %v", err)
	}
	if err := f.engine.RemoveRequiredRole(ctx, testGuild, "W"); err != nil {
		t.Fatalf("RemoveRequiredRole() error: %v", err)
	}
	got, err := f.engine.ListRequiredRoles(ctx, testGuild)
	if err != nil {
		t.Fatalf("ListRequiredRoles() error: %v", err)
	}
	if !slices.Equal(got, []string{"V", "X"}) {
		t.Errorf("required roles = %v, want [V X]", got)
	}
}

func TestEnforceGuild(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.platform.addMember(testGuild, "eligible", false, "V", "R1")
	f.platform.addMember(testGuild, "ineligible", false, "R1", "R2")
	f.platform.addMember(testGuild, "unbound", false, "other")
	f.platform.addMember(testGuild, "bot", true, "R1")

	n, err := f.engine.EnforceGuild(ctx, testGuild)
	if err != nil || n != 0 {
		t.Fatalf("EnforceGuild() without requirement = %d, %v; want 0, nil", n, err)
	}

	f.requireRoles(t, "V")
	n, err = f.engine.EnforceGuild(ctx, testGuild)
	if err != nil {
		t.Fatalf("EnforceGuild() error: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d members, want 1", n)
	}
	if got := f.platform.rolesOf(testGuild, "ineligible"); len(got) != 0 {
		t.Errorf("ineligible roles = %v, want none", got)
	}
	if got := f.platform.rolesOf(testGuild, "eligible"); !slices.Equal(got, []string{"V", "R1"}) {
		t.Errorf("eligible roles = %v", got)
	}
	if got := f.platform.rolesOf(testGuild, "bot"); !slices.Equal(got, []string{"R1"}) {
		t.Errorf("bot roles = %v", got)
	}
}

func TestEnforceStopsOnIteratorError(t *testing.T) {
	f := newEngineFixture(t)
	boom := errors.New("gateway closed")
	members := func(yield func(*discordgo.Member, error) bool) {
		if !yield(&discordgo.Member{User: &discordgo.User{ID: "a"}, Roles: []string{"R1"}}, nil) {
			return
		}
		yield(nil, boom)
	}
	n, err := f.engine.enforce(context.Background(), testGuild, []string{"V"}, []string{"R1", "R2"}, members)
	if !errors.Is(err, boom) {
		t.Errorf("enforce() error = %v, want %v", err, boom)
	}
	if n != 1 {
		t.Errorf("swept %d members, want 1", n)
	}
}
