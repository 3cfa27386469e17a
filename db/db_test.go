package db

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/callummance/koala/guildmodels"
)

func openTestDB(t *testing.T) *Connection {
	t.Helper()
	conn, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "koala.sqlite"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(conn.Close)
	return conn
}

func createTestMessage(t *testing.T, conn *Connection, guildID, channelID, messageID string) *guildmodels.ManagedMessage {
	t.Helper()
	msg, err := conn.CreateManagedMessage(context.Background(), guildmodels.ManagedMessage{
		GuildID:   guildID,
		ChannelID: channelID,
		MessageID: messageID,
		Title:     "React for Role",
	})
	if err != nil {
		t.Fatalf("CreateManagedMessage() error: %v", err)
	}
	return msg
}

func TestManagedMessageLifecycle(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)

	msg := createTestMessage(t, conn, "g1", "c1", "m1")
	if msg.GroupID == "" {
		t.Fatal("expected a group id to be assigned")
	}

	got, err := conn.GetManagedMessage(ctx, "g1", "c1", "m1")
	if err != nil {
		t.Fatalf("GetManagedMessage() error: %v", err)
	}
	if got == nil || got.GroupID != msg.GroupID {
		t.Fatalf("GetManagedMessage() = %+v, want group %v", got, msg.GroupID)
	}

	missing, err := conn.GetManagedMessage(ctx, "g1", "c1", "nope")
	if err != nil {
		t.Fatalf("GetManagedMessage() error: %v", err)
	}
	if missing != nil {
		t.Errorf("GetManagedMessage() for unmanaged message = %+v, want nil", missing)
	}

	if err := conn.UpdateManagedMessage(ctx, msg.GroupID, "Games", "Pick your games"); err != nil {
		t.Fatalf("UpdateManagedMessage() error: %v", err)
	}
	got, _ = conn.GetManagedMessageByGroup(ctx, msg.GroupID)
	if got.Title != "Games" || got.Description != "Pick your games" {
		t.Errorf("after update got title %q description %q", got.Title, got.Description)
	}

	if err := conn.AddBinding(ctx, msg.GroupID, ":star:", "42"); err != nil {
		t.Fatalf("AddBinding() error: %v", err)
	}
	if err := conn.DeleteManagedMessage(ctx, "g1", "c1", "m1"); err != nil {
		t.Fatalf("DeleteManagedMessage() error: %v", err)
	}
	bindings, err := conn.GetBindings(ctx, msg.GroupID)
	if err != nil {
		t.Fatalf("GetBindings() error: %v", err)
	}
	if len(bindings) != 0 {
		t.Errorf("bindings survived message deletion: %+v", bindings)
	}

	err = conn.DeleteManagedMessage(ctx, "g1", "c1", "m1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteManagedMessage() error = %v, want ErrNotFound", err)
	}
}

func TestCreateManagedMessageTwiceFails(t *testing.T) {
	conn := openTestDB(t)
	createTestMessage(t, conn, "g1", "c1", "m1")

	_, err := conn.CreateManagedMessage(context.Background(), guildmodels.ManagedMessage{GuildID: "g1", ChannelID: "c1", MessageID: "m1"})
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("CreateManagedMessage() error = %v, want StorageError", err)
	}
}

func TestAddBindingUniqueness(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	msg := createTestMessage(t, conn, "g1", "c1", "m1")

	if err := conn.AddBinding(ctx, msg.GroupID, ":star:", "42"); err != nil {
		t.Fatalf("AddBinding() error: %v", err)
	}
	//Exact duplicates are swallowed
	if err := conn.AddBinding(ctx, msg.GroupID, ":star:", "42"); err != nil {
		t.Fatalf("duplicate AddBinding() error = %v, want nil", err)
	}

	tests := []struct {
		name     string
		emojiKey string
		roleID   string
	}{
		{"same emoji different role", ":star:", "43"},
		{"same role different emoji", ":heart:", "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := conn.AddBinding(ctx, msg.GroupID, tt.emojiKey, tt.roleID)
			if !errors.Is(err, ErrConstraint) {
				t.Errorf("AddBinding(%v, %v) error = %v, want ErrConstraint", tt.emojiKey, tt.roleID, err)
			}
		})
	}

	bindings, err := conn.GetBindings(ctx, msg.GroupID)
	if err != nil {
		t.Fatalf("GetBindings() error: %v", err)
	}
	if len(bindings) != 1 {
		t.Fatalf("got %d bindings, want 1: %+v", len(bindings), bindings)
	}

	//The same emoji may be reused on another message
	other := createTestMessage(t, conn, "g1", "c1", "m2")
	if err := conn.AddBinding(ctx, other.GroupID, ":star:", "43"); err != nil {
		t.Errorf("AddBinding() on other message error: %v", err)
	}
}

func TestCustomEmojiBindingsMatchByID(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	msg := createTestMessage(t, conn, "g1", "c1", "m1")

	if err := conn.AddBinding(ctx, msg.GroupID, "<:koala:77>", "42"); err != nil {
		t.Fatalf("AddBinding() error: %v", err)
	}
	//Renamed or animated forms of the same emoji are the same binding
	if err := conn.AddBinding(ctx, msg.GroupID, "<a:bear:77>", "42"); err != nil {
		t.Errorf("AddBinding() of the same emoji under another name error = %v, want nil", err)
	}
	if err := conn.AddBinding(ctx, msg.GroupID, "<:bear:77>", "43"); !errors.Is(err, ErrConstraint) {
		t.Errorf("AddBinding() of a renamed emoji to another role error = %v, want ErrConstraint", err)
	}
	bindings, err := conn.GetBindings(ctx, msg.GroupID)
	if err != nil {
		t.Fatalf("GetBindings() error: %v", err)
	}
	if len(bindings) != 1 || bindings[0].EmojiKey != "<:koala:77>" || bindings[0].EmojiID != "77" {
		t.Fatalf("GetBindings() = %+v, want the original <:koala:77> binding only", bindings)
	}

	n, err := conn.RemoveBinding(ctx, msg.GroupID, "<:renamed:77>", "")
	if err != nil || n != 1 {
		t.Errorf("RemoveBinding(renamed emoji) = %d, %v; want 1, nil", n, err)
	}
}

func TestRemoveBinding(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	msg := createTestMessage(t, conn, "g1", "c1", "m1")
	for emoji, role := range map[string]string{":star:": "1", ":heart:": "2", ":fire:": "3"} {
		if err := conn.AddBinding(ctx, msg.GroupID, emoji, role); err != nil {
			t.Fatalf("AddBinding() error: %v", err)
		}
	}

	n, err := conn.RemoveBinding(ctx, msg.GroupID, ":star:", "")
	if err != nil || n != 1 {
		t.Errorf("RemoveBinding(emoji) = %d, %v; want 1, nil", n, err)
	}
	n, err = conn.RemoveBinding(ctx, msg.GroupID, "", "2")
	if err != nil || n != 1 {
		t.Errorf("RemoveBinding(role) = %d, %v; want 1, nil", n, err)
	}
	//Emoji key takes precedence when both are given
	n, err = conn.RemoveBinding(ctx, msg.GroupID, ":nothing:", "3")
	if err != nil || n != 0 {
		t.Errorf("RemoveBinding(emoji, role) = %d, %v; want 0, nil", n, err)
	}
	if _, err := conn.RemoveBinding(ctx, msg.GroupID, "", ""); err == nil {
		t.Error("RemoveBinding() with no selector should fail")
	}
}

func TestListGuildRolesBound(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	m1 := createTestMessage(t, conn, "g1", "c1", "m1")
	m2 := createTestMessage(t, conn, "g1", "c2", "m2")
	m3 := createTestMessage(t, conn, "g2", "c3", "m3")
	_ = conn.AddBinding(ctx, m1.GroupID, ":star:", "1")
	_ = conn.AddBinding(ctx, m1.GroupID, ":heart:", "2")
	_ = conn.AddBinding(ctx, m2.GroupID, ":star:", "2")
	_ = conn.AddBinding(ctx, m3.GroupID, ":star:", "9")

	roles, err := conn.ListGuildRolesBound(ctx, "g1")
	if err != nil {
		t.Fatalf("ListGuildRolesBound() error: %v", err)
	}
	if want := []string{"1", "2"}; !reflect.DeepEqual(roles, want) {
		t.Errorf("ListGuildRolesBound() = %v, want %v", roles, want)
	}
}

func TestRequiredRoles(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)

	if err := conn.AddRequiredRole(ctx, "g1", "7"); err != nil {
		t.Fatalf("AddRequiredRole() error: %v", err)
	}
	if err := conn.AddRequiredRole(ctx, "g1", "7"); err != nil {
		t.Fatalf("duplicate AddRequiredRole() error: %v", err)
	}
	_ = conn.AddRequiredRole(ctx, "g2", "8")

	roles, _ := conn.ListRequiredRoles(ctx, "g1")
	if want := []string{"7"}; !reflect.DeepEqual(roles, want) {
		t.Errorf("ListRequiredRoles() = %v, want %v", roles, want)
	}

	if err := conn.SetRequiredRoles(ctx, "g1", []string{"3", "4", "3"}); err != nil {
		t.Fatalf("SetRequiredRoles() error: %v", err)
	}
	roles, _ = conn.ListRequiredRoles(ctx, "g1")
	if want := []string{"3", "4"}; !reflect.DeepEqual(roles, want) {
		t.Errorf("ListRequiredRoles() after set = %v, want %v", roles, want)
	}

	if err := conn.RemoveRequiredRole(ctx, "g1", "3"); err != nil {
		t.Fatalf("RemoveRequiredRole() error: %v", err)
	}
	roles, _ = conn.ListRequiredRoles(ctx, "g1")
	if want := []string{"4"}; !reflect.DeepEqual(roles, want) {
		t.Errorf("ListRequiredRoles() after remove = %v, want %v", roles, want)
	}
	other, _ := conn.ListRequiredRoles(ctx, "g2")
	if want := []string{"8"}; !reflect.DeepEqual(other, want) {
		t.Errorf("other guild roles = %v, want %v", other, want)
	}
}

func TestAdminRoles(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)

	guild, err := conn.GetOrCreateGuild(ctx, "g1")
	if err != nil {
		t.Fatalf("GetOrCreateGuild() error: %v", err)
	}
	if len(guild.AdminRoles) != 0 {
		t.Errorf("new guild has admin roles %v", guild.AdminRoles)
	}
	n, err := conn.AddAdminRole(ctx, "g1", "5")
	if err != nil || n != 1 {
		t.Fatalf("AddAdminRole() = %d, %v; want 1, nil", n, err)
	}
	n, err = conn.AddAdminRole(ctx, "g1", "5")
	if err != nil || n != 0 {
		t.Fatalf("repeated AddAdminRole() = %d, %v; want 0, nil", n, err)
	}
	guild, _ = conn.GetOrCreateGuild(ctx, "g1")
	if !guild.HasAdminRole([]string{"1", "5"}) {
		t.Errorf("guild admin roles = %v, want to contain 5", guild.AdminRoles)
	}
}

func TestNormaliseMySQLDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"u:p@tcp(h)/koala", "u:p@tcp(h)/koala?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci"},
		{"u:p@tcp(h)/koala?charset=latin1", "u:p@tcp(h)/koala?charset=latin1&parseTime=true"},
		{"u:p@tcp(h)/koala?parseTime=false&charset=utf8", "u:p@tcp(h)/koala?parseTime=false&charset=utf8"},
	}
	for _, tt := range tests {
		if got := normaliseMySQLDSN(tt.in); got != tt.want {
			t.Errorf("normaliseMySQLDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
