package rfr

import (
	"context"

	"github.com/callummance/koala/guildmodels"
)

//Store is the persistent state the engine reconciles chat events against
type Store interface {
	CreateManagedMessage(ctx context.Context, msg guildmodels.ManagedMessage) (*guildmodels.ManagedMessage, error)
	GetManagedMessage(ctx context.Context, guildID, channelID, messageID string) (*guildmodels.ManagedMessage, error)
	GetManagedMessageByGroup(ctx context.Context, groupID string) (*guildmodels.ManagedMessage, error)
	ListManagedMessages(ctx context.Context, guildID string) ([]guildmodels.ManagedMessage, error)
	UpdateManagedMessage(ctx context.Context, groupID, title, description string) error
	DeleteManagedMessage(ctx context.Context, guildID, channelID, messageID string) error

	AddBinding(ctx context.Context, groupID, emojiKey, roleID string) error
	RemoveBinding(ctx context.Context, groupID, emojiKey, roleID string) (int64, error)
	GetBindings(ctx context.Context, groupID string) ([]guildmodels.EmojiRoleBinding, error)
	ListGuildRolesBound(ctx context.Context, guildID string) ([]string, error)

	AddRequiredRole(ctx context.Context, guildID, roleID string) error
	RemoveRequiredRole(ctx context.Context, guildID, roleID string) error
	ListRequiredRoles(ctx context.Context, guildID string) ([]string, error)
	SetRequiredRoles(ctx context.Context, guildID string, roleIDs []string) error
}
