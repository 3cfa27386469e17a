package db

import (
	"context"
	"fmt"

	"github.com/callummance/koala/guildmodels"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

//AddBinding binds an emoji to a role on a managed message. Inserting a binding which already exists
//is logged and ignored; binding an emoji or role that is already bound to something else fails.
func (db *Connection) AddBinding(ctx context.Context, groupID, emojiKey, roleID string) error {
	emojiID := guildmodels.EmojiIdentity(emojiKey)
	err := db.session.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []guildmodels.EmojiRoleBinding
		err := tx.Where("group_id = ? AND (emoji_id = ? OR role_id = ?)", groupID, emojiID, roleID).
			Find(&existing).Error
		if err != nil {
			return err
		}
		for _, b := range existing {
			if b.EmojiID == emojiID && b.RoleID == roleID {
				logrus.Warnf("Binding %v -> %v already exists on group %v; ignoring duplicate insert", emojiKey, roleID, groupID)
				return nil
			}
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: emoji %v or role %v is already bound on group %v", ErrConstraint, emojiKey, roleID, groupID)
		}
		return tx.Create(&guildmodels.EmojiRoleBinding{
			GroupID:  groupID,
			EmojiKey: emojiKey,
			EmojiID:  emojiID,
			RoleID:   roleID,
		}).Error
	})
	if err != nil {
		logrus.Warnf("Encountered error adding binding %v -> %v to group %v: %v", emojiKey, roleID, groupID, err)
		return wrapErr("add binding", err)
	}
	return nil
}

//RemoveBinding removes a binding from a managed message, selecting by emoji if one is given and by role
//ID otherwise. Custom emoji match by ID whatever name they were given. It returns the number of bindings removed.
func (db *Connection) RemoveBinding(ctx context.Context, groupID, emojiKey, roleID string) (int64, error) {
	query := db.session.WithContext(ctx).Where("group_id = ?", groupID)
	switch {
	case emojiKey != "":
		query = query.Where("emoji_id = ?", guildmodels.EmojiIdentity(emojiKey))
	case roleID != "":
		query = query.Where("role_id = ?", roleID)
	default:
		return 0, NewStorageError("remove binding", fmt.Errorf("neither emoji nor role was given"))
	}
	res := query.Delete(&guildmodels.EmojiRoleBinding{})
	if res.Error != nil {
		logrus.Warnf("Encountered error removing binding from group %v: %v", groupID, res.Error)
		return 0, wrapErr("remove binding", res.Error)
	}
	return res.RowsAffected, nil
}

//GetBindings returns all bindings on a managed message in insertion order
func (db *Connection) GetBindings(ctx context.Context, groupID string) ([]guildmodels.EmojiRoleBinding, error) {
	var bindings []guildmodels.EmojiRoleBinding
	err := db.session.WithContext(ctx).Where("group_id = ?", groupID).Order("id").Find(&bindings).Error
	if err != nil {
		logrus.Warnf("Encountered error fetching bindings for group %v: %v", groupID, err)
		return nil, wrapErr("get bindings", err)
	}
	return bindings, nil
}

//ListGuildRolesBound returns the distinct role IDs bound on any managed message in the guild
func (db *Connection) ListGuildRolesBound(ctx context.Context, guildID string) ([]string, error) {
	var roles []string
	err := db.session.WithContext(ctx).Model(&guildmodels.EmojiRoleBinding{}).
		Joins("JOIN rfr_messages ON rfr_messages.group_id = rfr_bindings.group_id").
		Where("rfr_messages.guild_id = ?", guildID).
		Distinct().
		Order("rfr_bindings.role_id").
		Pluck("rfr_bindings.role_id", &roles).Error
	if err != nil {
		logrus.Warnf("Encountered error listing bound roles for guild %v: %v", guildID, err)
		return nil, wrapErr("list guild roles bound", err)
	}
	return roles, nil
}
