package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/callummance/koala/guildmodels"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

//CreateManagedMessage registers a chat message as a reaction-role panel and returns its new group ID.
func (db *Connection) CreateManagedMessage(ctx context.Context, msg guildmodels.ManagedMessage) (*guildmodels.ManagedMessage, error) {
	msg.GroupID = uuid.NewString()
	err := db.session.WithContext(ctx).Create(&msg).Error
	if err != nil {
		logrus.Warnf("Encountered error inserting managed message %v:%v:%v into database: %v.", msg.GuildID, msg.ChannelID, msg.MessageID, err)
		return nil, wrapErr("create managed message", err)
	}
	return &msg, nil
}

//GetManagedMessage looks up a managed message by its guild, channel and message IDs.
//It returns nil without error if the message is not managed.
func (db *Connection) GetManagedMessage(ctx context.Context, guildID, channelID, messageID string) (*guildmodels.ManagedMessage, error) {
	var msg guildmodels.ManagedMessage
	err := db.session.WithContext(ctx).
		Where("guild_id = ? AND channel_id = ? AND message_id = ?", guildID, channelID, messageID).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		logrus.Warnf("Encountered error looking up managed message %v:%v:%v: %v.", guildID, channelID, messageID, err)
		return nil, wrapErr("get managed message", err)
	}
	return &msg, nil
}

//GetManagedMessageByGroup looks up a managed message by its group ID, returning nil if there is none.
func (db *Connection) GetManagedMessageByGroup(ctx context.Context, groupID string) (*guildmodels.ManagedMessage, error) {
	var msg guildmodels.ManagedMessage
	err := db.session.WithContext(ctx).First(&msg, "group_id = ?", groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, wrapErr("get managed message by group", err)
	}
	return &msg, nil
}

//ListManagedMessages returns every managed message in a guild
func (db *Connection) ListManagedMessages(ctx context.Context, guildID string) ([]guildmodels.ManagedMessage, error) {
	var msgs []guildmodels.ManagedMessage
	err := db.session.WithContext(ctx).Where("guild_id = ?", guildID).Order("group_id").Find(&msgs).Error
	if err != nil {
		logrus.Warnf("Encountered error listing managed messages for guild %v: %v.", guildID, err)
		return nil, wrapErr("list managed messages", err)
	}
	return msgs, nil
}

//UpdateManagedMessage stores a new title and description for a managed message
func (db *Connection) UpdateManagedMessage(ctx context.Context, groupID, title, description string) error {
	res := db.session.WithContext(ctx).Model(&guildmodels.ManagedMessage{}).
		Where("group_id = ?", groupID).
		Updates(map[string]interface{}{"title": title, "description": description})
	if res.Error != nil {
		return wrapErr("update managed message", res.Error)
	}
	if res.RowsAffected == 0 {
		//Updates reports 0 rows when nothing changed on mysql, so check existence before failing
		msg, err := db.GetManagedMessageByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if msg == nil {
			return NewStorageError("update managed message", fmt.Errorf("%w: group %v", ErrNotFound, groupID))
		}
	}
	return nil
}

//DeleteManagedMessage removes a managed message along with all of its bindings
func (db *Connection) DeleteManagedMessage(ctx context.Context, guildID, channelID, messageID string) error {
	err := db.session.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg guildmodels.ManagedMessage
		err := tx.Where("guild_id = ? AND channel_id = ? AND message_id = ?", guildID, channelID, messageID).First(&msg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: message %v:%v:%v", ErrNotFound, guildID, channelID, messageID)
		} else if err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", msg.GroupID).Delete(&guildmodels.EmojiRoleBinding{}).Error; err != nil {
			return err
		}
		return tx.Delete(&msg).Error
	})
	if err != nil {
		logrus.Warnf("Encountered error deleting managed message %v:%v:%v: %v.", guildID, channelID, messageID, err)
		return wrapErr("delete managed message", err)
	}
	return nil
}
