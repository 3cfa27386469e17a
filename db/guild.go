package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/callummance/koala/guildmodels"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

//GetOrCreateGuild fetches a guild with a given ID from the database, creating a new one if it does not exist.
func (db *Connection) GetOrCreateGuild(ctx context.Context, id string) (*guildmodels.DiscordGuild, error) {
	var guildObj guildmodels.DiscordGuild
	err := db.session.WithContext(ctx).First(&guildObj, "guild_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		//Create new guild object
		logrus.Infof("Inserting new guild id %v into database.", id)
		guildObj = guildmodels.DefaultGuild(id)
		if err := db.session.WithContext(ctx).Create(&guildObj).Error; err != nil {
			logrus.Errorf("Failed to insert new guild with id %v because: %v.", id, err)
			return nil, wrapErr("create guild", err)
		}
	} else if err != nil {
		logrus.Errorf("Failed to query database for guild %v because: %v.", id, err)
		return nil, wrapErr("get guild", err)
	}
	return &guildObj, nil
}

//AddAdminRole adds a roleID to the list of AdminRoles for the given guild. It returns the number of updated
//entries as well as any errors
func (db *Connection) AddAdminRole(ctx context.Context, gid string, roleID string) (int, error) {
	updated := 0
	err := db.session.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var guildObj guildmodels.DiscordGuild
		err := tx.First(&guildObj, "guild_id = ?", gid).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			guildObj = guildmodels.DefaultGuild(gid)
		} else if err != nil {
			return err
		}
		for _, existing := range guildObj.AdminRoles {
			if existing == roleID {
				return nil
			}
		}
		guildObj.AdminRoles = append(guildObj.AdminRoles, roleID)
		if err := tx.Save(&guildObj).Error; err != nil {
			return err
		}
		updated = 1
		return nil
	})
	if err != nil {
		logrus.Warnf("Encountered error appending admin role to DB: %v", err)
		return 0, wrapErr(fmt.Sprintf("add admin role %v", roleID), err)
	}
	return updated, nil
}
