package db

import (
	"context"

	"github.com/callummance/koala/guildmodels"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//AddRequiredRole adds a role to the guild's required role list. Adding a role twice is a no-op.
func (db *Connection) AddRequiredRole(ctx context.Context, guildID, roleID string) error {
	err := db.session.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&guildmodels.GuildRequiredRole{GuildID: guildID, RoleID: roleID}).Error
	if err != nil {
		logrus.Warnf("Encountered error adding required role %v to guild %v: %v", roleID, guildID, err)
		return wrapErr("add required role", err)
	}
	return nil
}

//RemoveRequiredRole removes a role from the guild's required role list
func (db *Connection) RemoveRequiredRole(ctx context.Context, guildID, roleID string) error {
	err := db.session.WithContext(ctx).
		Where("guild_id = ? AND role_id = ?", guildID, roleID).
		Delete(&guildmodels.GuildRequiredRole{}).Error
	if err != nil {
		logrus.Warnf("Encountered error removing required role %v from guild %v: %v", roleID, guildID, err)
		return wrapErr("remove required role", err)
	}
	return nil
}

//ListRequiredRoles returns the IDs of all required roles in a guild
func (db *Connection) ListRequiredRoles(ctx context.Context, guildID string) ([]string, error) {
	var roles []string
	err := db.session.WithContext(ctx).Model(&guildmodels.GuildRequiredRole{}).
		Where("guild_id = ?", guildID).
		Order("role_id").
		Pluck("role_id", &roles).Error
	if err != nil {
		logrus.Warnf("Encountered error listing required roles for guild %v: %v", guildID, err)
		return nil, wrapErr("list required roles", err)
	}
	return roles, nil
}

//SetRequiredRoles replaces the guild's required role list
func (db *Connection) SetRequiredRoles(ctx context.Context, guildID string, roleIDs []string) error {
	err := db.session.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("guild_id = ?", guildID).Delete(&guildmodels.GuildRequiredRole{}).Error; err != nil {
			return err
		}
		for _, roleID := range roleIDs {
			err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&guildmodels.GuildRequiredRole{GuildID: guildID, RoleID: roleID}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logrus.Warnf("Encountered error setting required roles for guild %v: %v", guildID, err)
		return wrapErr("set required roles", err)
	}
	return nil
}
