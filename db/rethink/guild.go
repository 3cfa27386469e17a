package rethink

import (
	"context"
	"fmt"

	"github.com/callummance/koala/db"
	"github.com/callummance/koala/guildmodels"
	"github.com/sirupsen/logrus"
	rethink "gopkg.in/gorethink/gorethink.v3"
)

//GetOrCreateGuild fetches a guild with a given ID from the database, creating a new one if it does not exist.
func (c *Connection) GetOrCreateGuild(_ context.Context, id string) (*guildmodels.DiscordGuild, error) {
	var guildObj guildmodels.DiscordGuild
	res, err := rethink.Table(guildsTable).Get(id).Run(c.session)
	if err != nil {
		logrus.Errorf("Failed to query database for guild %v because: %v.", id, err)
		return nil, db.NewStorageError("get guild", err)
	}
	defer res.Close()

	if res.IsNil() {
		//Create new guild object
		logrus.Infof("Inserting new guild id %v into database.", id)
		guildObj = guildmodels.DefaultGuild(id)
		resp, err := rethink.Table(guildsTable).Insert(guildObj).RunWrite(c.session)
		if err := writeErr(resp, err); err != nil {
			logrus.Errorf("Failed to insert new guild with id %v because: %v.", id, err)
			return nil, db.NewStorageError("create guild", err)
		} else if resp.Inserted != 1 {
			logrus.Warnf("Expected to insert 1 new guild but recieved response %v.", resp)
		}
	} else {
		err = res.One(&guildObj)
		if err != nil {
			logrus.Errorf("Failed to read guild %v from database because: %v.", id, err)
			return nil, db.NewStorageError("get guild", err)
		}
	}
	return &guildObj, nil
}

//AddAdminRole adds a roleID to the list of AdminRoles for the given guild. It returns the number of updated
//entries as well as any errors
func (c *Connection) AddAdminRole(ctx context.Context, gid string, roleID string) (int, error) {
	//Make sure guild exists
	if _, err := c.GetOrCreateGuild(ctx, gid); err != nil {
		return 0, err
	}
	resp, err := rethink.Table(guildsTable).Get(gid).Update(map[string]interface{}{
		"admin_roles": rethink.Row.Field("admin_roles").Default([]string{}).SetInsert(roleID),
	}).RunWrite(c.session)
	if err := writeErr(resp, err); err != nil {
		logrus.Warnf("Encountered error appending admin role to DB: %v", err)
		return 0, db.NewStorageError(fmt.Sprintf("add admin role %v", roleID), err)
	}
	return resp.Replaced, nil
}
