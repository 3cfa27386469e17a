package bot

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

const handleAddAdminRoleSyntax string = "`!addadminrole \"<role>\"` or `!addadminrole @<role>`"

//runAddAdminRole lets members with a role run admin commands
//command format: !addadminrole <role>
func runAddAdminRole(ctx context.Context, b *KoalaBot, req request) KoalaResponse {
	roleStr, _ := splitFirstLine(req.args)
	if roleStr == "" {
		return req.syntaxError("No role was given")
	}
	roleID, err := b.newRoleResolver(ctx).ResolveRole(req.msg.GuildID, roleStr)
	if err != nil {
		return req.internalError("Failed to look up the server's roles", err)
	} else if roleID == "" {
		return req.syntaxError(fmt.Sprintf("I couldn't find a role matching `%v`", roleStr))
	}
	return b.addAdminRole(ctx, req, roleID)
}

func (b *KoalaBot) addAdminRole(ctx context.Context, req request, roleID string) KoalaResponse {
	gid := req.msg.GuildID
	//Make sure guild exists
	_, err := b.guilds.GetOrCreateGuild(ctx, gid)
	if err != nil {
		logrus.Warnf("Encountered error %v when trying to add role %v to admins on server %v", err, roleID, gid)
		return req.internalError("Failed to load server settings", err)
	}
	//Add role to list
	noUpdated, err := b.guilds.AddAdminRole(ctx, gid, roleID)
	if err != nil {
		logrus.Warnf("Encountered error %v when trying to add role %v to admins on server %v", err, roleID, gid)
		return req.internalError("Failed to save server settings", err)
	} else if noUpdated == 0 {
		return req.success(fmt.Sprintf("<@&%v> was already an admin role.", roleID), nil)
	}
	return req.success(fmt.Sprintf("Members with <@&%v> can now use admin commands.", roleID), nil)
}
