package rethink

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/callummance/koala/db"
	"github.com/callummance/koala/guildmodels"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	rethink "gopkg.in/gorethink/gorethink.v3"
)

//bindingDoc uses [group_id, emoji_id] as its primary key so that an emoji can only be bound once per message
type bindingDoc struct {
	ID       []string `gorethink:"id"`
	GroupID  string   `gorethink:"group_id"`
	EmojiKey string   `gorethink:"emoji_key"`
	EmojiID  string   `gorethink:"emoji_id"`
	RoleID   string   `gorethink:"role_id"`
	Seq      int64    `gorethink:"seq"`
}

//roleClaimDoc uses [group_id, role_id] as its primary key so that a role can only be bound once per message.
//A claim is inserted before its binding and names the emoji that holds the role.
type roleClaimDoc struct {
	ID      []string `gorethink:"id"`
	GroupID string   `gorethink:"group_id"`
	EmojiID string   `gorethink:"emoji_id"`
}

type requiredRoleDoc struct {
	ID      []string `gorethink:"id"`
	GuildID string   `gorethink:"guild_id"`
	RoleID  string   `gorethink:"role_id"`
}

func messageFilter(guildID, channelID, messageID string) map[string]interface{} {
	return map[string]interface{}{
		"guild_id":   guildID,
		"channel_id": channelID,
		"message_id": messageID,
	}
}

//CreateManagedMessage registers a chat message as a reaction-role panel and returns its new group ID.
func (c *Connection) CreateManagedMessage(ctx context.Context, msg guildmodels.ManagedMessage) (*guildmodels.ManagedMessage, error) {
	existing, err := c.GetManagedMessage(ctx, msg.GuildID, msg.ChannelID, msg.MessageID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, db.NewStorageError("create managed message", fmt.Errorf("%w: message %v:%v:%v is already managed", db.ErrConstraint, msg.GuildID, msg.ChannelID, msg.MessageID))
	}
	msg.GroupID = uuid.NewString()
	resp, err := rethink.Table(messagesTable).Insert(msg).RunWrite(c.session)
	if err := writeErr(resp, err); err != nil {
		logrus.Warnf("Encountered error inserting managed message %v:%v:%v into database: %v.", msg.GuildID, msg.ChannelID, msg.MessageID, err)
		return nil, db.NewStorageError("create managed message", err)
	}
	return &msg, nil
}

//GetManagedMessage looks up a managed message by its guild, channel and message IDs.
//It returns nil without error if the message is not managed.
func (c *Connection) GetManagedMessage(_ context.Context, guildID, channelID, messageID string) (*guildmodels.ManagedMessage, error) {
	res, err := rethink.Table(messagesTable).Filter(messageFilter(guildID, channelID, messageID)).Run(c.session)
	if err != nil {
		logrus.Warnf("Encountered error looking up managed message %v:%v:%v: %v.", guildID, channelID, messageID, err)
		return nil, db.NewStorageError("get managed message", err)
	}
	defer res.Close()
	if res.IsNil() {
		return nil, nil
	}
	var msg guildmodels.ManagedMessage
	if err := res.One(&msg); err != nil {
		if err == rethink.ErrEmptyResult {
			return nil, nil
		}
		return nil, db.NewStorageError("get managed message", err)
	}
	return &msg, nil
}

//GetManagedMessageByGroup looks up a managed message by its group ID, returning nil if there is none.
func (c *Connection) GetManagedMessageByGroup(_ context.Context, groupID string) (*guildmodels.ManagedMessage, error) {
	res, err := rethink.Table(messagesTable).Get(groupID).Run(c.session)
	if err != nil {
		return nil, db.NewStorageError("get managed message by group", err)
	}
	defer res.Close()
	if res.IsNil() {
		return nil, nil
	}
	var msg guildmodels.ManagedMessage
	if err := res.One(&msg); err != nil {
		return nil, db.NewStorageError("get managed message by group", err)
	}
	return &msg, nil
}

//ListManagedMessages returns every managed message in a guild
func (c *Connection) ListManagedMessages(_ context.Context, guildID string) ([]guildmodels.ManagedMessage, error) {
	res, err := rethink.Table(messagesTable).Filter(map[string]interface{}{"guild_id": guildID}).OrderBy("id").Run(c.session)
	if err != nil {
		logrus.Warnf("Encountered error listing managed messages for guild %v: %v.", guildID, err)
		return nil, db.NewStorageError("list managed messages", err)
	}
	defer res.Close()
	var msgs []guildmodels.ManagedMessage
	if err := res.All(&msgs); err != nil {
		return nil, db.NewStorageError("list managed messages", err)
	}
	return msgs, nil
}

//UpdateManagedMessage stores a new title and description for a managed message
func (c *Connection) UpdateManagedMessage(_ context.Context, groupID, title, description string) error {
	resp, err := rethink.Table(messagesTable).Get(groupID).Update(map[string]interface{}{
		"title":       title,
		"description": description,
	}).RunWrite(c.session)
	if err := writeErr(resp, err); err != nil {
		return db.NewStorageError("update managed message", err)
	}
	if resp.Skipped > 0 {
		return db.NewStorageError("update managed message", fmt.Errorf("%w: group %v", db.ErrNotFound, groupID))
	}
	return nil
}

//DeleteManagedMessage removes a managed message along with all of its bindings.
//RethinkDB has no multi-table transactions, so bindings are removed first; a failure part way leaves
//an orphaned message rather than orphaned bindings.
func (c *Connection) DeleteManagedMessage(ctx context.Context, guildID, channelID, messageID string) error {
	msg, err := c.GetManagedMessage(ctx, guildID, channelID, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return db.NewStorageError("delete managed message", fmt.Errorf("%w: message %v:%v:%v", db.ErrNotFound, guildID, channelID, messageID))
	}
	resp, err := rethink.Table(bindingsTable).Filter(map[string]interface{}{"group_id": msg.GroupID}).Delete().RunWrite(c.session)
	if err := writeErr(resp, err); err != nil {
		return db.NewStorageError("delete managed message", err)
	}
	resp, err = rethink.Table(roleClaimsTable).Filter(map[string]interface{}{"group_id": msg.GroupID}).Delete().RunWrite(c.session)
	if err := writeErr(resp, err); err != nil {
		return db.NewStorageError("delete managed message", err)
	}
	resp, err = rethink.Table(messagesTable).Get(msg.GroupID).Delete().RunWrite(c.session)
	if err := writeErr(resp, err); err != nil {
		return db.NewStorageError("delete managed message", err)
	}
	return nil
}

//AddBinding binds an emoji to a role on a managed message. Inserting a binding which already exists
//is logged and ignored; binding an emoji or role that is already bound to something else fails.
//Both rules are enforced by primary keys: the role is claimed first, then the emoji document is inserted,
//and the claim is released again if the emoji turns out to be taken.
func (c *Connection) AddBinding(_ context.Context, groupID, emojiKey, roleID string) error {
	emojiID := guildmodels.EmojiIdentity(emojiKey)
	conflict := func() error {
		return db.NewStorageError("add binding", fmt.Errorf("%w: emoji %v or role %v is already bound on group %v", db.ErrConstraint, emojiKey, roleID, groupID))
	}

	claim := roleClaimDoc{ID: []string{groupID, roleID}, GroupID: groupID, EmojiID: emojiID}
	//RunWrite reports a primary key conflict as both an error and a document error
	resp, err := rethink.Table(roleClaimsTable).Insert(claim).RunWrite(c.session)
	if resp.Errors > 0 {
		var held roleClaimDoc
		found, err := c.fetchByID(roleClaimsTable, claim.ID, &held)
		if err != nil {
			return db.NewStorageError("add binding", err)
		}
		if found && held.EmojiID == emojiID {
			logrus.Warnf("Binding %v -> %v already exists on group %v; ignoring duplicate insert", emojiKey, roleID, groupID)
			return nil
		}
		return conflict()
	}
	if err != nil {
		logrus.Warnf("Encountered error claiming role %v on group %v: %v", roleID, groupID, err)
		return db.NewStorageError("add binding", err)
	}

	doc := bindingDoc{
		ID:       []string{groupID, emojiID},
		GroupID:  groupID,
		EmojiKey: emojiKey,
		EmojiID:  emojiID,
		RoleID:   roleID,
		Seq:      time.Now().UnixNano(),
	}
	resp, err = rethink.Table(bindingsTable).Insert(doc).RunWrite(c.session)
	if err == nil {
		return nil
	}
	if _, relErr := rethink.Table(roleClaimsTable).Get(claim.ID).Delete().RunWrite(c.session); relErr != nil {
		logrus.Errorf("Failed to release claim on role %v in group %v: %v", roleID, groupID, relErr)
	}
	if resp.Errors > 0 {
		return conflict()
	}
	logrus.Warnf("Encountered error adding binding %v -> %v to group %v: %v", emojiKey, roleID, groupID, err)
	return db.NewStorageError("add binding", err)
}

//RemoveBinding removes a binding from a managed message, selecting by emoji if one is given and by role
//ID otherwise. Custom emoji match by ID whatever name they were given. It returns the number of bindings removed.
func (c *Connection) RemoveBinding(_ context.Context, groupID, emojiKey, roleID string) (int64, error) {
	var doc bindingDoc
	switch {
	case emojiKey != "":
		found, err := c.fetchByID(bindingsTable, []string{groupID, guildmodels.EmojiIdentity(emojiKey)}, &doc)
		if err != nil {
			return 0, db.NewStorageError("remove binding", err)
		}
		if !found {
			return 0, nil
		}
	case roleID != "":
		var claim roleClaimDoc
		found, err := c.fetchByID(roleClaimsTable, []string{groupID, roleID}, &claim)
		if err != nil {
			return 0, db.NewStorageError("remove binding", err)
		}
		if !found {
			return 0, nil
		}
		doc = bindingDoc{ID: []string{groupID, claim.EmojiID}, RoleID: roleID}
	default:
		return 0, db.NewStorageError("remove binding", fmt.Errorf("neither emoji nor role was given"))
	}
	resp, err := rethink.Table(bindingsTable).Get(doc.ID).Delete().RunWrite(c.session)
	if err := writeErr(resp, err); err != nil {
		return 0, db.NewStorageError("remove binding", err)
	}
	claimResp, err := rethink.Table(roleClaimsTable).Get([]string{groupID, doc.RoleID}).Delete().RunWrite(c.session)
	if err := writeErr(claimResp, err); err != nil {
		return 0, db.NewStorageError("remove binding", err)
	}
	return int64(resp.Deleted), nil
}

//GetBindings returns all bindings on a managed message in insertion order
func (c *Connection) GetBindings(_ context.Context, groupID string) ([]guildmodels.EmojiRoleBinding, error) {
	res, err := rethink.Table(bindingsTable).Filter(map[string]interface{}{"group_id": groupID}).Run(c.session)
	if err != nil {
		logrus.Warnf("Encountered error fetching bindings for group %v: %v", groupID, err)
		return nil, db.NewStorageError("get bindings", err)
	}
	defer res.Close()
	var docs []bindingDoc
	if err := res.All(&docs); err != nil {
		return nil, db.NewStorageError("get bindings", err)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Seq < docs[j].Seq })
	bindings := make([]guildmodels.EmojiRoleBinding, 0, len(docs))
	for _, d := range docs {
		bindings = append(bindings, guildmodels.EmojiRoleBinding{
			GroupID:  d.GroupID,
			EmojiKey: d.EmojiKey,
			EmojiID:  d.EmojiID,
			RoleID:   d.RoleID,
		})
	}
	return bindings, nil
}

//ListGuildRolesBound returns the distinct role IDs bound on any managed message in the guild
func (c *Connection) ListGuildRolesBound(_ context.Context, guildID string) ([]string, error) {
	query := rethink.Table(messagesTable).
		Filter(map[string]interface{}{"guild_id": guildID}).
		EqJoin("id", rethink.Table(bindingsTable), rethink.EqJoinOpts{Index: "group_id"}).
		Field("right").Field("role_id").
		Distinct()
	res, err := query.Run(c.session)
	if err != nil {
		logrus.Warnf("Encountered error listing bound roles for guild %v: %v", guildID, err)
		return nil, db.NewStorageError("list guild roles bound", err)
	}
	defer res.Close()
	var roles []string
	if err := res.All(&roles); err != nil {
		return nil, db.NewStorageError("list guild roles bound", err)
	}
	return roles, nil
}

//AddRequiredRole adds a role to the guild's required role list. Adding a role twice is a no-op.
func (c *Connection) AddRequiredRole(_ context.Context, guildID, roleID string) error {
	doc := requiredRoleDoc{ID: []string{guildID, roleID}, GuildID: guildID, RoleID: roleID}
	resp, err := rethink.Table(requiredRolesTable).Insert(doc, rethink.InsertOpts{Conflict: "replace"}).RunWrite(c.session)
	if err := writeErr(resp, err); err != nil {
		return db.NewStorageError("add required role", err)
	}
	return nil
}

//RemoveRequiredRole removes a role from the guild's required role list
func (c *Connection) RemoveRequiredRole(_ context.Context, guildID, roleID string) error {
	resp, err := rethink.Table(requiredRolesTable).Get([]string{guildID, roleID}).Delete().RunWrite(c.session)
	if err := writeErr(resp, err); err != nil {
		return db.NewStorageError("remove required role", err)
	}
	return nil
}

//ListRequiredRoles returns the IDs of all required roles in a guild
func (c *Connection) ListRequiredRoles(_ context.Context, guildID string) ([]string, error) {
	res, err := rethink.Table(requiredRolesTable).
		Filter(map[string]interface{}{"guild_id": guildID}).
		OrderBy("role_id").
		Field("role_id").
		Run(c.session)
	if err != nil {
		return nil, db.NewStorageError("list required roles", err)
	}
	defer res.Close()
	var roles []string
	if err := res.All(&roles); err != nil {
		return nil, db.NewStorageError("list required roles", err)
	}
	return roles, nil
}

//SetRequiredRoles replaces the guild's required role list
func (c *Connection) SetRequiredRoles(ctx context.Context, guildID string, roleIDs []string) error {
	resp, err := rethink.Table(requiredRolesTable).Filter(map[string]interface{}{"guild_id": guildID}).Delete().RunWrite(c.session)
	if err := writeErr(resp, err); err != nil {
		return db.NewStorageError("set required roles", err)
	}
	for _, roleID := range roleIDs {
		if err := c.AddRequiredRole(ctx, guildID, roleID); err != nil {
			return err
		}
	}
	return nil
}
