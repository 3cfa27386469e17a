package api

import (
	"errors"
	"net/http"

	"github.com/callummance/koala/guildmodels"
	"github.com/callummance/koala/rfr"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type handlers struct {
	engine Engine
}

type messageJSON struct {
	GroupID     string `json:"group_id"`
	GuildID     string `json:"guild_id"`
	ChannelID   string `json:"channel_id"`
	MessageID   string `json:"message_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
}

type bindingJSON struct {
	Emoji  string `json:"emoji"`
	RoleID string `json:"role_id"`
}

type requiredRolesJSON struct {
	RoleIDs []string `json:"role_ids" binding:"required"`
}

func (h handlers) listMessages(c *gin.Context) {
	msgs, err := h.engine.ListManagedMessages(c.Request.Context(), c.Param("guild"))
	if err != nil {
		h.fail(c, err)
		return
	}
	res := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, messageJSON{
			GroupID:     m.GroupID,
			GuildID:     m.GuildID,
			ChannelID:   m.ChannelID,
			MessageID:   m.MessageID,
			Title:       m.Title,
			Description: m.Description,
			Link:        m.Ref().Link(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": res})
}

func (h handlers) listBindings(c *gin.Context) {
	ctx := c.Request.Context()
	msg, err := h.engine.ManagedMessage(ctx, c.Param("group"))
	if err != nil {
		h.fail(c, err)
		return
	}
	//Groups from other guilds are hidden rather than forbidden
	if msg.GuildID != c.Param("guild") {
		abortWithError(c, http.StatusNotFound, rfr.ErrUnknownGroup.Error())
		return
	}
	bindings, err := h.engine.Bindings(ctx, msg.GroupID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bindings": bindingsJSON(bindings)})
}

func bindingsJSON(bindings []guildmodels.EmojiRoleBinding) []bindingJSON {
	res := make([]bindingJSON, 0, len(bindings))
	for _, b := range bindings {
		res = append(res, bindingJSON{Emoji: b.EmojiKey, RoleID: b.RoleID})
	}
	return res
}

func (h handlers) listRequiredRoles(c *gin.Context) {
	roles, err := h.engine.ListRequiredRoles(c.Request.Context(), c.Param("guild"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if roles == nil {
		roles = []string{}
	}
	c.JSON(http.StatusOK, requiredRolesJSON{RoleIDs: roles})
}

func (h handlers) setRequiredRoles(c *gin.Context) {
	var req requiredRolesJSON
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	guildID := c.Param("guild")
	if err := h.engine.SetRequiredRoles(ctx, guildID, req.RoleIDs); err != nil {
		h.fail(c, err)
		return
	}
	roles, err := h.engine.ListRequiredRoles(ctx, guildID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if roles == nil {
		roles = []string{}
	}
	c.JSON(http.StatusOK, requiredRolesJSON{RoleIDs: roles})
}

func (h handlers) fail(c *gin.Context, err error) {
	if errors.Is(err, rfr.ErrUnknownGroup) {
		abortWithError(c, http.StatusNotFound, err.Error())
		return
	}
	logrus.Errorf("Admin API request %v %v failed: %v", c.Request.Method, c.Request.URL.Path, err)
	abortWithError(c, http.StatusInternalServerError, "internal error")
}
