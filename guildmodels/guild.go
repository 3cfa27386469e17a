package guildmodels

//DiscordGuild contains configuration for a discord guild managed by this bot
type DiscordGuild struct {
	DiscordGID string   `gorm:"primaryKey;column:guild_id;size:32" gorethink:"id" json:"guild_id"`
	AdminRoles []string `gorm:"serializer:json" gorethink:"admin_roles" json:"admin_roles"`
}

//TableName sets the table used for guild configuration rows
func (DiscordGuild) TableName() string {
	return "guilds"
}

//DefaultGuild returns an otherwise-empty guild struct with a given ID
func DefaultGuild(gid string) DiscordGuild {
	return DiscordGuild{
		DiscordGID: gid,
		AdminRoles: nil,
	}
}

//HasAdminRole returns true if any of the provided member roles is one of the guild's admin roles
func (g *DiscordGuild) HasAdminRole(memberRoles []string) bool {
	for _, adminRole := range g.AdminRoles {
		for _, memberRole := range memberRoles {
			if adminRole == memberRole {
				return true
			}
		}
	}
	return false
}
