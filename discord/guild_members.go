package discord

import (
	"iter"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

const memberPageSize int = 1000

//memberPage fetches up to limit members with IDs greater than after
type memberPage func(after string, limit int) ([]*discordgo.Member, error)

//guildMembers iterates through every member of a guild a page at a time. A failed page is yielded as an
//error and ends the iteration.
func guildMembers(fetch memberPage) iter.Seq2[*discordgo.Member, error] {
	return func(yield func(*discordgo.Member, error) bool) {
		after := "0"
		for {
			page, err := fetch(after, memberPageSize)
			if err != nil {
				logrus.Warnf("Failed to fetch page of guild members from discord api: %v", err)
				yield(nil, err)
				return
			}
			for _, member := range page {
				if !yield(member, nil) {
					return
				}
			}
			//A short page is the last one
			if len(page) < memberPageSize {
				return
			}
			after = maxUID(page, after)
		}
	}
}

//maxUID returns the largest user ID in members. Snowflakes are compared numerically, so a longer ID is
//always the larger one.
func maxUID(members []*discordgo.Member, floor string) string {
	maxuid := floor
	for _, member := range members {
		if member.User == nil {
			continue
		}
		if snowflakeLess(maxuid, member.User.ID) {
			maxuid = member.User.ID
		}
	}
	return maxuid
}

func snowflakeLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
