package api

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	subjectKey string = "subject"
	guildsKey  string = "guilds"
)

//JWT rejects requests without a valid HS256 bearer token signed with secret. A token carrying a `guilds`
//claim may only be used for the guilds listed in it.
func JWT(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearer := c.GetHeader("Authorization")
		if !strings.HasPrefix(bearer, "Bearer ") {
			abortWithError(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenStr := bearer[len("Bearer "):]
		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			abortWithError(c, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		subject, _ := claims.GetSubject()
		c.Set(subjectKey, subject)
		if raw, ok := claims[guildsKey].([]interface{}); ok {
			guilds := make([]string, 0, len(raw))
			for _, g := range raw {
				if s, ok := g.(string); ok {
					guilds = append(guilds, s)
				}
			}
			c.Set(guildsKey, guilds)
		}
		c.Next()
	}
}

//guildScope rejects requests for a guild the token was not issued for
func guildScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, scoped := c.Get(guildsKey)
		if scoped && !slices.Contains(allowed.([]string), c.Param("guild")) {
			abortWithError(c, http.StatusForbidden, "token is not valid for this guild")
			return
		}
		c.Next()
	}
}

//requestLogger writes one logrus line per request
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"subject":  c.GetString(subjectKey),
			"duration": time.Since(start),
		}).Info("Handled API request")
	}
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
