package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	PlayerIDHeader = "X-Player-Id"

	// PlayerIDKey is the gin context key holding the caller's player id.
	PlayerIDKey = "player_id"
)

// PlayerIdentity records the caller-supplied player id from the X-Player-Id
// header or the playerId query parameter. It never rejects a request; an
// absent id resolves to a new player downstream.
func PlayerIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID := strings.TrimSpace(c.GetHeader(PlayerIDHeader))
		if playerID == "" {
			playerID = strings.TrimSpace(c.Query("playerId"))
		}

		if playerID != "" {
			c.Set(PlayerIDKey, playerID)
		}

		c.Next()
	}
}

// PlayerID returns the id recorded by PlayerIdentity, or "".
func PlayerID(c *gin.Context) string {
	return c.GetString(PlayerIDKey)
}
