// Package ginmiddleware adapts ksred-klear-api/pkg/middleware: RateLimit
// is kept nearly verbatim (per-path-prefix golang.org/x/time/rate
// limiters keyed by client, periodic visitor cleanup); JWTAuth/InternalAuth
// are replaced by AdminAuth (single operator bearer token) and AgentAuth
// (per-bot token digest, with legacy-plaintext migration lookup).
package ginmiddleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/ksred/botfleet-control-plane/internal/apiresponse"
	"github.com/ksred/botfleet-control-plane/internal/repository"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.RWMutex

	adminLimit = rate.Limit(100.0 / 60.0) // 100 requests per minute
	agentLimit = rate.Limit(30.0 / 60.0)  // 30 requests per minute per bot (register + pull + ack + heartbeat)
)

func init() {
	go cleanupVisitors()
}

func getLimiter(path, clientID string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := clientID + ":" + path
	v, exists := visitors[key]
	if !exists {
		var limit rate.Limit
		switch {
		case strings.HasPrefix(path, "/admin"):
			limit = adminLimit
		case strings.HasPrefix(path, "/bot"):
			limit = agentLimit
		default:
			limit = rate.Inf
		}
		v = &visitor{limiter: rate.NewLimiter(limit, 1), lastSeen: time.Now()}
		visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)
		mu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		mu.Unlock()
	}
}

// RateLimit throttles per client per route prefix, unchanged in shape
// from ksred-klear-api's middleware.RateLimit.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		if clientID == "" {
			clientID = c.ClientIP()
		}
		limiter := getLimiter(c.FullPath(), clientID)
		if !limiter.Allow() {
			apiresponse.RateLimited(c, "rate limit exceeded, please try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}

func extractBearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AdminAuth compares the bearer token against the single configured
// admin token in constant time. Missing or bad value -> 401, regardless
// of any other request state.
func AdminAuth(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractBearerToken(c)
		if !ok {
			apiresponse.Unauthorized(c, "missing or malformed authorization header")
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
			apiresponse.Unauthorized(c, "invalid admin token")
			c.Abort()
			return
		}
		c.Set("clientID", "admin")
		c.Next()
	}
}

// AgentAuth authenticates a bot-agent request by comparing sha256(token)
// to the bot's stored digest, accepting a legacy plaintext match during
// the migration window (BotRepository.GetByTokenDigest rewrites it to a
// digest on first successful match). The token alone identifies the bot
// (the digest column is uniquely indexed), so this applies uniformly to
// /register, which carries no :bot_id path param, and to the three
// routes that do. When a :bot_id path param is present it is checked
// against the token-resolved bot as a defense-in-depth cross-check, not
// as part of identity resolution. The resolved bot is stashed in the gin
// context under "bot" for handlers to use without a second lookup.
func AgentAuth(bots repository.BotRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractBearerToken(c)
		if !ok {
			apiresponse.Unauthorized(c, "missing or malformed authorization header")
			c.Abort()
			return
		}

		sum := sha256.Sum256([]byte(token))
		digest := "sha256:" + hex.EncodeToString(sum[:])

		bot, err := bots.GetByTokenDigest(c.Request.Context(), token, digest)
		if err != nil {
			apiresponse.Unauthorized(c, "invalid bot credentials")
			c.Abort()
			return
		}

		if botIDParam := c.Param("bot_id"); botIDParam != "" {
			pathBotID, err := parseBotID(botIDParam)
			if err != nil || pathBotID != bot.ID {
				apiresponse.Unauthorized(c, "bot id does not match credentials")
				c.Abort()
				return
			}
		}

		c.Set("clientID", bot.ID.String())
		c.Set("bot", bot)
		c.Next()
	}
}
