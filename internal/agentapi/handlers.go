// Package agentapi implements the bot-agent wire protocol: register,
// pull desired config, acknowledge config, heartbeat. All four endpoints
// are bearer-authenticated per bot via ginmiddleware.AgentAuth.
// Grounded on ksred-klear-api/cmd/server/main.go's route-grouping shape
// and the trading package's bind-JSON/call-service/response.Handle
// handler style.
package agentapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ksred/botfleet-control-plane/internal/apiresponse"
	"github.com/ksred/botfleet-control-plane/internal/domain"
	"github.com/ksred/botfleet-control-plane/internal/ginmiddleware"
	"github.com/ksred/botfleet-control-plane/internal/reconciler"
	"github.com/ksred/botfleet-control-plane/internal/repository"
)

type Handlers struct {
	bots repository.BotRepository
	rec  *reconciler.Reconciler
}

func NewHandlers(bots repository.BotRepository, rec *reconciler.Reconciler) *Handlers {
	return &Handlers{bots: bots, rec: rec}
}

func (h *Handlers) botFromContext(c *gin.Context) (*domain.Bot, bool) {
	v, ok := c.Get("bot")
	if !ok {
		return nil, false
	}
	bot, ok := v.(*domain.Bot)
	return bot, ok
}

type registerRequest struct {
	BotID string `json:"bot_id" binding:"required"`
}

// Register is idempotent: the guest calls it once at boot, but a retry
// after a network blip must not fail just because the bot is already
// past pending. AgentAuth resolves the bot from the bearer token alone
// (this route has no :bot_id path param); the body's bot_id is checked
// against that resolved identity as a defense-in-depth cross-check.
func (h *Handlers) Register() gin.HandlerFunc {
	return func(c *gin.Context) {
		bot, ok := h.botFromContext(c)
		if !ok {
			apiresponse.Unauthorized(c, "unauthenticated")
			return
		}
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apiresponse.BadRequest(c, "bot_id is required")
			return
		}
		bodyBotID, err := uuid.Parse(req.BotID)
		if err != nil || bodyBotID != bot.ID {
			apiresponse.Unauthorized(c, "bot id does not match credentials")
			return
		}
		c.JSON(http.StatusOK, apiresponse.Response{Success: true, Data: gin.H{"bot_id": bot.ID, "status": bot.Status}})
	}
}

// PullConfig serves the bot's currently desired config, secrets
// decrypted. The decrypted payload is never logged.
func (h *Handlers) PullConfig() gin.HandlerFunc {
	return func(c *gin.Context) {
		bot, ok := h.botFromContext(c)
		if !ok {
			apiresponse.Unauthorized(c, "unauthenticated")
			return
		}
		cfg, err := h.rec.GetDesiredConfig(c.Request.Context(), bot.ID)
		if err != nil {
			apiresponse.Handle(c, nil, err)
			return
		}
		apiresponse.Success(c, gin.H{
			"id":             cfg.ID,
			"version":        cfg.Version,
			"trading_config": cfg.Trading,
			"risk_config":    cfg.Risk,
			"secrets":        cfg.Secrets,
		})
	}
}

type ackRequest struct {
	ConfigID string `json:"config_id" binding:"required"`
}

// AckConfig acknowledges the version the guest has applied. A stale ack
// (config_id != desired) is a 409, not silently accepted.
func (h *Handlers) AckConfig() gin.HandlerFunc {
	return func(c *gin.Context) {
		bot, ok := h.botFromContext(c)
		if !ok {
			apiresponse.Unauthorized(c, "unauthenticated")
			return
		}
		var req ackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apiresponse.BadRequest(c, "config_id is required")
			return
		}
		configID, err := uuid.Parse(req.ConfigID)
		if err != nil {
			apiresponse.BadRequest(c, "config_id must be a valid uuid")
			return
		}
		if err := h.rec.AcknowledgeConfig(c.Request.Context(), bot.ID, configID); err != nil {
			apiresponse.Handle(c, nil, err)
			return
		}
		apiresponse.Success(c, gin.H{"acknowledged": true})
	}
}

// Heartbeat records liveness. Rejected for destroyed bots by the
// repository's own status-guarded update.
func (h *Handlers) Heartbeat() gin.HandlerFunc {
	return func(c *gin.Context) {
		bot, ok := h.botFromContext(c)
		if !ok {
			apiresponse.Unauthorized(c, "unauthenticated")
			return
		}
		if err := h.rec.RecordHeartbeat(c.Request.Context(), bot.ID); err != nil {
			apiresponse.Handle(c, nil, err)
			return
		}
		c.JSON(http.StatusOK, apiresponse.Response{Success: true, Data: gin.H{"acknowledged": true}})
	}
}

// RegisterRoutes registers the four bot-agent routes under the given group,
// all behind AgentAuth.
func RegisterRoutes(group *gin.RouterGroup, bots repository.BotRepository, rec *reconciler.Reconciler) {
	h := NewHandlers(bots, rec)
	group.Use(ginmiddleware.AgentAuth(bots))
	group.POST("/register", h.Register())
	group.GET("/:bot_id/config", h.PullConfig())
	group.POST("/:bot_id/config_ack", h.AckConfig())
	group.POST("/:bot_id/heartbeat", h.Heartbeat())
}
