package adminapi

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ksred/botfleet-control-plane/internal/apiresponse"
	"github.com/ksred/botfleet-control-plane/internal/coordinator"
	"github.com/ksred/botfleet-control-plane/internal/domain"
	"github.com/ksred/botfleet-control-plane/internal/reconciler"
	"github.com/ksred/botfleet-control-plane/internal/repository"
)

type BotHandlers struct {
	co   *coordinator.Coordinator
	rec  *reconciler.Reconciler
	bots repository.BotRepository
}

func NewBotHandlers(co *coordinator.Coordinator, rec *reconciler.Reconciler, bots repository.BotRepository) *BotHandlers {
	return &BotHandlers{co: co, rec: rec, bots: bots}
}

type createBotRequest struct {
	AccountID           string               `json:"account_id" binding:"required"`
	Name                string               `json:"name" binding:"required"`
	Persona             domain.Persona       `json:"persona" binding:"required"`
	Trading             domain.TradingConfig `json:"trading_config"`
	Risk                domain.RiskConfig    `json:"risk_config"`
	SecretProviderLabel string               `json:"secret_provider_label"`
	Secrets             domain.BotSecrets    `json:"secrets"`
}

// Create runs the full Provisioning Coordinator orchestration: quota
// reservation, pending bot row, initial config, VM creation.
func (h *BotHandlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createBotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apiresponse.BadRequest(c, err.Error())
			return
		}
		bot, err := h.co.CreateBot(c.Request.Context(), coordinator.CreateBotInput{
			AccountID:           req.AccountID,
			Name:                req.Name,
			Persona:             req.Persona,
			Trading:             req.Trading,
			Risk:                req.Risk,
			SecretProviderLabel: req.SecretProviderLabel,
			SecretMaterial:      req.Secrets,
		})
		apiresponse.Handle(c, bot, err)
	}
}

func parseBotIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("bot_id"))
	if err != nil {
		apiresponse.BadRequest(c, "bot_id must be a valid uuid")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *BotHandlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseBotIDParam(c)
		if !ok {
			return
		}
		bot, err := h.bots.GetByID(c.Request.Context(), id)
		apiresponse.Handle(c, bot, err)
	}
}

// List returns an account's bots, paginated via ?limit=&offset=.
func (h *BotHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, err := uuid.Parse(c.Param("account_id"))
		if err != nil {
			apiresponse.BadRequest(c, "account_id must be a valid uuid")
			return
		}
		page := repository.Pagination{
			Limit:  atoiOrZero(c.Query("limit")),
			Offset: atoiOrZero(c.Query("offset")),
		}
		bots, err := h.bots.ListByAccount(c.Request.Context(), accountID, page)
		apiresponse.Handle(c, bots, err)
	}
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func (h *BotHandlers) Pause() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseBotIDParam(c)
		if !ok {
			return
		}
		err := h.co.Pause(c.Request.Context(), id)
		apiresponse.Handle(c, gin.H{"status": "pausing"}, err)
	}
}

func (h *BotHandlers) Resume() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseBotIDParam(c)
		if !ok {
			return
		}
		err := h.co.Resume(c.Request.Context(), id)
		apiresponse.Handle(c, gin.H{"status": "resuming"}, err)
	}
}

func (h *BotHandlers) Redeploy() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseBotIDParam(c)
		if !ok {
			return
		}
		err := h.co.Redeploy(c.Request.Context(), id)
		apiresponse.Handle(c, gin.H{"status": "redeploying"}, err)
	}
}

// Destroy is idempotent: a second call on an already-destroyed bot
// succeeds without error.
func (h *BotHandlers) Destroy() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseBotIDParam(c)
		if !ok {
			return
		}
		err := h.co.Destroy(c.Request.Context(), id)
		apiresponse.Handle(c, gin.H{"status": "destroyed"}, err)
	}
}

// SyncVMStatus polls the IaaS provider for the VM behind this bot on
// demand, refreshing the cached VM status/IP and demoting the bot to
// error if the VM has disappeared. Covers bots stuck mid-provisioning
// whose VM died before ever sending a heartbeat, which the stale sweep
// (heartbeat-only) cannot see.
func (h *BotHandlers) SyncVMStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseBotIDParam(c)
		if !ok {
			return
		}
		err := h.rec.SyncVMStatus(c.Request.Context(), id)
		apiresponse.Handle(c, gin.H{"status": "synced"}, err)
	}
}
