package adminapi

import (
	"github.com/gin-gonic/gin"

	"github.com/ksred/botfleet-control-plane/internal/apiresponse"
	"github.com/ksred/botfleet-control-plane/internal/domain"
	"github.com/ksred/botfleet-control-plane/internal/reconciler"
	"github.com/ksred/botfleet-control-plane/internal/repository"
)

type ConfigHandlers struct {
	rec     *reconciler.Reconciler
	configs repository.ConfigRepository
}

func NewConfigHandlers(rec *reconciler.Reconciler, configs repository.ConfigRepository) *ConfigHandlers {
	return &ConfigHandlers{rec: rec, configs: configs}
}

// List returns every ConfigVersion ever created for the bot, oldest
// first, secrets omitted — an admin audit view, not the guest's
// decrypted pull.
func (h *ConfigHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseBotIDParam(c)
		if !ok {
			return
		}
		versions, err := h.configs.ListByBot(c.Request.Context(), id)
		apiresponse.Handle(c, versions, err)
	}
}

type createConfigRequest struct {
	Trading             domain.TradingConfig `json:"trading_config"`
	Risk                domain.RiskConfig    `json:"risk_config"`
	SecretProviderLabel string               `json:"secret_provider_label"`
	Secrets             domain.BotSecrets    `json:"secrets"`
}

// Create assigns the bot a new desired config version. Guests discover
// it on their next poll and ack it once applied.
func (h *ConfigHandlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseBotIDParam(c)
		if !ok {
			return
		}
		var req createConfigRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apiresponse.BadRequest(c, err.Error())
			return
		}
		cfg, err := h.rec.CreateConfig(c.Request.Context(), reconciler.CreateConfigInput{
			BotID:               id,
			Trading:             req.Trading,
			Risk:                req.Risk,
			SecretProviderLabel: req.SecretProviderLabel,
			SecretMaterial:      req.Secrets,
		})
		apiresponse.Handle(c, cfg, err)
	}
}
