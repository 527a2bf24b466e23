package adminapi

import (
	"github.com/gin-gonic/gin"

	"github.com/ksred/botfleet-control-plane/internal/coordinator"
	"github.com/ksred/botfleet-control-plane/internal/ginmiddleware"
	"github.com/ksred/botfleet-control-plane/internal/reconciler"
	"github.com/ksred/botfleet-control-plane/internal/repository"
)

// RegisterRoutes wires the admin surface under the given group, all
// behind AdminAuth: account create/read/tier change, bot
// create/read/list/actions, config
// read/update.
func RegisterRoutes(
	group *gin.RouterGroup,
	adminToken string,
	co *coordinator.Coordinator,
	rec *reconciler.Reconciler,
	accounts repository.AccountRepository,
	bots repository.BotRepository,
	configs repository.ConfigRepository,
) {
	group.Use(ginmiddleware.AdminAuth(adminToken))

	accountHandlers := NewAccountHandlers(co, accounts)
	botHandlers := NewBotHandlers(co, rec, bots)
	configHandlers := NewConfigHandlers(rec, configs)

	accountsGroup := group.Group("/accounts")
	accountsGroup.POST("", accountHandlers.Create())
	accountsGroup.GET("/:account_id", accountHandlers.Get())
	accountsGroup.PUT("/:account_id/tier", accountHandlers.ChangeTier())
	accountsGroup.GET("/:account_id/bots", botHandlers.List())

	botsGroup := group.Group("/bots")
	botsGroup.POST("", botHandlers.Create())
	botsGroup.GET("/:bot_id", botHandlers.Get())
	botsGroup.POST("/:bot_id/pause", botHandlers.Pause())
	botsGroup.POST("/:bot_id/resume", botHandlers.Resume())
	botsGroup.POST("/:bot_id/redeploy", botHandlers.Redeploy())
	botsGroup.DELETE("/:bot_id", botHandlers.Destroy())
	botsGroup.POST("/:bot_id/sync-vm-status", botHandlers.SyncVMStatus())
	botsGroup.GET("/:bot_id/config", configHandlers.List())
	botsGroup.POST("/:bot_id/config", configHandlers.Create())
}
