// Package adminapi implements the admin HTTP surface: account
// create/read/tier change, bot create/read/list/actions, config
// read/update, all behind a
// single bearer admin token. Grounded on
// ksred-klear-api/cmd/server/main.go's route-grouping shape and
// internal/trading's bind-JSON/call-service/response.Handle handler
// style.
package adminapi

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ksred/botfleet-control-plane/internal/apiresponse"
	"github.com/ksred/botfleet-control-plane/internal/coordinator"
	"github.com/ksred/botfleet-control-plane/internal/domain"
	"github.com/ksred/botfleet-control-plane/internal/repository"
)

type AccountHandlers struct {
	co       *coordinator.Coordinator
	accounts repository.AccountRepository
}

func NewAccountHandlers(co *coordinator.Coordinator, accounts repository.AccountRepository) *AccountHandlers {
	return &AccountHandlers{co: co, accounts: accounts}
}

type createAccountRequest struct {
	ExternalID string      `json:"external_id" binding:"required"`
	Tier       domain.Tier `json:"tier" binding:"required"`
}

func (h *AccountHandlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apiresponse.BadRequest(c, err.Error())
			return
		}
		account, err := h.co.CreateAccount(c.Request.Context(), coordinator.CreateAccountInput{
			ExternalID: req.ExternalID,
			Tier:       req.Tier,
		})
		apiresponse.Handle(c, account, err)
	}
}

func (h *AccountHandlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("account_id"))
		if err != nil {
			apiresponse.BadRequest(c, "account_id must be a valid uuid")
			return
		}
		account, err := h.accounts.GetByID(c.Request.Context(), id)
		apiresponse.Handle(c, account, err)
	}
}

type changeTierRequest struct {
	Tier domain.Tier `json:"tier" binding:"required"`
}

// ChangeTier updates the subscription tier and cascades the new bot
// ceiling to the account's counter row.
func (h *AccountHandlers) ChangeTier() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("account_id"))
		if err != nil {
			apiresponse.BadRequest(c, "account_id must be a valid uuid")
			return
		}
		var req changeTierRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apiresponse.BadRequest(c, err.Error())
			return
		}
		if err := h.co.ChangeTier(c.Request.Context(), id, req.Tier); err != nil {
			apiresponse.Handle(c, nil, err)
			return
		}
		account, err := h.accounts.GetByID(c.Request.Context(), id)
		apiresponse.Handle(c, account, err)
	}
}
