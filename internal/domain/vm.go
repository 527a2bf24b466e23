package domain

import (
	"time"

	"github.com/google/uuid"
)

// VMStatus mirrors the IaaS provider's own droplet-lifecycle states.
type VMStatus string

const (
	VMNew       VMStatus = "new"
	VMActive    VMStatus = "active"
	VMOff       VMStatus = "off"
	VMDestroyed VMStatus = "destroyed"
	VMError     VMStatus = "error"
)

// VMRecord is the control plane's cached view of an IaaS-provisioned
// worker VM. Destroyed records are retained for audit; ownership moves
// to nil (not deleted) when its owning Bot is removed.
type VMRecord struct {
	ID          int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name        string     `gorm:"not null" json:"name"`
	Region      string     `gorm:"not null" json:"region"`
	Size        string     `gorm:"not null" json:"size"`
	Image       string     `gorm:"not null" json:"image"`
	Status      VMStatus   `gorm:"type:varchar(16);not null" json:"status"`
	IPAddress   *string    `json:"ip_address,omitempty"`
	BotID       *uuid.UUID `gorm:"type:uuid;index" json:"bot_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DestroyedAt *time.Time `json:"destroyed_at,omitempty"`
}
