package models

import (
	"gorm.io/gorm"
)

// Authorization modes governing who may talk to a tenant's bot.
const (
	AuthModeAll  = "all"  // every sender is accepted
	AuthModeList = "list" // only numbers on the authorized list
	AuthModeNone = "none" // nobody; the bot stays silent
)

// Tenant is an independent account owning one chat session, its datasets,
// templates and authorized-number list.
type Tenant struct {
	gorm.Model
	Name              string `json:"name"`
	Email             string `json:"email" gorm:"uniqueIndex"`
	AuthorizationMode string `json:"authorization_mode" gorm:"default:'list'"`
	// ExpectedFilename, when set, silently drops uploads whose name differs.
	ExpectedFilename string `json:"expected_filename"`
	// Identity of the connected chat account, set when the session opens.
	ConnectedPhone string `json:"connected_phone"`
}

// AuthorizedNumber is a per-tenant whitelist entry with action flags.
// Unique per (tenant, phone).
type AuthorizedNumber struct {
	gorm.Model
	TenantID       uint   `json:"tenant_id" gorm:"uniqueIndex:idx_tenant_phone"`
	PhoneNumber    string `json:"phone_number" gorm:"uniqueIndex:idx_tenant_phone"`
	Alias          string `json:"alias"`
	CanSendDataset bool   `json:"can_send_dataset"`
	CanRequestInfo bool   `json:"can_request_info"`
}
