package models

import (
	"time"
)

// TenantBinding associates a tenant with its gateway process and CRM credentials.
// One binding per tenant; gateway_name is globally unique. Secret fields hold
// vault ciphertext, never plaintext.
type TenantBinding struct {
	ID                 string    `db:"id" json:"id"`
	TenantID           string    `db:"tenant_id" json:"tenant_id"`
	GatewayName        string    `db:"gateway_name" json:"gateway_name"`
	GatewayEndpoint    string    `db:"gateway_endpoint" json:"gateway_endpoint"`
	GatewayAPIKey      string    `db:"gateway_api_key" json:"-"`
	IsConnected        bool      `db:"is_connected" json:"is_connected"`
	CrmAccessToken     *string   `db:"crm_access_token" json:"-"`
	CrmRefreshToken    *string   `db:"crm_refresh_token" json:"-"`
	CrmAPIKey          *string   `db:"crm_api_key" json:"-"`
	CrmAccountID       *string   `db:"crm_account_id" json:"crm_account_id,omitempty"`
	CrmAgentID         *string   `db:"crm_agent_id" json:"crm_agent_id,omitempty"`
	OutboundWebhookURL *string   `db:"outbound_webhook_url" json:"outbound_webhook_url,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (TenantBinding) TableName() string {
	return "bindings"
}

// TokenSet is the CRM's token endpoint response for one tenant
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	AccountID    string `json:"locationId"`
	AgentID      string `json:"userId"`
}
