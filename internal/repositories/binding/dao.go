package binding

import (
	"database/sql"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	bindingsTable = "bindings"
)

// BindingRow represents the database row for a tenant binding
type BindingRow struct {
	ID                 sql.NullString `db:"id"`
	TenantID           sql.NullString `db:"tenant_id"`
	GatewayName        sql.NullString `db:"gateway_name"`
	GatewayEndpoint    sql.NullString `db:"gateway_endpoint"`
	GatewayAPIKey      sql.NullString `db:"gateway_api_key"`
	IsConnected        sql.NullBool   `db:"is_connected"`
	CrmAccessToken     sql.NullString `db:"crm_access_token"`
	CrmRefreshToken    sql.NullString `db:"crm_refresh_token"`
	CrmAPIKey          sql.NullString `db:"crm_api_key"`
	CrmAccountID       sql.NullString `db:"crm_account_id"`
	CrmAgentID         sql.NullString `db:"crm_agent_id"`
	OutboundWebhookURL sql.NullString `db:"outbound_webhook_url"`
	CreatedAt          sql.NullTime   `db:"created_at"`
	UpdatedAt          sql.NullTime   `db:"updated_at"`
}

var bindingStruct = database.NewStruct(new(BindingRow))

// FromBinding converts a domain model to a database row
func FromBinding(b *models.TenantBinding) *BindingRow {
	return &BindingRow{
		ID:                 sql.NullString{String: b.ID, Valid: b.ID != ""},
		TenantID:           sql.NullString{String: b.TenantID, Valid: b.TenantID != ""},
		GatewayName:        sql.NullString{String: b.GatewayName, Valid: b.GatewayName != ""},
		GatewayEndpoint:    sql.NullString{String: b.GatewayEndpoint, Valid: b.GatewayEndpoint != ""},
		GatewayAPIKey:      sql.NullString{String: b.GatewayAPIKey, Valid: b.GatewayAPIKey != ""},
		IsConnected:        sql.NullBool{Bool: b.IsConnected, Valid: true},
		CrmAccessToken:     nullString(b.CrmAccessToken),
		CrmRefreshToken:    nullString(b.CrmRefreshToken),
		CrmAPIKey:          nullString(b.CrmAPIKey),
		CrmAccountID:       nullString(b.CrmAccountID),
		CrmAgentID:         nullString(b.CrmAgentID),
		OutboundWebhookURL: nullString(b.OutboundWebhookURL),
		CreatedAt:          sql.NullTime{Time: b.CreatedAt, Valid: !b.CreatedAt.IsZero()},
		UpdatedAt:          sql.NullTime{Time: b.UpdatedAt, Valid: !b.UpdatedAt.IsZero()},
	}
}

// ToBinding converts a database row to a domain model
func ToBinding(row *BindingRow) *models.TenantBinding {
	return &models.TenantBinding{
		ID:                 row.ID.String,
		TenantID:           row.TenantID.String,
		GatewayName:        row.GatewayName.String,
		GatewayEndpoint:    row.GatewayEndpoint.String,
		GatewayAPIKey:      row.GatewayAPIKey.String,
		IsConnected:        row.IsConnected.Bool,
		CrmAccessToken:     stringPtr(row.CrmAccessToken),
		CrmRefreshToken:    stringPtr(row.CrmRefreshToken),
		CrmAPIKey:          stringPtr(row.CrmAPIKey),
		CrmAccountID:       stringPtr(row.CrmAccountID),
		CrmAgentID:         stringPtr(row.CrmAgentID),
		OutboundWebhookURL: stringPtr(row.OutboundWebhookURL),
		CreatedAt:          row.CreatedAt.Time,
		UpdatedAt:          row.UpdatedAt.Time,
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Now returns the current time in UTC
func Now() time.Time {
	return time.Now().UTC()
}
