package storage

import "time"

// AIConfiguration is one tenant's stored provider binding. The API key is
// held only in encrypted blob form; at most one row per (tenant, provider).
type AIConfiguration struct {
	ID              int64
	TenantID        string
	Provider        string
	EncryptedAPIKey string
	ModelID         string
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
