package warehouses

import (
	"errors"
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Warehouse represents a stock location owned by a tenant
type Warehouse struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ListFilter struct {
	TenantID int64
	Status   Status
	Search   string
	Limit    int
	Offset   int
}

var (
	ErrNotFound             = errors.New("warehouse not found")
	ErrDuplicateCode        = errors.New("warehouse code already exists")
	ErrNoWarehouseAvailable = errors.New("no active warehouse available")
)
