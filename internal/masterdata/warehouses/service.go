package warehouses

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"
)

type RepositoryPort interface {
	Lookup
	List(ctx context.Context, filter ListFilter) ([]Warehouse, int, error)
	Get(ctx context.Context, tenantID, id int64) (Warehouse, error)
	Create(ctx context.Context, w Warehouse) (Warehouse, error)
	SetStatus(ctx context.Context, tenantID, id int64, status Status) error
}

type Service struct {
	repo  RepositoryPort
	group singleflight.Group
}

func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Warehouse, int, error) {
	if filter.TenantID <= 0 {
		return nil, 0, fmt.Errorf("%w: tenant is required", ErrInvalidWarehouse)
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, tenantID, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, fmt.Errorf("%w: invalid warehouse ID", ErrInvalidWarehouse)
	}
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) Create(ctx context.Context, w Warehouse) (Warehouse, error) {
	w.Code = strings.ToUpper(strings.TrimSpace(w.Code))
	w.Name = strings.TrimSpace(w.Name)
	if err := s.validate(w); err != nil {
		return Warehouse{}, err
	}
	return s.repo.Create(ctx, w)
}

func (s *Service) Activate(ctx context.Context, tenantID, id int64) error {
	return s.repo.SetStatus(ctx, tenantID, id, StatusActive)
}

func (s *Service) Deactivate(ctx context.Context, tenantID, id int64) error {
	return s.repo.SetStatus(ctx, tenantID, id, StatusInactive)
}

// Default reports the warehouse fulfillment would currently draw from.
// Concurrent lookups for the same tenant share one query.
func (s *Service) Default(ctx context.Context, tenantID int64) (Warehouse, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(tenantID, 10), func() (any, error) {
		return ResolveDefault(ctx, s.repo, tenantID)
	})
	if err != nil {
		return Warehouse{}, err
	}
	return v.(Warehouse), nil
}
