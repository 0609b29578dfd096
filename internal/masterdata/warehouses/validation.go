package warehouses

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidWarehouse = errors.New("invalid warehouse")

func (s *Service) validate(w Warehouse) error {
	if w.TenantID <= 0 {
		return fmt.Errorf("%w: tenant is required", ErrInvalidWarehouse)
	}
	if strings.TrimSpace(w.Code) == "" {
		return fmt.Errorf("%w: warehouse code is required", ErrInvalidWarehouse)
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: warehouse name is required", ErrInvalidWarehouse)
	}
	if w.Status != "" && !w.Status.Valid() {
		return fmt.Errorf("%w: warehouse status must be active or inactive", ErrInvalidWarehouse)
	}
	return nil
}
