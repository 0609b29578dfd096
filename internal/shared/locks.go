package shared

import "fmt"

// OrderLockKey builds the redis key guarding lifecycle changes of one order.
func OrderLockKey(tenantID, orderID int64) string {
	return fmt.Sprintf("pos:tenant:%d:order:%d:lock", tenantID, orderID)
}
