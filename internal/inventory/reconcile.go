package inventory

import "sort"

// Drift is a position whose projected quantity disagrees with the ledger.
type Drift struct {
	Key      PositionKey `json:"key"`
	Ledger   int64       `json:"ledger"`
	Position int64       `json:"position"`
}

// ReconcileReport is the outcome of replaying the ledger.
type ReconcileReport struct {
	Checked int     `json:"checked"`
	Drifts  []Drift `json:"drifts"`
}

// Clean reports whether every position matched the ledger.
func (r ReconcileReport) Clean() bool {
	return len(r.Drifts) == 0
}

// CompareLedger matches summed movement deltas against position quantities.
// A key present on one side only counts as zero on the other.
func CompareLedger(ledger, positions map[PositionKey]int64) ReconcileReport {
	keys := make(map[PositionKey]struct{}, len(ledger)+len(positions))
	for k := range ledger {
		keys[k] = struct{}{}
	}
	for k := range positions {
		keys[k] = struct{}{}
	}
	report := ReconcileReport{Checked: len(keys)}
	for k := range keys {
		if ledger[k] != positions[k] {
			report.Drifts = append(report.Drifts, Drift{Key: k, Ledger: ledger[k], Position: positions[k]})
		}
	}
	sort.Slice(report.Drifts, func(i, j int) bool {
		a, b := report.Drifts[i].Key, report.Drifts[j].Key
		if a.TenantID != b.TenantID {
			return a.TenantID < b.TenantID
		}
		if a.ProductID != b.ProductID {
			return a.ProductID < b.ProductID
		}
		return a.WarehouseID < b.WarehouseID
	})
	return report
}
