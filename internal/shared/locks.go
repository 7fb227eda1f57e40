package shared

import "fmt"

// FinanceSweepLockKey builds the redis key guarding the retention sweep.
func FinanceSweepLockKey(scope string) string {
	if scope == "" {
		scope = "all"
	}
	return fmt.Sprintf("finance:sweep:%s:lock", scope)
}
