// Package quota computes try-on quota predicates over an account
// snapshot. Exactly one quota mode is active per account: a monthly
// quota that resets on the 1st, or a lifetime cap when no monthly quota
// is set. This package never mutates; resets and increments are the
// account store's job.
package quota

import (
	"time"

	"github.com/stylemirror/tryon-api/internal/models"
)

// Effective describes whichever quota ceiling is active for an account.
type Effective struct {
	Used     int  `json:"used"`
	Limit    int  `json:"limit"`
	Lifetime bool `json:"lifetime"`
}

// EffectiveQuota returns the active ceiling and consumption.
func EffectiveQuota(account *models.Account) Effective {
	if account.MonthlyQuota != nil {
		return Effective{Used: account.QuotaUsed, Limit: *account.MonthlyQuota}
	}
	limit := account.TotalQuota
	if limit == 0 {
		limit = models.DefaultTotalQuota
	}
	return Effective{Used: account.QuotaUsed, Limit: limit, Lifetime: true}
}

// IsExceeded reports whether the account has consumed its active quota.
func IsExceeded(account *models.Account) bool {
	eff := EffectiveQuota(account)
	return eff.Used >= eff.Limit
}

// ShouldReset reports whether a scheduled monthly reset is due.
// Lifetime accounts never auto-reset. A monthly account with no reset
// timestamp yet is due immediately so the store can seed one.
func ShouldReset(account *models.Account, now time.Time) bool {
	if account.MonthlyQuota == nil {
		return false
	}
	if account.QuotaResetAt == nil {
		return true
	}
	return !now.Before(*account.QuotaResetAt)
}

// NextResetDate returns the first instant of the calendar month after
// now, in UTC. time.Date normalizes month 13 into January of the next
// year.
func NextResetDate(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
