// Package latefee provides the mora policies the ledger is configured with.
package latefee

import (
	"github.com/shopspring/decimal"

	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/infrastructure/config"
)

// Tiered charges DailyRate of the amount due for every day past GraceDays,
// never more than Cap times the amount due.
type Tiered struct {
	GraceDays int
	DailyRate decimal.Decimal
	Cap       decimal.Decimal
}

// Fee implements domain.LateFeePolicy.
func (t Tiered) Fee(daysOverdue int, amount decimal.Decimal) decimal.Decimal {
	days := daysOverdue - t.GraceDays
	if days <= 0 || !amount.IsPositive() || !t.DailyRate.IsPositive() {
		return decimal.Zero
	}

	fee := amount.Mul(t.DailyRate).Mul(decimal.NewFromInt(int64(days)))
	if t.Cap.IsPositive() {
		if limit := amount.Mul(t.Cap); fee.GreaterThan(limit) {
			fee = limit
		}
	}
	return domain.RoundMoney(fee)
}

// FromConfig returns the configured policy, or domain.NoLateFee when late
// fees are disabled.
func FromConfig(cfg config.LateFeeConfig) domain.LateFeePolicy {
	if cfg.Disabled {
		return domain.NoLateFee
	}
	return Tiered{GraceDays: cfg.GraceDays, DailyRate: cfg.DailyRate, Cap: cfg.Cap}.Fee
}
