package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/klingvault/internal/store"
	"github.com/klingon-exchange/klingvault/pkg/logging"
)

// Risk errors
var (
	ErrApprovalRequired = errors.New("transfer exceeds approval threshold")
	ErrVelocityExceeded = errors.New("too many transfers from address in window")
)

// RiskGuard applies pre-broadcast policy checks to outbound transfers.
type RiskGuard struct {
	store          *store.Store
	maxAmount      decimal.Decimal
	velocityLimit  int
	velocityWindow time.Duration
	logger         *logging.Logger
}

// RiskConfig holds risk policy parameters. A zero MaxAmount disables the
// approval threshold; a zero VelocityLimit disables velocity checks.
type RiskConfig struct {
	Store          *store.Store
	MaxAmount      decimal.Decimal
	VelocityLimit  int
	VelocityWindow time.Duration
	Logger         *logging.Logger
}

// NewRiskGuard creates a risk guard.
func NewRiskGuard(cfg *RiskConfig) *RiskGuard {
	window := cfg.VelocityWindow
	if window == 0 {
		window = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault().Component("risk")
	}
	return &RiskGuard{
		store:          cfg.Store,
		maxAmount:      cfg.MaxAmount,
		velocityLimit:  cfg.VelocityLimit,
		velocityWindow: window,
		logger:         logger,
	}
}

// Check rejects transfers that exceed the amount threshold or the per-address
// velocity limit.
func (g *RiskGuard) Check(ctx context.Context, req *Request) error {
	if g.maxAmount.IsPositive() && req.Amount.GreaterThan(g.maxAmount) {
		g.logger.Warn("transfer held for approval",
			"from", req.FromAddress, "amount", req.Amount, "threshold", g.maxAmount)
		return fmt.Errorf("%w: %s over %s", ErrApprovalRequired, req.Amount, g.maxAmount)
	}

	if g.velocityLimit > 0 {
		since := time.Now().Add(-g.velocityWindow)
		count, err := g.store.CountTransactionsSince(req.FromAddress, since)
		if err != nil {
			return err
		}
		if count >= g.velocityLimit {
			g.logger.Warn("transfer velocity limit hit",
				"from", req.FromAddress, "count", count, "limit", g.velocityLimit)
			return fmt.Errorf("%w: %d transfers since %s",
				ErrVelocityExceeded, count, since.Format(time.RFC3339))
		}
	}
	return nil
}
