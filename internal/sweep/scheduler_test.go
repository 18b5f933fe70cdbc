package sweep

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/klingvault/internal/chain"
)

func newTestScheduler(t *testing.T, fx *fixture) *Scheduler {
	t.Helper()
	s, err := NewScheduler(&SchedulerConfig{
		Engine:   fx.engine,
		Store:    fx.store,
		Interval: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func TestSchedulerFlushEnumeratesAddresses(t *testing.T) {
	fx := newFixture(t, 3, nil)
	for _, addr := range fx.addrs {
		fx.fake.balances[addr.Address+"/"] = decimal.NewFromInt(1)
	}
	s := newTestScheduler(t, fx)

	s.runFlush(Target{Symbol: "ETH", Network: chain.Mainnet})

	if len(fx.fake.transfers) != 3 {
		t.Fatalf("swept %d addresses, want all 3", len(fx.fake.transfers))
	}
	for _, call := range fx.fake.transfers {
		if call.to != "0xhot" {
			t.Errorf("destination = %s, want active hot wallet", call.to)
		}
	}
}

func TestSchedulerFlushWithoutHotWallet(t *testing.T) {
	fx := newFixture(t, 1, nil)
	fx.fake.balances[fx.addrs[0].Address+"/"] = decimal.NewFromInt(1)
	if _, err := fx.store.DB().Exec("UPDATE hot_wallets SET active = 0"); err != nil {
		t.Fatalf("deactivate hot wallet: %v", err)
	}
	s := newTestScheduler(t, fx)

	s.runFlush(Target{Symbol: "ETH", Network: chain.Mainnet})

	if len(fx.fake.transfers) != 0 {
		t.Errorf("swept %d addresses, want none without an active hot wallet", len(fx.fake.transfers))
	}
}
