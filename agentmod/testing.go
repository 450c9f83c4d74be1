package agentmod

import (
	"log/slog"
	"time"

	"github.com/botpass/botpass/agentmod/actionstore"
	"github.com/botpass/botpass/agentmod/cachestore"
	"github.com/botpass/botpass/agentmod/countstore"
	"github.com/botpass/botpass/agentmod/flagstore"
	"github.com/botpass/botpass/agentmod/strikes"
)

// In-process engine for tests, with every clock driven by "now".
//
// Records are written to the returned MemStore.
func EngineTestFixture(now func() time.Time) (*Engine, *actionstore.MemStore) {
	counters := countstore.NewMemCountStore()
	counters.Now = now
	actions := actionstore.NewMemStore()
	eng, err := NewEngine(slog.Default(), DefaultConfig(), Stores{
		Counters:  counters,
		Ledger:    strikes.NewMemLedgerStore(),
		Actions:   actions,
		Snapshots: actions,
		Flags:     flagstore.NewMemFlagStore(),
		Contexts:  cachestore.NewMemContextStore(10, time.Hour),
	})
	if err != nil {
		panic(err)
	}
	eng.Now = now
	eng.RateLadder.Now = now
	eng.ContentLadder.Now = now
	return eng, actions
}
