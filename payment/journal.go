package payment

import (
	"context"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/englishauction/core"
)

// JournalEntry is one transfer recorded by Journal.
type JournalEntry struct {
	To     core.Identity
	Amount *uint256.Int
	At     time.Time
}

// Journal is a Payer that records transfers in memory instead of moving funds. It
// backs dry runs and local development.
type Journal struct {
	mu      sync.Mutex
	entries []JournalEntry
	clock   core.Clock
	log     zerolog.Logger
}

func NewJournal(clock core.Clock, logger zerolog.Logger) *Journal {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Journal{clock: clock, log: logger.With().Str("component", "payout_journal").Logger()}
}

func (j *Journal) Send(ctx context.Context, to core.Identity, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	entry := JournalEntry{To: to, Amount: new(uint256.Int).Set(amount), At: j.clock.Now()}
	j.entries = append(j.entries, entry)
	j.log.Info().Str("recipient", string(to)).Str("amount", amount.Dec()).Msg("payout journaled")
	return nil
}

// Entries returns a copy of every recorded transfer.
func (j *Journal) Entries() []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]JournalEntry, len(j.entries))
	for i, e := range j.entries {
		out[i] = JournalEntry{To: e.To, Amount: new(uint256.Int).Set(e.Amount), At: e.At}
	}
	return out
}

// Total returns the sum of all recorded transfers to id.
func (j *Journal) Total(id core.Identity) *uint256.Int {
	j.mu.Lock()
	defer j.mu.Unlock()
	total := new(uint256.Int)
	for _, e := range j.entries {
		if e.To == id {
			total.Add(total, e.Amount)
		}
	}
	return total
}
