// Package ledger orders transactions. A single Sequencer executes them one
// at a time, commits each atomically together with its receipt and only then
// publishes the events it produced.
package ledger

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/events"
	"github.com/tolelom/tolarena/vm"
)

// ErrDuplicateTx is returned for a transaction id that already has a receipt.
var ErrDuplicateTx = errors.New("transaction already executed")

// Sequencer is the single writer of the ledger state.
type Sequencer struct {
	mu      sync.RWMutex
	chainID string
	state   core.State
	exec    *vm.Executor
	emitter *events.Emitter
	now     func() time.Time
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock replaces the wall clock used to timestamp transactions.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// New creates a Sequencer for chainID over state.
func New(chainID string, state core.State, emitter *events.Emitter, opts ...Option) *Sequencer {
	s := &Sequencer{
		chainID: chainID,
		state:   state,
		exec:    vm.NewExecutor(state),
		emitter: emitter,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit executes tx and, if it succeeds, commits its effects and receipt in
// one batch. A failed transaction leaves no trace in state.
func (s *Sequencer) Submit(tx *core.Transaction) (*core.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ChainID != s.chainID {
		return nil, fmt.Errorf("chain id mismatch: got %q want %q", tx.ChainID, s.chainID)
	}
	if tx.ID == "" || tx.ID != tx.Hash() {
		return nil, errors.New("transaction id does not match its hash")
	}
	if _, err := s.state.GetReceipt(tx.ID); err == nil {
		return nil, fmt.Errorf("%s: %w", tx.ID, ErrDuplicateTx)
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("check receipt: %w", err)
	}

	height, err := s.state.GetHeight()
	if err != nil {
		return nil, fmt.Errorf("load height: %w", err)
	}
	height++
	now := s.now().Unix()

	snapID, err := s.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	out, err := s.exec.ExecuteTx(height, now, tx)
	if err != nil {
		if revertErr := s.state.RevertToSnapshot(snapID); revertErr != nil {
			return nil, fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		log.Printf("[sequencer] tx %s (%s) rejected: %v", shortID(tx.ID), tx.Type, err)
		return nil, err
	}

	receipt := &core.Receipt{
		Height: height,
		TxID:   tx.ID,
		Type:   tx.Type,
		From:   tx.From,
		Time:   now,
		Result: out.Result,
	}
	if err := s.state.PutReceipt(receipt); err != nil {
		_ = s.state.RevertToSnapshot(snapID)
		return nil, fmt.Errorf("store receipt: %w", err)
	}
	if err := s.state.Commit(); err != nil {
		if revertErr := s.state.RevertToSnapshot(snapID); revertErr != nil {
			log.Fatalf("[sequencer] FATAL: commit of tx %s failed (%v) and buffer could not be reverted: %v",
				tx.ID, err, revertErr)
		}
		return nil, fmt.Errorf("commit: %w", err)
	}

	if s.emitter != nil {
		for _, ev := range out.Events {
			s.emitter.Emit(ev)
		}
	}
	return receipt, nil
}

// View runs fn against the committed state. fn must not write.
func (s *Sequencer) View(fn func(core.State) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// StateRoot returns the deterministic hash of the committed state.
func (s *Sequencer) StateRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ComputeRoot()
}

// ChainID returns the chain identifier transactions must carry.
func (s *Sequencer) ChainID() string { return s.chainID }

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
