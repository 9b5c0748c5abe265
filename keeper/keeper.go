// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package keeper runs the poll-then-act maintenance loop for fundraising
// vaults. It polls each tracked vault's treasury and donation upkeep,
// executes what is due under its configured keeper identity, and journals
// every action to a database for audit.
package keeper

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/fundraiser/vault"
)

// Journal key layout
var (
	journalSeqKey    = []byte("journal:seq")
	journalPrefix    = []byte("journal:rec:")
	lastRunKeyPrefix = []byte("journal:last:")
)

// Record is one journaled upkeep action.
type Record struct {
	Owner     common.Address `json:"owner"`
	Component string         `json:"component"` // "treasury" or "donation"
	Decision  []byte         `json:"decision,omitempty"`
	Timestamp uint64         `json:"timestamp"`
	Err       string         `json:"err,omitempty"`
}

// Config holds the keeper's runtime settings.
type Config struct {
	// Address is the identity the keeper performs upkeep as. It must match
	// the keeper registered with the vault registry.
	Address common.Address

	// Interval between polling rounds.
	Interval time.Duration
}

// Keeper drives scheduled upkeep for a set of tracked vault owners.
type Keeper struct {
	log    log.Logger
	db     database.Database
	engine *vault.Engine
	cfg    Config

	mu     sync.RWMutex
	owners []common.Address
	seq    uint64
}

// New creates a keeper over an engine with a journal database.
func New(engine *vault.Engine, db database.Database, logger log.Logger, cfg Config) (*Keeper, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	k := &Keeper{
		log:    logger,
		db:     db,
		engine: engine,
		cfg:    cfg,
	}
	seq, err := db.Get(journalSeqKey)
	switch err {
	case nil:
		k.seq = binary.BigEndian.Uint64(seq)
	case database.ErrNotFound:
	default:
		return nil, fmt.Errorf("load journal sequence: %w", err)
	}
	return k, nil
}

// Track adds a vault owner to the polling set.
func (k *Keeper) Track(owner common.Address) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, o := range k.owners {
		if o == owner {
			return
		}
	}
	k.owners = append(k.owners, owner)
}

// Untrack removes a vault owner from the polling set.
func (k *Keeper) Untrack(owner common.Address) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, o := range k.owners {
		if o == owner {
			k.owners = append(k.owners[:i], k.owners[i+1:]...)
			return
		}
	}
}

// Tracked returns the current polling set.
func (k *Keeper) Tracked() []common.Address {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]common.Address, len(k.owners))
	copy(out, k.owners)
	return out
}

// Run polls on the configured interval until the context is cancelled.
// state is the live chain state the keeper acts against.
func (k *Keeper) Run(ctx context.Context, state vault.StateDB) error {
	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()

	k.log.Info("keeper started", "interval", k.cfg.Interval, "address", k.cfg.Address)
	for {
		select {
		case <-ctx.Done():
			k.log.Info("keeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := k.RunTick(ctx, state); err != nil {
				return err
			}
		}
	}
}

// RunTick runs one polling round over every tracked owner. Per-vault upkeep
// failures are journaled and logged, not fatal; a failed vault retries on
// the next tick.
func (k *Keeper) RunTick(ctx context.Context, state vault.StateDB) error {
	for _, owner := range k.Tracked() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		k.tickTreasury(state, owner)
		k.tickDonation(state, owner)
	}
	return nil
}

func (k *Keeper) tickTreasury(state vault.StateDB, owner common.Address) {
	needed, payload, err := k.engine.Treasury.CheckUpkeep(state, owner)
	if err != nil {
		k.log.Warn("treasury check failed", "owner", owner, "err", err)
		return
	}
	if !needed {
		return
	}

	k.log.Info("performing treasury upkeep", "owner", owner)
	performErr := k.engine.Treasury.PerformUpkeep(state, k.cfg.Address, owner, payload)
	if performErr != nil {
		k.log.Warn("treasury upkeep failed", "owner", owner, "err", performErr)
	}
	k.journal(state, Record{
		Owner:     owner,
		Component: "treasury",
		Decision:  payload,
		Err:       errString(performErr),
	})
}

func (k *Keeper) tickDonation(state vault.StateDB, owner common.Address) {
	needed, err := k.engine.Donation.CheckUpkeep(state, owner)
	if err != nil {
		k.log.Warn("donation check failed", "owner", owner, "err", err)
		return
	}
	if !needed {
		return
	}

	k.log.Info("performing donation upkeep", "owner", owner)
	performErr := k.engine.Donation.PerformUpkeep(state, k.cfg.Address, owner)
	if performErr != nil {
		k.log.Warn("donation upkeep failed", "owner", owner, "err", performErr)
	}
	k.journal(state, Record{
		Owner:     owner,
		Component: "donation",
		Err:       errString(performErr),
	})
}

// journal appends a record and updates the owner's last-run marker.
func (k *Keeper) journal(state vault.StateDB, rec Record) {
	rec.Timestamp = state.GetTimestamp()

	k.mu.Lock()
	seq := k.seq
	k.seq++
	k.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		k.log.Error("journal encode failed", "err", err)
		return
	}

	batch := k.db.NewBatch()
	if err := batch.Put(journalKey(seq), data); err != nil {
		k.log.Error("journal write failed", "err", err)
		return
	}
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq+1)
	if err := batch.Put(journalSeqKey, seqBytes[:]); err != nil {
		k.log.Error("journal write failed", "err", err)
		return
	}
	if err := batch.Put(lastRunKey(rec.Owner), seqBytes[:]); err != nil {
		k.log.Error("journal write failed", "err", err)
		return
	}
	if err := batch.Write(); err != nil {
		k.log.Error("journal commit failed", "err", err)
	}
}

// History returns all journaled records in order.
func (k *Keeper) History() ([]Record, error) {
	k.mu.RLock()
	seq := k.seq
	k.mu.RUnlock()

	out := make([]Record, 0, seq)
	for i := uint64(0); i < seq; i++ {
		data, err := k.db.Get(journalKey(i))
		if err == database.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func journalKey(seq uint64) []byte {
	key := make([]byte, len(journalPrefix)+8)
	copy(key, journalPrefix)
	binary.BigEndian.PutUint64(key[len(journalPrefix):], seq)
	return key
}

func lastRunKey(owner common.Address) []byte {
	return append(append([]byte{}, lastRunKeyPrefix...), owner.Bytes()...)
}

func errString(err error) string {
	if err != nil {
		return err.Error()
	}
	return ""
}
