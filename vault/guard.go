// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"encoding/binary"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// HookFlags encode hook permissions in the leading 2 bytes of a hook address.
type HookFlags uint16

const (
	// HookBeforeSwap gates swaps through the guard before any state change.
	HookBeforeSwap HookFlags = 1 << 6
)

// HasPermission checks if an address has a specific hook permission
func HasPermission(address common.Address, flag HookFlags) bool {
	prefix := binary.BigEndian.Uint16(address[:2])
	return HookFlags(prefix)&flag != 0
}

// GuardHookAddress derives the launch-guard hook address for a token. The
// beforeSwap permission bit is stamped into the leading 2 bytes so the venue
// can recognize the guard from the pool key alone.
func GuardHookAddress(token common.Address) common.Address {
	h := blake3.New()
	h.Write([]byte("fundraiser:guard"))
	h.Write(token.Bytes())

	var hash [32]byte
	h.Digest().Read(hash[:])

	var addr common.Address
	copy(addr[:], hash[12:32])
	binary.BigEndian.PutUint16(addr[:2], uint16(HookBeforeSwap))
	return addr
}

// Storage key prefixes under the token's hook address. Window state and
// per-buyer cooldown stamps live in slots, so a revert that unwinds a swap
// unwinds the guard bookkeeping with it.
var (
	guardInitPrefix    = []byte("fundraiser:guard:init")
	guardMaxBuyPrefix  = []byte("fundraiser:guard:maxBuy")
	guardWindowPrefix  = []byte("fundraiser:guard:window")
	guardLaunchPrefix  = []byte("fundraiser:guard:launch")
	guardLastBuyPrefix = []byte("fundraiser:guard:lastBuy")
)

func guardKey(prefix []byte, token common.Address) common.Hash {
	return makeStorageKey(prefix, token.Bytes())
}

func lastBuyKey(token, buyer common.Address) common.Hash {
	return makeStorageKey(guardLastBuyPrefix, append(token.Bytes(), buyer.Bytes()...))
}

// guardState is one token's launch-protection window as read from state.
type guardState struct {
	maxBuyFraction *big.Int
	cooldown       uint64
	blocksToHold   uint64
	timeToHold     uint64
	launchBlock    uint64
	launchTime     uint64
}

func loadGuardState(stateDB StateDB, token common.Address) (guardState, bool) {
	hook := GuardHookAddress(token)
	if stateDB.GetState(hook, guardKey(guardInitPrefix, token)) == (common.Hash{}) {
		return guardState{}, false
	}
	maxBuy := stateDB.GetState(hook, guardKey(guardMaxBuyPrefix, token))
	window := stateDB.GetState(hook, guardKey(guardWindowPrefix, token))
	launch := stateDB.GetState(hook, guardKey(guardLaunchPrefix, token))
	return guardState{
		maxBuyFraction: new(big.Int).SetBytes(maxBuy.Bytes()),
		cooldown:       binary.BigEndian.Uint64(window[0:8]),
		blocksToHold:   binary.BigEndian.Uint64(window[8:16]),
		timeToHold:     binary.BigEndian.Uint64(window[16:24]),
		launchBlock:    binary.BigEndian.Uint64(launch[0:8]),
		launchTime:     binary.BigEndian.Uint64(launch[8:16]),
	}, true
}

// LaunchGuard enforces early-trading protections on fundraising tokens:
// full blocking for the first blocksToHold blocks, then a per-buy size cap
// and per-buyer cooldown until timeToHold seconds have passed since launch.
// Afterwards all checks disable permanently. All window state lives in
// storage under the token's hook address.
type LaunchGuard struct{}

// NewLaunchGuard creates a guard.
func NewLaunchGuard() *LaunchGuard {
	return &LaunchGuard{}
}

// Register arms the guard for a token, recording the launch block and time.
// Registering a token twice is an error.
func (g *LaunchGuard) Register(stateDB StateDB, token common.Address, params GuardParams) error {
	hook := GuardHookAddress(token)
	if stateDB.GetState(hook, guardKey(guardInitPrefix, token)) != (common.Hash{}) {
		return ErrGuardExists
	}
	if params.MaxBuyFraction == nil || params.MaxBuyFraction.Sign() <= 0 {
		return ErrInvalidPolicy
	}

	stateDB.SetState(hook, guardKey(guardInitPrefix, token), common.BigToHash(big.NewInt(1)))
	stateDB.SetState(hook, guardKey(guardMaxBuyPrefix, token), common.BigToHash(params.MaxBuyFraction))

	var window common.Hash
	binary.BigEndian.PutUint64(window[0:8], params.Cooldown)
	binary.BigEndian.PutUint64(window[8:16], params.BlocksToHold)
	binary.BigEndian.PutUint64(window[16:24], params.TimeToHold)
	stateDB.SetState(hook, guardKey(guardWindowPrefix, token), window)

	var launch common.Hash
	binary.BigEndian.PutUint64(launch[0:8], stateDB.GetBlockNumber())
	binary.BigEndian.PutUint64(launch[8:16], stateDB.GetTimestamp())
	stateDB.SetState(hook, guardKey(guardLaunchPrefix, token), launch)
	return nil
}

// CheckBuy validates a pending buy of the token. amountOut is the quoted
// token output of the swap; the check runs before any swap state changes so a
// rejection leaves the pool untouched. CheckBuy writes nothing: the cooldown
// stamp lands in RecordBuy, after the swap settles.
func (g *LaunchGuard) CheckBuy(stateDB StateDB, token, buyer common.Address, amountOut *big.Int) error {
	st, ok := loadGuardState(stateDB, token)
	if !ok {
		return ErrGuardNotFound
	}

	block := stateDB.GetBlockNumber()
	now := stateDB.GetTimestamp()

	// Hard window: no buys at all for the first blocksToHold blocks.
	if block < st.launchBlock+st.blocksToHold {
		return ErrHoldWindow
	}

	// After timeToHold seconds the guard disables entirely.
	if now >= st.launchTime+st.timeToHold {
		return nil
	}

	maxBuy := FractionOf(TotalSupply(stateDB, token), st.maxBuyFraction)
	if amountOut.Cmp(maxBuy) > 0 {
		return ErrMaxBuyExceeded
	}

	if last, bought := g.lastBuy(stateDB, token, buyer); bought && now < last+st.cooldown {
		return ErrCooldownActive
	}
	return nil
}

// RecordBuy stamps the buyer's cooldown after a buy has settled. Only
// executed buys start a cooldown; a buy that fails to settle, or is unwound
// by a snapshot revert, leaves no stamp.
func (g *LaunchGuard) RecordBuy(stateDB StateDB, token, buyer common.Address) {
	st, ok := loadGuardState(stateDB, token)
	if !ok {
		return
	}
	now := stateDB.GetTimestamp()
	if now >= st.launchTime+st.timeToHold {
		return
	}
	stateDB.SetState(GuardHookAddress(token), lastBuyKey(token, buyer), common.BigToHash(new(big.Int).SetUint64(now)))
}

func (g *LaunchGuard) lastBuy(stateDB StateDB, token, buyer common.Address) (uint64, bool) {
	val := stateDB.GetState(GuardHookAddress(token), lastBuyKey(token, buyer))
	if val == (common.Hash{}) {
		return 0, false
	}
	return new(big.Int).SetBytes(val.Bytes()).Uint64(), true
}

// Active reports whether the guard window is still enforcing for a token.
func (g *LaunchGuard) Active(stateDB StateDB, token common.Address) bool {
	st, ok := loadGuardState(stateDB, token)
	if !ok {
		return false
	}
	return stateDB.GetTimestamp() < st.launchTime+st.timeToHold
}
