// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	ethtypes "github.com/luxfi/geth/core/types"

	"github.com/luxfi/fundraiser/contract"
)

// Function selectors (first 4 bytes of the hashed function signature)
var (
	// Registry functions
	SelectorGetPoolKey        = [4]byte{0x3f, 0xa4, 0xf2, 0x45} // getPoolKey(address)
	SelectorCreateLiquidity   = [4]byte{0x9c, 0x2f, 0x1b, 0x8e} // createLiquidity(address,uint256,uint256)
	SelectorSetPause          = [4]byte{0x6d, 0x70, 0x19, 0x3a} // setPause(address,uint8,bool)
	SelectorSetGlobalPause    = [4]byte{0x57, 0x8d, 0xa9, 0x02} // setGlobalPause(bool)
	SelectorEmergencyWithdraw = [4]byte{0xdb, 0x2e, 0x21, 0xbc} // emergencyWithdraw(address,address)

	// Upkeep functions (treasury and donation precompiles)
	SelectorCheckUpkeep   = [4]byte{0x6e, 0x04, 0xff, 0x0d} // checkUpkeep(bytes)
	SelectorPerformUpkeep = [4]byte{0x42, 0x58, 0xd5, 0x8b} // performUpkeep(bytes)

	// Token functions
	SelectorTransfer    = [4]byte{0xbe, 0xab, 0xac, 0xc8} // transfer(address,address,uint256)
	SelectorBalanceOf   = [4]byte{0xf7, 0x88, 0x8a, 0xec} // balanceOf(address,address)
	SelectorTotalSupply = [4]byte{0xe4, 0xdc, 0x2a, 0xa4} // totalSupply(address)
)

var (
	ErrInsufficientGas = errors.New("insufficient gas")
	ErrInvalidInput    = errors.New("invalid input")
	ErrReadOnly        = errors.New("state mutation in read-only call")
)

// Engine bundles the fundraiser components behind the precompile surface.
// One engine backs all four precompile addresses.
type Engine struct {
	Guard    *LaunchGuard
	Venue    *BasicVenue
	Registry *Registry
	Router   *TaxRouter
	Treasury *TreasuryController
	Donation *DonationForwarder
}

// NewEngine wires a complete component set.
func NewEngine() *Engine {
	guard := NewLaunchGuard()
	venue := NewBasicVenue(guard)
	registry := NewRegistry(guard, venue)
	return &Engine{
		Guard:    guard,
		Venue:    venue,
		Registry: registry,
		Router:   NewTaxRouter(registry, venue),
		Treasury: NewTreasuryController(registry, venue, venue),
		Donation: NewDonationForwarder(registry, venue, venue),
	}
}

// defaultEngine backs the registered precompile modules.
var defaultEngine = NewEngine()

// DefaultEngine returns the engine behind the registered precompiles.
func DefaultEngine() *Engine {
	return defaultEngine
}

// stateAdapter narrows the EVM StateDB to the engine's view and carries the
// block context alongside it.
type stateAdapter struct {
	db    contract.StateDB
	block contract.BlockContext
}

func newStateAdapter(accessibleState contract.AccessibleState) *stateAdapter {
	return &stateAdapter{
		db:    accessibleState.GetStateDB(),
		block: accessibleState.GetBlockContext(),
	}
}

func (s *stateAdapter) GetState(addr common.Address, key common.Hash) common.Hash {
	return s.db.GetState(addr, key)
}

func (s *stateAdapter) SetState(addr common.Address, key common.Hash, value common.Hash) {
	s.db.SetState(addr, key, value)
}

func (s *stateAdapter) GetBalance(addr common.Address) *uint256.Int {
	return s.db.GetBalance(addr)
}

func (s *stateAdapter) AddBalance(addr common.Address, amount *uint256.Int) {
	s.db.AddBalance(addr, amount, tracing.BalanceChangeTransfer)
}

func (s *stateAdapter) SubBalance(addr common.Address, amount *uint256.Int) {
	s.db.SubBalance(addr, amount, tracing.BalanceChangeTransfer)
}

func (s *stateAdapter) Exist(addr common.Address) bool {
	return s.db.Exist(addr)
}

func (s *stateAdapter) CreateAccount(addr common.Address) {
	s.db.CreateAccount(addr)
}

func (s *stateAdapter) AddLog(log *ethtypes.Log) {
	s.db.AddLog(log)
}

func (s *stateAdapter) GetBlockNumber() uint64 {
	return s.block.Number()
}

func (s *stateAdapter) GetTimestamp() uint64 {
	return s.block.Timestamp()
}

func (s *stateAdapter) Snapshot() int {
	return s.db.Snapshot()
}

func (s *stateAdapter) RevertToSnapshot(snapshot int) {
	s.db.RevertToSnapshot(snapshot)
}

// deductGas charges cost against suppliedGas.
func deductGas(suppliedGas, cost uint64) (uint64, error) {
	if suppliedGas < cost {
		return 0, ErrInsufficientGas
	}
	return suppliedGas - cost, nil
}

// splitSelector separates the 4-byte selector from its arguments.
func splitSelector(input []byte) ([4]byte, []byte, error) {
	if len(input) < 4 {
		return [4]byte{}, nil, ErrInvalidInput
	}
	var selector [4]byte
	copy(selector[:], input[:4])
	return selector, input[4:], nil
}

func argAddress(args []byte, word int) (common.Address, error) {
	offset := word * 32
	if len(args) < offset+32 {
		return common.Address{}, ErrInvalidInput
	}
	return common.BytesToAddress(args[offset+12 : offset+32]), nil
}

func argBig(args []byte, word int) (*big.Int, error) {
	offset := word * 32
	if len(args) < offset+32 {
		return nil, ErrInvalidInput
	}
	return new(big.Int).SetBytes(args[offset : offset+32]), nil
}

func argBool(args []byte, word int) (bool, error) {
	offset := word * 32
	if len(args) < offset+32 {
		return false, ErrInvalidInput
	}
	return args[offset+31] != 0, nil
}

// registryPrecompile exposes Registry at RegistryAddress.
type registryPrecompile struct {
	engine *Engine
}

func (p *registryPrecompile) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	selector, args, err := splitSelector(input)
	if err != nil {
		return nil, suppliedGas, err
	}
	state := newStateAdapter(accessibleState)

	switch selector {
	case SelectorGetPoolKey:
		remainingGas, err := deductGas(suppliedGas, GasRegistryLookup)
		if err != nil {
			return nil, 0, err
		}
		owner, err := argAddress(args, 0)
		if err != nil {
			return nil, remainingGas, err
		}
		key, err := p.engine.Registry.GetPoolKey(owner)
		if err != nil {
			return nil, remainingGas, err
		}
		return encodePoolKey(key), remainingGas, nil

	case SelectorCreateLiquidity:
		remainingGas, err := deductGas(suppliedGas, GasVaultCreate)
		if err != nil {
			return nil, 0, err
		}
		if readOnly {
			return nil, remainingGas, ErrReadOnly
		}
		owner, err := argAddress(args, 0)
		if err != nil {
			return nil, remainingGas, err
		}
		tokenAmount, err := argBig(args, 1)
		if err != nil {
			return nil, remainingGas, err
		}
		assetAmount, err := argBig(args, 2)
		if err != nil {
			return nil, remainingGas, err
		}
		if err := p.engine.Registry.CreateLiquidity(state, caller, owner, tokenAmount, assetAmount); err != nil {
			return nil, remainingGas, err
		}
		return nil, remainingGas, nil

	case SelectorSetPause:
		remainingGas, err := deductGas(suppliedGas, GasPauseWrite)
		if err != nil {
			return nil, 0, err
		}
		if readOnly {
			return nil, remainingGas, ErrReadOnly
		}
		owner, err := argAddress(args, 0)
		if err != nil {
			return nil, remainingGas, err
		}
		target, err := argBig(args, 1)
		if err != nil {
			return nil, remainingGas, err
		}
		paused, err := argBool(args, 2)
		if err != nil {
			return nil, remainingGas, err
		}
		if err := p.engine.Registry.SetPause(state, caller, owner, PauseTarget(target.Uint64()), paused); err != nil {
			return nil, remainingGas, err
		}
		return nil, remainingGas, nil

	case SelectorSetGlobalPause:
		remainingGas, err := deductGas(suppliedGas, GasPauseWrite)
		if err != nil {
			return nil, 0, err
		}
		if readOnly {
			return nil, remainingGas, ErrReadOnly
		}
		paused, err := argBool(args, 0)
		if err != nil {
			return nil, remainingGas, err
		}
		if err := p.engine.Registry.SetGlobalPause(state, caller, paused); err != nil {
			return nil, remainingGas, err
		}
		return nil, remainingGas, nil

	case SelectorEmergencyWithdraw:
		remainingGas, err := deductGas(suppliedGas, GasPerformUpkeep)
		if err != nil {
			return nil, 0, err
		}
		if readOnly {
			return nil, remainingGas, ErrReadOnly
		}
		owner, err := argAddress(args, 0)
		if err != nil {
			return nil, remainingGas, err
		}
		recipient, err := argAddress(args, 1)
		if err != nil {
			return nil, remainingGas, err
		}
		if err := p.engine.Registry.EmergencyWithdraw(state, caller, owner, recipient); err != nil {
			return nil, remainingGas, err
		}
		return nil, remainingGas, nil
	}
	return nil, suppliedGas, ErrInvalidInput
}

// encodePoolKey packs a pool key into five 32-byte words.
func encodePoolKey(key PoolKey) []byte {
	out := make([]byte, 0, 5*32)
	out = append(out, common.BytesToHash(key.Currency0.Address.Bytes()).Bytes()...)
	out = append(out, common.BytesToHash(key.Currency1.Address.Bytes()).Bytes()...)
	out = append(out, common.BigToHash(new(big.Int).SetUint64(uint64(key.Fee))).Bytes()...)
	out = append(out, common.BytesToHash(key.Hooks.Bytes()).Bytes()...)
	id := key.ID()
	out = append(out, id[:]...)
	return out
}

// treasuryPrecompile exposes TreasuryController at TreasuryUpkeepAddress.
// checkUpkeep takes the owner address as one word; performUpkeep takes the
// owner word followed by the encoded decision.
type treasuryPrecompile struct {
	engine *Engine
}

func (p *treasuryPrecompile) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	selector, args, err := splitSelector(input)
	if err != nil {
		return nil, suppliedGas, err
	}
	state := newStateAdapter(accessibleState)

	switch selector {
	case SelectorCheckUpkeep:
		remainingGas, err := deductGas(suppliedGas, GasCheckUpkeep)
		if err != nil {
			return nil, 0, err
		}
		owner, err := argAddress(args, 0)
		if err != nil {
			return nil, remainingGas, err
		}
		needed, payload, err := p.engine.Treasury.CheckUpkeep(state, owner)
		if err != nil {
			return nil, remainingGas, err
		}
		return encodeUpkeepResult(needed, payload), remainingGas, nil

	case SelectorPerformUpkeep:
		remainingGas, err := deductGas(suppliedGas, GasPerformUpkeep)
		if err != nil {
			return nil, 0, err
		}
		if readOnly {
			return nil, remainingGas, ErrReadOnly
		}
		owner, err := argAddress(args, 0)
		if err != nil {
			return nil, remainingGas, err
		}
		if err := p.engine.Treasury.PerformUpkeep(state, caller, owner, args[32:]); err != nil {
			return nil, remainingGas, err
		}
		return nil, remainingGas, nil
	}
	return nil, suppliedGas, ErrInvalidInput
}

// encodeUpkeepResult packs (bool needed, bytes payload).
func encodeUpkeepResult(needed bool, payload []byte) []byte {
	out := make([]byte, 32, 32+len(payload))
	if needed {
		out[31] = 1
	}
	return append(out, payload...)
}

// donationPrecompile exposes DonationForwarder at DonationUpkeepAddress.
type donationPrecompile struct {
	engine *Engine
}

func (p *donationPrecompile) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	selector, args, err := splitSelector(input)
	if err != nil {
		return nil, suppliedGas, err
	}
	state := newStateAdapter(accessibleState)

	switch selector {
	case SelectorCheckUpkeep:
		remainingGas, err := deductGas(suppliedGas, GasCheckUpkeep)
		if err != nil {
			return nil, 0, err
		}
		owner, err := argAddress(args, 0)
		if err != nil {
			return nil, remainingGas, err
		}
		needed, err := p.engine.Donation.CheckUpkeep(state, owner)
		if err != nil {
			return nil, remainingGas, err
		}
		return encodeUpkeepResult(needed, nil), remainingGas, nil

	case SelectorPerformUpkeep:
		remainingGas, err := deductGas(suppliedGas, GasPerformUpkeep)
		if err != nil {
			return nil, 0, err
		}
		if readOnly {
			return nil, remainingGas, ErrReadOnly
		}
		owner, err := argAddress(args, 0)
		if err != nil {
			return nil, remainingGas, err
		}
		if err := p.engine.Donation.PerformUpkeep(state, caller, owner); err != nil {
			return nil, remainingGas, err
		}
		return nil, remainingGas, nil
	}
	return nil, suppliedGas, ErrInvalidInput
}

// tokenPrecompile exposes the token ledger and tax router at
// FundraisingTokenAddress. Every transfer is caller-authorized: the sender
// is always the calling account.
type tokenPrecompile struct {
	engine *Engine
}

func (p *tokenPrecompile) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	selector, args, err := splitSelector(input)
	if err != nil {
		return nil, suppliedGas, err
	}
	state := newStateAdapter(accessibleState)

	switch selector {
	case SelectorTransfer:
		remainingGas, err := deductGas(suppliedGas, GasTransfer)
		if err != nil {
			return nil, 0, err
		}
		if readOnly {
			return nil, remainingGas, ErrReadOnly
		}
		token, err := argAddress(args, 0)
		if err != nil {
			return nil, remainingGas, err
		}
		to, err := argAddress(args, 1)
		if err != nil {
			return nil, remainingGas, err
		}
		amount, err := argBig(args, 2)
		if err != nil {
			return nil, remainingGas, err
		}
		if err := p.engine.Router.Transfer(state, token, caller, to, amount); err != nil {
			return nil, remainingGas, err
		}
		return nil, remainingGas, nil

	case SelectorBalanceOf:
		remainingGas, err := deductGas(suppliedGas, GasRegistryLookup)
		if err != nil {
			return nil, 0, err
		}
		token, err := argAddress(args, 0)
		if err != nil {
			return nil, remainingGas, err
		}
		holder, err := argAddress(args, 1)
		if err != nil {
			return nil, remainingGas, err
		}
		return common.BigToHash(BalanceOf(state, token, holder)).Bytes(), remainingGas, nil

	case SelectorTotalSupply:
		remainingGas, err := deductGas(suppliedGas, GasRegistryLookup)
		if err != nil {
			return nil, 0, err
		}
		token, err := argAddress(args, 0)
		if err != nil {
			return nil, remainingGas, err
		}
		return common.BigToHash(TotalSupply(state, token)).Bytes(), remainingGas, nil
	}
	return nil, suppliedGas, ErrInvalidInput
}
