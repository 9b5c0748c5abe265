// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vault implements the treasury-management precompile suite for
// tokenized fundraising vaults. Each vault wires a taxed fundraising token to
// a treasury, a donation forwarder, and a launch-guarded trading pool. Tax
// proceeds are routed between liquidity support and the treasury on every
// transfer; scheduled upkeep converts accumulated treasury balance into
// donations and defends pool liquidity health.
package vault

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"
	"github.com/zeebo/blake3"
)

// Precompile addresses for fundraiser components.
var (
	RegistryAddress         = common.HexToAddress("0x0000000000000000000000000000000000000C10") // Registry (factory + pause control)
	TreasuryUpkeepAddress   = common.HexToAddress("0x0000000000000000000000000000000000000C20") // TreasuryController upkeep
	DonationUpkeepAddress   = common.HexToAddress("0x0000000000000000000000000000000000000C30") // DonationForwarder upkeep
	FundraisingTokenAddress = common.HexToAddress("0x0000000000000000000000000000000000000C40") // Token ledger / tax router
	LiquidityManagerAddress = common.HexToAddress("0x0000000000000000000000000000000000000C50") // Venue pool custody root
)

// Gas costs for fundraiser operations
const (
	GasTransfer       uint64 = 12_000 // Taxed token transfer
	GasCheckUpkeep    uint64 = 2_000  // Upkeep poll (read only)
	GasPerformUpkeep  uint64 = 60_000 // Upkeep execution (swap + deposit worst case)
	GasVaultCreate    uint64 = 80_000 // Vault creation
	GasPauseWrite     uint64 = 5_000  // Pause flag update
	GasRegistryLookup uint64 = 200    // Vault/pool key lookup
)

// WAD is the fixed-point base: fractions are expressed in parts-per-1e18.
var WAD = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Protocol constants, as fractions of WAD.
var (
	// FixedBurnFraction is the share of total supply moved out of
	// circulation by each transfer-and-burn cycle (2%). The same amount is
	// forwarded to the donation forwarder and destroyed from the treasury.
	FixedBurnFraction = big.NewInt(2e16)

	// SlippageFraction bounds acceptable slippage against a quoted output
	// when the treasury or donation forwarder swaps (5%).
	SlippageFraction = big.NewInt(5e16)

	// MaxTaxFeeFraction caps the per-transfer tax a vault may configure (10%).
	MaxTaxFeeFraction = big.NewInt(1e17)
)

// Pool fee tiers (basis points)
const (
	Fee030 uint24 = 3000 // 0.30% - standard
	FeeMax uint24 = 100000
)

// uint24 type alias for fees
type uint24 = uint32

// StateDB interface for accessing and modifying chain state.
// The adapter in module.go bridges this to the EVM's contract.StateDB.
type StateDB interface {
	GetState(addr common.Address, key common.Hash) common.Hash
	SetState(addr common.Address, key common.Hash, value common.Hash)
	GetBalance(addr common.Address) *uint256.Int
	AddBalance(addr common.Address, amount *uint256.Int)
	SubBalance(addr common.Address, amount *uint256.Int)
	Exist(addr common.Address) bool
	CreateAccount(addr common.Address)
	AddLog(log *ethtypes.Log)
	GetBlockNumber() uint64
	GetTimestamp() uint64
	Snapshot() int
	RevertToSnapshot(snapshot int)
}

// Currency represents a token (fundraising token, paired asset, or native).
// Address(0) represents the chain's native currency.
type Currency struct {
	Address common.Address
}

// NativeCurrency represents the chain's native currency.
var NativeCurrency = Currency{Address: common.Address{}}

// IsNative returns true if this currency is the chain's native currency.
func (c Currency) IsNative() bool {
	return c.Address == common.Address{}
}

// ToBytes serializes currency for storage
func (c Currency) ToBytes() []byte {
	return c.Address.Bytes()
}

// PoolKey identifies a trading-venue pool.
// Sorted by currency address (currency0 < currency1). Hooks carries the
// launch-guard hook address for the fundraising token's pool.
type PoolKey struct {
	Currency0 Currency       // Lower address token
	Currency1 Currency       // Higher address token
	Fee       uint24         // Fee in basis points
	Hooks     common.Address // Launch-guard hook address (zero = unguarded)
}

// ID computes the unique pool identifier
func (pk PoolKey) ID() [32]byte {
	h := blake3.New()
	h.Write(pk.Currency0.ToBytes())
	h.Write(pk.Currency1.ToBytes())

	var feeBytes [4]byte
	binary.BigEndian.PutUint32(feeBytes[:], uint32(pk.Fee))
	h.Write(feeBytes[1:]) // uint24

	h.Write(pk.Hooks.Bytes())

	var id [32]byte
	h.Digest().Read(id[:])
	return id
}

// TaxPolicy holds the immutable per-vault tax constants, set at creation.
// All fractions are parts-per-1e18.
type TaxPolicy struct {
	TaxFee       *big.Int // Tax taken from each non-exempt transfer
	MaxTreasury  *big.Int // Treasury-full cutoff as a fraction of supply
	MinLiquidity *big.Int // Target pool holdings as a fraction of supply
	LPShare      *big.Int // Portion of a taxed amount routed to liquidity support
}

// Validate checks the policy's internal consistency.
func (p TaxPolicy) Validate() error {
	if p.TaxFee == nil || p.MaxTreasury == nil || p.MinLiquidity == nil || p.LPShare == nil {
		return ErrInvalidPolicy
	}
	if p.TaxFee.Sign() < 0 || p.TaxFee.Cmp(MaxTaxFeeFraction) > 0 {
		return ErrInvalidPolicy
	}
	if p.LPShare.Sign() < 0 || p.LPShare.Cmp(p.TaxFee) > 0 {
		return ErrInvalidPolicy
	}
	if p.MaxTreasury.Sign() <= 0 || p.MaxTreasury.Cmp(WAD) > 0 {
		return ErrInvalidPolicy
	}
	if p.MinLiquidity.Sign() < 0 || p.MinLiquidity.Cmp(WAD) > 0 {
		return ErrInvalidPolicy
	}
	return nil
}

// TreasuryParams holds the scheduled-upkeep thresholds for a vault's treasury.
type TreasuryParams struct {
	MinTreasuryHealth *big.Int // Treasury fraction of supply required before a transfer-and-burn
	TransferInterval  uint64   // Seconds between transfer-and-burn cycles
}

// GuardParams holds the launch-protection window configuration for a token.
type GuardParams struct {
	MaxBuyFraction *big.Int // Largest single buy as a fraction of supply
	Cooldown       uint64   // Seconds between buys per address
	BlocksToHold   uint64   // Blocks after launch during which all buys are blocked
	TimeToHold     uint64   // Seconds after launch during which size/cooldown checks apply
}

// Vault wires one non-profit owner's fundraising token to its treasury,
// donation forwarder, launch guard, and trading pool. Every field is
// immutable after creation. Mutable vault state, the pause flags and the
// liquidity-created flag, lives in registry storage slots so it reverts
// with the rest of the transaction.
type Vault struct {
	Owner    common.Address // Non-profit owner identity (immutable)
	Payout   common.Address // Donation payout address
	Token    Currency       // Fundraising token
	Asset    Currency       // Paired asset (may be native)
	Treasury common.Address // Treasury account
	Donation common.Address // Donation forwarder account
	Guard    common.Address // Launch-guard hook address
	Pool     PoolKey        // Trading-venue pool

	Policy   TaxPolicy
	Schedule TreasuryParams
}

// PauseTarget selects which vault component a pause update applies to.
type PauseTarget uint8

const (
	PauseTreasury PauseTarget = iota
	PauseDonation
)

// Errors - tax routing and token ledger
var (
	ErrInvalidAddress      = errors.New("invalid address: cannot be zero")
	ErrInvalidAmount       = errors.New("invalid amount: must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrVaultNotFound       = errors.New("vault not found")
	ErrInvalidPolicy       = errors.New("invalid tax policy")
)

// Errors - upkeep and access control
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrPaused         = errors.New("component is paused")
	ErrNotPaused      = errors.New("component is not paused")
	ErrAlreadySet     = errors.New("value already set")
	ErrTransferFailed = errors.New("native transfer failed")
)

// Errors - venue
var (
	ErrPoolNotFound       = errors.New("pool not found")
	ErrPoolAlreadyExists  = errors.New("pool already exists")
	ErrInsufficientOutput = errors.New("swap output below minimum")
	ErrNoLiquidity        = errors.New("no liquidity in pool")
)

// Errors - registry
var (
	ErrDuplicateVault  = errors.New("vault already exists for owner")
	ErrLiquidityExists = errors.New("liquidity already created for vault")
)

// Errors - launch guard
var (
	ErrHoldWindow     = errors.New("trade blocked: hold window active")
	ErrMaxBuyExceeded = errors.New("trade blocked: buy exceeds max size")
	ErrCooldownActive = errors.New("trade blocked: buyer cooldown active")
	ErrGuardExists    = errors.New("launch guard already registered")
	ErrGuardNotFound  = errors.New("launch guard not registered")
)

// Event topics. Topics are blake3 digests of the event signature, following
// the storage-key scheme used across the precompile suite.
var (
	TopicTransfer          = eventTopic("Transfer(address,address,uint256)")
	TopicTaxCollected      = eventTopic("TaxCollected(address,uint256,uint256)")
	TopicTransferAndBurn   = eventTopic("TransferAndBurn(address,uint256)")
	TopicLiquidityTopUp    = eventTopic("LiquidityTopUp(address,uint256,uint256)")
	TopicDonationForwarded = eventTopic("DonationForwarded(address,uint256)")
	TopicVaultCreated      = eventTopic("VaultCreated(address,address)")
)

func eventTopic(signature string) common.Hash {
	h := blake3.New()
	h.Write([]byte(signature))
	var topic common.Hash
	h.Digest().Read(topic[:])
	return topic
}

// makeStorageKey creates a storage key from prefix and identifier
func makeStorageKey(prefix []byte, id []byte) common.Hash {
	h := blake3.New()
	h.Write(prefix)
	h.Write(id)
	var key common.Hash
	h.Digest().Read(key[:])
	return key
}

// deriveAccountAddress derives a deterministic account address for a vault
// component. CREATE2-style: blake3 over a fixed prefix, the owner, and the
// component label.
func deriveAccountAddress(owner common.Address, label string) common.Address {
	h := blake3.New()
	h.Write([]byte{0xff})
	h.Write(owner.Bytes())
	h.Write([]byte(label))

	var hash [32]byte
	h.Digest().Read(hash[:])

	var addr common.Address
	copy(addr[:], hash[12:32])
	return addr
}
