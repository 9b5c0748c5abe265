// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"
)

// Storage key prefixes under RegistryAddress
var (
	lastTransferPrefix = []byte("fundraiser:lastTransfer")
	pausedPrefix       = []byte("fundraiser:paused")
	lpCreatedPrefix    = []byte("fundraiser:lpCreated")
)

// Registry is the factory and control plane for fundraising vaults.
// Creation is two-phase: CreateVault derives and wires the vault's accounts
// and mints supply to the treasury; CreateLiquidity later seeds the trading
// pool exactly once. Pause flags and emergency withdrawal are admin-only.
type Registry struct {
	mu sync.RWMutex

	admin  common.Address // pause control and emergency withdrawal
	keeper common.Address // sole authorized upkeep caller

	vaults  map[common.Address]*Vault // owner -> vault
	byToken map[common.Address]*Vault // token -> vault

	guard *LaunchGuard
	venue *BasicVenue
}

// NewRegistry creates a registry wired to a guard and venue.
func NewRegistry(guard *LaunchGuard, venue *BasicVenue) *Registry {
	return &Registry{
		vaults:  make(map[common.Address]*Vault),
		byToken: make(map[common.Address]*Vault),
		guard:   guard,
		venue:   venue,
	}
}

// SetAdmin sets the admin address. Callable once while unset.
func (r *Registry) SetAdmin(admin common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admin = admin
}

// SetKeeper sets the authorized upkeep caller. Callable once while unset.
func (r *Registry) SetKeeper(keeper common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keeper = keeper
}

// isAdmin reports whether caller holds admin rights. An unset admin allows
// any caller, for bootstrap.
func (r *Registry) isAdmin(caller common.Address) bool {
	return r.admin == (common.Address{}) || caller == r.admin
}

// isKeeper reports whether caller may execute upkeep.
func (r *Registry) isKeeper(caller common.Address) bool {
	return r.keeper == (common.Address{}) || caller == r.keeper
}

// CreateVault derives and wires a new vault for owner: token, treasury, and
// donation accounts, the launch-guard hook, and the pool key against asset.
// The full initial supply is minted to the treasury. The trading pool is not
// seeded here; call CreateLiquidity once funding is committed.
func (r *Registry) CreateVault(stateDB StateDB, caller, owner, payout common.Address, asset Currency, initialSupply *big.Int, policy TaxPolicy, schedule TreasuryParams, guard GuardParams) (*Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isAdmin(caller) {
		return nil, ErrUnauthorized
	}
	if owner == (common.Address{}) || payout == (common.Address{}) {
		return nil, ErrInvalidAddress
	}
	if initialSupply == nil || initialSupply.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if _, ok := r.vaults[owner]; ok {
		return nil, ErrDuplicateVault
	}

	tokenAddr := deriveAccountAddress(owner, "token")
	treasuryAddr := deriveAccountAddress(owner, "treasury")
	donationAddr := deriveAccountAddress(owner, "donation")
	guardAddr := GuardHookAddress(tokenAddr)

	for _, addr := range []common.Address{tokenAddr, treasuryAddr, donationAddr} {
		if !stateDB.Exist(addr) {
			stateDB.CreateAccount(addr)
		}
	}

	token := Currency{Address: tokenAddr}
	key := PoolKey{Fee: Fee030, Hooks: guardAddr}
	if token.Address.Cmp(asset.Address) < 0 {
		key.Currency0, key.Currency1 = token, asset
	} else {
		key.Currency0, key.Currency1 = asset, token
	}

	mint(stateDB, tokenAddr, treasuryAddr, initialSupply)

	if err := r.guard.Register(stateDB, tokenAddr, guard); err != nil {
		return nil, err
	}

	vault := &Vault{
		Owner:    owner,
		Payout:   payout,
		Token:    token,
		Asset:    asset,
		Treasury: treasuryAddr,
		Donation: donationAddr,
		Guard:    guardAddr,
		Pool:     key,
		Policy:   policy,
		Schedule: schedule,
	}
	r.vaults[owner] = vault
	r.byToken[tokenAddr] = vault

	// First transfer-and-burn waits a full interval from creation.
	r.setLastTransfer(stateDB, owner, stateDB.GetTimestamp())

	stateDB.AddLog(&ethtypes.Log{
		Address: RegistryAddress,
		Topics: []common.Hash{
			TopicVaultCreated,
			common.BytesToHash(owner.Bytes()),
			common.BytesToHash(tokenAddr.Bytes()),
		},
		BlockNumber: stateDB.GetBlockNumber(),
	})
	return vault, nil
}

// CreateLiquidity seeds the vault's trading pool from the treasury's token
// balance and the caller-provided asset side. One shot per vault.
func (r *Registry) CreateLiquidity(stateDB StateDB, caller, owner common.Address, tokenAmount, assetAmount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isAdmin(caller) {
		return ErrUnauthorized
	}
	vault, ok := r.vaults[owner]
	if !ok {
		return ErrVaultNotFound
	}
	if r.liquidityCreated(stateDB, owner) {
		return ErrLiquidityExists
	}
	if tokenAmount == nil || tokenAmount.Sign() <= 0 || assetAmount == nil || assetAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	// Move the asset side to the treasury first so the pool's provider is
	// a single account.
	if vault.Asset.IsNative() {
		if err := moveNative(stateDB, caller, vault.Treasury, assetAmount); err != nil {
			return err
		}
	} else if caller != vault.Treasury {
		if err := transferRaw(stateDB, vault.Asset.Address, caller, vault.Treasury, assetAmount); err != nil {
			return err
		}
	}

	amount0, amount1 := tokenAmount, assetAmount
	if vault.Pool.Currency0 != vault.Token {
		amount0, amount1 = assetAmount, tokenAmount
	}
	if err := r.venue.CreatePool(stateDB, vault.Pool, amount0, amount1, vault.Treasury); err != nil {
		return err
	}

	stateDB.SetState(RegistryAddress, makeStorageKey(lpCreatedPrefix, owner.Bytes()), common.BigToHash(big.NewInt(1)))
	return nil
}

// liquidityCreated reports whether the vault's pool has been seeded. Read
// from the registry slot so a revert spanning CreateLiquidity resets it.
func (r *Registry) liquidityCreated(stateDB StateDB, owner common.Address) bool {
	return stateDB.GetState(RegistryAddress, makeStorageKey(lpCreatedPrefix, owner.Bytes())) != (common.Hash{})
}

// VaultByOwner returns the vault registered for owner.
func (r *Registry) VaultByOwner(owner common.Address) (*Vault, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vault, ok := r.vaults[owner]
	if !ok {
		return nil, ErrVaultNotFound
	}
	return vault, nil
}

// VaultByToken returns the vault whose fundraising token is token.
func (r *Registry) VaultByToken(token common.Address) (*Vault, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vault, ok := r.byToken[token]
	if !ok {
		return nil, ErrVaultNotFound
	}
	return vault, nil
}

// GetPoolKey returns the pool key for owner's vault.
func (r *Registry) GetPoolKey(owner common.Address) (PoolKey, error) {
	vault, err := r.VaultByOwner(owner)
	if err != nil {
		return PoolKey{}, err
	}
	return vault.Pool, nil
}

// SetPause updates one component pause flag on a vault. Writing the value
// the flag already holds is an error, so callers learn when a pause they
// assumed fresh was already in force.
func (r *Registry) SetPause(stateDB StateDB, caller, owner common.Address, target PauseTarget, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isAdmin(caller) {
		return ErrUnauthorized
	}
	if _, ok := r.vaults[owner]; !ok {
		return ErrVaultNotFound
	}

	var label string
	switch target {
	case PauseTreasury:
		label = "treasury"
	case PauseDonation:
		label = "donation"
	default:
		return ErrInvalidAmount
	}
	if r.componentPaused(stateDB, owner, label) == paused {
		return ErrAlreadySet
	}

	val := common.Hash{}
	if paused {
		val = common.BigToHash(big.NewInt(1))
	}
	stateDB.SetState(RegistryAddress, makeStorageKey(pausedPrefix, append(owner.Bytes(), label...)), val)
	return nil
}

// SetGlobalPause halts or resumes all upkeep across every vault.
func (r *Registry) SetGlobalPause(stateDB StateDB, caller common.Address, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isAdmin(caller) {
		return ErrUnauthorized
	}
	if r.globalPaused(stateDB) == paused {
		return ErrAlreadySet
	}

	val := common.Hash{}
	if paused {
		val = common.BigToHash(big.NewInt(1))
	}
	stateDB.SetState(RegistryAddress, makeStorageKey(pausedPrefix, []byte("global")), val)
	return nil
}

// componentPaused reads one vault component's pause slot.
func (r *Registry) componentPaused(stateDB StateDB, owner common.Address, label string) bool {
	return stateDB.GetState(RegistryAddress, makeStorageKey(pausedPrefix, append(owner.Bytes(), label...))) != (common.Hash{})
}

// globalPaused reads the registry-wide pause slot.
func (r *Registry) globalPaused(stateDB StateDB) bool {
	return stateDB.GetState(RegistryAddress, makeStorageKey(pausedPrefix, []byte("global"))) != (common.Hash{})
}

// treasuryPaused reports whether a vault's treasury upkeep is halted.
func (r *Registry) treasuryPaused(stateDB StateDB, vault *Vault) bool {
	return r.globalPaused(stateDB) || r.componentPaused(stateDB, vault.Owner, "treasury")
}

// donationPaused reports whether a vault's donation upkeep is halted.
func (r *Registry) donationPaused(stateDB StateDB, vault *Vault) bool {
	return r.globalPaused(stateDB) || r.componentPaused(stateDB, vault.Owner, "donation")
}

// EmergencyWithdraw sweeps the vault's treasury and donation token balances
// to recipient. Requires both components paused; upkeep must be stopped
// before funds move out of band.
func (r *Registry) EmergencyWithdraw(stateDB StateDB, caller, owner, recipient common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isAdmin(caller) {
		return ErrUnauthorized
	}
	if recipient == (common.Address{}) {
		return ErrInvalidAddress
	}
	vault, ok := r.vaults[owner]
	if !ok {
		return ErrVaultNotFound
	}
	if !r.globalPaused(stateDB) && !(r.componentPaused(stateDB, owner, "treasury") && r.componentPaused(stateDB, owner, "donation")) {
		return ErrNotPaused
	}

	token := vault.Token.Address
	for _, account := range []common.Address{vault.Treasury, vault.Donation} {
		bal := BalanceOf(stateDB, token, account)
		if bal.Sign() == 0 {
			continue
		}
		if err := transferRaw(stateDB, token, account, recipient, bal); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) lastTransfer(stateDB StateDB, owner common.Address) uint64 {
	val := stateDB.GetState(RegistryAddress, makeStorageKey(lastTransferPrefix, owner.Bytes()))
	return new(big.Int).SetBytes(val.Bytes()).Uint64()
}

func (r *Registry) setLastTransfer(stateDB StateDB, owner common.Address, ts uint64) {
	stateDB.SetState(RegistryAddress, makeStorageKey(lastTransferPrefix, owner.Bytes()), common.BigToHash(new(big.Int).SetUint64(ts)))
}
