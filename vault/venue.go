// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Venue abstracts the trading venue the suite routes through. The engine
// only ever needs single-hop exact-input swaps, two-sided deposits, and a
// liquidity-health signal; any AMM that can answer these fits.
type Venue interface {
	// SwapExactInputSingle swaps amountIn of one pool currency for the
	// other on behalf of trader. zeroForOne selects currency0 as input.
	// Fails with ErrInsufficientOutput if the output is below minAmountOut.
	SwapExactInputSingle(stateDB StateDB, key PoolKey, zeroForOne bool, amountIn, minAmountOut *big.Int, trader common.Address) (*big.Int, error)

	// AddLiquidity deposits both currencies into the pool from provider.
	// Imbalanced deposits are absorbed into reserves rather than refunded.
	AddLiquidity(stateDB StateDB, key PoolKey, amount0, amount1 *big.Int, provider common.Address) error

	// PoolBalance returns the pool's holdings of one of its currencies.
	PoolBalance(stateDB StateDB, key PoolKey, c Currency) *big.Int

	// PoolAddress returns the pool's custody account.
	PoolAddress(key PoolKey) common.Address
}

// Quoter prices a swap without executing it.
type Quoter interface {
	QuoteExactInputSingle(stateDB StateDB, key PoolKey, zeroForOne bool, amountIn *big.Int) (*big.Int, error)
}

// Storage key prefixes under LiquidityManagerAddress. Reserves live in state
// rather than memory so snapshot reverts roll pools back with everything else.
var (
	poolInitPrefix     = []byte("fundraiser:pool:init")
	poolReserve0Prefix = []byte("fundraiser:pool:reserve0")
	poolReserve1Prefix = []byte("fundraiser:pool:reserve1")
)

// BasicVenue is a fee-less constant-product venue with custody accounts per
// pool. It dispatches beforeSwap to the launch guard when the pool key's
// hook address carries the permission bit.
type BasicVenue struct {
	guard *LaunchGuard
}

// NewBasicVenue creates a venue with guard dispatch.
func NewBasicVenue(guard *LaunchGuard) *BasicVenue {
	return &BasicVenue{guard: guard}
}

// PoolAddress derives the custody account for a pool.
func (v *BasicVenue) PoolAddress(key PoolKey) common.Address {
	id := key.ID()
	h := blake3.New()
	h.Write([]byte("fundraiser:pool"))
	h.Write(id[:])

	var hash [32]byte
	h.Digest().Read(hash[:])

	var addr common.Address
	copy(addr[:], hash[12:32])
	return addr
}

// poolState holds a pool's reserves as read from state.
type poolState struct {
	reserve0 *big.Int
	reserve1 *big.Int
}

func (v *BasicVenue) poolExists(stateDB StateDB, id [32]byte) bool {
	return stateDB.GetState(LiquidityManagerAddress, makeStorageKey(poolInitPrefix, id[:])) != (common.Hash{})
}

func (v *BasicVenue) getPool(stateDB StateDB, id [32]byte) (*poolState, bool) {
	if !v.poolExists(stateDB, id) {
		return nil, false
	}
	r0 := stateDB.GetState(LiquidityManagerAddress, makeStorageKey(poolReserve0Prefix, id[:]))
	r1 := stateDB.GetState(LiquidityManagerAddress, makeStorageKey(poolReserve1Prefix, id[:]))
	return &poolState{
		reserve0: new(big.Int).SetBytes(r0.Bytes()),
		reserve1: new(big.Int).SetBytes(r1.Bytes()),
	}, true
}

func (v *BasicVenue) setPool(stateDB StateDB, id [32]byte, pool *poolState) {
	stateDB.SetState(LiquidityManagerAddress, makeStorageKey(poolInitPrefix, id[:]), common.BigToHash(big.NewInt(1)))
	stateDB.SetState(LiquidityManagerAddress, makeStorageKey(poolReserve0Prefix, id[:]), common.BigToHash(pool.reserve0))
	stateDB.SetState(LiquidityManagerAddress, makeStorageKey(poolReserve1Prefix, id[:]), common.BigToHash(pool.reserve1))
}

// CreatePool initializes a pool with its first deposit from provider.
func (v *BasicVenue) CreatePool(stateDB StateDB, key PoolKey, amount0, amount1 *big.Int, provider common.Address) error {
	id := key.ID()
	if v.poolExists(stateDB, id) {
		return ErrPoolAlreadyExists
	}
	if amount0.Sign() <= 0 || amount1.Sign() <= 0 {
		return ErrInvalidAmount
	}

	poolAddr := v.PoolAddress(key)
	if !stateDB.Exist(poolAddr) {
		stateDB.CreateAccount(poolAddr)
	}
	if err := v.pull(stateDB, key.Currency0, provider, poolAddr, amount0); err != nil {
		return err
	}
	if err := v.pull(stateDB, key.Currency1, provider, poolAddr, amount1); err != nil {
		return err
	}

	v.setPool(stateDB, id, &poolState{
		reserve0: new(big.Int).Set(amount0),
		reserve1: new(big.Int).Set(amount1),
	})
	return nil
}

// QuoteExactInputSingle prices an exact-input swap against current reserves:
// out = in * reserveOut / (reserveIn + in).
func (v *BasicVenue) QuoteExactInputSingle(stateDB StateDB, key PoolKey, zeroForOne bool, amountIn *big.Int) (*big.Int, error) {
	pool, ok := v.getPool(stateDB, key.ID())
	if !ok {
		return nil, ErrPoolNotFound
	}
	return quoteOut(pool, zeroForOne, amountIn)
}

func quoteOut(pool *poolState, zeroForOne bool, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	reserveIn, reserveOut := pool.reserve0, pool.reserve1
	if !zeroForOne {
		reserveIn, reserveOut = pool.reserve1, pool.reserve0
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, ErrNoLiquidity
	}
	num := new(big.Int).Mul(amountIn, reserveOut)
	den := new(big.Int).Add(reserveIn, amountIn)
	return num.Div(num, den), nil
}

// SwapExactInputSingle executes an exact-input swap. The launch-guard hook
// runs on the quoted output before any balance moves, so guard rejections
// leave both the pool and the trader untouched.
func (v *BasicVenue) SwapExactInputSingle(stateDB StateDB, key PoolKey, zeroForOne bool, amountIn, minAmountOut *big.Int, trader common.Address) (*big.Int, error) {
	id := key.ID()
	pool, ok := v.getPool(stateDB, id)
	if !ok {
		return nil, ErrPoolNotFound
	}

	out, err := quoteOut(pool, zeroForOne, amountIn)
	if err != nil {
		return nil, err
	}
	if minAmountOut != nil && out.Cmp(minAmountOut) < 0 {
		return nil, ErrInsufficientOutput
	}

	currencyIn, currencyOut := key.Currency0, key.Currency1
	if !zeroForOne {
		currencyIn, currencyOut = key.Currency1, key.Currency0
	}

	// beforeSwap: buying a guarded token routes through the launch guard.
	guarded := HasPermission(key.Hooks, HookBeforeSwap) && GuardHookAddress(currencyOut.Address) == key.Hooks
	if guarded {
		if err := v.guard.CheckBuy(stateDB, currencyOut.Address, trader, out); err != nil {
			return nil, err
		}
	}

	poolAddr := v.PoolAddress(key)
	if err := v.pull(stateDB, currencyIn, trader, poolAddr, amountIn); err != nil {
		return nil, err
	}
	if err := v.push(stateDB, currencyOut, poolAddr, trader, out); err != nil {
		return nil, err
	}

	if zeroForOne {
		pool.reserve0.Add(pool.reserve0, amountIn)
		pool.reserve1.Sub(pool.reserve1, out)
	} else {
		pool.reserve1.Add(pool.reserve1, amountIn)
		pool.reserve0.Sub(pool.reserve0, out)
	}
	v.setPool(stateDB, id, pool)

	// Cooldowns stamp only after the swap settled. A rejected or reverted
	// buy must not start one.
	if guarded {
		v.guard.RecordBuy(stateDB, currencyOut.Address, trader)
	}
	return out, nil
}

// AddLiquidity deposits both sides into the pool. Either amount may be zero.
func (v *BasicVenue) AddLiquidity(stateDB StateDB, key PoolKey, amount0, amount1 *big.Int, provider common.Address) error {
	id := key.ID()
	pool, ok := v.getPool(stateDB, id)
	if !ok {
		return ErrPoolNotFound
	}

	poolAddr := v.PoolAddress(key)
	if amount0 != nil && amount0.Sign() > 0 {
		if err := v.pull(stateDB, key.Currency0, provider, poolAddr, amount0); err != nil {
			return err
		}
		pool.reserve0.Add(pool.reserve0, amount0)
	}
	if amount1 != nil && amount1.Sign() > 0 {
		if err := v.pull(stateDB, key.Currency1, provider, poolAddr, amount1); err != nil {
			return err
		}
		pool.reserve1.Add(pool.reserve1, amount1)
	}
	v.setPool(stateDB, id, pool)
	return nil
}

// PoolBalance returns the pool's reserve of currency c. Unknown pools and
// currencies the pool does not carry read as zero.
func (v *BasicVenue) PoolBalance(stateDB StateDB, key PoolKey, c Currency) *big.Int {
	pool, ok := v.getPool(stateDB, key.ID())
	if !ok {
		return new(big.Int)
	}
	switch c {
	case key.Currency0:
		return pool.reserve0
	case key.Currency1:
		return pool.reserve1
	}
	return new(big.Int)
}

// pull moves amount of currency c from payer into custody.
func (v *BasicVenue) pull(stateDB StateDB, c Currency, payer, custody common.Address, amount *big.Int) error {
	if c.IsNative() {
		return moveNative(stateDB, payer, custody, amount)
	}
	return transferRaw(stateDB, c.Address, payer, custody, amount)
}

// push moves amount of currency c from custody to recipient.
func (v *BasicVenue) push(stateDB StateDB, c Currency, custody, recipient common.Address, amount *big.Int) error {
	if c.IsNative() {
		return moveNative(stateDB, custody, recipient, amount)
	}
	return transferRaw(stateDB, c.Address, custody, recipient, amount)
}

// moveNative transfers native balance between accounts.
func moveNative(stateDB StateDB, from, to common.Address, amount *big.Int) error {
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrInvalidAmount
	}
	if stateDB.GetBalance(from).Cmp(value) < 0 {
		return ErrInsufficientBalance
	}
	stateDB.SubBalance(from, value)
	stateDB.AddBalance(to, value)
	return nil
}
