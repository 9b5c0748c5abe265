// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

// unguardedPool builds a pool between two plain tokens, no hook address.
func unguardedPool(t *testing.T, stateDB *MockStateDB) (*BasicVenue, PoolKey) {
	t.Helper()

	tokenA := common.HexToAddress("0x4000000000000000000000000000000000000001")
	tokenB := common.HexToAddress("0x4000000000000000000000000000000000000002")

	venue := NewBasicVenue(NewLaunchGuard())
	key := PoolKey{
		Currency0: Currency{Address: tokenA},
		Currency1: Currency{Address: tokenB},
		Fee:       Fee030,
	}

	creditToken(stateDB, tokenA, testUserA, big.NewInt(1_000_000))
	creditToken(stateDB, tokenB, testUserA, big.NewInt(1_000_000))
	require.NoError(t, venue.CreatePool(stateDB, key, big.NewInt(500_000), big.NewInt(500_000), testUserA))
	return venue, key
}

func TestCreatePoolOnce(t *testing.T) {
	stateDB := NewMockStateDB()
	venue, key := unguardedPool(t, stateDB)

	err := venue.CreatePool(stateDB, key, big.NewInt(1), big.NewInt(1), testUserA)
	require.ErrorIs(t, err, ErrPoolAlreadyExists)
}

func TestQuoteConstantProduct(t *testing.T) {
	stateDB := NewMockStateDB()
	venue, key := unguardedPool(t, stateDB)

	// out = 100_000 * 500_000 / (500_000 + 100_000)
	out, err := venue.QuoteExactInputSingle(stateDB, key, true, big.NewInt(100_000))
	require.NoError(t, err)
	require.Equal(t, int64(83_333), out.Int64())
}

func TestSwapMovesBalancesAndReserves(t *testing.T) {
	stateDB := NewMockStateDB()
	venue, key := unguardedPool(t, stateDB)

	out, err := venue.SwapExactInputSingle(stateDB, key, true, big.NewInt(100_000), nil, testUserA)
	require.NoError(t, err)
	require.Equal(t, int64(83_333), out.Int64())

	require.Equal(t, int64(600_000), venue.PoolBalance(stateDB, key, key.Currency0).Int64())
	require.Equal(t, int64(416_667), venue.PoolBalance(stateDB, key, key.Currency1).Int64())

	// Trader started with 500_000 of each left after seeding.
	require.Equal(t, int64(400_000), BalanceOf(stateDB, key.Currency0.Address, testUserA).Int64())
	require.Equal(t, int64(583_333), BalanceOf(stateDB, key.Currency1.Address, testUserA).Int64())
}

func TestSwapRespectsMinOut(t *testing.T) {
	stateDB := NewMockStateDB()
	venue, key := unguardedPool(t, stateDB)

	_, err := venue.SwapExactInputSingle(stateDB, key, true, big.NewInt(100_000), big.NewInt(90_000), testUserA)
	require.ErrorIs(t, err, ErrInsufficientOutput)

	// Nothing moved on the rejection.
	require.Equal(t, int64(500_000), venue.PoolBalance(stateDB, key, key.Currency0).Int64())
	require.Equal(t, int64(500_000), BalanceOf(stateDB, key.Currency0.Address, testUserA).Int64())
}

func TestSwapUnknownPool(t *testing.T) {
	stateDB := NewMockStateDB()
	venue := NewBasicVenue(NewLaunchGuard())

	_, err := venue.SwapExactInputSingle(stateDB, PoolKey{}, true, big.NewInt(1), nil, testUserA)
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestAddLiquiditySingleSided(t *testing.T) {
	stateDB := NewMockStateDB()
	venue, key := unguardedPool(t, stateDB)

	require.NoError(t, venue.AddLiquidity(stateDB, key, big.NewInt(10_000), nil, testUserA))
	require.Equal(t, int64(510_000), venue.PoolBalance(stateDB, key, key.Currency0).Int64())
	require.Equal(t, int64(500_000), venue.PoolBalance(stateDB, key, key.Currency1).Int64())
}

func TestPoolStateRevertsWithSnapshot(t *testing.T) {
	stateDB := NewMockStateDB()
	venue, key := unguardedPool(t, stateDB)

	snapshot := stateDB.Snapshot()
	_, err := venue.SwapExactInputSingle(stateDB, key, true, big.NewInt(100_000), nil, testUserA)
	require.NoError(t, err)

	stateDB.RevertToSnapshot(snapshot)

	require.Equal(t, int64(500_000), venue.PoolBalance(stateDB, key, key.Currency0).Int64())
	require.Equal(t, int64(500_000), venue.PoolBalance(stateDB, key, key.Currency1).Int64())
	require.Equal(t, int64(500_000), BalanceOf(stateDB, key.Currency0.Address, testUserA).Int64())
}

func TestPoolIDStableAcrossFieldOrder(t *testing.T) {
	a := PoolKey{
		Currency0: Currency{Address: common.HexToAddress("0x01")},
		Currency1: Currency{Address: common.HexToAddress("0x02")},
		Fee:       Fee030,
	}
	b := a
	require.Equal(t, a.ID(), b.ID())

	b.Fee = FeeMax
	require.NotEqual(t, a.ID(), b.ID())

	c := a
	c.Hooks = common.HexToAddress("0x03")
	require.NotEqual(t, a.ID(), c.ID())
}
