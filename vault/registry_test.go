// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestCreateVaultWiring(t *testing.T) {
	engine, stateDB, vault := newTestEngine(t)

	// Distinct derived accounts.
	require.NotEqual(t, vault.Token.Address, vault.Treasury)
	require.NotEqual(t, vault.Treasury, vault.Donation)
	require.NotEqual(t, vault.Token.Address, vault.Donation)

	// Full supply starts in the treasury.
	require.Equal(t, 0, testSupply.Cmp(BalanceOf(stateDB, vault.Token.Address, vault.Treasury)))
	require.Equal(t, 0, testSupply.Cmp(TotalSupply(stateDB, vault.Token.Address)))

	// Pool key is sorted and carries the guard hook.
	require.True(t, vault.Pool.Currency0.Address.Cmp(vault.Pool.Currency1.Address) < 0)
	require.Equal(t, vault.Guard, vault.Pool.Hooks)
	require.False(t, engine.Registry.liquidityCreated(stateDB, vault.Owner))
}

func TestCreateVaultValidation(t *testing.T) {
	engine, stateDB, _ := newTestEngine(t)

	asset := Currency{Address: testAsset}
	policy := testPolicy()
	tparams := testTreasuryParams()
	gparams := testGuardParams()

	tests := []struct {
		name     string
		run      func() error
		expected error
	}{
		{
			name: "duplicate owner",
			run: func() error {
				_, err := engine.Registry.CreateVault(stateDB, testAdmin, testOwner, testPayout, asset, testSupply, policy, tparams, gparams)
				return err
			},
			expected: ErrDuplicateVault,
		},
		{
			name: "zero owner",
			run: func() error {
				_, err := engine.Registry.CreateVault(stateDB, testAdmin, common.Address{}, testPayout, asset, testSupply, policy, tparams, gparams)
				return err
			},
			expected: ErrInvalidAddress,
		},
		{
			name: "zero payout",
			run: func() error {
				_, err := engine.Registry.CreateVault(stateDB, testAdmin, testUserA, common.Address{}, asset, testSupply, policy, tparams, gparams)
				return err
			},
			expected: ErrInvalidAddress,
		},
		{
			name: "zero supply",
			run: func() error {
				_, err := engine.Registry.CreateVault(stateDB, testAdmin, testUserA, testPayout, asset, big.NewInt(0), policy, tparams, gparams)
				return err
			},
			expected: ErrInvalidAmount,
		},
		{
			name: "tax above cap",
			run: func() error {
				bad := policy
				bad.TaxFee = big.NewInt(2e17)
				_, err := engine.Registry.CreateVault(stateDB, testAdmin, testUserA, testPayout, asset, testSupply, bad, tparams, gparams)
				return err
			},
			expected: ErrInvalidPolicy,
		},
		{
			name: "lp share above tax",
			run: func() error {
				bad := policy
				bad.LPShare = big.NewInt(5e16)
				_, err := engine.Registry.CreateVault(stateDB, testAdmin, testUserA, testPayout, asset, testSupply, bad, tparams, gparams)
				return err
			},
			expected: ErrInvalidPolicy,
		},
		{
			name: "non-admin caller",
			run: func() error {
				_, err := engine.Registry.CreateVault(stateDB, testUserA, testUserB, testPayout, asset, testSupply, policy, tparams, gparams)
				return err
			},
			expected: ErrUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.run(), tt.expected)
		})
	}
}

func TestCreateLiquidityOnce(t *testing.T) {
	engine, stateDB, vault := newTestEngine(t)
	seedLiquidity(t, engine, stateDB, vault, big.NewInt(100_000_000), big.NewInt(100_000_000))
	require.True(t, engine.Registry.liquidityCreated(stateDB, vault.Owner))

	creditToken(stateDB, testAsset, testAdmin, big.NewInt(1000))
	err := engine.Registry.CreateLiquidity(stateDB, testAdmin, vault.Owner, big.NewInt(1000), big.NewInt(1000))
	require.ErrorIs(t, err, ErrLiquidityExists)
}

func TestCreateLiquidityRevertAllowsRetry(t *testing.T) {
	engine, stateDB, vault := newTestEngine(t)

	creditToken(stateDB, testAsset, testAdmin, big.NewInt(200_000_000))
	snapshot := stateDB.Snapshot()
	err := engine.Registry.CreateLiquidity(stateDB, testAdmin, vault.Owner, big.NewInt(100_000_000), big.NewInt(100_000_000))
	require.NoError(t, err)
	stateDB.RevertToSnapshot(snapshot)

	require.False(t, engine.Registry.liquidityCreated(stateDB, vault.Owner))

	err = engine.Registry.CreateLiquidity(stateDB, testAdmin, vault.Owner, big.NewInt(100_000_000), big.NewInt(100_000_000))
	require.NoError(t, err)
	require.True(t, engine.Registry.liquidityCreated(stateDB, vault.Owner))
}

func TestSetPauseRevertsWithSnapshot(t *testing.T) {
	engine, stateDB, vault := newTestEngine(t)

	snapshot := stateDB.Snapshot()
	require.NoError(t, engine.Registry.SetPause(stateDB, testAdmin, vault.Owner, PauseTreasury, true))
	require.NoError(t, engine.Registry.SetGlobalPause(stateDB, testAdmin, true))
	stateDB.RevertToSnapshot(snapshot)

	// The unwound pauses are no longer in force, so setting them is fresh
	// again rather than ErrAlreadySet.
	require.NoError(t, engine.Registry.SetPause(stateDB, testAdmin, vault.Owner, PauseTreasury, true))
	require.NoError(t, engine.Registry.SetGlobalPause(stateDB, testAdmin, true))
}

func TestCreateLiquidityValidation(t *testing.T) {
	engine, stateDB, vault := newTestEngine(t)

	err := engine.Registry.CreateLiquidity(stateDB, testUserA, vault.Owner, big.NewInt(1), big.NewInt(1))
	require.ErrorIs(t, err, ErrUnauthorized)

	err = engine.Registry.CreateLiquidity(stateDB, testAdmin, testUserA, big.NewInt(1), big.NewInt(1))
	require.ErrorIs(t, err, ErrVaultNotFound)

	err = engine.Registry.CreateLiquidity(stateDB, testAdmin, vault.Owner, big.NewInt(0), big.NewInt(1))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestGetPoolKey(t *testing.T) {
	engine, _, vault := newTestEngine(t)

	key, err := engine.Registry.GetPoolKey(vault.Owner)
	require.NoError(t, err)
	require.Equal(t, vault.Pool, key)

	_, err = engine.Registry.GetPoolKey(testUserA)
	require.ErrorIs(t, err, ErrVaultNotFound)
}

func TestSetPauseAlreadySet(t *testing.T) {
	engine, stateDB, vault := newTestEngine(t)

	require.NoError(t, engine.Registry.SetPause(stateDB, testAdmin, vault.Owner, PauseTreasury, true))
	err := engine.Registry.SetPause(stateDB, testAdmin, vault.Owner, PauseTreasury, true)
	require.ErrorIs(t, err, ErrAlreadySet)

	require.NoError(t, engine.Registry.SetPause(stateDB, testAdmin, vault.Owner, PauseTreasury, false))
	err = engine.Registry.SetPause(stateDB, testAdmin, vault.Owner, PauseTreasury, false)
	require.ErrorIs(t, err, ErrAlreadySet)
}

func TestSetPauseAuthorization(t *testing.T) {
	engine, stateDB, vault := newTestEngine(t)

	err := engine.Registry.SetPause(stateDB, testUserA, vault.Owner, PauseTreasury, true)
	require.ErrorIs(t, err, ErrUnauthorized)

	err = engine.Registry.SetPause(stateDB, testAdmin, testUserA, PauseTreasury, true)
	require.ErrorIs(t, err, ErrVaultNotFound)
}

func TestSetGlobalPauseHaltsAllUpkeep(t *testing.T) {
	engine, stateDB, vault := newTestEngine(t)
	seedLiquidity(t, engine, stateDB, vault, big.NewInt(50_000_000), big.NewInt(50_000_000))
	stateDB.advance(100, 86_401)

	require.NoError(t, engine.Registry.SetGlobalPause(stateDB, testAdmin, true))

	needed, _, err := engine.Treasury.CheckUpkeep(stateDB, vault.Owner)
	require.NoError(t, err)
	require.False(t, needed)

	needed2, err := engine.Donation.CheckUpkeep(stateDB, vault.Owner)
	require.NoError(t, err)
	require.False(t, needed2)

	err = engine.Registry.SetGlobalPause(stateDB, testAdmin, true)
	require.ErrorIs(t, err, ErrAlreadySet)
}

func TestEmergencyWithdrawRequiresPause(t *testing.T) {
	engine, stateDB, vault := newTestEngine(t)

	err := engine.Registry.EmergencyWithdraw(stateDB, testAdmin, vault.Owner, testUserA)
	require.ErrorIs(t, err, ErrNotPaused)
}

func TestEmergencyWithdrawSweepsBalances(t *testing.T) {
	engine, stateDB, vault := newTestEngine(t)
	seedLiquidity(t, engine, stateDB, vault, big.NewInt(100_000_000), big.NewInt(100_000_000))
	fundDonation(t, engine, stateDB, vault)

	require.NoError(t, engine.Registry.SetPause(stateDB, testAdmin, vault.Owner, PauseTreasury, true))
	require.NoError(t, engine.Registry.SetPause(stateDB, testAdmin, vault.Owner, PauseDonation, true))

	token := vault.Token.Address
	expected := new(big.Int).Add(
		BalanceOf(stateDB, token, vault.Treasury),
		BalanceOf(stateDB, token, vault.Donation),
	)
	require.True(t, expected.Sign() > 0)

	require.NoError(t, engine.Registry.EmergencyWithdraw(stateDB, testAdmin, vault.Owner, testUserA))

	require.Equal(t, 0, BalanceOf(stateDB, token, vault.Treasury).Sign())
	require.Equal(t, 0, BalanceOf(stateDB, token, vault.Donation).Sign())
	require.Equal(t, 0, expected.Cmp(BalanceOf(stateDB, token, testUserA)))
}

func TestEmergencyWithdrawValidation(t *testing.T) {
	engine, stateDB, vault := newTestEngine(t)
	require.NoError(t, engine.Registry.SetGlobalPause(stateDB, testAdmin, true))

	err := engine.Registry.EmergencyWithdraw(stateDB, testUserA, vault.Owner, testUserB)
	require.ErrorIs(t, err, ErrUnauthorized)

	err = engine.Registry.EmergencyWithdraw(stateDB, testAdmin, vault.Owner, common.Address{})
	require.ErrorIs(t, err, ErrInvalidAddress)

	err = engine.Registry.EmergencyWithdraw(stateDB, testAdmin, testUserB, testUserA)
	require.ErrorIs(t, err, ErrVaultNotFound)
}
