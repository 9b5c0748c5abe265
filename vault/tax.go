// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"

	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"
)

// TaxRouter applies per-transfer tax to fundraising tokens and routes the
// proceeds between liquidity support and the treasury. Routing reacts to two
// health signals on every transfer: a full treasury suspends taxation
// entirely, and an underfunded pool redirects a configurable share of the
// tax into liquidity.
type TaxRouter struct {
	registry *Registry
	venue    Venue
}

// NewTaxRouter wires a router to its registry and venue.
func NewTaxRouter(registry *Registry, venue Venue) *TaxRouter {
	return &TaxRouter{registry: registry, venue: venue}
}

// Transfer moves amount of the fundraising token at tokenAddr from from to
// to, applying tax unless an exemption holds. The sender always parts with
// exactly amount; tax comes out of the recipient's side.
func (t *TaxRouter) Transfer(stateDB StateDB, tokenAddr, from, to common.Address, amount *big.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	vault, err := t.registry.VaultByToken(tokenAddr)
	if err != nil {
		return err
	}
	if BalanceOf(stateDB, tokenAddr, from).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	tax := t.taxFor(stateDB, vault, from, to, amount)
	if tax.Sign() == 0 {
		return transferRaw(stateDB, tokenAddr, from, to, amount)
	}

	lpPortion, treasuryPortion := t.splitTax(stateDB, vault, amount, tax)

	net := new(big.Int).Sub(amount, tax)
	if err := transferRaw(stateDB, tokenAddr, from, to, net); err != nil {
		return err
	}
	if treasuryPortion.Sign() > 0 {
		if err := transferRaw(stateDB, tokenAddr, from, vault.Treasury, treasuryPortion); err != nil {
			return err
		}
	}
	if lpPortion.Sign() > 0 {
		amount0, amount1 := lpPortion, new(big.Int)
		if vault.Pool.Currency0 != vault.Token {
			amount0, amount1 = amount1, amount0
		}
		if err := t.venue.AddLiquidity(stateDB, vault.Pool, amount0, amount1, from); err != nil {
			return err
		}
	}

	stateDB.AddLog(&ethtypes.Log{
		Address: tokenAddr,
		Topics: []common.Hash{
			TopicTaxCollected,
			common.BytesToHash(from.Bytes()),
		},
		Data: append(common.BigToHash(lpPortion).Bytes(), common.BigToHash(treasuryPortion).Bytes()...),
		BlockNumber: stateDB.GetBlockNumber(),
	})
	return nil
}

// taxFor returns the tax owed on a transfer, zero when exempt. Exemptions:
// system accounts on either side, a pool not yet seeded, and a treasury
// already holding its configured maximum share of supply.
func (t *TaxRouter) taxFor(stateDB StateDB, vault *Vault, from, to common.Address, amount *big.Int) *big.Int {
	if t.exempt(vault, from) || t.exempt(vault, to) {
		return new(big.Int)
	}
	if !t.registry.liquidityCreated(stateDB, vault.Owner) {
		return new(big.Int)
	}

	supply := TotalSupply(stateDB, vault.Token.Address)
	treasuryBal := BalanceOf(stateDB, vault.Token.Address, vault.Treasury)
	if SupplyFraction(treasuryBal, supply).Cmp(vault.Policy.MaxTreasury) >= 0 {
		return new(big.Int)
	}
	return FractionOf(amount, vault.Policy.TaxFee)
}

// splitTax divides tax between liquidity support and the treasury. The LP
// portion is amount * lpShare / WAD, clamped to the tax so rounding on small
// amounts can never push the treasury portion negative. When the pool is
// already at or above its target holdings the whole tax goes to the treasury.
func (t *TaxRouter) splitTax(stateDB StateDB, vault *Vault, amount, tax *big.Int) (lpPortion, treasuryPortion *big.Int) {
	supply := TotalSupply(stateDB, vault.Token.Address)
	poolBal := t.venue.PoolBalance(stateDB, vault.Pool, vault.Token)

	lpPortion = new(big.Int)
	if SupplyFraction(poolBal, supply).Cmp(vault.Policy.MinLiquidity) < 0 {
		lpPortion = MinBig(FractionOf(amount, vault.Policy.LPShare), tax)
	}
	treasuryPortion = new(big.Int).Sub(tax, lpPortion)
	return lpPortion, treasuryPortion
}

// exempt reports whether addr is one of the vault's system accounts.
// System flows (upkeep, pool custody, registry ops) move tokens tax-free.
func (t *TaxRouter) exempt(vault *Vault, addr common.Address) bool {
	switch addr {
	case vault.Treasury, vault.Donation, RegistryAddress, t.venue.PoolAddress(vault.Pool):
		return true
	}
	return false
}
