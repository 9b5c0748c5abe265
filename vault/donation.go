// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"
)

// DonationForwarder liquidates the donation account's token balance into
// the vault's paired asset and forwards the whole proceeds to the owner's
// payout address. It holds nothing across cycles: every perform drains the
// account completely.
type DonationForwarder struct {
	registry *Registry
	venue    Venue
	quoter   Quoter
}

// NewDonationForwarder wires a forwarder to its registry and venue.
func NewDonationForwarder(registry *Registry, venue Venue, quoter Quoter) *DonationForwarder {
	return &DonationForwarder{registry: registry, venue: venue, quoter: quoter}
}

// CheckUpkeep reports whether owner's donation account holds tokens to
// liquidate.
func (f *DonationForwarder) CheckUpkeep(stateDB StateDB, owner common.Address) (bool, error) {
	vault, err := f.registry.VaultByOwner(owner)
	if err != nil {
		return false, err
	}
	if f.registry.donationPaused(stateDB, vault) || !f.registry.liquidityCreated(stateDB, owner) {
		return false, nil
	}
	bal := BalanceOf(stateDB, vault.Token.Address, vault.Donation)
	return bal.Sign() > 0, nil
}

// PerformUpkeep swaps the donation account's full token balance for the
// paired asset and forwards the entire asset balance to the payout address.
// An empty account is a no-op. A failure anywhere reverts the whole call.
func (f *DonationForwarder) PerformUpkeep(stateDB StateDB, caller, owner common.Address) error {
	if !f.registry.isKeeper(caller) {
		return ErrUnauthorized
	}
	vault, err := f.registry.VaultByOwner(owner)
	if err != nil {
		return err
	}
	if f.registry.donationPaused(stateDB, vault) {
		return ErrPaused
	}

	token := vault.Token.Address
	bal := BalanceOf(stateDB, token, vault.Donation)
	if bal.Sign() == 0 {
		return nil
	}

	snapshot := stateDB.Snapshot()

	tokenIsZero := vault.Pool.Currency0 == vault.Token
	quote, err := f.quoter.QuoteExactInputSingle(stateDB, vault.Pool, tokenIsZero, bal)
	if err != nil {
		stateDB.RevertToSnapshot(snapshot)
		return err
	}
	minOut := MinOut(quote, SlippageFraction)
	if _, err := f.venue.SwapExactInputSingle(stateDB, vault.Pool, tokenIsZero, bal, minOut, vault.Donation); err != nil {
		stateDB.RevertToSnapshot(snapshot)
		return err
	}

	forwarded, err := f.forwardAsset(stateDB, vault)
	if err != nil {
		stateDB.RevertToSnapshot(snapshot)
		return err
	}

	stateDB.AddLog(&ethtypes.Log{
		Address: DonationUpkeepAddress,
		Topics: []common.Hash{
			TopicDonationForwarded,
			common.BytesToHash(vault.Payout.Bytes()),
		},
		Data:        common.BigToHash(forwarded).Bytes(),
		BlockNumber: stateDB.GetBlockNumber(),
	})
	return nil
}

// forwardAsset sends the donation account's entire asset balance, not just
// this cycle's swap output, to the payout address. Asset dust from earlier
// partial failures gets carried out with the next successful cycle.
func (f *DonationForwarder) forwardAsset(stateDB StateDB, vault *Vault) (*big.Int, error) {
	if vault.Asset.IsNative() {
		bal := stateDB.GetBalance(vault.Donation)
		if bal.IsZero() {
			return new(big.Int), nil
		}
		if !canReceiveNative(vault.Payout) {
			return nil, ErrTransferFailed
		}
		amount := new(uint256.Int).Set(bal)
		stateDB.SubBalance(vault.Donation, amount)
		stateDB.AddBalance(vault.Payout, amount)
		return amount.ToBig(), nil
	}

	bal := BalanceOf(stateDB, vault.Asset.Address, vault.Donation)
	if bal.Sign() == 0 {
		return new(big.Int), nil
	}
	if err := transferRaw(stateDB, vault.Asset.Address, vault.Donation, vault.Payout, bal); err != nil {
		return nil, err
	}
	return bal, nil
}

// canReceiveNative rejects sinks that can never accept a payout.
func canReceiveNative(addr common.Address) bool {
	if addr == (common.Address{}) {
		return false
	}
	return addr != common.HexToAddress("0x000000000000000000000000000000000000dEaD")
}
