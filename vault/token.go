// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"

	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"
)

// Token ledger. Each fundraising token lives at its own derived account
// address; balances and total supply are held in that account's storage.

// Storage key prefixes
var (
	balancePrefix = []byte("fundraiser:balance")
	supplyPrefix  = []byte("fundraiser:supply")
)

func balanceKey(holder common.Address) common.Hash {
	return makeStorageKey(balancePrefix, holder.Bytes())
}

func supplyKey() common.Hash {
	return makeStorageKey(supplyPrefix, nil)
}

// BalanceOf returns holder's balance of the token at tokenAddr.
func BalanceOf(stateDB StateDB, tokenAddr, holder common.Address) *big.Int {
	val := stateDB.GetState(tokenAddr, balanceKey(holder))
	return new(big.Int).SetBytes(val.Bytes())
}

// TotalSupply returns the token's circulating supply.
func TotalSupply(stateDB StateDB, tokenAddr common.Address) *big.Int {
	val := stateDB.GetState(tokenAddr, supplyKey())
	return new(big.Int).SetBytes(val.Bytes())
}

func setBalance(stateDB StateDB, tokenAddr, holder common.Address, amount *big.Int) {
	stateDB.SetState(tokenAddr, balanceKey(holder), common.BigToHash(amount))
}

func setSupply(stateDB StateDB, tokenAddr common.Address, amount *big.Int) {
	stateDB.SetState(tokenAddr, supplyKey(), common.BigToHash(amount))
}

// mint credits amount to recipient and grows the supply. Used once per
// vault, at creation, to seed the treasury.
func mint(stateDB StateDB, tokenAddr, to common.Address, amount *big.Int) {
	bal := BalanceOf(stateDB, tokenAddr, to)
	setBalance(stateDB, tokenAddr, to, new(big.Int).Add(bal, amount))

	supply := TotalSupply(stateDB, tokenAddr)
	setSupply(stateDB, tokenAddr, new(big.Int).Add(supply, amount))

	emitTransfer(stateDB, tokenAddr, common.Address{}, to, amount)
}

// transferRaw moves amount between holders with no tax applied. Internal
// plumbing for system accounts (treasury, donation, pools); the taxed path
// is TaxRouter.Transfer.
func transferRaw(stateDB StateDB, tokenAddr, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBal := BalanceOf(stateDB, tokenAddr, from)
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	setBalance(stateDB, tokenAddr, from, new(big.Int).Sub(fromBal, amount))

	toBal := BalanceOf(stateDB, tokenAddr, to)
	setBalance(stateDB, tokenAddr, to, new(big.Int).Add(toBal, amount))

	emitTransfer(stateDB, tokenAddr, from, to, amount)
	return nil
}

// forwardAndBurn debits 2x amount from the treasury account, credits amount
// to the donation account, and destroys the other amount from supply. The
// supply therefore shrinks by exactly 2x amount per cycle: the forwarded
// unit re-enters circulation only when the donation forwarder swaps it.
func forwardAndBurn(stateDB StateDB, tokenAddr, treasury, donation common.Address, amount *big.Int) error {
	debit := new(big.Int).Lsh(amount, 1)

	treasuryBal := BalanceOf(stateDB, tokenAddr, treasury)
	if treasuryBal.Cmp(debit) < 0 {
		return ErrInsufficientBalance
	}
	setBalance(stateDB, tokenAddr, treasury, new(big.Int).Sub(treasuryBal, debit))

	donationBal := BalanceOf(stateDB, tokenAddr, donation)
	setBalance(stateDB, tokenAddr, donation, new(big.Int).Add(donationBal, amount))

	supply := TotalSupply(stateDB, tokenAddr)
	setSupply(stateDB, tokenAddr, new(big.Int).Sub(supply, debit))

	emitTransfer(stateDB, tokenAddr, treasury, donation, amount)
	emitTransfer(stateDB, tokenAddr, treasury, common.Address{}, amount)
	return nil
}

func emitTransfer(stateDB StateDB, tokenAddr, from, to common.Address, amount *big.Int) {
	stateDB.AddLog(&ethtypes.Log{
		Address: tokenAddr,
		Topics: []common.Hash{
			TopicTransfer,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:        common.BigToHash(amount).Bytes(),
		BlockNumber: stateDB.GetBlockNumber(),
	})
}
