// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"

	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"
)

// UpkeepDecision is the treasury's poll result: which of the two maintenance
// actions the next performUpkeep should run.
type UpkeepDecision struct {
	InitiateTransfer bool // transfer-and-burn cycle is due
	InitiateTopUp    bool // pool liquidity is below target
}

// Encode packs the decision into the performUpkeep payload.
func (d UpkeepDecision) Encode() []byte {
	out := make([]byte, 2)
	if d.InitiateTransfer {
		out[0] = 1
	}
	if d.InitiateTopUp {
		out[1] = 1
	}
	return out
}

// DecodeDecision unpacks a performUpkeep payload. Short or empty payloads
// decode to the no-op decision, so a stale or malformed call does nothing
// rather than fault.
func DecodeDecision(data []byte) UpkeepDecision {
	var d UpkeepDecision
	if len(data) >= 1 {
		d.InitiateTransfer = data[0] != 0
	}
	if len(data) >= 2 {
		d.InitiateTopUp = data[1] != 0
	}
	return d
}

// TreasuryController runs the poll-then-act maintenance cycle for vault
// treasuries. CheckUpkeep is read-only and may go stale between poll and
// act; PerformUpkeep re-validates every condition before moving funds, so a
// stale decision degrades to a no-op instead of a double spend.
type TreasuryController struct {
	registry *Registry
	venue    Venue
	quoter   Quoter
}

// NewTreasuryController wires a controller to its registry and venue.
func NewTreasuryController(registry *Registry, venue Venue, quoter Quoter) *TreasuryController {
	return &TreasuryController{registry: registry, venue: venue, quoter: quoter}
}

// CheckUpkeep reports whether owner's treasury needs maintenance and returns
// the encoded decision to pass to PerformUpkeep.
func (c *TreasuryController) CheckUpkeep(stateDB StateDB, owner common.Address) (bool, []byte, error) {
	vault, err := c.registry.VaultByOwner(owner)
	if err != nil {
		return false, nil, err
	}
	if c.registry.treasuryPaused(stateDB, vault) || !c.registry.liquidityCreated(stateDB, owner) {
		return false, nil, nil
	}

	decision := UpkeepDecision{
		InitiateTransfer: c.transferDue(stateDB, vault),
		InitiateTopUp:    c.topUpDeficit(stateDB, vault).Sign() > 0,
	}
	needed := decision.InitiateTransfer || decision.InitiateTopUp
	return needed, decision.Encode(), nil
}

// PerformUpkeep executes a previously polled decision. Only the registered
// keeper may call. Each enabled action re-checks its trigger and skips
// silently when no longer valid; a mid-action failure reverts every state
// change made by this call.
func (c *TreasuryController) PerformUpkeep(stateDB StateDB, caller, owner common.Address, payload []byte) error {
	if !c.registry.isKeeper(caller) {
		return ErrUnauthorized
	}
	vault, err := c.registry.VaultByOwner(owner)
	if err != nil {
		return err
	}
	if c.registry.treasuryPaused(stateDB, vault) {
		return ErrPaused
	}

	decision := DecodeDecision(payload)
	if !decision.InitiateTransfer && !decision.InitiateTopUp {
		return nil
	}

	snapshot := stateDB.Snapshot()

	if decision.InitiateTransfer && c.transferDue(stateDB, vault) {
		if err := c.runTransferAndBurn(stateDB, vault); err != nil {
			stateDB.RevertToSnapshot(snapshot)
			return err
		}
	}
	if decision.InitiateTopUp {
		if err := c.runTopUp(stateDB, vault); err != nil {
			stateDB.RevertToSnapshot(snapshot)
			return err
		}
	}
	return nil
}

// transferDue reports whether a transfer-and-burn cycle is both timely and
// backed by a healthy treasury.
func (c *TreasuryController) transferDue(stateDB StateDB, vault *Vault) bool {
	now := stateDB.GetTimestamp()
	last := c.registry.lastTransfer(stateDB, vault.Owner)
	if now < last+vault.Schedule.TransferInterval {
		return false
	}

	token := vault.Token.Address
	supply := TotalSupply(stateDB, token)
	treasuryBal := BalanceOf(stateDB, token, vault.Treasury)
	if SupplyFraction(treasuryBal, supply).Cmp(vault.Schedule.MinTreasuryHealth) < 0 {
		return false
	}

	// The cycle debits twice the burn amount from the treasury.
	burn := FractionOf(supply, FixedBurnFraction)
	return burn.Sign() > 0 && treasuryBal.Cmp(new(big.Int).Lsh(burn, 1)) >= 0
}

// runTransferAndBurn executes one cycle: the treasury forwards a fixed
// fraction of supply to the donation account and destroys an equal amount.
// The timestamp updates inside the same call, so a replayed decision within
// the interval is inert.
func (c *TreasuryController) runTransferAndBurn(stateDB StateDB, vault *Vault) error {
	token := vault.Token.Address
	burn := FractionOf(TotalSupply(stateDB, token), FixedBurnFraction)
	if burn.Sign() == 0 {
		return ErrInvalidAmount
	}
	if err := forwardAndBurn(stateDB, token, vault.Treasury, vault.Donation, burn); err != nil {
		return err
	}
	c.registry.setLastTransfer(stateDB, vault.Owner, stateDB.GetTimestamp())

	stateDB.AddLog(&ethtypes.Log{
		Address: TreasuryUpkeepAddress,
		Topics: []common.Hash{
			TopicTransferAndBurn,
			common.BytesToHash(vault.Owner.Bytes()),
		},
		Data:        common.BigToHash(burn).Bytes(),
		BlockNumber: stateDB.GetBlockNumber(),
	})
	return nil
}

// topUpDeficit returns how many tokens the pool is short of its target
// holdings, zero when healthy.
func (c *TreasuryController) topUpDeficit(stateDB StateDB, vault *Vault) *big.Int {
	supply := TotalSupply(stateDB, vault.Token.Address)
	target := FractionOf(supply, vault.Policy.MinLiquidity)
	poolBal := c.venue.PoolBalance(stateDB, vault.Pool, vault.Token)
	if poolBal.Cmp(target) >= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(target, poolBal)
}

// runTopUp restores pool health from the treasury: half the deficit swaps
// into the paired asset under slippage protection, then both legs deposit
// into the pool. Skips silently when the pool recovered on its own or the
// treasury cannot fund a meaningful top-up.
func (c *TreasuryController) runTopUp(stateDB StateDB, vault *Vault) error {
	deficit := c.topUpDeficit(stateDB, vault)
	if deficit.Sign() == 0 {
		return nil
	}

	token := vault.Token.Address
	treasuryBal := BalanceOf(stateDB, token, vault.Treasury)
	spend := MinBig(deficit, treasuryBal)
	swapIn := HalfUp(spend)
	depositTokens := new(big.Int).Sub(spend, swapIn)
	if swapIn.Sign() == 0 {
		return nil
	}

	tokenIsZero := vault.Pool.Currency0 == vault.Token
	quote, err := c.quoter.QuoteExactInputSingle(stateDB, vault.Pool, tokenIsZero, swapIn)
	if err != nil {
		return err
	}
	minOut := MinOut(quote, SlippageFraction)
	assetOut, err := c.venue.SwapExactInputSingle(stateDB, vault.Pool, tokenIsZero, swapIn, minOut, vault.Treasury)
	if err != nil {
		return err
	}

	amount0, amount1 := depositTokens, assetOut
	if !tokenIsZero {
		amount0, amount1 = assetOut, depositTokens
	}
	if err := c.venue.AddLiquidity(stateDB, vault.Pool, amount0, amount1, vault.Treasury); err != nil {
		return err
	}

	stateDB.AddLog(&ethtypes.Log{
		Address: TreasuryUpkeepAddress,
		Topics: []common.Hash{
			TopicLiquidityTopUp,
			common.BytesToHash(vault.Owner.Bytes()),
		},
		Data:        append(common.BigToHash(depositTokens).Bytes(), common.BigToHash(assetOut).Bytes()...),
		BlockNumber: stateDB.GetBlockNumber(),
	})
	return nil
}
