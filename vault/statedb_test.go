// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"
	"github.com/stretchr/testify/require"
)

// MockStateDB implements the StateDB interface for testing, with working
// snapshots and a settable block context.
type MockStateDB struct {
	storage  map[common.Address]map[common.Hash]common.Hash
	balances map[common.Address]*uint256.Int
	accounts map[common.Address]bool
	logs     []*ethtypes.Log

	blockNumber uint64
	timestamp   uint64

	snapshots []mockSnapshot
}

type mockSnapshot struct {
	storage  map[common.Address]map[common.Hash]common.Hash
	balances map[common.Address]*uint256.Int
	logCount int
}

func NewMockStateDB() *MockStateDB {
	return &MockStateDB{
		storage:     make(map[common.Address]map[common.Hash]common.Hash),
		balances:    make(map[common.Address]*uint256.Int),
		accounts:    make(map[common.Address]bool),
		blockNumber: 100,
		timestamp:   1_000_000,
	}
}

func (m *MockStateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	if m.storage[addr] == nil {
		return common.Hash{}
	}
	return m.storage[addr][key]
}

func (m *MockStateDB) SetState(addr common.Address, key, value common.Hash) {
	if m.storage[addr] == nil {
		m.storage[addr] = make(map[common.Hash]common.Hash)
	}
	m.storage[addr][key] = value
}

func (m *MockStateDB) GetBalance(addr common.Address) *uint256.Int {
	if bal, ok := m.balances[addr]; ok {
		return bal.Clone()
	}
	return uint256.NewInt(0)
}

func (m *MockStateDB) AddBalance(addr common.Address, amount *uint256.Int) {
	if m.balances[addr] == nil {
		m.balances[addr] = uint256.NewInt(0)
	}
	m.balances[addr] = new(uint256.Int).Add(m.balances[addr], amount)
}

func (m *MockStateDB) SubBalance(addr common.Address, amount *uint256.Int) {
	if m.balances[addr] == nil {
		m.balances[addr] = uint256.NewInt(0)
	}
	m.balances[addr] = new(uint256.Int).Sub(m.balances[addr], amount)
}

func (m *MockStateDB) Exist(addr common.Address) bool {
	return m.accounts[addr]
}

func (m *MockStateDB) CreateAccount(addr common.Address) {
	m.accounts[addr] = true
}

func (m *MockStateDB) AddLog(log *ethtypes.Log) {
	m.logs = append(m.logs, log)
}

func (m *MockStateDB) Logs() []*ethtypes.Log { return m.logs }

func (m *MockStateDB) GetBlockNumber() uint64 { return m.blockNumber }
func (m *MockStateDB) GetTimestamp() uint64   { return m.timestamp }

func (m *MockStateDB) Snapshot() int {
	snap := mockSnapshot{
		storage:  make(map[common.Address]map[common.Hash]common.Hash, len(m.storage)),
		balances: make(map[common.Address]*uint256.Int, len(m.balances)),
		logCount: len(m.logs),
	}
	for addr, slots := range m.storage {
		copied := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			copied[k] = v
		}
		snap.storage[addr] = copied
	}
	for addr, bal := range m.balances {
		snap.balances[addr] = bal.Clone()
	}
	m.snapshots = append(m.snapshots, snap)
	return len(m.snapshots) - 1
}

func (m *MockStateDB) RevertToSnapshot(id int) {
	snap := m.snapshots[id]
	m.storage = snap.storage
	m.balances = snap.balances
	m.logs = m.logs[:snap.logCount]
	m.snapshots = m.snapshots[:id]
}

// advance moves the mock chain forward.
func (m *MockStateDB) advance(blocks, seconds uint64) {
	m.blockNumber += blocks
	m.timestamp += seconds
}

// Standard test fixture addresses
var (
	testOwner  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testPayout = common.HexToAddress("0x1000000000000000000000000000000000000002")
	testAdmin  = common.HexToAddress("0x1000000000000000000000000000000000000003")
	testKeeper = common.HexToAddress("0x1000000000000000000000000000000000000004")
	testAsset  = common.HexToAddress("0x2000000000000000000000000000000000000001")
	testUserA  = common.HexToAddress("0x3000000000000000000000000000000000000001")
	testUserB  = common.HexToAddress("0x3000000000000000000000000000000000000002")
)

// One billion token supply for the standard fixture.
var testSupply = big.NewInt(1_000_000_000)

func testPolicy() TaxPolicy {
	return TaxPolicy{
		TaxFee:       big.NewInt(2e16), // 2%
		MaxTreasury:  big.NewInt(3e17), // 30%
		MinLiquidity: big.NewInt(1e17), // 10% of supply in the pool
		LPShare:      big.NewInt(1e16), // 1% of the amount to liquidity
	}
}

func testTreasuryParams() TreasuryParams {
	return TreasuryParams{
		MinTreasuryHealth: big.NewInt(5e16), // 5%
		TransferInterval:  86_400,
	}
}

func testGuardParams() GuardParams {
	return GuardParams{
		MaxBuyFraction: big.NewInt(1e16), // 1% of supply per buy
		Cooldown:       60,
		BlocksToHold:   3,
		TimeToHold:     3_600,
	}
}

// newTestEngine creates an engine with admin and keeper set and one vault
// registered for testOwner against the testAsset token.
func newTestEngine(t *testing.T) (*Engine, *MockStateDB, *Vault) {
	t.Helper()

	engine := NewEngine()
	engine.Registry.SetAdmin(testAdmin)
	engine.Registry.SetKeeper(testKeeper)

	stateDB := NewMockStateDB()
	vault, err := engine.Registry.CreateVault(
		stateDB, testAdmin, testOwner, testPayout,
		Currency{Address: testAsset}, testSupply,
		testPolicy(), testTreasuryParams(), testGuardParams(),
	)
	require.NoError(t, err)
	return engine, stateDB, vault
}

// seedLiquidity funds the admin with asset and creates the vault's pool with
// tokenAmount and assetAmount.
func seedLiquidity(t *testing.T, engine *Engine, stateDB *MockStateDB, vault *Vault, tokenAmount, assetAmount *big.Int) {
	t.Helper()

	creditToken(stateDB, testAsset, testAdmin, assetAmount)
	require.NoError(t, engine.Registry.CreateLiquidity(stateDB, testAdmin, vault.Owner, tokenAmount, assetAmount))
}

// creditToken mints plain ledger balance for an arbitrary token in tests.
func creditToken(stateDB *MockStateDB, token, holder common.Address, amount *big.Int) {
	bal := BalanceOf(stateDB, token, holder)
	setBalance(stateDB, token, holder, new(big.Int).Add(bal, amount))
}

// drainTreasury moves tokens out of the vault treasury so transfers are no
// longer treasury-full exempt.
func drainTreasury(t *testing.T, stateDB *MockStateDB, vault *Vault, to common.Address, amount *big.Int) {
	t.Helper()
	require.NoError(t, transferRaw(stateDB, vault.Token.Address, vault.Treasury, to, amount))
}

// pastGuardWindow advances the chain beyond the launch-guard hold and
// enforcement windows.
func pastGuardWindow(stateDB *MockStateDB) {
	stateDB.advance(10, 4_000)
}
