// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/fundraiser/contract"
	"github.com/luxfi/fundraiser/modules"
	"github.com/luxfi/fundraiser/precompileconfig"
)

var _ contract.Configurator = (*configurator)(nil)

// Config keys for the fundraiser precompiles
const (
	ConfigKeyRegistry = "fundraiserRegistryConfig"
	ConfigKeyTreasury = "fundraiserTreasuryConfig"
	ConfigKeyDonation = "fundraiserDonationConfig"
	ConfigKeyToken    = "fundraiserTokenConfig"
)

// Modules for each fundraiser precompile address
var (
	ModuleRegistry = modules.Module{
		ConfigKey:    ConfigKeyRegistry,
		Address:      RegistryAddress,
		Contract:     &registryPrecompile{engine: defaultEngine},
		Configurator: &configurator{key: ConfigKeyRegistry, engine: defaultEngine},
	}

	ModuleTreasury = modules.Module{
		ConfigKey:    ConfigKeyTreasury,
		Address:      TreasuryUpkeepAddress,
		Contract:     &treasuryPrecompile{engine: defaultEngine},
		Configurator: &configurator{key: ConfigKeyTreasury, engine: defaultEngine},
	}

	ModuleDonation = modules.Module{
		ConfigKey:    ConfigKeyDonation,
		Address:      DonationUpkeepAddress,
		Contract:     &donationPrecompile{engine: defaultEngine},
		Configurator: &configurator{key: ConfigKeyDonation, engine: defaultEngine},
	}

	ModuleToken = modules.Module{
		ConfigKey:    ConfigKeyToken,
		Address:      FundraisingTokenAddress,
		Contract:     &tokenPrecompile{engine: defaultEngine},
		Configurator: &configurator{key: ConfigKeyToken, engine: defaultEngine},
	}
)

func init() {
	for _, m := range []modules.Module{ModuleRegistry, ModuleTreasury, ModuleDonation, ModuleToken} {
		if err := modules.RegisterModule(m); err != nil {
			panic(err)
		}
	}
}

type configurator struct {
	key    string
	engine *Engine
}

func (c *configurator) MakeConfig() precompileconfig.Config {
	return &Config{key: c.key}
}

// Configure applies admin and keeper addresses and creates any vaults listed
// in the activation config. Only the registry precompile's config carries
// vault definitions; for the other keys Configure is a no-op beyond wiring.
func (c *configurator) Configure(
	chainConfig precompileconfig.ChainConfig,
	cfg precompileconfig.Config,
	state contract.StateDB,
	blockContext contract.ConfigurationBlockContext,
) error {
	config, ok := cfg.(*Config)
	if !ok {
		return fmt.Errorf("unexpected config type %T", cfg)
	}
	if config.Admin != (common.Address{}) {
		c.engine.Registry.SetAdmin(config.Admin)
	}
	if config.Keeper != (common.Address{}) {
		c.engine.Registry.SetKeeper(config.Keeper)
	}
	if len(config.Vaults) == 0 {
		return nil
	}

	adapter := &stateAdapter{db: state, block: blockContext}
	for _, vc := range config.Vaults {
		_, err := c.engine.Registry.CreateVault(
			adapter,
			config.Admin,
			vc.Owner,
			vc.Payout,
			Currency{Address: vc.Asset},
			vc.InitialSupply,
			TaxPolicy{
				TaxFee:       vc.TaxFee,
				MaxTreasury:  vc.MaxTreasury,
				MinLiquidity: vc.MinLiquidity,
				LPShare:      vc.LPShare,
			},
			TreasuryParams{
				MinTreasuryHealth: vc.MinTreasuryHealth,
				TransferInterval:  vc.TransferInterval,
			},
			GuardParams{
				MaxBuyFraction: vc.MaxBuyFraction,
				Cooldown:       vc.Cooldown,
				BlocksToHold:   vc.BlocksToHold,
				TimeToHold:     vc.TimeToHold,
			},
		)
		if err != nil {
			return fmt.Errorf("configure vault for %s: %w", vc.Owner, err)
		}
	}
	return nil
}

// VaultConfig declares one vault to create at activation.
type VaultConfig struct {
	Owner         common.Address `json:"owner"`
	Payout        common.Address `json:"payout"`
	Asset         common.Address `json:"asset"` // zero address = native
	InitialSupply *big.Int       `json:"initialSupply"`

	// Tax policy, fractions of 1e18
	TaxFee       *big.Int `json:"taxFee"`
	MaxTreasury  *big.Int `json:"maxTreasury"`
	MinLiquidity *big.Int `json:"minLiquidity"`
	LPShare      *big.Int `json:"lpShare"`

	// Treasury schedule
	MinTreasuryHealth *big.Int `json:"minTreasuryHealth"`
	TransferInterval  uint64   `json:"transferInterval"`

	// Launch guard window
	MaxBuyFraction *big.Int `json:"maxBuyFraction"`
	Cooldown       uint64   `json:"cooldown"`
	BlocksToHold   uint64   `json:"blocksToHold"`
	TimeToHold     uint64   `json:"timeToHold"`
}

// Config implements the precompileconfig.Config interface
type Config struct {
	key     string
	Upgrade precompileconfig.Upgrade `json:"upgrade,omitempty"`

	Admin  common.Address `json:"admin,omitempty"`
	Keeper common.Address `json:"keeper,omitempty"`
	Vaults []VaultConfig  `json:"vaults,omitempty"`
}

func (c *Config) Key() string {
	return c.key
}

func (c *Config) Timestamp() *uint64 {
	return c.Upgrade.Timestamp()
}

func (c *Config) IsDisabled() bool {
	return c.Upgrade.Disable
}

func (c *Config) Equal(cfg precompileconfig.Config) bool {
	other, ok := cfg.(*Config)
	if !ok {
		return false
	}
	if c.key != other.key || !c.Upgrade.Equal(&other.Upgrade) {
		return false
	}
	if c.Admin != other.Admin || c.Keeper != other.Keeper {
		return false
	}
	return len(c.Vaults) == len(other.Vaults)
}

func (c *Config) Verify(chainConfig precompileconfig.ChainConfig) error {
	for _, vc := range c.Vaults {
		if vc.Owner == (common.Address{}) || vc.Payout == (common.Address{}) {
			return ErrInvalidAddress
		}
		if vc.InitialSupply == nil || vc.InitialSupply.Sign() <= 0 {
			return ErrInvalidAmount
		}
		policy := TaxPolicy{
			TaxFee:       vc.TaxFee,
			MaxTreasury:  vc.MaxTreasury,
			MinLiquidity: vc.MinLiquidity,
			LPShare:      vc.LPShare,
		}
		if err := policy.Validate(); err != nil {
			return err
		}
	}
	return nil
}
