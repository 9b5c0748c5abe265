// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package precompileconfig defines the configuration surface shared by all
// stateful precompile modules: a Config carried in the chain's upgrade file
// and the Upgrade envelope controlling activation and deactivation.
package precompileconfig

import "github.com/luxfi/geth/common"

// Config is implemented by each precompile's JSON-configurable settings.
type Config interface {
	// Key returns the unique json key used to identify this config.
	Key() string
	// Timestamp returns the activation time, or nil if never active.
	Timestamp() *uint64
	// IsDisabled returns true if this config deactivates the precompile.
	IsDisabled() bool
	// Equal reports whether two configs are semantically identical.
	Equal(Config) bool
	// Verify checks the config's internal consistency.
	Verify(ChainConfig) error
}

// ChainConfig exposes the chain rules a precompile config may consult
// during verification.
type ChainConfig interface {
	// IsPrecompileEnabled reports whether the precompile at addr is
	// active at the given timestamp.
	IsPrecompileEnabled(addr common.Address, timestamp uint64) bool
}

// Upgrade is embedded by precompile configs to control activation.
type Upgrade struct {
	BlockTimestamp *uint64 `json:"blockTimestamp,omitempty"`
	Disable        bool    `json:"disable,omitempty"`
}

// Timestamp returns the timestamp this upgrade activates at.
func (u *Upgrade) Timestamp() *uint64 {
	return u.BlockTimestamp
}

// Equal reports whether [u] is equivalent to [other].
func (u *Upgrade) Equal(other *Upgrade) bool {
	if other == nil {
		return false
	}
	if u.Disable != other.Disable {
		return false
	}
	if (u.BlockTimestamp == nil) != (other.BlockTimestamp == nil) {
		return false
	}
	if u.BlockTimestamp != nil && *u.BlockTimestamp != *other.BlockTimestamp {
		return false
	}
	return true
}
