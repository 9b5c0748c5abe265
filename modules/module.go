// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"bytes"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/fundraiser/contract"
)

// Module is a stateful precompile bound to a reserved address.
type Module struct {
	// ConfigKey is the json key identifying this precompile in upgrade files.
	ConfigKey string
	// Address the precompile is registered at.
	Address common.Address
	// Contract is the precompile implementation.
	Contract contract.StatefulPrecompiledContract
	// Configurator wires the precompile's config at activation.
	Configurator contract.Configurator
}

// moduleArray sorts modules by address for deterministic iteration.
type moduleArray []Module

func (m moduleArray) Len() int      { return len(m) }
func (m moduleArray) Swap(i, j int) { m[i], m[j] = m[j], m[i] }
func (m moduleArray) Less(i, j int) bool {
	return bytes.Compare(m[i].Address[:], m[j].Address[:]) < 0
}
