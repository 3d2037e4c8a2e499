package state

import (
	"fmt"

	"thurman/crypto"
	"thurman/native/pool"
)

var capabilitiesKey = []byte("engine/capabilities")

type storedCapabilities struct {
	Admin     crypto.Address
	Operators []crypto.Address
}

// SaveCapabilities implements pool.CapabilityStore.
func (m *Manager) SaveCapabilities(caps pool.Capabilities) error {
	rec := storedCapabilities{Admin: caps.Admin, Operators: append([]crypto.Address{}, caps.Operators...)}
	if err := m.KVPut(capabilitiesKey, rec); err != nil {
		return fmt.Errorf("capability store: %w", err)
	}
	return nil
}

// LoadCapabilities returns the persisted capability table. The boolean is
// false when none has been written yet.
func (m *Manager) LoadCapabilities() (pool.Capabilities, bool, error) {
	var rec storedCapabilities
	ok, err := m.KVGet(capabilitiesKey, &rec)
	if err != nil {
		return pool.Capabilities{}, false, fmt.Errorf("capability store: %w", err)
	}
	if !ok {
		return pool.Capabilities{}, false, nil
	}
	return pool.Capabilities{Admin: rec.Admin, Operators: rec.Operators}, true, nil
}
