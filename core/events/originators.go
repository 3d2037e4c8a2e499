package events

import "thurman/crypto"

const (
	TypeOriginatorRegistered  = "registry.originator_registered"
	TypeOriginatorDeactivated = "registry.originator_deactivated"
	TypeAccruerGranted        = "registry.accruer_granted"
	TypeAccruerRevoked        = "registry.accruer_revoked"
)

// RegistryChange describes a single admin mutation of an originator registry.
// Kind is one of the Type* registry constants.
type RegistryChange struct {
	Kind     string
	Registry crypto.Address
	Account  crypto.Address
}

func (e RegistryChange) EventType() string { return e.Kind }

func (e RegistryChange) Record() *Record {
	return &Record{Type: e.Kind, Attributes: map[string]string{
		"registry": formatAddress(e.Registry),
		"account":  formatAddress(e.Account),
	}}
}
