package events

import "thurman/crypto"

const (
	TypeOperatorGranted = "engine.operator_granted"
	TypeOperatorRevoked = "engine.operator_revoked"
)

// CapabilityChange records the admin granting or revoking the engine-wide
// operator capability. Kind is TypeOperatorGranted or TypeOperatorRevoked.
type CapabilityChange struct {
	Kind    string
	Admin   crypto.Address
	Account crypto.Address
}

func (e CapabilityChange) EventType() string { return e.Kind }

func (e CapabilityChange) Record() *Record {
	return &Record{Type: e.Kind, Attributes: map[string]string{
		"admin":   formatAddress(e.Admin),
		"account": formatAddress(e.Account),
	}}
}
