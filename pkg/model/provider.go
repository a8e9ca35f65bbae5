package model

// ProviderKind selects which carrier driver implementation a ProviderConfig
// binds to.
type ProviderKind string

const (
	ProviderHosted       ProviderKind = "HostedCarrier"
	ProviderTokenExchange ProviderKind = "TokenExchange"
	ProviderGeneric      ProviderKind = "Generic"
)

// IsValid reports whether k is a recognised provider kind.
func (k ProviderKind) IsValid() bool {
	switch k {
	case ProviderHosted, ProviderTokenExchange, ProviderGeneric:
		return true
	}
	return false
}

// ProviderConfig is a per-user carrier configuration. Credentials are stored
// encrypted at rest (see internal/credentialvault) and are only decrypted
// inside a providerdriver.Driver instance; this struct never carries
// plaintext secrets once persisted.
type ProviderConfig struct {
	ID         string
	UserID     string
	Kind       ProviderKind
	// Credentials maps credential field name to its encrypted "iv:ct" form.
	// Plaintext values appear here only transiently, before first encryption.
	Credentials  map[string]string
	CustomScript string
}

// PhoneNumber is a leased E.164 DID belonging to exactly one ProviderConfig
// and, at most, assigned to one AgentConfig at a time.
type PhoneNumber struct {
	E164       string
	ProviderID string
	AgentID    string // empty if unassigned
}
