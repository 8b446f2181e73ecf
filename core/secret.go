package core

// Secret wraps an API key so it cannot leak through fmt, JSON, YAML or logs.
// Use Expose to read the value when building the Authorization header.
type Secret struct {
	value string
}

const redacted = "[REDACTED]"

// NewSecret creates a new Secret from a string value.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// String implements fmt.Stringer.
func (s Secret) String() string {
	return redacted
}

// GoString implements fmt.GoStringer for %#v.
func (s Secret) GoString() string {
	return "core.Secret{" + redacted + "}"
}

// MarshalJSON always encodes the redacted placeholder.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// MarshalText always encodes the redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Expose returns the actual secret value.
func (s Secret) Expose() string {
	return s.value
}

// Hint returns the last four characters behind a mask, for display in
// listings where the user needs to tell keys apart.
func (s Secret) Hint() string {
	if len(s.value) <= 8 {
		return "****"
	}
	return "****" + s.value[len(s.value)-4:]
}

// IsEmpty returns true if the secret value is empty.
func (s Secret) IsEmpty() bool {
	return s.value == ""
}
