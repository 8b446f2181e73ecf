// Package keystore provides encrypted local storage for API keys.
package keystore

import (
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// Keystore defines the interface for secure key storage.
type Keystore interface {
	// Set stores a key-value pair.
	Set(name, value string) error
	// Get retrieves a value by name. Returns *ErrKeyNotFound if absent.
	Get(name string) (string, error)
	// Delete removes a key by name.
	Delete(name string) error
	// List returns all stored key names, sorted.
	List() ([]string, error)
}

// ErrKeyNotFound is returned when a requested key does not exist.
type ErrKeyNotFound struct {
	Name string
}

func (e *ErrKeyNotFound) Error() string {
	return "key not found: " + e.Name
}

// MasterKeyEnvVar overrides the machine-derived master key.
const MasterKeyEnvVar = "ONETHING_MASTER_KEY"

// MasterKeySource supplies the secret the file encryption key is derived from.
type MasterKeySource interface {
	MasterKey() ([]byte, error)
}

// StaticKey is a fixed master key.
type StaticKey []byte

// MasterKey implements MasterKeySource.
func (k StaticKey) MasterKey() ([]byte, error) {
	if len(k) == 0 {
		return nil, errors.New("keystore: empty master key")
	}
	return []byte(k), nil
}

// EnvKey reads the master key from an environment variable.
type EnvKey string

// MasterKey implements MasterKeySource.
func (e EnvKey) MasterKey() ([]byte, error) {
	v := os.Getenv(string(e))
	if v == "" {
		return nil, errors.New("keystore: " + string(e) + " is not set")
	}
	return []byte(v), nil
}

// MachineKey derives a master key from the hostname and user. It keeps keys
// off disk in plaintext but is predictable to anyone on the same account.
type MachineKey struct{}

// MasterKey implements MasterKeySource.
func (MachineKey) MasterKey() ([]byte, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME")
	}
	sum := sha256.Sum256([]byte(hostname + ":" + username + ":onething-keystore"))
	return sum[:], nil
}

// DefaultKeySource prefers MasterKeyEnvVar and falls back to MachineKey.
func DefaultKeySource() MasterKeySource {
	if os.Getenv(MasterKeyEnvVar) != "" {
		return EnvKey(MasterKeyEnvVar)
	}
	return MachineKey{}
}

// DefaultKeystorePath returns the default keystore file path.
// - macOS/Linux: ~/.onething/keys.enc
// - Windows: %USERPROFILE%\.onething\keys.enc
func DefaultKeystorePath() string {
	var homeDir string

	if runtime.GOOS == "windows" {
		homeDir = os.Getenv("USERPROFILE")
	} else {
		homeDir = os.Getenv("HOME")
	}

	if homeDir == "" {
		return "keys.enc"
	}

	return filepath.Join(homeDir, ".onething", "keys.enc")
}

// NewKeystore opens the default file keystore.
func NewKeystore() (Keystore, error) {
	return NewFileKeystore(DefaultKeystorePath(), DefaultKeySource())
}
