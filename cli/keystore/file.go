package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/crypto/argon2"
)

// File layout: [magic (4)] [version (1)] [salt (16)] [nonce (12)] [ciphertext]
const (
	magicHeader = "OTKS"
	version     = byte(0x01)
	saltLength  = 16
	nonceLength = 12
	headerLen   = len(magicHeader) + 1 + saltLength + nonceLength
)

// Argon2id parameters (OWASP recommended)
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
)

// ErrCorrupt is returned when the keystore file is not in a recognised format.
var ErrCorrupt = errors.New("keystore: unrecognised file format")

// FileKeystore implements Keystore using an AES-256-GCM encrypted JSON map.
// An advisory lock file next to the keystore serialises access across
// processes; the mutex does the same within one process.
type FileKeystore struct {
	path      string
	masterKey []byte
	lock      *flock.Flock
	mu        sync.RWMutex
}

// NewFileKeystore creates a file keystore at path.
func NewFileKeystore(path string, source MasterKeySource) (*FileKeystore, error) {
	masterKey, err := source.MasterKey()
	if err != nil {
		return nil, err
	}

	return &FileKeystore{
		path:      path,
		masterKey: masterKey,
		lock:      flock.New(path + ".lock"),
	}, nil
}

// Path returns the keystore file path.
func (f *FileKeystore) Path() string { return f.path }

// Set stores a key-value pair.
func (f *FileKeystore) Set(name, value string) error {
	return f.update(func(data map[string]string) error {
		data[name] = value
		return nil
	})
}

// Get retrieves a value by name.
func (f *FileKeystore) Get(name string) (string, error) {
	data, err := f.read()
	if err != nil {
		return "", err
	}

	value, ok := data[name]
	if !ok {
		return "", &ErrKeyNotFound{Name: name}
	}
	return value, nil
}

// Delete removes a key by name.
func (f *FileKeystore) Delete(name string) error {
	return f.update(func(data map[string]string) error {
		if _, ok := data[name]; !ok {
			return &ErrKeyNotFound{Name: name}
		}
		delete(data, name)
		return nil
	})
}

// List returns all stored key names.
func (f *FileKeystore) List() ([]string, error) {
	data, err := f.read()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

func (f *FileKeystore) read() (map[string]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.acquire(false); err != nil {
		return nil, err
	}
	defer f.lock.Unlock()

	return f.loadData()
}

func (f *FileKeystore) update(mutate func(map[string]string) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.acquire(true); err != nil {
		return err
	}
	defer f.lock.Unlock()

	data, err := f.loadData()
	if err != nil {
		return err
	}
	if err := mutate(data); err != nil {
		return err
	}
	return f.saveData(data)
}

func (f *FileKeystore) acquire(exclusive bool) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	var err error
	if exclusive {
		err = f.lock.Lock()
	} else {
		err = f.lock.RLock()
	}
	if err != nil {
		return fmt.Errorf("keystore: lock %s: %w", f.lock.Path(), err)
	}
	return nil
}

// loadData reads and decrypts the keystore file.
func (f *FileKeystore) loadData() (map[string]string, error) {
	data := make(map[string]string)

	ciphertext, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return nil, err
	}
	if len(ciphertext) == 0 {
		return data, nil
	}

	plaintext, err := f.decrypt(ciphertext)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// saveData encrypts and writes the keystore file through a rename so a
// crash never leaves a half-written file behind.
func (f *FileKeystore) saveData(data map[string]string) error {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return err
	}

	ciphertext, err := f.encrypt(plaintext)
	if err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, ciphertext, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func deriveKey(masterKey, salt []byte) []byte {
	return argon2.IDKey(masterKey, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (f *FileKeystore) encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	gcm, err := newGCM(deriveKey(f.masterKey, salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	header := make([]byte, 0, headerLen)
	header = append(header, magicHeader...)
	header = append(header, version)
	header = append(header, salt...)
	header = append(header, nonce...)

	// The header is authenticated as additional data.
	sealed := gcm.Seal(nil, nonce, plaintext, header)
	return append(header, sealed...), nil
}

func (f *FileKeystore) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < headerLen ||
		string(ciphertext[:len(magicHeader)]) != magicHeader ||
		ciphertext[len(magicHeader)] != version {
		return nil, ErrCorrupt
	}

	offset := len(magicHeader) + 1
	salt := ciphertext[offset : offset+saltLength]
	offset += saltLength
	nonce := ciphertext[offset : offset+nonceLength]
	offset += nonceLength
	header := ciphertext[:offset]

	gcm, err := newGCM(deriveKey(f.masterKey, salt))
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext[offset:], header)
	if err != nil {
		return nil, fmt.Errorf("keystore: decrypt %s: %w", f.path, err)
	}
	return plaintext, nil
}

var _ Keystore = (*FileKeystore)(nil)
