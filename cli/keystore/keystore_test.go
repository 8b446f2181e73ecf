package keystore

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

var testKey = StaticKey("test-master-key")

func newTestKeystore(t *testing.T) *FileKeystore {
	t.Helper()
	ks, err := NewFileKeystore(filepath.Join(t.TempDir(), "keys.enc"), testKey)
	if err != nil {
		t.Fatalf("NewFileKeystore() error = %v", err)
	}
	return ks
}

func TestFileKeystoreSetAndGet(t *testing.T) {
	ks := newTestKeystore(t)

	if err := ks.Set("onething", "sk-test-key-12345"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, err := ks.Get("onething")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if value != "sk-test-key-12345" {
		t.Errorf("Get() = %q, want sk-test-key-12345", value)
	}
}

func TestFileKeystoreGetNotFound(t *testing.T) {
	ks := newTestKeystore(t)

	_, err := ks.Get("nonexistent")
	var nf *ErrKeyNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("Get() error = %T, want *ErrKeyNotFound", err)
	}
	if nf.Name != "nonexistent" {
		t.Errorf("Name = %q, want nonexistent", nf.Name)
	}
}

func TestFileKeystoreDelete(t *testing.T) {
	ks := newTestKeystore(t)

	if err := ks.Set("work", "sk-work"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := ks.Delete("work"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var nf *ErrKeyNotFound
	if _, err := ks.Get("work"); !errors.As(err, &nf) {
		t.Error("Get() should return ErrKeyNotFound after Delete()")
	}
	if err := ks.Delete("work"); !errors.As(err, &nf) {
		t.Errorf("second Delete() error = %v, want ErrKeyNotFound", err)
	}
}

func TestFileKeystoreList(t *testing.T) {
	ks := newTestKeystore(t)

	names, err := ks.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 0 {
		t.Errorf("List() on empty keystore returned %d items", len(names))
	}

	for _, name := range []string{"staging", "onething", "personal"} {
		if err := ks.Set(name, "k-"+name); err != nil {
			t.Fatalf("Set(%q) error = %v", name, err)
		}
	}

	names, err = ks.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"onething", "personal", "staging"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("List() = %v, want %v", names, want)
	}
}

func TestFileKeystoreOverwrite(t *testing.T) {
	ks := newTestKeystore(t)

	if err := ks.Set("onething", "original-key"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := ks.Set("onething", "updated-key"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, err := ks.Get("onething")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if value != "updated-key" {
		t.Errorf("Get() = %q, want updated-key", value)
	}
}

func TestFileKeystorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.enc")

	ks1, err := NewFileKeystore(path, testKey)
	if err != nil {
		t.Fatalf("NewFileKeystore() error = %v", err)
	}
	if err := ks1.Set("onething", "persistent-key"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ks2, err := NewFileKeystore(path, testKey)
	if err != nil {
		t.Fatalf("NewFileKeystore() error = %v", err)
	}
	value, err := ks2.Get("onething")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if value != "persistent-key" {
		t.Errorf("Get() = %q, want persistent-key", value)
	}
}

func TestFileKeystoreWrongMasterKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.enc")

	ks1, _ := NewFileKeystore(path, testKey)
	if err := ks1.Set("onething", "secret"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ks2, _ := NewFileKeystore(path, StaticKey("another-key"))
	if _, err := ks2.Get("onething"); err == nil {
		t.Error("Get() with the wrong master key should fail")
	}
}

func TestFileKeystoreCorruptFile(t *testing.T) {
	ks := newTestKeystore(t)
	if err := os.WriteFile(ks.Path(), []byte(`{"onething":"plain"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := ks.List(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("List() error = %v, want ErrCorrupt", err)
	}
}

func TestFileKeystoreTamperedFile(t *testing.T) {
	ks := newTestKeystore(t)
	if err := ks.Set("onething", "secret"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	data, err := os.ReadFile(ks.Path())
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(ks.Path(), data, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := ks.Get("onething"); err == nil {
		t.Error("Get() on a tampered file should fail")
	}
}

func TestFileKeystoreFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permissions not supported on Windows")
	}

	ks := newTestKeystore(t)
	if err := ks.Set("test", "value"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	info, err := os.Stat(ks.Path())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("File permissions = %o, want 0600", mode)
	}
}

func TestFileKeystoreEncrypted(t *testing.T) {
	ks := newTestKeystore(t)

	secretKey := "sk-this-should-be-encrypted"
	if err := ks.Set("onething", secretKey); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	contents, err := os.ReadFile(ks.Path())
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if strings.Contains(string(contents), secretKey) {
		t.Error("file contains plaintext key")
	}
	if !strings.HasPrefix(string(contents), magicHeader) {
		t.Error("file should start with the keystore header")
	}
}

func TestFileKeystoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "deep", "keys.enc")

	ks, err := NewFileKeystore(path, testKey)
	if err != nil {
		t.Fatalf("NewFileKeystore() error = %v", err)
	}
	if err := ks.Set("test", "value"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("File not created: %v", err)
	}
}

func TestFileKeystoreConcurrentSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.enc")

	// Separate instances share only the file lock.
	var wg sync.WaitGroup
	names := []string{"a", "b", "c", "d"}
	for _, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ks, err := NewFileKeystore(path, testKey)
			if err != nil {
				t.Errorf("NewFileKeystore() error = %v", err)
				return
			}
			if err := ks.Set(name, "v"); err != nil {
				t.Errorf("Set(%q) error = %v", name, err)
			}
		}()
	}
	wg.Wait()

	ks, _ := NewFileKeystore(path, testKey)
	got, err := ks.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != len(names) {
		t.Errorf("List() = %v, want all of %v", got, names)
	}
}

func TestMasterKeySources(t *testing.T) {
	if _, err := StaticKey(nil).MasterKey(); err == nil {
		t.Error("empty StaticKey should fail")
	}

	t.Setenv(MasterKeyEnvVar, "")
	if _, err := EnvKey(MasterKeyEnvVar).MasterKey(); err == nil {
		t.Error("unset EnvKey should fail")
	}
	if _, ok := DefaultKeySource().(MachineKey); !ok {
		t.Errorf("DefaultKeySource() = %T, want MachineKey", DefaultKeySource())
	}

	t.Setenv(MasterKeyEnvVar, "from-env")
	key, err := EnvKey(MasterKeyEnvVar).MasterKey()
	if err != nil || string(key) != "from-env" {
		t.Errorf("EnvKey.MasterKey() = %q, %v", key, err)
	}
	if _, ok := DefaultKeySource().(EnvKey); !ok {
		t.Errorf("DefaultKeySource() = %T, want EnvKey", DefaultKeySource())
	}

	k1, _ := MachineKey{}.MasterKey()
	k2, _ := MachineKey{}.MasterKey()
	if len(k1) != 32 || string(k1) != string(k2) {
		t.Error("MachineKey should be a stable 32-byte key")
	}
}

func TestDefaultKeystorePath(t *testing.T) {
	path := DefaultKeystorePath()

	if filepath.Base(path) != "keys.enc" {
		t.Errorf("DefaultKeystorePath() = %q, should end with keys.enc", path)
	}
	if os.Getenv("HOME") != "" && filepath.Base(filepath.Dir(path)) != ".onething" {
		t.Errorf("DefaultKeystorePath() = %q, should be in .onething directory", path)
	}
}

func TestErrKeyNotFoundError(t *testing.T) {
	err := &ErrKeyNotFound{Name: "onething"}
	if msg := err.Error(); msg != "key not found: onething" {
		t.Errorf("Error() = %q, want 'key not found: onething'", msg)
	}
}
