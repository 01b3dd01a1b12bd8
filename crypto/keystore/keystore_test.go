package keystore

import (
	"crypto/rand"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/99designs/keyring"
	"github.com/google/go-cmp/cmp"

	"github.com/joncooperworks/sentinel/crypto"
)

const vectorPrivateHex = "4174bee44869f6672f32daed3ca7dd10b8a8141813df58ebfc00dda0563cfbc1"

func randomKey(t *testing.T) [crypto.KeySize]byte {
	t.Helper()
	kp, err := crypto.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	return kp.Secret
}

func TestRegisteredBackends(t *testing.T) {
	backends := ListRegisteredBackends()
	for _, want := range []string{"env", "keyring", "memory"} {
		if !slices.Contains(backends, want) {
			t.Errorf("backend %q not registered, have %v", want, backends)
		}
	}
}

func TestNewKeystoreDefault(t *testing.T) {
	ks, err := NewKeystore("")
	if err != nil {
		t.Fatalf("NewKeystore() failed: %v", err)
	}
	if _, ok := ks.(*EnvKeystore); !ok {
		t.Errorf("NewKeystore(\"\") = %T, want *EnvKeystore", ks)
	}
}

func TestNewKeystoreUnknownBackend(t *testing.T) {
	if _, err := NewKeystore("floppy"); err == nil {
		t.Error("NewKeystore() should fail for an unregistered backend")
	}
}

func TestParseHexKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"vector key", vectorPrivateHex, false},
		{"uppercase", strings.ToUpper(vectorPrivateHex), false},
		{"surrounding whitespace", "  " + vectorPrivateHex + "\n", false},
		{"empty", "", true},
		{"too short", vectorPrivateHex[:62], true},
		{"too long", vectorPrivateHex + "00", true},
		{"not hex", strings.Repeat("zz", 32), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			key, err := ParseHexKey(tc.input)
			if tc.wantErr {
				if !errors.Is(err, crypto.ErrConfiguration) {
					t.Errorf("ParseHexKey() error = %v, want %v", err, crypto.ErrConfiguration)
				}
				if key != ([crypto.KeySize]byte{}) {
					t.Error("ParseHexKey() returned key material on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHexKey() failed: %v", err)
			}
			if got := EncodeHexKey(key); got != vectorPrivateHex {
				t.Errorf("EncodeHexKey() = %s, want %s", got, vectorPrivateHex)
			}
		})
	}
}

func TestPublicKeyMatchesKeyPair(t *testing.T) {
	secret := randomKey(t)
	kp, err := crypto.NewKeyPair(secret)
	if err != nil {
		t.Fatalf("NewKeyPair() failed: %v", err)
	}

	pub, err := PublicKey(secret)
	if err != nil {
		t.Fatalf("PublicKey() failed: %v", err)
	}
	if pub != kp.Public {
		t.Errorf("PublicKey() = %x, want %x", pub, kp.Public)
	}
}

func TestEnvKeystore(t *testing.T) {
	t.Setenv("SENTINEL_TEST_KEY", vectorPrivateHex)
	t.Setenv("SENTINEL_TEST_BAD_KEY", "not-a-key")

	ks, err := NewEnvKeystore()
	if err != nil {
		t.Fatalf("NewEnvKeystore() failed: %v", err)
	}

	t.Run("reads key", func(t *testing.T) {
		key, err := ks.PrivateKey("SENTINEL_TEST_KEY")
		if err != nil {
			t.Fatalf("PrivateKey() failed: %v", err)
		}
		if EncodeHexKey(key) != vectorPrivateHex {
			t.Errorf("PrivateKey() = %x", key)
		}
	})

	t.Run("missing variable", func(t *testing.T) {
		_, err := ks.PrivateKey("SENTINEL_TEST_MISSING")
		if !errors.Is(err, ErrKeyNotFound) || !errors.Is(err, crypto.ErrConfiguration) {
			t.Errorf("PrivateKey() error = %v, want %v and %v", err, ErrKeyNotFound, crypto.ErrConfiguration)
		}
	})

	t.Run("malformed value", func(t *testing.T) {
		_, err := ks.PrivateKey("SENTINEL_TEST_BAD_KEY")
		if !errors.Is(err, crypto.ErrConfiguration) {
			t.Errorf("PrivateKey() error = %v, want %v", err, crypto.ErrConfiguration)
		}
	})

	t.Run("read-only", func(t *testing.T) {
		if err := ks.SetPrivateKey("SENTINEL_TEST_KEY", [crypto.KeySize]byte{}); !errors.Is(err, errors.ErrUnsupported) {
			t.Errorf("SetPrivateKey() error = %v, want %v", err, errors.ErrUnsupported)
		}
	})

	t.Run("lists parsable keys", func(t *testing.T) {
		ids, err := ks.ListKeys()
		if err != nil {
			t.Fatalf("ListKeys() failed: %v", err)
		}
		if !slices.Contains(ids, KeyID("SENTINEL_TEST_KEY")) {
			t.Errorf("ListKeys() = %v, missing SENTINEL_TEST_KEY", ids)
		}
		if slices.Contains(ids, KeyID("SENTINEL_TEST_BAD_KEY")) {
			t.Errorf("ListKeys() = %v, should skip malformed values", ids)
		}
	})
}

func TestKeyringKeystore(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	ks := NewKeyringKeystoreFrom(ring)
	key := randomKey(t)

	if _, err := ks.PrivateKey("broker"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("PrivateKey() on empty keyring error = %v, want %v", err, ErrKeyNotFound)
	}

	if err := ks.SetPrivateKey("broker", key); err != nil {
		t.Fatalf("SetPrivateKey() failed: %v", err)
	}

	item, err := ring.Get("broker")
	if err != nil {
		t.Fatalf("keyring.Get() failed: %v", err)
	}
	if string(item.Data) != EncodeHexKey(key) {
		t.Errorf("stored item = %q, want hex key", item.Data)
	}

	got, err := ks.PrivateKey("broker")
	if err != nil {
		t.Fatalf("PrivateKey() failed: %v", err)
	}
	if got != key {
		t.Error("PrivateKey() did not return the stored key")
	}

	ids, err := ks.ListKeys()
	if err != nil {
		t.Fatalf("ListKeys() failed: %v", err)
	}
	if diff := cmp.Diff([]KeyID{"broker"}, ids); diff != "" {
		t.Errorf("ListKeys() mismatch (-want +got):\n%s", diff)
	}
}

func TestKeyringKeystoreRejectsCorruptItem(t *testing.T) {
	ring := keyring.NewArrayKeyring([]keyring.Item{{Key: "broker", Data: []byte("garbage")}})
	ks := NewKeyringKeystoreFrom(ring)

	if _, err := ks.PrivateKey("broker"); !errors.Is(err, crypto.ErrConfiguration) {
		t.Errorf("PrivateKey() error = %v, want %v", err, crypto.ErrConfiguration)
	}
}

func TestMemoryKeystore(t *testing.T) {
	ks := NewMemoryKeystore()
	a, b := randomKey(t), randomKey(t)

	_ = ks.SetPrivateKey("b", b)
	_ = ks.SetPrivateKey("a", a)

	ids, _ := ks.ListKeys()
	if diff := cmp.Diff([]KeyID{"a", "b"}, ids); diff != "" {
		t.Errorf("ListKeys() mismatch (-want +got):\n%s", diff)
	}

	got, err := ks.PrivateKey("a")
	if err != nil || got != a {
		t.Errorf("PrivateKey(a) = %x, %v", got, err)
	}

	ks.Delete("a")
	if _, err := ks.PrivateKey("a"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("PrivateKey() after Delete error = %v, want %v", err, ErrKeyNotFound)
	}
}

func TestMemoryBackendIsShared(t *testing.T) {
	first, err := NewKeystore("memory")
	if err != nil {
		t.Fatalf("NewKeystore(memory) failed: %v", err)
	}
	second, _ := NewKeystore("memory")

	key := randomKey(t)
	_ = first.SetPrivateKey("shared-test", key)
	t.Cleanup(func() { shared.Delete("shared-test") })

	got, err := second.PrivateKey("shared-test")
	if err != nil || got != key {
		t.Errorf("second memory keystore did not see the key: %x, %v", got, err)
	}
}

func TestKeyHolderLoadsOnce(t *testing.T) {
	ks := NewMemoryKeystore()
	original := randomKey(t)
	_ = ks.SetPrivateKey(DefaultKeyID, original)

	h := NewKeyHolder(ks, "")
	if h.ID() != DefaultKeyID {
		t.Errorf("ID() = %q, want %q", h.ID(), DefaultKeyID)
	}

	key, version, err := h.Key()
	if err != nil {
		t.Fatalf("Key() failed: %v", err)
	}
	if key != original || version != 1 {
		t.Errorf("Key() = (%x, %d), want (%x, 1)", key, version, original)
	}

	// Changing the source has no effect until Reload.
	_ = ks.SetPrivateKey(DefaultKeyID, randomKey(t))
	if err := h.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	key, version, _ = h.Key()
	if key != original || version != 1 {
		t.Errorf("Key() after source change = (%x, %d), want the cached key at version 1", key, version)
	}
}

func TestKeyHolderReload(t *testing.T) {
	ks := NewMemoryKeystore()
	_ = ks.SetPrivateKey("k", randomKey(t))
	h := NewKeyHolder(ks, "k")

	if err := h.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	rotated := randomKey(t)
	_ = ks.SetPrivateKey("k", rotated)

	version, err := h.Reload()
	if err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}
	if version != 2 {
		t.Errorf("Reload() version = %d, want 2", version)
	}
	key, v, _ := h.Key()
	if key != rotated || v != 2 {
		t.Errorf("Key() = (%x, %d), want rotated key at version 2", key, v)
	}

	t.Run("failed reload keeps previous key", func(t *testing.T) {
		ks.Delete("k")
		if _, err := h.Reload(); !errors.Is(err, crypto.ErrConfiguration) {
			t.Errorf("Reload() error = %v, want %v", err, crypto.ErrConfiguration)
		}
		key, v, err := h.Key()
		if err != nil || key != rotated || v != 2 {
			t.Errorf("Key() = (%x, %d, %v), want rotated key at version 2", key, v, err)
		}
	})
}

func TestKeyHolderMissingKey(t *testing.T) {
	h := NewKeyHolder(NewMemoryKeystore(), "absent")
	if _, _, err := h.Key(); !errors.Is(err, crypto.ErrConfiguration) {
		t.Errorf("Key() error = %v, want %v", err, crypto.ErrConfiguration)
	}

	unconfigured := NewKeyHolder(nil, "x")
	if err := unconfigured.Load(); !errors.Is(err, crypto.ErrConfiguration) {
		t.Errorf("Load() with no keystore error = %v, want %v", err, crypto.ErrConfiguration)
	}
}

func TestKeyHolderConcurrentReaders(t *testing.T) {
	ks := NewMemoryKeystore()
	_ = ks.SetPrivateKey("k", randomKey(t))
	h := NewKeyHolder(ks, "k")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for range 500 {
				_, v, err := h.Key()
				if err != nil {
					t.Errorf("Key() failed: %v", err)
					return
				}
				if v < last {
					t.Errorf("version went backwards: %d after %d", v, last)
					return
				}
				last = v
			}
		}()
	}
	for range 20 {
		if _, err := h.Reload(); err != nil {
			t.Errorf("Reload() failed: %v", err)
		}
	}
	wg.Wait()

	if _, v, _ := h.Key(); v < 20 {
		t.Errorf("final version = %d, want at least 20", v)
	}
}
