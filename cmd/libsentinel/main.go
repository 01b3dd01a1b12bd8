// Command libsentinel builds the decrypt gateway as a C shared library:
//
//	go build -buildmode=c-shared -o libsentinel.so ./cmd/libsentinel
//
// The generated libsentinel.h declares:
//
//	sentinel_status sentinel_decrypt(sentinel_cipher cipher, uint8_t *out, uintptr_t size, uintptr_t *actual_size);
//	int64_t sentinel_reload_key(void);
//
// The private key is read once from the keystore selected by SENTINEL_KEYSTORE
// (default "env") under SENTINEL_KEY_ID (default "PRIVATE_KEY") and cached
// until sentinel_reload_key is called.
package main

/*
#include "sentinel.h"
*/
import "C"

import (
	"os"
	"sync"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/joncooperworks/sentinel/crypto/keystore"
	"github.com/joncooperworks/sentinel/gateway"
	"github.com/joncooperworks/sentinel/internal/config"
	"github.com/joncooperworks/sentinel/internal/logging"
)

type library struct {
	holder  *keystore.KeyHolder
	gateway *gateway.Gateway
	logger  zerolog.Logger
}

var load = sync.OnceValues(func() (*library, error) {
	logger, err := logging.New(os.Stderr, envOr(config.EnvLogLevel, "error"))
	if err != nil {
		logger = zerolog.New(os.Stderr).Level(zerolog.ErrorLevel)
	}

	ks, err := keystore.NewKeystore(os.Getenv(config.EnvKeystore))
	if err != nil {
		logger.Error().Err(err).Msg("libsentinel: cannot open keystore")
		return nil, err
	}
	holder := keystore.NewKeyHolder(ks, keystore.KeyID(os.Getenv(config.EnvKeyID)))
	if err := holder.Load(); err != nil {
		// Not fatal: a later sentinel_reload_key may succeed.
		logger.Error().Err(err).Msg("libsentinel: cannot load private key")
	}

	return &library{
		holder:  holder,
		gateway: gateway.New(holder, gateway.WithLogger(logger)),
		logger:  logger,
	}, nil
})

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

//export sentinel_decrypt
func sentinel_decrypt(cipher C.sentinel_cipher, out *C.uint8_t, size C.uintptr_t, actualSize *C.uintptr_t) (status C.sentinel_status) {
	defer func() {
		if r := recover(); r != nil {
			status = C.SENTINEL_ERROR
		}
	}()

	if cipher.ciphertext == nil || cipher.public_key == nil || cipher.nonce == nil || actualSize == nil {
		return C.SENTINEL_ERROR
	}
	if out == nil && size != 0 {
		return C.SENTINEL_ERROR
	}

	lib, err := load()
	if err != nil {
		return C.SENTINEL_ERROR
	}

	c, err := gateway.NewCipher(
		C.GoString(cipher.ciphertext),
		C.GoString(cipher.public_key),
		C.GoString(cipher.nonce),
	)
	if err != nil {
		lib.logger.Debug().Err(err).Msg("libsentinel: rejected envelope fields")
		return C.SENTINEL_ERROR
	}

	var buf []byte
	if size > 0 {
		buf = unsafe.Slice((*byte)(unsafe.Pointer(out)), int(size))
	}

	n, st := lib.gateway.Decrypt(c, buf)
	if st == gateway.StatusOK || st == gateway.StatusTooSmall {
		*actualSize = C.uintptr_t(n)
	}
	return C.sentinel_status(st)
}

// sentinel_reload_key re-reads the private key and returns the new key
// version, or -1 if the keystore could not be read.
//
//export sentinel_reload_key
func sentinel_reload_key() (version C.int64_t) {
	defer func() {
		if r := recover(); r != nil {
			version = -1
		}
	}()

	lib, err := load()
	if err != nil {
		return -1
	}
	v, err := lib.holder.Reload()
	if err != nil {
		lib.logger.Error().Err(err).Msg("libsentinel: key reload failed")
		return -1
	}
	lib.logger.Info().Uint64("key_version", v).Msg("libsentinel: private key reloaded")
	return C.int64_t(v)
}

func main() {}
