package main

/*
#include <stdlib.h>
#include <string.h>
#include "sentinel.h"
*/
import "C"

import "unsafe"

// cipherFields are the three text fields of a sentinel_cipher. A nil field
// is passed as NULL.
type cipherFields struct {
	ciphertext *string
	publicKey  *string
	nonce      *string
}

// callDecrypt invokes sentinel_decrypt the way a C caller does: every field
// is copied into a C string owned by the caller for the duration of the call.
// A nil out is passed as NULL regardless of size, and a nil actual as NULL.
func callDecrypt(f cipherFields, out []byte, size uintptr, actual *uintptr) int {
	var cipher C.sentinel_cipher
	cipher.ciphertext = cString(f.ciphertext)
	cipher.public_key = cString(f.publicKey)
	cipher.nonce = cString(f.nonce)
	defer C.free(unsafe.Pointer(cipher.ciphertext))
	defer C.free(unsafe.Pointer(cipher.public_key))
	defer C.free(unsafe.Pointer(cipher.nonce))

	var buf *C.uint8_t
	if out != nil {
		buf = (*C.uint8_t)(C.malloc(C.size_t(max(len(out), 1))))
		defer C.free(unsafe.Pointer(buf))
		C.memcpy(unsafe.Pointer(buf), unsafe.Pointer(unsafe.SliceData(out)), C.size_t(len(out)))
		defer func() {
			copy(out, unsafe.Slice((*byte)(unsafe.Pointer(buf)), len(out)))
		}()
	}

	status := sentinel_decrypt(cipher, buf, C.uintptr_t(size), (*C.uintptr_t)(unsafe.Pointer(actual)))
	return int(status)
}

func cString(s *string) *C.char {
	if s == nil {
		return nil
	}
	return C.CString(*s)
}
