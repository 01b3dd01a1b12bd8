// Package ascon implements the ASCON-AEAD128 authenticated cipher from NIST SP 800-232.
//
// Keys, nonces and tags are all 16 bytes. Words are loaded little-endian, as the
// standard requires, so ciphertexts interoperate with other SP 800-232 implementations.
package ascon

import (
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

const (
	// KeySize is the size of an ASCON-AEAD128 key in bytes.
	KeySize = 16
	// NonceSize is the size of an ASCON-AEAD128 nonce in bytes.
	NonceSize = 16
	// TagSize is the size of the authentication tag appended to every ciphertext.
	TagSize = 16

	rate = 16
	iv   = 0x00001000808c0001
	dsep = 0x8000000000000000
)

var (
	// ErrInvalidKeySize is returned by New when the key is not KeySize bytes.
	ErrInvalidKeySize = errors.New("ascon: invalid key size")

	errOpen = errors.New("ascon: message authentication failed")
)

type aead struct {
	k0, k1 uint64
}

// New returns an ASCON-AEAD128 cipher.AEAD keyed with the given 16-byte key.
func New(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return &aead{
		k0: binary.LittleEndian.Uint64(key[0:8]),
		k1: binary.LittleEndian.Uint64(key[8:16]),
	}, nil
}

func (a *aead) NonceSize() int {
	return NonceSize
}

func (a *aead) Overhead() int {
	return TagSize
}

func (a *aead) Seal(dst, nonce, plaintext, additionalData []byte) []byte {
	if len(nonce) != NonceSize {
		panic("ascon: incorrect nonce length given to ASCON-AEAD128")
	}

	ret, out := sliceForAppend(dst, len(plaintext)+TagSize)

	s := a.init(nonce)
	s.absorbAD(additionalData)

	// Full plaintext blocks.
	in := plaintext
	o := out
	for len(in) >= rate {
		s[0] ^= binary.LittleEndian.Uint64(in[0:8])
		s[1] ^= binary.LittleEndian.Uint64(in[8:16])
		binary.LittleEndian.PutUint64(o[0:8], s[0])
		binary.LittleEndian.PutUint64(o[8:16], s[1])
		s.permute8()
		in, o = in[rate:], o[rate:]
	}

	// Final, padded, possibly empty block.
	var block [rate]byte
	n := copy(block[:], in)
	block[n] = 0x01
	s[0] ^= binary.LittleEndian.Uint64(block[0:8])
	s[1] ^= binary.LittleEndian.Uint64(block[8:16])
	binary.LittleEndian.PutUint64(block[0:8], s[0])
	binary.LittleEndian.PutUint64(block[8:16], s[1])
	copy(o, block[:n])

	a.finalize(&s, out[len(plaintext):])

	return ret
}

func (a *aead) Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(nonce) != NonceSize || len(ciphertext) < TagSize {
		return nil, errOpen
	}

	tag := ciphertext[len(ciphertext)-TagSize:]
	ciphertext = ciphertext[:len(ciphertext)-TagSize]

	ret, out := sliceForAppend(dst, len(ciphertext))

	s := a.init(nonce)
	s.absorbAD(additionalData)

	in := ciphertext
	o := out
	for len(in) >= rate {
		c0 := binary.LittleEndian.Uint64(in[0:8])
		c1 := binary.LittleEndian.Uint64(in[8:16])
		binary.LittleEndian.PutUint64(o[0:8], s[0]^c0)
		binary.LittleEndian.PutUint64(o[8:16], s[1]^c1)
		s[0], s[1] = c0, c1
		s.permute8()
		in, o = in[rate:], o[rate:]
	}

	var block [rate]byte
	binary.LittleEndian.PutUint64(block[0:8], s[0])
	binary.LittleEndian.PutUint64(block[8:16], s[1])
	for i := range in {
		o[i] = block[i] ^ in[i]
		block[i] = in[i]
	}
	block[len(in)] ^= 0x01
	s[0] = binary.LittleEndian.Uint64(block[0:8])
	s[1] = binary.LittleEndian.Uint64(block[8:16])

	var expected [TagSize]byte
	a.finalize(&s, expected[:])

	if subtle.ConstantTimeCompare(expected[:], tag) != 1 {
		clear(out)
		return nil, errOpen
	}

	return ret, nil
}

func (a *aead) init(nonce []byte) state {
	s := state{
		iv,
		a.k0,
		a.k1,
		binary.LittleEndian.Uint64(nonce[0:8]),
		binary.LittleEndian.Uint64(nonce[8:16]),
	}
	s.permute12()
	s[3] ^= a.k0
	s[4] ^= a.k1
	return s
}

func (s *state) absorbAD(ad []byte) {
	if len(ad) > 0 {
		for len(ad) >= rate {
			s[0] ^= binary.LittleEndian.Uint64(ad[0:8])
			s[1] ^= binary.LittleEndian.Uint64(ad[8:16])
			s.permute8()
			ad = ad[rate:]
		}

		var block [rate]byte
		n := copy(block[:], ad)
		block[n] = 0x01
		s[0] ^= binary.LittleEndian.Uint64(block[0:8])
		s[1] ^= binary.LittleEndian.Uint64(block[8:16])
		s.permute8()
	}

	// Domain separation between associated data and message.
	s[4] ^= dsep
}

func (a *aead) finalize(s *state, tag []byte) {
	s[2] ^= a.k0
	s[3] ^= a.k1
	s.permute12()
	binary.LittleEndian.PutUint64(tag[0:8], s[3]^a.k0)
	binary.LittleEndian.PutUint64(tag[8:16], s[4]^a.k1)
}

// sliceForAppend takes a slice and a requested number of bytes. It returns a
// slice with the contents of the given slice followed by that many bytes and a
// second slice that aliases into it and contains only the extra bytes.
func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]
	return
}

var _ cipher.AEAD = (*aead)(nil)
