package ascon

import "math/bits"

var roundConstants = [12]uint64{ //nolint:gochecknoglobals // round constants
	0xf0, 0xe1, 0xd2, 0xc3, 0xb4, 0xa5, 0x96, 0x87, 0x78, 0x69, 0x5a, 0x4b,
}

// state is the 320-bit Ascon state as five 64-bit words.
type state [5]uint64

// permute12 applies the 12-round Ascon permutation.
func (s *state) permute12() {
	s.permute(0)
}

// permute8 applies the 8-round Ascon permutation.
func (s *state) permute8() {
	s.permute(4)
}

func (s *state) permute(first int) {
	x0, x1, x2, x3, x4 := s[0], s[1], s[2], s[3], s[4]

	for _, c := range roundConstants[first:] {
		// Addition of constant
		x2 ^= c

		// Substitution layer
		x0 ^= x4
		x4 ^= x3
		x2 ^= x1

		t0 := ^x0 & x1
		t1 := ^x1 & x2
		t2 := ^x2 & x3
		t3 := ^x3 & x4
		t4 := ^x4 & x0

		x0 ^= t1
		x1 ^= t2
		x2 ^= t3
		x3 ^= t4
		x4 ^= t0

		x1 ^= x0
		x0 ^= x4
		x3 ^= x2
		x2 = ^x2

		// Linear diffusion layer
		x0 ^= bits.RotateLeft64(x0, -19) ^ bits.RotateLeft64(x0, -28)
		x1 ^= bits.RotateLeft64(x1, -61) ^ bits.RotateLeft64(x1, -39)
		x2 ^= bits.RotateLeft64(x2, -1) ^ bits.RotateLeft64(x2, -6)
		x3 ^= bits.RotateLeft64(x3, -10) ^ bits.RotateLeft64(x3, -17)
		x4 ^= bits.RotateLeft64(x4, -7) ^ bits.RotateLeft64(x4, -41)
	}

	s[0], s[1], s[2], s[3], s[4] = x0, x1, x2, x3, x4
}
