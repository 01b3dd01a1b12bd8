package crypto

import "runtime"

// zeroize clears key material once it is no longer needed. The KeepAlive
// stops the compiler from dropping the store as dead.
func zeroize(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}
