package crypto

import "runtime"

// Wipe zeroes every buffer passed to it. Secrets copied elsewhere by the
// runtime are out of reach; this only clears the caller's backing arrays.
func Wipe(bufs ...[]byte) {
	for _, b := range bufs {
		clear(b)
		runtime.KeepAlive(b)
	}
}
