//go:build windows

package discovery

import "syscall"

// controlReuseAddr is a no-op on Windows: net.ListenUDP's default
// behavior does not require SO_REUSEADDR for lanxfer's single-listener
// usage, and Windows treats SO_REUSEADDR semantics differently enough
// (silently allowing port hijack) that setting it there would trade
// one problem for a worse one.
func controlReuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}
