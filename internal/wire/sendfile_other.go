//go:build !linux

package wire

import (
	"net"
	"os"
)

// sendfileAvailable reports whether SendFile can use a platform
// zero-copy primitive. Only the Linux sendfile(2) path is implemented
// here — darwin and windows fall back to the buffered copy loop
// required for platforms without the primitive.
const sendfileAvailable = false

func sendfile(conn *net.TCPConn, f *os.File, n int64, onChunk func(int64), cancelled func() bool) error {
	return bufferedCopyFile(conn, f, n, onChunk, cancelled)
}
