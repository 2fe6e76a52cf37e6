//go:build linux

package wire

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/lanxfer/lanxfer/internal/config"
)

// sendfileAvailable reports whether SendFile can use the platform
// zero-copy primitive. On Linux it always can.
const sendfileAvailable = true

// sendfile streams n bytes from f (positioned by the caller) directly
// to conn's socket via the Linux sendfile(2) syscall, batched in
// SendfileBatchCap-sized calls. onChunk is invoked after every
// successful batch with the number of bytes just sent, for progress
// reporting. cancelled, if non-nil, is checked before every batch and
// aborts the transfer with ErrCancelled before the next batch is sent.
func sendfile(conn *net.TCPConn, f *os.File, n int64, onChunk func(int64), cancelled func() bool) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sendErr error
	remaining := n
	for remaining > 0 {
		if cancelled != nil && cancelled() {
			return ErrCancelled
		}
		batch := remaining
		if batch > config.SendfileBatchCap {
			batch = config.SendfileBatchCap
		}

		var sent int
		ctrlErr := rawConn.Write(func(fd uintptr) bool {
			sent, sendErr = unix.Sendfile(int(fd), int(f.Fd()), nil, int(batch))
			// A full socket buffer: wait until the socket is writable and retry.
			return sendErr != unix.EAGAIN
		})
		if ctrlErr != nil {
			return ctrlErr
		}
		if sendErr != nil {
			return sendErr
		}
		if sent == 0 {
			break
		}

		remaining -= int64(sent)
		if onChunk != nil {
			onChunk(int64(sent))
		}
	}

	if remaining > 0 {
		return bufferedCopyFile(conn, f, remaining, onChunk, cancelled)
	}
	return nil
}
