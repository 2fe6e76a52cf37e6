package wire

import (
	"errors"
	"io"
	"net"
	"os"

	"github.com/lanxfer/lanxfer/internal/config"
)

// ErrCancelled is returned by SendFile and ReceiveInto when cancelled
// reports true before the body has finished streaming. The connection
// is left for the caller to close; no further bytes are written past
// the chunk boundary where cancellation was observed.
var ErrCancelled = errors.New("wire: transfer cancelled")

// SendFile transmits exactly n bytes of f, starting at its current
// seek position, to conn. It uses the platform sendfile primitive when
// available, batched to SendfileBatchCap per call, and otherwise falls
// back to a buffered read/write loop with StreamChunkSize chunks.
// onChunk, if non-nil, is called after every chunk actually written
// with its size, for progress reporting. cancelled, if non-nil, is
// polled before every batch; once it reports true, SendFile stops
// before writing any further bytes and returns ErrCancelled.
func SendFile(conn *net.TCPConn, f *os.File, n int64, onChunk func(int64), cancelled func() bool) error {
	return sendfile(conn, f, n, onChunk, cancelled)
}

// bufferedCopyFile is the StreamChunkSize buffered fallback used on
// platforms without a sendfile primitive, and to finish off any
// remainder a partial sendfile call could not deliver.
func bufferedCopyFile(conn *net.TCPConn, f *os.File, n int64, onChunk func(int64), cancelled func() bool) error {
	buf := make([]byte, config.StreamChunkSize)
	remaining := n
	for remaining > 0 {
		if cancelled != nil && cancelled() {
			return ErrCancelled
		}
		want := int64(len(buf))
		if remaining < want {
			want = remaining
		}
		nr, err := f.Read(buf[:want])
		if nr > 0 {
			if _, werr := conn.Write(buf[:nr]); werr != nil {
				return werr
			}
			remaining -= int64(nr)
			if onChunk != nil {
				onChunk(int64(nr))
			}
		}
		if err != nil {
			if err == io.EOF && remaining == 0 {
				break
			}
			return err
		}
	}
	return nil
}

// ReceiveInto reads exactly n bytes from r into dst (positioned by the
// caller), using a StreamChunkSize-capacity reusable buffer to
// minimize allocations. onChunk, if non-nil, is called after every
// read with its size. cancelled, if non-nil, is polled before every
// read; once it reports true, ReceiveInto stops before writing any
// further bytes to dst and returns ErrCancelled.
func ReceiveInto(r io.Reader, dst io.Writer, n int64, onChunk func(int64), cancelled func() bool) error {
	buf := make([]byte, config.StreamChunkSize)
	remaining := n
	for remaining > 0 {
		if cancelled != nil && cancelled() {
			return ErrCancelled
		}
		want := int64(len(buf))
		if remaining < want {
			want = remaining
		}
		nr, err := io.ReadFull(r, buf[:want])
		if nr > 0 {
			if _, werr := dst.Write(buf[:nr]); werr != nil {
				return werr
			}
			remaining -= int64(nr)
			if onChunk != nil {
				onChunk(int64(nr))
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}
