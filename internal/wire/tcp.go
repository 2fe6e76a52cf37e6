package wire

import (
	"context"
	"net"

	"github.com/lanxfer/lanxfer/internal/config"
)

// TuneConn applies the performance invariants required of every
// accepted and every dialed transfer socket: 2 MiB send/receive
// buffers and TCP_NODELAY.
func TuneConn(conn *net.TCPConn) error {
	if err := conn.SetNoDelay(true); err != nil {
		return err
	}
	if err := conn.SetReadBuffer(config.SocketBufferSize); err != nil {
		return err
	}
	if err := conn.SetWriteBuffer(config.SocketBufferSize); err != nil {
		return err
	}
	return nil
}

// Dial connects to addr, bounded by ctx's deadline or cancellation,
// and applies TuneConn before returning.
func Dial(ctx context.Context, addr string) (*net.TCPConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	tc := conn.(*net.TCPConn)
	if err := TuneConn(tc); err != nil {
		tc.Close()
		return nil, err
	}
	return tc, nil
}

// Listen opens a TCP listener on addr. Accepted connections must still
// be passed through TuneConn individually by the caller's accept loop.
func Listen(addr string) (*net.TCPListener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	return net.ListenTCP("tcp", tcpAddr)
}
