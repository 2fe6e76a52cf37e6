package transfer

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/lanxfer/lanxfer/internal/config"
	"github.com/lanxfer/lanxfer/internal/logger"
	"github.com/lanxfer/lanxfer/internal/wire"
)

// Server listens on the transfer port, demultiplexes every accepted
// connection by message type, and drives each session to completion
// through Sink.
type Server struct {
	receiveDir string
	sink       Sink
	log        *logger.Logger
}

// NewServer creates a Server rooted at receiveDir, creating it if
// necessary.
func NewServer(receiveDir string, sink Sink, log *logger.Logger) (*Server, error) {
	if err := os.MkdirAll(receiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("transfer: create receive area: %w", err)
	}
	return &Server{receiveDir: receiveDir, sink: sink, log: log}, nil
}

// Serve listens on config.TransferPort and dispatches sessions until
// ctx is canceled. It implements suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := wire.Listen(fmt.Sprintf("0.0.0.0:%d", config.TransferPort))
	if err != nil {
		s.log.Warnln("transfer: bind failed:", err)
		s.sink.OnStatus("transfer server unavailable: " + err.Error())
		return err
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.AcceptTCP()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				s.log.Warnln("transfer: accept failed:", err)
				continue
			}
		}
		if err := wire.TuneConn(conn); err != nil {
			s.log.Warnln("transfer: tune socket failed:", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn *net.TCPConn) {
	defer conn.Close()

	remoteIP := ""
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		remoteIP = addr.IP.String()
	}

	hdr, err := wire.ReadFrame(conn)
	if err != nil {
		s.log.Debugln("transfer: read frame from", remoteIP, "failed:", err)
		return
	}

	switch hdr.Type {
	case wire.Text:
		s.handleText(conn, remoteIP, hdr)
	case wire.File:
		s.handleFile(conn, remoteIP, hdr)
	case wire.ParallelFile:
		s.handleParallelFile(conn, remoteIP, hdr)
	case wire.FolderStart:
		s.handleFolder(conn, remoteIP, hdr)
	default:
		s.log.Warnln("transfer: unknown message type from", remoteIP, ":", hdr.Type)
	}
}

// handleText implements TEXT case: read exactly length
// bytes of UTF-8, deliver, reply with the legacy OK token.
func (s *Server) handleText(conn *net.TCPConn, remoteIP string, hdr *wire.Header) {
	body, err := wire.ReadExact(conn, hdr.Length)
	if err != nil {
		s.log.Warnln("transfer: text body from", remoteIP, "failed:", err)
		return
	}

	s.sink.OnTextReceived(remoteIP, hdr.Sender, hdr.Platform, string(body))

	if err := wire.WriteLegacyOK(conn); err != nil {
		s.log.Warnln("transfer: text reply to", remoteIP, "failed:", err)
	}
}

// handleFile implements single-file receive path.
func (s *Server) handleFile(conn *net.TCPConn, remoteIP string, hdr *wire.Header) {
	name := SanitizeBasename(hdr.Filename)
	dest := ResolveFileCollision(s.receiveDir, name)

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		s.log.Warnln("transfer: create", dest, "failed:", err)
		return
	}

	s.sink.OnTransferStart(hdr.Filesize)

	var received int64
	onChunk := func(n int64) {
		received += n
		pct := 0.0
		if hdr.Filesize > 0 {
			pct = 100 * float64(received) / float64(hdr.Filesize)
		}
		s.sink.OnProgress(pct, name)
	}

	err = wire.ReceiveInto(conn, f, hdr.Filesize, onChunk, nil)
	closeErr := f.Close()
	if err != nil || closeErr != nil {
		if err == nil {
			err = closeErr
		}
		os.Remove(dest)
		s.log.Warnln("transfer: receive", dest, "failed:", err)
		s.sink.OnComplete(false, err.Error())
		return
	}

	if err := wire.WriteLegacyOK(conn); err != nil {
		s.log.Warnln("transfer: file reply to", remoteIP, "failed:", err)
	}

	s.sink.OnFileReceived(remoteIP, hdr.Sender, hdr.Platform, dest, hdr.Filesize)
	s.sink.OnComplete(true, filepath.Base(dest))
}
