package transfer

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lanxfer/lanxfer/internal/logger"
	"github.com/lanxfer/lanxfer/internal/wire"
)

// dialServer starts a Server bound to an ephemeral loopback port (the
// fixed transfer port is a compile-time constant, so tests
// exercise the same handleConn dispatch against a test-only listener
// instead of binding 52526 directly) and returns a dialer for it.
func dialServer(t *testing.T, receiveDir string, sink Sink) func() *net.TCPConn {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	srv, err := NewServer(receiveDir, sink, logger.New())
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			tc := conn.(*net.TCPConn)
			wire.TuneConn(tc)
			go srv.handleConn(tc)
		}
	}()

	addr := ln.Addr().String()
	return func() *net.TCPConn {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err != nil {
			t.Fatal(err)
		}
		tc := conn.(*net.TCPConn)
		wire.TuneConn(tc)
		return tc
	}
}

// TestTextEcho: A sends TEXT length=5 "Hello"; B raises text-received
// with "Hello"; B replies OK.
func TestTextEcho(t *testing.T) {
	sink := newFakeSink()
	dial := dialServer(t, t.TempDir(), sink)

	conn := dial()
	defer conn.Close()

	hdr := &wire.Header{Type: wire.Text, Sender: "alice", Platform: "linux", Length: 5}
	if err := wire.WriteFrame(conn, hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write([]byte("Hello")); err != nil {
		t.Fatal(err)
	}
	if err := wire.ReadLegacyOK(conn); err != nil {
		t.Fatalf("expected legacy OK reply, got error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.textsReceived) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(sink.textsReceived) != 1 {
		t.Fatalf("expected 1 text-received event, got %d", len(sink.textsReceived))
	}
	if sink.textsReceived[0].Text != "Hello" {
		t.Fatalf("expected text %q, got %q", "Hello", sink.textsReceived[0].Text)
	}
}

// TestSmallFileReceive verifies a deterministic 1 MiB pattern file is
// received byte-exact under the receive area.
func TestSmallFileReceive(t *testing.T) {
	sink := newFakeSink()
	receiveDir := t.TempDir()
	dial := dialServer(t, receiveDir, sink)

	conn := dial()
	defer conn.Close()

	const size = 1048576
	pattern := make([]byte, size)
	for i := range pattern {
		pattern[i] = byte(i % 256)
	}

	hdr := &wire.Header{Type: wire.File, Sender: "alice", Platform: "linux", Filename: "a.bin", Filesize: size}
	if err := wire.WriteFrame(conn, hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(pattern); err != nil {
		t.Fatal(err)
	}
	if err := wire.ReadLegacyOK(conn); err != nil {
		t.Fatalf("expected legacy OK reply, got error: %v", err)
	}

	dest := filepath.Join(receiveDir, "a.bin")
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, pattern) {
		t.Fatal("received file content does not match source pattern")
	}
}

// TestFileCollisionRenaming verifies that sending the same filename
// twice produces two distinct on-disk files.
func TestFileCollisionRenaming(t *testing.T) {
	sink := newFakeSink()
	receiveDir := t.TempDir()
	dial := dialServer(t, receiveDir, sink)

	send := func(content []byte) {
		conn := dial()
		defer conn.Close()
		hdr := &wire.Header{Type: wire.File, Sender: "alice", Platform: "linux", Filename: "a.txt", Filesize: int64(len(content))}
		if err := wire.WriteFrame(conn, hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := conn.Write(content); err != nil {
			t.Fatal(err)
		}
		if err := wire.ReadLegacyOK(conn); err != nil {
			t.Fatal(err)
		}
	}

	send([]byte("first"))
	send([]byte("second"))

	first, err := os.ReadFile(filepath.Join(receiveDir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(filepath.Join(receiveDir, "a_1.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != "first" || string(second) != "second" {
		t.Fatalf("collision-renamed files have wrong contents: %q, %q", first, second)
	}
}
