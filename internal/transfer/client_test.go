package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lanxfer/lanxfer/internal/logger"
)

// startRealServer binds the Server to the actual compile-time transfer
// port, since Client dials that fixed port directly and ports are
// never runtime-configurable. Tests run sequentially against it and
// clean up by cancelling ctx, which closes the listener.
func startRealServer(t *testing.T, receiveDir string, sink Sink) {
	t.Helper()
	srv, err := NewServer(receiveDir, sink, logger.New())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	go func() {
		close(ready)
		srv.Serve(ctx)
	}()
	<-ready
	time.Sleep(20 * time.Millisecond) // let the listener bind before the client dials
	t.Cleanup(cancel)
}

func TestClientSendTextEndToEnd(t *testing.T) {
	serverSink := newFakeSink()
	startRealServer(t, t.TempDir(), serverSink)

	clientSink := newFakeSink()
	client := NewClient("bob", "linux", clientSink, logger.New())

	if err := client.SendText(context.Background(), "127.0.0.1", "Hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(serverSink.textsReceived) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(serverSink.textsReceived) != 1 || serverSink.textsReceived[0].Text != "Hello" {
		t.Fatalf("server did not observe the sent text: %+v", serverSink.textsReceived)
	}
	complete, ok := clientSink.lastComplete()
	if !ok || !complete.OK {
		t.Fatalf("expected client to report success, got %+v", complete)
	}
}

// TestClientSendFolderWithSkip verifies that a second identical send
// of the same folder results in every entry being skipped, with
// identical file contents on disk.
func TestClientSendFolderWithSkip(t *testing.T) {
	receiveDir := t.TempDir()
	serverSink := newFakeSink()
	startRealServer(t, receiveDir, serverSink)

	srcRoot := t.TempDir()
	os.MkdirAll(filepath.Join(srcRoot, "x"), 0o755)
	os.MkdirAll(filepath.Join(srcRoot, "y"), 0o755)
	os.WriteFile(filepath.Join(srcRoot, "x", "a.txt"), []byte("0123456789"), 0o644)
	os.WriteFile(filepath.Join(srcRoot, "y", "b.bin"), make([]byte, 1024), 0o644)
	os.WriteFile(filepath.Join(srcRoot, "c"), nil, 0o644)

	clientSink := newFakeSink()
	client := NewClient("bob", "linux", clientSink, logger.New())
	var cancel CancelFlag

	folderName := filepath.Base(srcRoot)

	if err := client.SendFolder(context.Background(), "127.0.0.1", srcRoot, &cancel); err != nil {
		t.Fatalf("first SendFolder failed: %v", err)
	}

	target := filepath.Join(receiveDir, folderName)
	info1, err := os.Stat(filepath.Join(target, "x", "a.txt"))
	if err != nil {
		t.Fatal(err)
	}

	clientSink2 := newFakeSink()
	client2 := NewClient("bob", "linux", clientSink2, logger.New())
	if err := client2.SendFolder(context.Background(), "127.0.0.1", srcRoot, &cancel); err != nil {
		t.Fatalf("second SendFolder failed: %v", err)
	}

	info2, err := os.Stat(filepath.Join(target, "x", "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !info1.ModTime().Equal(info2.ModTime()) {
		t.Fatal("expected mtime to be unchanged after a fully-skipped resend")
	}

	sawSkip := false
	for _, p := range clientSink2.folderProgress {
		if p.Status == "skipped" {
			sawSkip = true
		}
	}
	if !sawSkip {
		t.Fatal("expected at least one skipped folder entry on the second send")
	}
}
