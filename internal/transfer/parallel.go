package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/lanxfer/lanxfer/internal/config"
	"github.com/lanxfer/lanxfer/internal/wire"
)

// handleParallelFile implements the parallel-file receiver: bind
// every side-port listener before replying ACK on the control
// connection, the invariant that makes the client's unordered,
// positional writes safe, then await PARALLEL_DONE.
func (s *Server) handleParallelFile(conn *net.TCPConn, remoteIP string, hdr *wire.Header) {
	dest := ResolveFileCollision(s.receiveDir, SanitizeBasename(hdr.Filename))

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		s.log.Warnln("transfer: create", dest, "failed:", err)
		wire.WriteToken(conn, wire.TokenError)
		return
	}
	if err := f.Truncate(hdr.Filesize); err != nil {
		s.log.Warnln("transfer: preallocate", dest, "failed:", err)
		f.Close()
		os.Remove(dest)
		wire.WriteToken(conn, wire.TokenError)
		return
	}

	listeners := make([]*net.TCPListener, len(hdr.Chunks))
	for i, c := range hdr.Chunks {
		ln, err := wire.Listen(fmt.Sprintf("0.0.0.0:%d", c.Port))
		if err != nil {
			s.log.Warnln("transfer: bind side port", c.Port, "failed:", err)
			for _, opened := range listeners {
				if opened != nil {
					opened.Close()
				}
			}
			f.Close()
			os.Remove(dest)
			wire.WriteToken(conn, wire.TokenError)
			return
		}
		listeners[i] = ln
	}

	if err := wire.WriteToken(conn, wire.TokenACK); err != nil {
		f.Close()
		os.Remove(dest)
		for _, ln := range listeners {
			ln.Close()
		}
		return
	}

	s.sink.OnTransferStart(hdr.Filesize)

	tracker := newChunkTracker(len(hdr.Chunks), hdr.Filesize)
	done := make(chan struct{})
	go tracker.runSampler(s.sink, done)

	var wg sync.WaitGroup
	errs := make([]error, len(hdr.Chunks))
	for i, c := range hdr.Chunks {
		wg.Add(1)
		go func(i int, c wire.ChunkDescriptor, ln *net.TCPListener) {
			defer wg.Done()
			defer ln.Close()
			errs[i] = receiveChunk(ln, c, f, tracker)
		}(i, c, listeners[i])
	}
	wg.Wait()
	close(done)

	for _, err := range errs {
		if err != nil {
			f.Close()
			os.Remove(dest)
			s.log.Warnln("transfer: parallel chunk failed for", dest, ":", err)
			wire.WriteToken(conn, wire.TokenError)
			s.sink.OnComplete(false, err.Error())
			return
		}
	}

	donehdr, err := wire.ReadFrame(conn)
	if err != nil || donehdr.Type != wire.ParallelDone {
		f.Close()
		os.Remove(dest)
		wire.WriteToken(conn, wire.TokenError)
		s.sink.OnComplete(false, "missing PARALLEL_DONE")
		return
	}

	if err := f.Close(); err != nil {
		os.Remove(dest)
		wire.WriteToken(conn, wire.TokenError)
		s.sink.OnComplete(false, err.Error())
		return
	}

	wire.WriteToken(conn, wire.TokenACK)
	s.sink.OnFileReceived(remoteIP, hdr.Sender, hdr.Platform, dest, hdr.Filesize)
	s.sink.OnComplete(true, dest)
}

// receiveChunk accepts the single connection expected on ln, verifies
// the PARALLEL_CHUNK header matches the assignment c, and writes its
// body directly to f at c.Offset using positional writes so chunks
// completing out of order never race each other.
func receiveChunk(ln *net.TCPListener, c wire.ChunkDescriptor, f *os.File, tracker *chunkTracker) error {
	ln.SetDeadline(time.Now().Add(config.ChunkDataTimeout))
	conn, err := ln.AcceptTCP()
	if err != nil {
		return fmt.Errorf("transfer: accept side port %d: %w", c.Port, err)
	}
	defer conn.Close()
	wire.TuneConn(conn)
	conn.SetDeadline(time.Now().Add(config.ChunkDataTimeout))

	hdr, err := wire.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("transfer: chunk %d header: %w", c.ChunkID, err)
	}
	if hdr.Type != wire.ParallelChunk || hdr.ChunkID != c.ChunkID {
		wire.WriteToken(conn, wire.TokenError)
		return fmt.Errorf("transfer: chunk %d assignment mismatch", c.ChunkID)
	}

	if err := wire.WriteToken(conn, wire.TokenACK); err != nil {
		return err
	}

	w := io.NewOffsetWriter(f, c.Offset)
	if err := wire.ReceiveInto(conn, w, c.Size, func(n int64) { tracker.add(c.ChunkID, n) }, nil); err != nil {
		return fmt.Errorf("transfer: chunk %d body: %w", c.ChunkID, err)
	}

	return wire.WriteToken(conn, wire.TokenACK)
}

// sendParallelFile implements the parallel-file sender: compute K
// disjoint chunks, send the control header, wait for its ACK, then
// dial every side port concurrently.
func (c *Client) sendParallelFile(ctx context.Context, addr string, path string, size int64, cancel *CancelFlag) error {
	k := parallelChunkCount(size)
	chunks := partitionChunks(size, k)

	ctrl, err := wire.Dial(ctx, fmt.Sprintf("%s:%d", addr, config.TransferPort))
	if err != nil {
		return fmt.Errorf("transfer: dial control connection: %w", err)
	}
	defer ctrl.Close()

	name := SanitizeBasename(path)
	ctrlHdr := &wire.Header{
		Type: wire.ParallelFile, Sender: c.identitySender(), Platform: c.identityPlatform(),
		Filename: name, Filesize: size, NumChunks: k, Chunks: chunks,
	}
	if err := wire.WriteFrame(ctrl, ctrlHdr); err != nil {
		return err
	}

	tok, err := wire.ReadToken(ctrl)
	if err != nil {
		return err
	}
	if !tok.IsACK() {
		return fmt.Errorf("transfer: peer rejected parallel transfer: %s", tok)
	}

	c.sink.OnTransferStart(size)
	tracker := newChunkTracker(k, size)
	done := make(chan struct{})
	go tracker.runSampler(c.sink, done)

	var wg sync.WaitGroup
	errs := make([]error, k)
	for i, ch := range chunks {
		if cancel.Cancelled() {
			errs[i] = fmt.Errorf("transfer: cancelled")
			continue
		}
		wg.Add(1)
		go func(i int, ch wire.ChunkDescriptor) {
			defer wg.Done()
			errs[i] = sendChunk(ctx, addr, ch, path, tracker, cancel)
		}(i, ch)
	}
	wg.Wait()
	close(done)

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	doneHdr := &wire.Header{Type: wire.ParallelDone, Filename: name, Filesize: size}
	if err := wire.WriteFrame(ctrl, doneHdr); err != nil {
		return err
	}
	finalTok, err := wire.ReadToken(ctrl)
	if err != nil {
		return err
	}
	if !finalTok.IsACK() {
		return fmt.Errorf("transfer: peer reported failure after transfer: %s", finalTok)
	}
	return nil
}

func sendChunk(ctx context.Context, addr string, ch wire.ChunkDescriptor, path string, tracker *chunkTracker, cancel *CancelFlag) error {
	conn, err := wire.Dial(ctx, fmt.Sprintf("%s:%d", addr, ch.Port))
	if err != nil {
		return fmt.Errorf("transfer: dial side port %d: %w", ch.Port, err)
	}
	defer conn.Close()

	hdr := &wire.Header{Type: wire.ParallelChunk, ChunkID: ch.ChunkID, Offset: ch.Offset, Size: ch.Size}
	if err := wire.WriteFrame(conn, hdr); err != nil {
		return err
	}
	tok, err := wire.ReadToken(conn)
	if err != nil {
		return err
	}
	if !tok.IsACK() {
		return fmt.Errorf("transfer: side port %d rejected chunk: %s", ch.Port, tok)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Seek(ch.Offset, 0); err != nil {
		return err
	}

	onChunk := func(n int64) {
		tracker.add(ch.ChunkID, n)
	}
	if err := wire.SendFile(conn, f, ch.Size, onChunk, cancel.Cancelled); err != nil {
		if errors.Is(err, wire.ErrCancelled) {
			return fmt.Errorf("transfer: cancelled")
		}
		return err
	}

	tok, err = wire.ReadToken(conn)
	if err != nil {
		return err
	}
	if !tok.IsACK() {
		return fmt.Errorf("transfer: side port %d final token: %s", ch.Port, tok)
	}
	return nil
}

// parallelChunkCount computes K = min(8, max(1, size/chunkSize)).
func parallelChunkCount(size int64) int {
	k := int(size / config.ParallelChunkSize)
	if k < 1 {
		k = 1
	}
	if k > config.MaxParallelChunks {
		k = config.MaxParallelChunks
	}
	return k
}

// partitionChunks splits [0, size) into k disjoint ranges, the last
// absorbing the remainder, and assigns each the next side port in
// sequence.
func partitionChunks(size int64, k int) []wire.ChunkDescriptor {
	base := size / int64(k)
	chunks := make([]wire.ChunkDescriptor, k)
	var offset int64
	for i := 0; i < k; i++ {
		sz := base
		if i == k-1 {
			sz = size - offset
		}
		chunks[i] = wire.ChunkDescriptor{
			ChunkID: i,
			Offset:  offset,
			Size:    sz,
			Port:    config.ParallelPortBase + i,
		}
		offset += sz
	}
	return chunks
}
