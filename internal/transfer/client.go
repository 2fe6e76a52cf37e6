package transfer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/lanxfer/lanxfer/internal/config"
	"github.com/lanxfer/lanxfer/internal/logger"
	"github.com/lanxfer/lanxfer/internal/wire"
)

// Client initiates outbound text, single-file, folder, and
// parallel-file sessions. One Client is shared across all outbound
// transfers from this host; identity fields are immutable after
// construction.
type Client struct {
	hostname string
	platform string
	sink     Sink
	log      *logger.Logger
}

func NewClient(hostname, platform string, sink Sink, log *logger.Logger) *Client {
	return &Client{hostname: hostname, platform: platform, sink: sink, log: log}
}

func (c *Client) identitySender() string   { return c.hostname }
func (c *Client) identityPlatform() string { return c.platform }

// SendText implements text send: frame, write the UTF-8
// body, read the legacy reply, close.
func (c *Client) SendText(ctx context.Context, addr, text string) error {
	ctx, cancel := context.WithTimeout(ctx, config.TextConnectTimeout)
	defer cancel()

	conn, err := wire.Dial(ctx, fmt.Sprintf("%s:%d", addr, config.TransferPort))
	if err != nil {
		c.sink.OnComplete(false, err.Error())
		return err
	}
	defer conn.Close()

	hdr := &wire.Header{Type: wire.Text, Sender: c.hostname, Platform: c.platform, Length: int64(len(text))}
	if err := wire.WriteFrame(conn, hdr); err != nil {
		c.sink.OnComplete(false, err.Error())
		return err
	}
	if _, err := conn.Write([]byte(text)); err != nil {
		c.sink.OnComplete(false, err.Error())
		return err
	}
	if err := wire.ReadLegacyOK(conn); err != nil {
		c.sink.OnComplete(false, err.Error())
		return err
	}

	c.sink.OnComplete(true, "")
	return nil
}

// SendFile dispatches by size between the single-stream and
// parallel-file send paths.
func (c *Client) SendFile(ctx context.Context, addr, path string, cancel *CancelFlag) error {
	info, err := os.Stat(path)
	if err != nil {
		c.sink.OnComplete(false, err.Error())
		return err
	}

	var sendErr error
	if info.Size() >= config.ParallelThreshold {
		sendErr = c.sendParallelFile(ctx, addr, path, info.Size(), cancel)
	} else {
		sendErr = c.sendSingleFile(ctx, addr, path, info.Size(), cancel)
	}

	if sendErr != nil {
		c.sink.OnComplete(false, sendErr.Error())
		return sendErr
	}
	c.sink.OnComplete(true, path)
	return nil
}

// sendSingleFile streams a file over the single control connection;
// used when filesize is below the parallel threshold.
func (c *Client) sendSingleFile(ctx context.Context, addr, path string, size int64, cancel *CancelFlag) error {
	ctx, cancelCtx := context.WithTimeout(ctx, config.FileConnectTimeout)
	defer cancelCtx()

	conn, err := wire.Dial(ctx, fmt.Sprintf("%s:%d", addr, config.TransferPort))
	if err != nil {
		return err
	}
	defer conn.Close()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := &wire.Header{
		Type: wire.File, Sender: c.hostname, Platform: c.platform,
		Filename: SanitizeBasename(path), Filesize: size,
	}
	if err := wire.WriteFrame(conn, hdr); err != nil {
		return err
	}

	c.sink.OnTransferStart(size)
	var sent int64
	onChunk := func(n int64) {
		sent += n
		pct := 0.0
		if size > 0 {
			pct = 100 * float64(sent) / float64(size)
		}
		c.sink.OnProgress(pct, hdr.Filename)
	}

	if err := wire.SendFile(conn, f, size, onChunk, cancel.Cancelled); err != nil {
		if errors.Is(err, wire.ErrCancelled) {
			return fmt.Errorf("transfer: cancelled")
		}
		return err
	}

	return wire.ReadLegacyOK(conn)
}

// SendFolder implements folder send: walk the tree,
// announce FOLDER_START, then stream one FOLDER_FILE per entry,
// honoring SKIP replies so a repeated send converges without
// duplicating work.
func (c *Client) SendFolder(ctx context.Context, addr, root string, cancel *CancelFlag) error {
	entries, total, err := walkFolder(root)
	if err != nil {
		c.sink.OnComplete(false, err.Error())
		return err
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, config.FolderConnectTimeout)
	conn, err := wire.Dial(dialCtx, fmt.Sprintf("%s:%d", addr, config.TransferPort))
	dialCancel()
	if err != nil {
		c.sink.OnComplete(false, err.Error())
		return err
	}
	defer conn.Close()

	name := SanitizeBasename(root)
	startHdr := &wire.Header{
		Type: wire.FolderStart, Sender: c.hostname, Platform: c.platform,
		FolderName: name, TotalFiles: len(entries), TotalSize: total,
	}
	if err := wire.WriteFrame(conn, startHdr); err != nil {
		c.sink.OnComplete(false, err.Error())
		return err
	}
	if tok, err := wire.ReadToken(conn); err != nil || !tok.IsACK() {
		if err == nil {
			err = fmt.Errorf("transfer: folder start rejected: %s", tok)
		}
		c.sink.OnComplete(false, err.Error())
		return err
	}

	c.sink.OnTransferStart(total)

	var sent int64
	for i, entry := range entries {
		if cancel.Cancelled() {
			err := fmt.Errorf("transfer: cancelled")
			c.sink.OnComplete(false, err.Error())
			return err
		}
		if err := c.sendFolderEntry(conn, entry, i+1, len(entries), total, &sent, cancel); err != nil {
			c.sink.OnComplete(false, err.Error())
			return err
		}
	}

	endHdr := &wire.Header{Type: wire.FolderEnd, FolderName: name, TotalSent: sent}
	if err := wire.WriteFrame(conn, endHdr); err != nil {
		c.sink.OnComplete(false, err.Error())
		return err
	}
	if tok, err := wire.ReadToken(conn); err != nil || !tok.IsACK() {
		if err == nil {
			err = fmt.Errorf("transfer: folder end rejected: %s", tok)
		}
		c.sink.OnComplete(false, err.Error())
		return err
	}

	c.sink.OnComplete(true, name)
	return nil
}

func (c *Client) sendFolderEntry(conn *net.TCPConn, entry folderEntry, index, total int, totalSize int64, sent *int64, cancel *CancelFlag) error {
	hash, err := QuickHash(entry.absPath)
	if err != nil {
		return err
	}

	hdr := &wire.Header{
		Type: wire.FolderFile, RelPath: entry.relPath, Size: entry.size,
		Hash: hash, Index: index, Total: total,
	}
	if err := wire.WriteFrame(conn, hdr); err != nil {
		return err
	}

	tok, err := wire.ReadToken(conn)
	if err != nil {
		return err
	}

	if tok.IsSkip() {
		*sent += entry.size
		c.sink.OnFolderProgress(index, total, entry.relPath, 100, overallPct(*sent, totalSize), "skipped")
		return nil
	}
	if !tok.IsACK() {
		return fmt.Errorf("transfer: folder entry %s rejected: %s", entry.relPath, tok)
	}

	f, err := os.Open(entry.absPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var fileSent int64
	onChunk := func(n int64) {
		fileSent += n
		*sent += n
		filePct := 100.0
		if entry.size > 0 {
			filePct = 100 * float64(fileSent) / float64(entry.size)
		}
		c.sink.OnFolderProgress(index, total, entry.relPath, filePct, overallPct(*sent, totalSize), "receiving")
	}

	if err := wire.SendFile(conn, f, entry.size, onChunk, cancel.Cancelled); err != nil {
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
		return fmt.Errorf("transfer: folder entry %s final token: %s", entry.relPath, tok)
	}

	c.sink.OnFolderProgress(index, total, entry.relPath, 100, overallPct(*sent, totalSize), "completed")
	return nil
}

func overallPct(sent, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(sent) / float64(total)
}
