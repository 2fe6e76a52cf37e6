// Package wire implements the framed transport shared by every TCP
// exchange in lanxfer: a 4-byte big-endian length prefix, a
// UTF-8 JSON-structured header, and an optional raw body whose length
// is implied by a header field. It also owns the fixed-size reply
// tokens, socket tuning, and the zero-copy/fallback body transfer
// helpers that every message type builds on.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MessageType discriminates the tagged variant of a frame header: one
// Header struct carries the union of every message type's fields, and
// Type says which subset is populated.
type MessageType string

const (
	Text         MessageType = "TEXT"
	File         MessageType = "FILE"
	ParallelFile MessageType = "PARALLEL_FILE"
	ParallelChunk MessageType = "PARALLEL_CHUNK"
	ParallelDone  MessageType = "PARALLEL_DONE"
	FolderStart   MessageType = "FOLDER_START"
	FolderFile    MessageType = "FOLDER_FILE"
	FolderEnd     MessageType = "FOLDER_END"
)

// ChunkDescriptor is one entry of a PARALLEL_FILE header's chunk list.
type ChunkDescriptor struct {
	ChunkID int   `json:"chunk_id"`
	Offset  int64 `json:"offset"`
	Size    int64 `json:"size"`
	Port    int   `json:"port"`
}

// Header is the union of every field used by any message type. Only
// the fields relevant to Type are populated by either side; the rest
// are left zero and omitted from the wire encoding.
type Header struct {
	Type MessageType `json:"type"`

	Sender   string `json:"sender,omitempty"`
	Platform string `json:"platform,omitempty"`

	// TEXT
	Length int64 `json:"length,omitempty"`

	// FILE / PARALLEL_FILE / PARALLEL_DONE
	Filename string `json:"filename,omitempty"`
	Filesize int64  `json:"filesize,omitempty"`

	// PARALLEL_FILE
	NumChunks int               `json:"num_chunks,omitempty"`
	Chunks    []ChunkDescriptor `json:"chunks,omitempty"`

	// PARALLEL_CHUNK
	ChunkID int   `json:"chunk_id,omitempty"`
	Offset  int64 `json:"offset,omitempty"`

	// FOLDER_START
	FolderName string `json:"folder_name,omitempty"`
	TotalFiles int     `json:"total_files,omitempty"`
	TotalSize  int64   `json:"total_size,omitempty"`

	// FOLDER_FILE (Size doubles as the per-entry byte count, the same
	// unsigned-count concept as Filesize above, just named differently
	// per message type on the wire)
	RelPath string `json:"rel_path,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Hash    string `json:"hash,omitempty"`
	Index   int    `json:"index,omitempty"`
	Total   int    `json:"total,omitempty"`

	// FOLDER_END
	TotalSent int64 `json:"total_sent,omitempty"`
}

// maxHeaderLen bounds the declared header length so a corrupt or
// malicious peer cannot force an unbounded allocation.
const maxHeaderLen = 1 << 20 // 1 MiB

// ReadFrame reads exactly one frame's header (length prefix + JSON
// body) from r: exactly 4 bytes, then exactly H bytes, never more,
// never less.
func ReadFrame(r io.Reader) (*Header, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	h := binary.BigEndian.Uint32(lenBuf[:])
	if h > maxHeaderLen {
		return nil, fmt.Errorf("wire: header length %d exceeds maximum %d", h, maxHeaderLen)
	}

	buf := make([]byte, h)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	var hdr Header
	if err := json.Unmarshal(buf, &hdr); err != nil {
		return nil, fmt.Errorf("wire: decode header: %w", err)
	}
	return &hdr, nil
}

// WriteFrame serializes hdr and writes the length-prefixed frame to w.
func WriteFrame(w io.Writer, hdr *Header) error {
	buf, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("wire: encode header: %w", err)
	}
	if len(buf) > maxHeaderLen {
		return fmt.Errorf("wire: header length %d exceeds maximum %d", len(buf), maxHeaderLen)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadExact reads exactly n bytes from r into a freshly allocated
// slice, or returns an error if fewer are available.
func ReadExact(r io.Reader, n int64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
