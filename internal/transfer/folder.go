package transfer

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/lanxfer/lanxfer/internal/wire"
)

// handleFolder implements folder receive path: it owns the
// connection from FOLDER_START through FOLDER_END, dispatching each
// FOLDER_FILE against the skip-if-hash-matches rule that makes resumed
// folder sends converge without duplicating work.
func (s *Server) handleFolder(conn *net.TCPConn, remoteIP string, hdr *wire.Header) {
	name := SanitizeBasename(hdr.FolderName)
	target := ResolveFolderCollision(s.receiveDir, name)

	if err := os.MkdirAll(target, 0o755); err != nil {
		s.log.Warnln("transfer: create folder", target, "failed:", err)
		wire.WriteToken(conn, wire.TokenError)
		return
	}

	if err := wire.WriteToken(conn, wire.TokenACK); err != nil {
		s.log.Warnln("transfer: folder start ack to", remoteIP, "failed:", err)
		return
	}
	s.sink.OnTransferStart(hdr.TotalSize)

	var received int64

	for {
		fhdr, err := wire.ReadFrame(conn)
		if err != nil {
			s.log.Warnln("transfer: folder frame from", remoteIP, "failed:", err)
			s.sink.OnComplete(false, err.Error())
			return
		}

		switch fhdr.Type {
		case wire.FolderFile:
			ok := s.handleFolderFile(conn, target, fhdr, hdr.TotalSize, &received)
			if !ok {
				s.sink.OnComplete(false, "folder entry failed: "+fhdr.RelPath)
				return
			}
		case wire.FolderEnd:
			wire.WriteToken(conn, wire.TokenACK)
			s.sink.OnFolderReceived(remoteIP, hdr.Sender, hdr.Platform, target, hdr.TotalFiles, fhdr.TotalSent)
			s.sink.OnComplete(true, filepath.Base(target))
			return
		default:
			s.log.Warnln("transfer: unexpected message type mid-folder from", remoteIP, ":", fhdr.Type)
			wire.WriteToken(conn, wire.TokenError)
			s.sink.OnComplete(false, "protocol violation mid-folder")
			return
		}
	}
}

// handleFolderFile handles one FOLDER_FILE entry: skip if the
// destination already matches the sender's quick hash, otherwise
// receive the body and verify it. Returns false on any error that
// should abort the whole folder transfer.
func (s *Server) handleFolderFile(conn *net.TCPConn, target string, fhdr *wire.Header, totalSize int64, received *int64) bool {
	rel := SanitizeRelPath(fhdr.RelPath)
	dest := filepath.Join(target, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		s.log.Warnln("transfer: mkdir for", dest, "failed:", err)
		wire.WriteToken(conn, wire.TokenError)
		return false
	}

	if existingHash, err := QuickHash(dest); err == nil && existingHash == fhdr.Hash {
		if err := wire.WriteToken(conn, wire.TokenSkip); err != nil {
			return false
		}
		*received += fhdr.Size
		s.emitFolderProgress(fhdr, totalSize, *received, fhdr.Size, "skipped")
		return true
	}

	if err := wire.WriteToken(conn, wire.TokenACK); err != nil {
		return false
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		s.log.Warnln("transfer: create", dest, "failed:", err)
		wire.WriteToken(conn, wire.TokenError)
		return false
	}

	var fileReceived int64
	err = wire.ReceiveInto(conn, f, fhdr.Size, func(n int64) {
		fileReceived += n
		*received += n
		s.emitFolderProgress(fhdr, totalSize, *received, fileReceived, "receiving")
	}, nil)
	closeErr := f.Close()
	if err != nil || closeErr != nil {
		os.Remove(dest)
		wire.WriteToken(conn, wire.TokenError)
		return false
	}

	gotHash, err := QuickHash(dest)
	if err != nil || gotHash != fhdr.Hash {
		os.Remove(dest)
		s.log.Warnln("transfer: hash mismatch for", dest)
		wire.WriteToken(conn, wire.TokenError)
		return false
	}

	if err := wire.WriteToken(conn, wire.TokenACK); err != nil {
		return false
	}
	s.emitFolderProgress(fhdr, totalSize, *received, fileReceived, "completed")
	return true
}

func (s *Server) emitFolderProgress(fhdr *wire.Header, totalSize, received, fileReceived int64, status string) {
	filePct := 100.0
	if status == "receiving" && fhdr.Size > 0 {
		filePct = 100 * float64(fileReceived) / float64(fhdr.Size)
	}
	overallPct := 0.0
	if totalSize > 0 {
		overallPct = 100 * float64(received) / float64(totalSize)
	}
	s.sink.OnFolderProgress(fhdr.Index, fhdr.Total, fhdr.RelPath, filePct, overallPct, status)
}

// folderEntry is one file discovered while walking a folder to send.
type folderEntry struct {
	relPath string
	absPath string
	size    int64
}

// walkFolder enumerates every regular file under root, in
// lexicographic directory-walk order, for the sending side of a
// folder transfer.
func walkFolder(root string) ([]folderEntry, int64, error) {
	var entries []folderEntry
	var total int64

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, folderEntry{
			relPath: filepath.ToSlash(rel),
			absPath: path,
			size:    info.Size(),
		})
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("transfer: walk %s: %w", root, err)
	}
	return entries, total, nil
}
