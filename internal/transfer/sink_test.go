package transfer

import "sync"

// fakeSink records every callback invocation for assertions in tests,
// standing in for the GUI sink the transfer package is designed
// against but never depends on directly.
type fakeSink struct {
	mut sync.Mutex

	statuses        []string
	transferStarts  []int64
	completes       []CompletePayload
	textsReceived   []TextReceivedPayload
	filesReceived   []FileReceivedPayload
	foldersReceived []FolderReceivedPayload
	folderProgress  []FolderProgressPayload
}

func newFakeSink() *fakeSink { return &fakeSink{} }

func (s *fakeSink) OnStatus(msg string) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.statuses = append(s.statuses, msg)
}

func (s *fakeSink) OnTransferStart(totalBytes int64) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.transferStarts = append(s.transferStarts, totalBytes)
}

func (s *fakeSink) OnProgress(pct float64, msg string) {}

func (s *fakeSink) OnFolderProgress(index, total int, name string, filePct, overallPct float64, status string) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.folderProgress = append(s.folderProgress, FolderProgressPayload{
		Index: index, Total: total, Name: name,
		FilePercent: filePct, OverallPercent: overallPct, Status: status,
	})
}

func (s *fakeSink) OnComplete(ok bool, msg string) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.completes = append(s.completes, CompletePayload{OK: ok, Message: msg})
}

func (s *fakeSink) OnTextReceived(senderIP, sender, platform, text string) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.textsReceived = append(s.textsReceived, TextReceivedPayload{senderIP, sender, platform, text})
}

func (s *fakeSink) OnFileReceived(senderIP, sender, platform, path string, size int64) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.filesReceived = append(s.filesReceived, FileReceivedPayload{senderIP, sender, platform, path, size})
}

func (s *fakeSink) OnFolderReceived(senderIP, sender, platform, path string, fileCount int, totalSize int64) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.foldersReceived = append(s.foldersReceived, FolderReceivedPayload{senderIP, sender, platform, path, fileCount, totalSize})
}

func (s *fakeSink) lastComplete() (CompletePayload, bool) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if len(s.completes) == 0 {
		return CompletePayload{}, false
	}
	return s.completes[len(s.completes)-1], true
}
