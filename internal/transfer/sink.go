package transfer

import "github.com/lanxfer/lanxfer/internal/events"

// Sink is the single capability set passed to both Server and Client,
// one explicit interface in place of ad hoc on_status/on_progress/
// on_complete/... callback attributes.
type Sink interface {
	OnStatus(msg string)
	OnTransferStart(totalBytes int64)
	OnProgress(pct float64, msg string)
	OnFolderProgress(index, total int, name string, filePct, overallPct float64, status string)
	OnComplete(ok bool, msg string)
	OnTextReceived(senderIP, sender, platform, text string)
	OnFileReceived(senderIP, sender, platform, path string, size int64)
	OnFolderReceived(senderIP, sender, platform, path string, fileCount int, totalSize int64)
}

// BusSink adapts an events.Bus to the Sink interface: every callback
// becomes a published Event carrying a structured payload, so a UI
// subscribes once with events.Subscribe instead of wiring individual
// function pointers.
type BusSink struct {
	Bus *events.Bus
}

func NewBusSink(bus *events.Bus) BusSink { return BusSink{Bus: bus} }

type StatusPayload struct {
	Message string
}

type TransferStartPayload struct {
	TotalBytes int64
}

type ProgressPayload struct {
	Percent float64
	Message string
}

type FolderProgressPayload struct {
	Index, Total                   int
	Name                           string
	FilePercent, OverallPercent    float64
	Status                         string
}

type CompletePayload struct {
	OK      bool
	Message string
}

type TextReceivedPayload struct {
	SenderIP, Sender, Platform, Text string
}

type FileReceivedPayload struct {
	SenderIP, Sender, Platform, Path string
	Size                             int64
}

type FolderReceivedPayload struct {
	SenderIP, Sender, Platform, Path string
	FileCount                        int
	TotalSize                        int64
}

func (s BusSink) OnStatus(msg string) {
	s.Bus.Log(events.StatusChanged, StatusPayload{Message: msg})
}

func (s BusSink) OnTransferStart(totalBytes int64) {
	s.Bus.Log(events.TransferStarted, TransferStartPayload{TotalBytes: totalBytes})
}

func (s BusSink) OnProgress(pct float64, msg string) {
	s.Bus.Log(events.Progress, ProgressPayload{Percent: pct, Message: msg})
}

func (s BusSink) OnFolderProgress(index, total int, name string, filePct, overallPct float64, status string) {
	s.Bus.Log(events.FolderProgress, FolderProgressPayload{
		Index: index, Total: total, Name: name,
		FilePercent: filePct, OverallPercent: overallPct, Status: status,
	})
}

func (s BusSink) OnComplete(ok bool, msg string) {
	s.Bus.Log(events.Completed, CompletePayload{OK: ok, Message: msg})
}

func (s BusSink) OnTextReceived(senderIP, sender, platform, text string) {
	s.Bus.Log(events.TextReceived, TextReceivedPayload{
		SenderIP: senderIP, Sender: sender, Platform: platform, Text: text,
	})
}

func (s BusSink) OnFileReceived(senderIP, sender, platform, path string, size int64) {
	s.Bus.Log(events.FileReceived, FileReceivedPayload{
		SenderIP: senderIP, Sender: sender, Platform: platform, Path: path, Size: size,
	})
}

func (s BusSink) OnFolderReceived(senderIP, sender, platform, path string, fileCount int, totalSize int64) {
	s.Bus.Log(events.FolderReceived, FolderReceivedPayload{
		SenderIP: senderIP, Sender: sender, Platform: platform,
		Path: path, FileCount: fileCount, TotalSize: totalSize,
	})
}
