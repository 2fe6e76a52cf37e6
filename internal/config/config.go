// Package config collects the compile-time constants that define the
// lanxfer wire protocol and the small set of process-level knobs that
// may override them at startup. Nothing here is negotiated on the
// wire: two hosts running different lanxfer builds interoperate only
// if these constants agree.
package config

import "time"

const (
	// DiscoveryPort is the single UDP port used for broadcast
	// announcements, unicast responses, and liveness probes.
	DiscoveryPort = 52525

	// TransferPort is the TCP port the transfer server listens on for
	// text, single-file, folder, and parallel-file control sessions.
	TransferPort = 52526

	// ParallelPortBase and ParallelPortCount bound the reserved range
	// of TCP side ports used by parallel-file chunk workers.
	ParallelPortBase  = 52530
	ParallelPortCount = 8
)

const (
	BroadcastInterval = 3 * time.Second
	LivenessInterval  = 5 * time.Second
	PeerStaleAfter    = 30 * time.Second
	LivenessTimeout   = 2 * time.Second

	TextConnectTimeout   = 10 * time.Second
	FileConnectTimeout   = 30 * time.Second
	FolderConnectTimeout = 60 * time.Second
	ChunkDataTimeout     = 300 * time.Second

	ProgressSampleInterval = 100 * time.Millisecond
)

const (
	// ParallelThreshold is the file size at or above which the client
	// switches from a single-stream FILE transfer to a PARALLEL_FILE
	// transfer split across side ports.
	ParallelThreshold = 10 * 1024 * 1024

	// ParallelChunkSize is the target size of one chunk; the actual
	// chunk count is clamped to [1, ParallelPortCount].
	ParallelChunkSize = 8 * 1024 * 1024

	// MaxParallelChunks mirrors ParallelPortCount: one side port per
	// chunk, never more than the reserved port range.
	MaxParallelChunks = ParallelPortCount

	// QuickHashSampleSize is the size of the head and tail samples
	// folded into the quick-hash fingerprint.
	QuickHashSampleSize = 64 * 1024

	// SendfileBatchCap is the maximum number of bytes offered to the
	// platform sendfile syscall in one call.
	SendfileBatchCap = 2 * 1024 * 1024 * 1024

	// StreamChunkSize is the buffer size used by the non-sendfile
	// read/write fallback and by exact-read body receivers.
	StreamChunkSize = 256 * 1024

	// SocketBufferSize is applied to both the send and receive buffer
	// of every accepted and every dialed transfer socket.
	SocketBufferSize = 2 * 1024 * 1024
)

// ReceiveAreaName is the directory created under the user's home
// directory to hold all inbound files and folders.
const ReceiveAreaName = "PCPCS_Received"
