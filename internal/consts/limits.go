package consts

import "time"

// Frame protocol limits
const (
	// MaxFramePayload is the largest JSON payload accepted or produced in a single frame
	MaxFramePayload = 10000
	// FramePrefixLen is the size of the length prefix that precedes every payload
	FramePrefixLen = 4
	// MaxChunkLen is the largest single data delivery accepted from a peer.
	// A maximum-size frame arriving in one read must still fit.
	MaxChunkLen = MaxFramePayload + FramePrefixLen
)

// Socket address limits
const (
	// MaxUnixPathLen is the longest socket path accepted on POSIX-like platforms
	MaxUnixPathLen = 104
	// MaxPipeNameLen is the longest pipe name accepted on Windows
	MaxPipeNameLen = 256
)

// Connection defaults
const (
	// DefaultMaxConnections is the connection limit when none is configured
	DefaultMaxConnections = 32
	// SendQueueSize is the capacity of per-connection outbound queues
	SendQueueSize = 256
)

// Timeouts for various operations
const (
	// Timeout1Second is a 1 second timeout
	Timeout1Second = 1 * time.Second
	// Timeout5Seconds is a 5 second timeout
	Timeout5Seconds = 5 * time.Second
	// Timeout10Seconds is a 10 second timeout
	Timeout10Seconds = 10 * time.Second
	// Timeout30Seconds is a 30 second timeout
	Timeout30Seconds = 30 * time.Second
	// KeepaliveInterval is how often clients send the ping action
	KeepaliveInterval = 54 * time.Second
)
