package protocol

// DefaultMaxFrameSize bounds a single received frame. A frame larger than
// this is a protocol violation and the connection is dropped.
const DefaultMaxFrameSize = 1 << 20

// MaxBodySize bounds the declared length of a message body. A declared
// length above it is treated as a truncated command.
const MaxBodySize = DefaultMaxFrameSize - sizeMsg - 1
