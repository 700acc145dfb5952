package wire

import (
	"bytes"
	"errors"
)

// ChunkSize is the payload of one format-8 X ClientMessage.
const ChunkSize = 20

// ErrOrphanChunk reports a continuation chunk that arrived with no begin chunk.
var ErrOrphanChunk = errors.New("continuation chunk without begin")

// Chunk splits a frame into ChunkSize pieces. The frame is NUL terminated
// first, so the final piece is always shorter than ChunkSize or ends with NUL.
// The first piece is sent with the begin message type, the rest with the
// continuation type.
func Chunk(frame string) [][]byte {
	data := make([]byte, 0, len(frame)+1)
	data = append(data, frame...)
	data = append(data, 0)

	chunks := make([][]byte, 0, len(data)/ChunkSize+1)
	for start := 0; start < len(data); start += ChunkSize {
		end := min(start+ChunkSize, len(data))
		chunks = append(chunks, data[start:end])
	}
	return chunks
}

// Reassembler rebuilds frames from chunks. It is not safe for concurrent use;
// the X transport feeds it from its pump goroutine only.
type Reassembler struct {
	buf     []byte
	started bool
}

// Feed adds one chunk. begin marks the first chunk of a frame and discards any
// partial frame. Chunk data is read up to its first NUL. When a NUL is seen,
// or the chunk carries fewer than ChunkSize bytes, the frame is complete and
// returned with done set.
func (r *Reassembler) Feed(chunk []byte, begin bool) (frame string, done bool, err error) {
	if begin {
		r.buf = r.buf[:0]
		r.started = true
	} else if !r.started {
		return "", false, ErrOrphanChunk
	}

	payload := chunk
	terminated := false
	if idx := bytes.IndexByte(chunk, 0); idx >= 0 {
		payload = chunk[:idx]
		terminated = true
	}
	r.buf = append(r.buf, payload...)

	if !terminated && len(chunk) >= ChunkSize {
		return "", false, nil
	}
	frame = Decode(r.buf)
	r.buf = r.buf[:0]
	r.started = false
	return frame, true, nil
}

// Reset drops any partial frame.
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
	r.started = false
}
