package crm

import "strings"

const (
	frameStart = "---start---"
	frameDone  = "---done---"

	// ErrorFrame is sent by the status helper when no status is available.
	ErrorFrame = "---start---\r\nerror\r\n\r\n---done---\r\n"

	stoppedMarker = "is stopped"
	tailLen       = 12
)

// FrameKind classifies a complete frame.
type FrameKind int

const (
	FrameStatus FrameKind = iota
	FrameError
	FrameStopped
)

func (k FrameKind) String() string {
	switch k {
	case FrameError:
		return "error"
	case FrameStopped:
		return "stopped"
	default:
		return "status"
	}
}

// Frame is one complete status frame.
type Frame struct {
	Kind FrameKind
	// Text starts at the last "---start---" marker of the accumulated
	// output. Empty for FrameStopped.
	Text string
}

// FrameBuffer accumulates streamed output of the cluster status command and
// cuts it into frames. It is owned by one loop and not safe for concurrent
// use.
type FrameBuffer struct {
	buf strings.Builder
}

// Write appends a chunk and returns the frame it completed, if any. A frame
// completes only once its closing line, terminator included, has arrived.
func (b *FrameBuffer) Write(chunk string) (Frame, bool) {
	b.buf.WriteString(chunk)
	acc := b.buf.String()
	if len(acc) <= tailLen || !strings.HasSuffix(acc, "\n") {
		return Frame{}, false
	}
	if strings.TrimSpace(acc[len(acc)-tailLen:]) != frameDone {
		return Frame{}, false
	}
	i := strings.LastIndex(acc, frameStart)
	if i < 0 {
		return Frame{}, false
	}
	b.buf.Reset()
	if strings.Contains(acc, stoppedMarker) {
		return Frame{Kind: FrameStopped}, true
	}
	text := acc[i:]
	if strings.TrimRight(text, "\r\n") == strings.TrimRight(ErrorFrame, "\r\n") {
		return Frame{Kind: FrameError, Text: text}, true
	}
	return Frame{Kind: FrameStatus, Text: text}, true
}

// Reset drops any partial output.
func (b *FrameBuffer) Reset() { b.buf.Reset() }

// Len is the number of buffered bytes.
func (b *FrameBuffer) Len() int { return b.buf.Len() }
