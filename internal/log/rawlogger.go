package log

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"
)

// RawLogger dumps bulk traffic exchanged with the boot monitor.
type RawLogger interface {
	Log(toDevice bool, endpoint uint8, data []byte)
}

type rawLogger struct {
	w  io.Writer
	mu sync.Mutex
}

// NewRaw creates a new RawLogger. If writer is nil, returns a no-op logger.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w}
}

// Log emits a single-line hex dump with timestamp, direction and endpoint.
// SAM-BA commands are ASCII, so a printable rendering follows the hex.
func (r *rawLogger) Log(toDevice bool, endpoint uint8, data []byte) {
	if len(data) == 0 || r.w == nil {
		return
	}

	dir := "D->H"
	if toDevice {
		dir = "H->D"
	}

	var hexbuf, text bytes.Buffer
	const hexdigits = "0123456789abcdef"
	for i, b := range data {
		if i > 0 {
			hexbuf.WriteByte(' ')
		}
		hexbuf.WriteByte(hexdigits[b>>4])
		hexbuf.WriteByte(hexdigits[b&0x0f])
		if b >= 0x20 && b < 0x7f {
			text.WriteByte(b)
		} else {
			text.WriteByte('.')
		}
	}

	line := fmt.Sprintf("%s %s ep 0x%02x: %d bytes, hex: %s |%s|\n",
		time.Now().Format("2006/01/02 15:04:05.000"),
		dir,
		endpoint,
		len(data),
		hexbuf.String(),
		text.String())

	r.mu.Lock()
	_, _ = r.w.Write([]byte(line))
	r.mu.Unlock()
}
