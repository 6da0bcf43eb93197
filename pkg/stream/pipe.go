// Package stream implements the SSE pass-through pipe: a back-pressured
// transform that forwards upstream bytes to the client verbatim while
// assembling a parseable capture of the streamed completion in parallel.
package stream

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/axongate/axon/pkg/models"
)

// doneSentinel is the OpenAI end-of-stream marker payload.
const doneSentinel = "[DONE]"

// Capture is the parsed view of a completed SSE session.
type Capture struct {
	// Content is the concatenation of every choices[0].delta.content.
	Content string
	// Chunks holds every parsed event payload in arrival order.
	Chunks []models.Body
	// Usage is the last non-null usage object seen, if any.
	Usage map[string]interface{}
}

// Pipe forwards each written chunk to the downstream writer immediately
// and feeds a copy to the event parser. Downstream writes are
// synchronous, so a slow client naturally pauses the upstream copy loop
// (back-pressure). Parser failures are contained: they never affect the
// forwarded byte stream.
type Pipe struct {
	dst        io.Writer
	flusher    http.Flusher
	onComplete func(*Capture)

	buf        bytes.Buffer
	capture    Capture
	parserDead bool
	finished   bool
}

// NewPipe creates a Pipe writing to dst. If dst implements
// http.Flusher, each chunk is flushed as soon as it is written.
// onComplete may be nil.
func NewPipe(dst io.Writer, onComplete func(*Capture)) *Pipe {
	p := &Pipe{dst: dst, onComplete: onComplete}
	if f, ok := dst.(http.Flusher); ok {
		p.flusher = f
	}
	return p
}

// Write forwards the chunk downstream, then parses it. The returned
// error reflects only the downstream write; parsing cannot fail the
// stream.
func (p *Pipe) Write(chunk []byte) (int, error) {
	n, err := p.dst.Write(chunk)
	if p.flusher != nil {
		p.flusher.Flush()
	}
	p.feed(chunk[:n])
	return n, err
}

// Pump copies src through the pipe until EOF, then finishes the
// capture. The copy is chunk-by-chunk with no internal buffering beyond
// the read buffer, preserving first-byte latency and back-pressure.
func (p *Pipe) Pump(src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := p.Write(buf[:n]); writeErr != nil {
				p.Finish()
				return writeErr
			}
		}
		if readErr != nil {
			p.Finish()
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}

// Finish flushes any trailing unterminated event into the capture and
// invokes the completion callback exactly once.
func (p *Pipe) Finish() {
	if p.finished {
		return
	}
	p.finished = true
	if p.buf.Len() > 0 {
		p.parseEvent(p.buf.String())
		p.buf.Reset()
	}
	if p.onComplete != nil {
		p.onComplete(&p.capture)
	}
}

// Capture returns the capture assembled so far.
func (p *Pipe) Capture() *Capture {
	return &p.capture
}

// feed appends a chunk to the parse buffer and consumes complete
// events. Any panic in parsing permanently disables the parser for this
// pipe; forwarding continues untouched.
func (p *Pipe) feed(chunk []byte) {
	if p.parserDead {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.parserDead = true
			slog.Warn("SSE capture parser disabled after panic", "panic", r)
		}
	}()

	p.buf.Write(chunk)
	for {
		raw := p.buf.Bytes()
		idx := bytes.Index(raw, []byte("\n\n"))
		if idx < 0 {
			return
		}
		event := string(raw[:idx])
		p.buf.Next(idx + 2)
		p.parseEvent(event)
	}
}

// parseEvent extracts the data payload of one SSE event and folds it
// into the capture. [DONE] sentinels and malformed payloads are skipped.
func (p *Pipe) parseEvent(event string) {
	var data strings.Builder
	for _, line := range strings.Split(event, "\n") {
		line = strings.TrimSuffix(line, "\r")
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		if data.Len() > 0 {
			data.WriteByte('\n')
		}
		data.WriteString(strings.TrimSpace(payload))
	}

	payload := data.String()
	if payload == "" || payload == doneSentinel {
		return
	}

	var chunk models.Body
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return
	}

	p.capture.Chunks = append(p.capture.Chunks, chunk)
	p.capture.Content += chunk.FirstChoiceDeltaContent()
	if usage := chunk.Usage(); usage != nil {
		p.capture.Usage = usage
	}
}
