package intercept

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
)

const pumpBufferSize = 32 * 1024

// StreamError wraps a failure reading the upstream response body. The
// consumer of a piped body sees it from Read.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string { return "upstream stream: " + e.Err.Error() }
func (e *StreamError) Unwrap() error { return e.Err }

// pipeResponse returns a copy of resp whose body re-emits the upstream body
// chunk by chunk as it arrives. observe, if set, sees every chunk before it
// is forwarded and must not retain it.
func pipeResponse(resp *http.Response, observe func([]byte)) *http.Response {
	if resp.Body == nil || resp.Body == http.NoBody {
		return resp
	}

	pr, pw := io.Pipe()
	upstream := resp.Body
	var once sync.Once
	closeUpstream := func() {
		once.Do(func() { _ = upstream.Close() })
	}

	go func() {
		defer closeUpstream()
		buf := make([]byte, pumpBufferSize)
		for {
			n, err := upstream.Read(buf)
			if n > 0 {
				if observe != nil {
					observe(buf[:n])
				}
				// Write blocks until the consumer has read the chunk, so buf is
				// free for reuse afterwards.
				if _, werr := pw.Write(buf[:n]); werr != nil {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				_ = pw.Close()
				return
			}
			if err != nil {
				_ = pw.CloseWithError(&StreamError{Err: err})
				return
			}
		}
	}()

	out := *resp
	out.Body = &pipeBody{PipeReader: pr, closeUpstream: closeUpstream}
	out.ContentLength = -1
	return &out
}

// pipeBody stops the pump when the consumer closes early.
type pipeBody struct {
	*io.PipeReader
	closeUpstream func()
}

func (b *pipeBody) Close() error {
	err := b.PipeReader.Close()
	b.closeUpstream()
	return err
}

// eventObserver splits streamed bytes into "data:" lines and reports each
// payload. Lines may span chunk boundaries. A line longer than
// pumpBufferSize is dropped up to its newline.
type eventObserver struct {
	pending    []byte
	discarding bool
	emit       func(payload string)
}

func newEventObserver(emit func(string)) *eventObserver {
	return &eventObserver{emit: emit}
}

func (o *eventObserver) observe(chunk []byte) {
	o.pending = append(o.pending, chunk...)
	for {
		i := bytes.IndexByte(o.pending, '\n')
		if i < 0 {
			if len(o.pending) > pumpBufferSize {
				o.pending = o.pending[:0]
				o.discarding = true
			}
			return
		}
		line := bytes.TrimSpace(o.pending[:i])
		o.pending = o.pending[i+1:]
		if o.discarding {
			o.discarding = false
			continue
		}
		if payload, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			if p := bytes.TrimSpace(payload); len(p) > 0 {
				o.emit(string(p))
			}
		}
	}
}
