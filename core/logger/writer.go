package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// op is either a line to write or, when ack is set, a flush barrier.
type op struct {
	line []byte
	ack  chan error
}

// asyncWriter fans log lines out to its sinks from a single goroutine.
// Lines and flushes travel through one queue so a flush covers every line
// written before it.
type asyncWriter struct {
	ops   chan op
	done  chan struct{}
	sinks []*bufio.Writer

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		ops:  make(chan op, 256),
		done: make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for o := range w.ops {
		if o.ack != nil {
			o.ack <- w.flush()
			continue
		}
		w.record(w.write(o.line))
	}
	w.record(w.flush())
}

// Write queues a copy of p. It blocks while the queue is full rather than
// dropping lines.
func (w *asyncWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	if err := w.firstErr(); err != nil {
		return err
	}
	w.ops <- op{line: append([]byte(nil), p...)}
	return nil
}

// Flush waits until every line queued so far reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return w.firstErr()
	}
	w.ops <- op{ack: ack}
	w.mu.RUnlock()
	return <-ack
}

// Close drains the queue and returns the first write error seen.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ops)
	}
	w.mu.Unlock()
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) write(line []byte) error {
	for _, s := range w.sinks {
		if _, err := s.Write(line); err != nil {
			return err
		}
		if err := s.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flush() error {
	var errs []error
	for _, s := range w.sinks {
		errs = append(errs, s.Flush())
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) record(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errMu.Unlock()
}

func (w *asyncWriter) firstErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}
