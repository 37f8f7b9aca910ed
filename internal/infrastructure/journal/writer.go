// Package journal is the append-only activity journal: every published
// domain event is written as one JSON line to hourly zstd-compressed
// segment files, which can be replayed in order.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/observability"
	"github.com/heritage-hub/heritage-engine/pkg/timeutil"
)

// DefaultPrefix names segment files: <prefix>-<hour>.jsonl.zst.
const DefaultPrefix = "activity"

// ErrClosed is returned when appending to a closed writer.
var ErrClosed = errors.New("journal: writer closed")

// Entry is one journal line.
type Entry struct {
	// Seq - position within this writer's lifetime, starting at 1.
	Seq uint64 `json:"seq"`

	// IdempotencyKey - set for activity events.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	Event shared.EventEnvelope `json:"event"`
}

// Writer appends entries to the current hour's segment.
type Writer struct {
	dir     string
	prefix  string
	clock   timeutil.Clock
	metrics *observability.Metrics

	mu      sync.Mutex
	seq     uint64
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	closed  bool
}

// NewWriter creates a writer for dir. Segments are opened lazily.
func NewWriter(dir, prefix string, clock timeutil.Clock, metrics *observability.Metrics) *Writer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Writer{dir: dir, prefix: prefix, clock: clock, metrics: metrics}
}

// Append writes one event. Each line is flushed through the encoder so a
// crash loses at most the current zstd block.
func (w *Writer) Append(event shared.Event) error {
	env, err := shared.NewEventEnvelope(event)
	if err != nil {
		return fmt.Errorf("journal: encode event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	hour := timeutil.HourKey(w.clock.Now())
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	w.seq++
	entry := Entry{Seq: w.seq, Event: env}
	if ar, ok := event.(shared.ActivityRecordedEvent); ok {
		entry.IdempotencyKey = ar.IdempotencyKey
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	if err := w.enc.Flush(); err != nil {
		return err
	}

	w.metrics.JournalWritten(len(b) + 1)
	return nil
}

// Handler adapts the writer to an event bus subscription.
func (w *Writer) Handler() shared.EventHandler {
	return w.Append
}

// Close finishes the current segment.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	return w.closeLocked()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(SegmentPath(w.dir, w.prefix, hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		err = w.w.Flush()
	}
	if w.enc != nil {
		err = errors.Join(err, w.enc.Close())
		w.enc = nil
	}
	if w.f != nil {
		err = errors.Join(err, w.f.Close())
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

// SegmentPath returns the file of one hour's segment.
func SegmentPath(dir, prefix, hour string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.jsonl.zst", prefix, hour))
}
