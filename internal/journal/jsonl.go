package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"liquidityForge/internal/model"
)

// jsonlMaxBatch caps how many events one write passes through the encoder
// before forcing a flush, bounding buffered memory for oversized batches.
const jsonlMaxBatch = 256

// JsonlSink appends economy events to a JSONL file. The file is opened on
// first write and the handle reused across batches; Close releases it.
type JsonlSink struct {
	path     string
	maxBatch int

	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

func NewJsonlSink(path string) *JsonlSink {
	return &JsonlSink{path: path, maxBatch: jsonlMaxBatch}
}

// NewBoundedJsonlSink overrides the per-write batch bound. maxBatch <= 0
// falls back to the default.
func NewBoundedJsonlSink(path string, maxBatch int) *JsonlSink {
	if maxBatch <= 0 {
		maxBatch = jsonlMaxBatch
	}
	return &JsonlSink{path: path, maxBatch: maxBatch}
}

// open creates the parent directory and the append-mode handle. Callers
// hold s.mu.
func (s *JsonlSink) open() error {
	if s.file != nil {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	s.file = file
	s.w = bufio.NewWriter(file)
	return nil
}

// PutEventBatch appends the events as JSON lines, flushing after every
// maxBatch events. A batch that returns nil is on disk.
func (s *JsonlSink) PutEventBatch(events []model.EconomyEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.open(); err != nil {
		return err
	}

	enc := json.NewEncoder(s.w)
	for len(events) > 0 {
		chunk := events
		if len(chunk) > s.maxBatch {
			chunk = chunk[:s.maxBatch]
		}
		events = events[len(chunk):]

		for _, event := range chunk {
			if err := enc.Encode(event); err != nil {
				return fmt.Errorf("encode event %d: %w", event.Seq, err)
			}
		}
		if err := s.w.Flush(); err != nil {
			return fmt.Errorf("flush journal: %w", err)
		}
	}
	return nil
}

// Close flushes buffered output and releases the file handle. The sink is
// reusable afterwards; the next write reopens the file.
func (s *JsonlSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	s.file = nil
	s.w = nil
	if flushErr != nil {
		return fmt.Errorf("flush journal: %w", flushErr)
	}
	return closeErr
}
