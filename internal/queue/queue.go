// Package queue implements the durable pull queue: an append-only JSONL file
// holding pending event records until an HTTP consumer drains them.
package queue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/openclaw/wa-bridge/internal/domain"
)

const fileName = "incoming.jsonl"

// Queue is a FIFO store of event records backed by a single JSONL file.
// A mutex serialises appends against the read-then-truncate drain so an
// in-flight append cannot be lost between the read and the truncate.
type Queue struct {
	mu   sync.Mutex
	path string
}

// New creates the queue directory if needed and returns the queue.
func New(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}
	return &Queue{path: filepath.Join(dir, fileName)}, nil
}

// Path returns the backing file location.
func (q *Queue) Path() string { return q.path }

// Push appends one event as a JSON line, synced to the OS before returning.
func (q *Queue) Push(event domain.Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open queue file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync queue file: %w", err)
	}
	return nil
}

// Peek returns all decodable events in insertion order without draining.
// Malformed lines are skipped.
func (q *Queue) Peek() ([]domain.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.readLocked()
}

// Flush returns all decodable events and truncates the file. The read and
// the truncate happen under the same lock, so a concurrent Push either lands
// before the drain (and is returned) or after (and stays queued).
func (q *Queue) Flush() ([]domain.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	events, err := q.readLocked()
	if err != nil {
		return nil, err
	}
	if err := q.truncateLocked(); err != nil {
		return nil, err
	}
	return events, nil
}

// Clear unconditionally truncates the queue.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.truncateLocked()
}

func (q *Queue) readLocked() ([]domain.Event, error) {
	f, err := os.Open(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.Event{}, nil
		}
		return nil, fmt.Errorf("open queue file: %w", err)
	}
	defer f.Close()

	events := []domain.Event{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event domain.Event
		if err := json.Unmarshal(line, &event); err != nil {
			// Corrupt lines are treated as absent.
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read queue file: %w", err)
	}
	return events, nil
}

func (q *Queue) truncateLocked() error {
	if _, err := os.Stat(q.path); os.IsNotExist(err) {
		return nil
	}
	if err := os.Truncate(q.path, 0); err != nil {
		return fmt.Errorf("truncate queue file: %w", err)
	}
	return nil
}
