// Package eventlog provides the controller's append-only audit trail and
// the periodic metrics snapshot consumed by external monitoring viewers.
//
// Writers from the telemetry and protocol tasks enqueue entries; a single
// consumer goroutine serializes them to the log file, so appends never
// contend on file I/O.
package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
)

// Category classifies an audit event.
type Category string

const (
	CategorySystem   Category = "SYSTEM"
	CategorySwitch   Category = "SWITCH"
	CategoryQoS      Category = "QOS"
	CategoryAnomaly  Category = "ANOMALY"
	CategoryFailover Category = "FAILOVER"
	CategoryMonitor  Category = "MONITOR"
)

const timestampLayout = "2006-01-02 15:04:05"

// Log is the append-only event sink. Safe for concurrent writers.
type Log struct {
	clock clock.Clock
	file  *os.File

	mu      sync.RWMutex
	closed  bool
	entries chan string
	done    chan struct{}
}

// Open creates (or appends to) the event log at path and starts the
// writer goroutine.
func Open(path string, clk clock.Clock) (*Log, error) {
	if clk == nil {
		clk = clock.New()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}

	l := &Log{
		clock:   clk,
		file:    f,
		entries: make(chan string, 256),
		done:    make(chan struct{}),
	}
	go l.writeLoop()
	return l, nil
}

// Append records an event. The entry is timestamped at enqueue time and
// written asynchronously; ordering is preserved per writer.
func (l *Log) Append(cat Category, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] %s: %s\n", l.clock.Now().Format(timestampLayout), cat, msg)

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	l.entries <- line
}

// Close drains pending entries and closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.entries)
	l.mu.Unlock()

	<-l.done
	return l.file.Close()
}

func (l *Log) writeLoop() {
	defer close(l.done)
	for line := range l.entries {
		if _, err := l.file.WriteString(line); err != nil {
			log.Errorf("Failed to append event log entry: %v", err)
			continue
		}
		if err := l.file.Sync(); err != nil {
			log.Debugf("Event log sync: %v", err)
		}
	}
}
