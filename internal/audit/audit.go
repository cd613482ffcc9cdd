// Package audit is an additive, non-authoritative trail of completed
// Orchestrator sequences. It never participates in the reload barrier's
// rollback decision; a failure to append is logged and swallowed.
package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/nubictl/nubi/internal/logging"
	"github.com/nubictl/nubi/internal/model"
)

const maxEntries = 500

// Log appends AuditEvent records to a JSON-lines file, pruning to the most
// recent maxEntries on every write.
type Log struct {
	mu   sync.Mutex
	path string
}

func New(dataDir string) *Log {
	return &Log{path: filepath.Join(dataDir, "audit.jsonl")}
}

// Append records one event. Errors are logged, not returned, per the
// audit trail's "never gates the barrier" rule.
func (l *Log) Append(ev model.AuditEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readAll()
	if err != nil {
		logging.WithFields(map[string]interface{}{"error": err}).Warn("audit: read failed, starting fresh")
		entries = nil
	}
	entries = append(entries, ev)
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}

	if err := l.writeAll(entries); err != nil {
		logging.WithFields(map[string]interface{}{"error": err}).Warn("audit: write failed")
	}
}

// Recent returns up to maxEntries most recent events, oldest first.
func (l *Log) Recent() []model.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readAll()
	if err != nil {
		return nil
	}
	return entries
}

func (l *Log) readAll() ([]model.AuditEvent, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []model.AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev model.AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, scanner.Err()
}

func (l *Log) writeAll(entries []model.AuditEvent) error {
	tmp := l.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, ev := range entries {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}
