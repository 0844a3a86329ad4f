// Package metrics provides append-only JSONL event logging for the
// substrate's search and sync activity, with a periodic analyzer over
// the same file.
package metrics

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Logger writes metrics events to JSONL file.
type Logger struct {
	file *os.File
	mu   sync.Mutex
}

// NewLogger creates a new metrics logger.
func NewLogger(path string) (*Logger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &Logger{file: file}, nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	return l.file.Close()
}

func (l *Logger) log(event string, data map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := map[string]interface{}{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"event": event,
	}
	for k, v := range data {
		e[k] = v
	}

	line, _ := json.Marshal(e)
	l.file.Write(line)
	l.file.Write([]byte("\n"))
}

// LogSearch logs a search query event.
func (l *Logger) LogSearch(query, queryType string, results int, latencyMs int64, cacheHit bool) {
	l.log("search", map[string]interface{}{
		"query":      query,
		"query_type": queryType,
		"results":    results,
		"latency_ms": latencyMs,
		"cache_hit":  cacheHit,
	})
}

// LogSync logs one file-sync operation.
func (l *Logger) LogSync(path, action string, chunksReplaced, relationships int) {
	l.log("sync", map[string]interface{}{
		"path":          path,
		"action":        action,
		"chunks":        chunksReplaced,
		"relationships": relationships,
	})
}

// LogCacheWrite logs an episodic cache write.
func (l *Logger) LogCacheWrite(scope string, deduplicated, closedBlock bool) {
	l.log("cache_write", map[string]interface{}{
		"scope":        scope,
		"deduplicated": deduplicated,
		"closed_block": closedBlock,
	})
}

// LogIndexUpdate logs a batch index run.
func (l *Logger) LogIndexUpdate(repo string, filesChanged, annotations int) {
	l.log("index_update", map[string]interface{}{
		"repo":          repo,
		"files_changed": filesChanged,
		"annotations":   annotations,
	})
}

// LogError logs an error event.
func (l *Logger) LogError(operation, message string) {
	l.log("error", map[string]interface{}{
		"operation": operation,
		"message":   message,
	})
}
