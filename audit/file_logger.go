package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

var _ Logger = (*FileLogger)(nil)

// FileLogger appends audit events to a JSONL file. Recent events are cached
// in memory so small time-bounded queries avoid re-reading the file.
type FileLogger struct {
	file       *os.File
	mu         sync.RWMutex
	config     *Config
	fileOpts   FileOptions
	eventCache []Event
	cacheSize  int
}

type FileOptions struct {
	FilePath string `json:"file_path"`
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(config *Config) (*FileLogger, error) {
	var fileOpts FileOptions
	if err := parseOptions(config.Options, &fileOpts); err != nil {
		return nil, fmt.Errorf("invalid file logger options: %w", err)
	}

	if fileOpts.FilePath == "" {
		return nil, fmt.Errorf("file_path is required for file logger")
	}

	if err := os.MkdirAll(filepath.Dir(fileOpts.FilePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(fileOpts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &FileLogger{
		file:       file,
		config:     config,
		fileOpts:   fileOpts,
		eventCache: make([]Event, 0),
		cacheSize:  1000,
	}, nil
}

// Log implements the Logger interface
func (fl *FileLogger) Log(action string, success bool, metadata map[string]interface{}) error {
	event := Event{
		ID:        generateEventID(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Success:   success,
		Metadata:  metadata,
	}

	if errVal, ok := metadata["error"].(string); ok {
		event.Error = errVal
	}
	if pathVal, ok := metadata["path"].(string); ok {
		event.Path = pathVal
	}

	return fl.writeEvent(event)
}

func (fl *FileLogger) writeEvent(event Event) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if err := fl.ensureFileOpen(); err != nil {
		return err
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize audit event: %w", err)
	}

	if _, err = fl.file.WriteString(string(eventJSON) + "\n"); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	if err = fl.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit log: %w", err)
	}

	fl.eventCache = append(fl.eventCache, event)
	if len(fl.eventCache) > fl.cacheSize {
		fl.eventCache = fl.eventCache[len(fl.eventCache)-fl.cacheSize:]
	}

	return nil
}

func (fl *FileLogger) ensureFileOpen() error {
	if fl.file != nil {
		return nil
	}

	file, err := os.OpenFile(fl.fileOpts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to reopen audit log file: %w", err)
	}
	fl.file = file
	return nil
}

// Query reads matching events back, newest first.
func (fl *FileLogger) Query(options QueryOptions) (QueryResult, error) {
	fl.mu.RLock()
	defer fl.mu.RUnlock()

	file, err := os.Open(fl.fileOpts.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return QueryResult{Events: []Event{}}, nil
		}
		return QueryResult{}, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() { _ = file.Close() }()

	var all []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			// Skip unparseable lines rather than failing the whole query.
			continue
		}
		all = append(all, event)
	}
	if err := scanner.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("failed to scan audit log: %w", err)
	}

	var filtered []Event
	for _, event := range all {
		if matchesFilter(event, options) {
			filtered = append(filtered, event)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})

	total := len(filtered)
	if options.Offset > 0 {
		if options.Offset >= len(filtered) {
			filtered = nil
		} else {
			filtered = filtered[options.Offset:]
		}
	}
	hasMore := false
	if options.Limit > 0 && len(filtered) > options.Limit {
		filtered = filtered[:options.Limit]
		hasMore = true
	}

	return QueryResult{
		Events:     filtered,
		TotalCount: len(all),
		Filtered:   total,
		HasMore:    hasMore,
	}, nil
}

func matchesFilter(event Event, options QueryOptions) bool {
	if options.Action != "" && event.Action != options.Action {
		return false
	}
	if options.Success != nil && event.Success != *options.Success {
		return false
	}
	if options.Since != nil && event.Timestamp.Before(*options.Since) {
		return false
	}
	if options.Until != nil && event.Timestamp.After(*options.Until) {
		return false
	}
	return true
}

func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file == nil {
		return nil
	}
	err := fl.file.Close()
	fl.file = nil
	return err
}
