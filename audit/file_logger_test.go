package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileLogger(t *testing.T) *FileLogger {
	t.Helper()

	logger, err := NewFileLogger(&Config{
		Enabled: true,
		Type:    FileAuditType,
		Options: map[string]interface{}{
			"file_path": filepath.Join(t.TempDir(), "audit.log"),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })

	return logger
}

func TestFileLoggerLogAndQuery(t *testing.T) {
	logger := newTestFileLogger(t)

	require.NoError(t, logger.Log("encrypt_file", true, map[string]interface{}{
		"path":      "/sandbox/input/a.txt",
		"data_size": 5,
	}))
	require.NoError(t, logger.Log("decrypt_file", false, map[string]interface{}{
		"error": "authentication failed",
	}))

	result, err := logger.Query(QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalCount)
	assert.Len(t, result.Events, 2)

	// Newest first.
	assert.Equal(t, "decrypt_file", result.Events[0].Action)
	assert.Equal(t, "authentication failed", result.Events[0].Error)
	assert.Equal(t, "/sandbox/input/a.txt", result.Events[1].Path)
}

func TestFileLoggerQueryFilters(t *testing.T) {
	logger := newTestFileLogger(t)

	require.NoError(t, logger.Log("encrypt_file", true, nil))
	require.NoError(t, logger.Log("encrypt_file", false, nil))
	require.NoError(t, logger.Log("unlock_escrow", false, nil))

	byAction, err := logger.Query(QueryOptions{Action: "encrypt_file"})
	require.NoError(t, err)
	assert.Equal(t, 2, byAction.Filtered)

	failures := false
	byOutcome, err := logger.Query(QueryOptions{Success: &failures})
	require.NoError(t, err)
	assert.Equal(t, 2, byOutcome.Filtered)

	limited, err := logger.Query(QueryOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited.Events, 1)
	assert.True(t, limited.HasMore)
}

func TestFileLoggerRequiresFilePath(t *testing.T) {
	_, err := NewFileLogger(&Config{Enabled: true, Type: FileAuditType})
	assert.Error(t, err)
}

func TestNewLoggerDisabled(t *testing.T) {
	logger, err := NewLogger(nil)
	require.NoError(t, err)
	_, ok := logger.(*NoOpLogger)
	assert.True(t, ok)

	logger, err = NewLogger(&Config{Enabled: false})
	require.NoError(t, err)
	_, ok = logger.(*NoOpLogger)
	assert.True(t, ok)
}

func TestNewLoggerUnknownType(t *testing.T) {
	_, err := NewLogger(&Config{Enabled: true, Type: "database"})
	assert.Error(t, err)
}
