package statemgr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_ModeSwitchesReportChanges(t *testing.T) {
	s := NewStatus()

	assert.False(t, s.IsReadOnlyMode())
	assert.False(t, s.SetToWritableMode(), "already writable")

	assert.True(t, s.SetToReadOnlyMode())
	assert.True(t, s.IsReadOnlyMode())
	assert.False(t, s.SetToReadOnlyMode(), "already read-only")

	assert.True(t, s.SetToWritableMode())
	assert.False(t, s.IsReadOnlyMode())
}

func TestStatus_RoundTripAcrossDirectories(t *testing.T) {
	dirs := []string{t.TempDir(), t.TempDir()}

	s := NewStatus()
	s.SetToReadOnlyMode()
	s.WriteToDirectories(dirs)

	for _, dir := range dirs {
		assert.FileExists(t, filepath.Join(dir, statusFileName))
	}

	restored := NewStatus()
	restored.ReadFromDirectories(dirs)
	assert.True(t, restored.IsReadOnlyMode())
}

func TestStatus_NewestStatusWins(t *testing.T) {
	older := t.TempDir()
	newer := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(older, statusFileName), []byte("1,READONLY,100\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(newer, statusFileName), []byte("1,WRITABLE,200\n"), 0o644))

	s := NewStatus()
	s.SetToReadOnlyMode()
	s.ReadFromDirectories([]string{older, newer})

	assert.False(t, s.IsReadOnlyMode())
}

func TestStatus_CorruptFileSkipped(t *testing.T) {
	corrupt := t.TempDir()
	valid := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(corrupt, statusFileName), []byte("garbage\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(valid, statusFileName), []byte("1,READONLY,100\n"), 0o644))

	s := NewStatus()
	s.ReadFromDirectories([]string{corrupt, valid})

	assert.True(t, s.IsReadOnlyMode())
}

func TestStatus_UnsupportedLayoutVersionSkipped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, statusFileName), []byte("2,READONLY,100\n"), 0o644))

	s := NewStatus()
	s.ReadFromDirectories([]string{dir})

	assert.False(t, s.IsReadOnlyMode())
}

func TestStatus_MissingFilesKeepCurrentState(t *testing.T) {
	s := NewStatus()
	s.SetToReadOnlyMode()

	s.ReadFromDirectories([]string{t.TempDir(), t.TempDir()})

	assert.True(t, s.IsReadOnlyMode(), "no readable status should leave the state untouched")
}
