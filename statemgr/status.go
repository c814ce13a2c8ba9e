package statemgr

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// The persisted status is a single line mirrored into every status
// directory: <layout version>,<mode>,<unix millis of last change>.
const (
	statusFileName      = "BOOKIE_STATUS"
	statusLayoutVersion = 1

	statusModeWritable = "WRITABLE"
	statusModeReadOnly = "READONLY"
)

// Status is the bookie's persisted read-only/writable state. Mode
// switches are compare-and-swap so callers can tell whether a change
// actually occurred. Reads and writes of the directories are
// best-effort; a directory that cannot be read or written is logged
// and skipped.
type Status struct {
	readOnly atomic.Bool
}

func NewStatus() *Status {
	return &Status{}
}

func (s *Status) IsReadOnlyMode() bool {
	return s.readOnly.Load()
}

// SetToReadOnlyMode switches the status to read-only and reports
// whether a change occurred.
func (s *Status) SetToReadOnlyMode() bool {
	return s.readOnly.CompareAndSwap(false, true)
}

// SetToWritableMode switches the status to writable and reports
// whether a change occurred.
func (s *Status) SetToWritableMode() bool {
	return s.readOnly.CompareAndSwap(true, false)
}

// ReadFromDirectories restores the status from the newest parseable
// status file across dirs. If no directory holds a readable status,
// the current state is left untouched.
func (s *Status) ReadFromDirectories(dirs []string) {
	var newest int64 = -1
	readOnly := false

	for _, dir := range dirs {
		ro, ts, err := readStatusFile(filepath.Join(dir, statusFileName))
		if err != nil {
			if !os.IsNotExist(err) {
				log.Printf("Failed to read bookie status from %s: %v", dir, err)
			}
			continue
		}
		if ts > newest {
			newest = ts
			readOnly = ro
		}
	}

	if newest < 0 {
		return
	}
	s.readOnly.Store(readOnly)
}

// WriteToDirectories mirrors the current status into every directory.
func (s *Status) WriteToDirectories(dirs []string) {
	mode := statusModeWritable
	if s.readOnly.Load() {
		mode = statusModeReadOnly
	}
	line := fmt.Sprintf("%d,%s,%d\n", statusLayoutVersion, mode, time.Now().UnixMilli())

	for _, dir := range dirs {
		path := filepath.Join(dir, statusFileName)
		if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
			log.Printf("Failed to write bookie status to %s: %v", dir, err)
		}
	}
}

func readStatusFile(path string) (readOnly bool, timestamp int64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, 0, err
	}

	parts := strings.Split(strings.TrimSpace(string(data)), ",")
	if len(parts) != 3 {
		return false, 0, fmt.Errorf("malformed status file %s: %q", path, strings.TrimSpace(string(data)))
	}

	version, err := strconv.Atoi(parts[0])
	if err != nil || version != statusLayoutVersion {
		return false, 0, fmt.Errorf("unsupported status layout version in %s: %q", path, parts[0])
	}

	switch parts[1] {
	case statusModeWritable:
		readOnly = false
	case statusModeReadOnly:
		readOnly = true
	default:
		return false, 0, fmt.Errorf("unknown status mode in %s: %q", path, parts[1])
	}

	timestamp, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return false, 0, fmt.Errorf("malformed status timestamp in %s: %q", path, parts[2])
	}

	return readOnly, timestamp, nil
}
