package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/madness-retro/madness/internal/types"
)

// maxEventLine bounds a single evolution log line.
const maxEventLine = 1 << 20

// EvolutionLog is the append-only audit trail of asset state changes.
// Many components append to it; nothing rewrites it.
type EvolutionLog struct {
	path  string
	now   func() time.Time
	newID func() string
}

// NewEvolutionLog opens the log in memoryDir. The file is created on first append.
func NewEvolutionLog(memoryDir string) *EvolutionLog {
	return &EvolutionLog{
		path:  filepath.Join(memoryDir, EvolutionFile),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// WithClock returns a copy of the log using now for timestamps.
func (l *EvolutionLog) WithClock(now func() time.Time) *EvolutionLog {
	c := *l
	c.now = now
	return &c
}

// Path returns the log file path.
func (l *EvolutionLog) Path() string {
	return l.path
}

// Append stamps the event with an ID, a UTC timestamp and today's review
// period where missing, then appends it as one line.
func (l *EvolutionLog) Append(e types.EvolutionEvent) (types.EvolutionEvent, error) {
	if _, err := types.ParseEventKind(string(e.Event)); err != nil {
		return e, err
	}
	now := l.now().UTC()
	if e.ID == "" {
		e.ID = l.newID()
	}
	if e.Timestamp == "" {
		e.Timestamp = now.Format(time.RFC3339Nano)
	}
	if e.ReviewPeriod == "" {
		e.ReviewPeriod = now.Format(types.DateLayout)
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	if err := AppendJSONL(l.path, e); err != nil {
		return e, fmt.Errorf("append evolution event: %w", err)
	}
	return e, nil
}

// ReadAll returns every event in file order. Malformed lines are skipped;
// a missing log is empty.
func (l *EvolutionLog) ReadAll() (events []types.EvolutionEvent, err error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e types.EvolutionEvent
		if err := json.Unmarshal(line, &e); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, e)
	}
	return events, scanner.Err()
}

// ForAsset returns the events recorded against one asset, oldest first.
func (l *EvolutionLog) ForAsset(assetID string) ([]types.EvolutionEvent, error) {
	all, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []types.EvolutionEvent
	for _, e := range all {
		if e.AssetID == assetID {
			out = append(out, e)
		}
	}
	return out, nil
}
