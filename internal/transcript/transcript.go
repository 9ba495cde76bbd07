// Package transcript reads session transcripts written as JSONL and locates
// the most recent one for a project.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/madness-retro/madness/internal/types"
)

// DefaultMaxLineSize bounds a single transcript line. Tool results can be
// large, so this is well above the usual scanner limit.
const DefaultMaxLineSize = 8 * 1024 * 1024

// transcriptPattern matches session files directly inside a project folder.
const transcriptPattern = "*.jsonl"

// Reader parses transcript streams.
type Reader struct {
	// MaxLineSize is the longest line accepted before the scan fails.
	MaxLineSize int
}

// NewReader creates a reader with default settings.
func NewReader() *Reader {
	return &Reader{MaxLineSize: DefaultMaxLineSize}
}

// Result holds the messages of one transcript.
type Result struct {
	Messages       []types.TranscriptMessage
	TotalLines     int
	MalformedLines int
	Path           string
}

// Text joins the text of every message, one per line.
func (r *Result) Text() string {
	parts := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "\n")
}

// rawLine is the subset of a transcript line we read.
type rawLine struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
}

// rawBody is the object form of a message.
type rawBody struct {
	Content json.RawMessage `json:"content"`
}

// rawBlock is one structured content block.
type rawBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Read parses JSONL from r. Lines that are not JSON objects, or whose message
// has an unexpected shape, are counted as malformed and skipped. Lines
// without a message are ignored.
func (rd *Reader) Read(r io.Reader) (*Result, error) {
	result := &Result{Messages: make([]types.TranscriptMessage, 0)}

	maxLine := rd.MaxLineSize
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, maxLine)), maxLine)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		result.TotalLines = lineNum

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg, err := parseLine(line, lineNum)
		if err != nil {
			result.MalformedLines++
			continue
		}
		if msg != nil {
			result.Messages = append(result.Messages, *msg)
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("scan transcript: %w", err)
	}
	return result, nil
}

// ReadFile parses a transcript file by path.
func (rd *Reader) ReadFile(path string) (result *Result, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	result, err = rd.Read(f)
	if result != nil {
		result.Path = path
	}
	return result, err
}

// ReadText returns the joined message text of the transcript at path.
func ReadText(path string) (string, error) {
	result, err := NewReader().ReadFile(path)
	if err != nil {
		return "", err
	}
	return result.Text(), nil
}

func parseLine(line []byte, lineNum int) (*types.TranscriptMessage, error) {
	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(raw.Message) == 0 || string(raw.Message) == "null" {
		return nil, nil
	}

	text, err := messageText(raw.Message)
	if err != nil {
		return nil, err
	}
	return &types.TranscriptMessage{
		Type:      raw.Type,
		Timestamp: parseTimestamp(raw.Timestamp),
		Text:      text,
		Index:     lineNum,
	}, nil
}

// messageText flattens a message that is either a plain string or an object
// whose content is a string or a list of strings and text blocks.
func messageText(msg json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return s, nil
	}

	var body rawBody
	if err := json.Unmarshal(msg, &body); err != nil {
		return "", fmt.Errorf("message: %w", err)
	}
	if len(body.Content) == 0 || string(body.Content) == "null" {
		return "", nil
	}
	if err := json.Unmarshal(body.Content, &s); err == nil {
		return s, nil
	}

	var blocks []json.RawMessage
	if err := json.Unmarshal(body.Content, &blocks); err != nil {
		// Neither string nor list: nothing to read.
		return "", nil
	}
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if err := json.Unmarshal(b, &s); err == nil {
			parts = append(parts, s)
			continue
		}
		var block rawBlock
		if err := json.Unmarshal(b, &block); err == nil && block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if ts, err := time.Parse(format, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// ProjectKey is the folder name transcripts of projectDir are stored under:
// the absolute path with every separator replaced by "-".
func ProjectKey(projectDir string) (string, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}
	return strings.ReplaceAll(filepath.ToSlash(abs), "/", "-"), nil
}

// FindLatest returns the most recently modified transcript of projectDir
// under transcriptsDir.
func FindLatest(transcriptsDir, projectDir string) (string, error) {
	key, err := ProjectKey(projectDir)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(transcriptsDir, key)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w in %s", ErrNoTranscript, dir)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), transcriptPattern)
	if err != nil {
		return "", fmt.Errorf("glob transcripts: %w", err)
	}

	var latest string
	var latestMod time.Time
	for _, name := range matches {
		full := filepath.Join(dir, name)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		if latest == "" || !info.ModTime().Before(latestMod) {
			latest, latestMod = full, info.ModTime()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%w in %s", ErrNoTranscript, dir)
	}
	return latest, nil
}
