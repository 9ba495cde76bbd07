// Package instructions maintains the injected-rule region of an instruction
// document: rendering assets into it, and sweeping deprecated rules out.
//
// Everything outside the two markers belongs to humans and is preserved
// byte for byte.
package instructions

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/madness-retro/madness/internal/storage"
)

const (
	MarkerStart = "<!-- madness:memory-inject start -->"
	MarkerEnd   = "<!-- madness:memory-inject end -->"
)

// ruleHeader matches "# R3 [gene:some-id, c:0.85, v:2]".
var ruleHeader = regexp.MustCompile(`^#\s*R\d+\s*\[(\w+):(.+?),\s*c:([\d.]+),\s*v:(\d+)\]`)

// Rule is one injected rule block as found in a document.
type Rule struct {
	AssetType  string  `json:"asset_type" yaml:"asset_type"`
	AssetID    string  `json:"asset_id" yaml:"asset_id"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Version    int     `json:"version" yaml:"version"`

	// rawConfidence is the confidence exactly as written.
	rawConfidence string
	// body holds the block lines after the header, trailing blanks trimmed.
	body []string
}

// Key identifies the rule's asset as "type:id". IDs are unique only within
// one type.
func (r Rule) Key() string {
	return assetKey(r.AssetType, r.AssetID)
}

func assetKey(assetType, id string) string {
	return assetType + ":" + id
}

// Body returns the block text after the header line.
func (r Rule) Body() string {
	return strings.Join(r.body, "\n")
}

// ParseHeader reads a rule header line. Leading and trailing space is ignored.
func ParseHeader(line string) (Rule, bool) {
	m := ruleHeader.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Rule{}, false
	}
	conf, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Rule{}, false
	}
	version, err := strconv.Atoi(m[4])
	if err != nil {
		return Rule{}, false
	}
	return Rule{
		AssetType:     m[1],
		AssetID:       strings.TrimSpace(m[2]),
		Confidence:    conf,
		Version:       version,
		rawConfidence: m[3],
	}, true
}

func isMarker(line string) bool {
	s := strings.TrimSpace(line)
	return s == MarkerStart || s == MarkerEnd
}

// ParseRules returns the rule blocks of a region in document order. A block
// runs from its header to the next header or marker.
func ParseRules(region string) []Rule {
	var rules []Rule
	var cur *Rule
	flush := func() {
		if cur == nil {
			return
		}
		body := cur.body
		for len(body) > 0 && strings.TrimSpace(body[len(body)-1]) == "" {
			body = body[:len(body)-1]
		}
		cur.body = body
		rules = append(rules, *cur)
		cur = nil
	}

	for _, line := range strings.Split(region, "\n") {
		if r, ok := ParseHeader(line); ok {
			flush()
			cur = &r
			continue
		}
		if isMarker(line) {
			flush()
			continue
		}
		if cur != nil {
			cur.body = append(cur.body, line)
		}
	}
	flush()
	return rules
}

// RulesByID indexes rules by asset ID. A later duplicate wins.
func RulesByID(rules []Rule) map[string]Rule {
	out := make(map[string]Rule, len(rules))
	for _, r := range rules {
		out[r.AssetID] = r
	}
	return out
}

// Document is an instruction document and the location of its region.
type Document struct {
	Path   string
	Text   string
	Exists bool

	// start and end bound the region including both markers; -1 when absent.
	start, end int
	err        error
}

// ParseDocument locates the region in text.
func ParseDocument(text string) *Document {
	d := &Document{Text: text, Exists: true, start: -1, end: -1}
	start := strings.Index(text, MarkerStart)
	end := strings.Index(text, MarkerEnd)
	switch {
	case start == -1 || end == -1:
		d.err = ErrMarkersNotFound
	case end < start:
		d.err = ErrMarkersOutOfOrder
	default:
		d.start, d.end = start, end+len(MarkerEnd)
	}
	return d
}

// ReadDocument loads path. A missing file is an empty document that does
// not exist yet.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Document{Path: path, start: -1, end: -1, err: ErrMarkersNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read instruction document: %w", err)
	}
	d := ParseDocument(string(data))
	d.Path = path
	return d, nil
}

// Region returns the injected-rule region including its markers.
func (d *Document) Region() (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.Text[d.start:d.end], nil
}

// Rules returns the rules currently in the region, or none.
func (d *Document) Rules() []Rule {
	region, err := d.Region()
	if err != nil {
		return nil
	}
	return ParseRules(region)
}

// WithRegion returns the full document text with region in place. A new
// document is just the region; a document without markers gets the region
// appended after one blank line.
func (d *Document) WithRegion(region string) (string, error) {
	switch {
	case !d.Exists:
		return region + "\n", nil
	case d.err == nil:
		return d.Text[:d.start] + region + d.Text[d.end:], nil
	case errors.Is(d.err, ErrMarkersNotFound):
		return strings.TrimRightFunc(d.Text, unicode.IsSpace) + "\n\n" + region + "\n", nil
	default:
		return "", d.err
	}
}

// write replaces the document on disk atomically, copying the previous
// version to <path>.bak first when backup is set.
func (d *Document) write(text string, backup bool) (string, error) {
	var bak string
	if backup && d.Exists {
		bak = d.Path + ".bak"
		if err := storage.CopyFile(d.Path, bak); err != nil {
			return "", fmt.Errorf("backup instruction document: %w", err)
		}
	}
	if err := storage.WriteFileAtomic(d.Path, []byte(text)); err != nil {
		return bak, fmt.Errorf("write instruction document: %w", err)
	}
	return bak, nil
}
