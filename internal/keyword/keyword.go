// Package keyword extracts normalized content keywords from mixed-script text.
//
// The same extractor backs every overlap computation in the matcher, the
// compliance classifier and the inline session validator, so scores stay
// comparable across the batch and inline paths.
package keyword

import (
	"regexp"
	"sort"
	"strings"
)

// MinLength is the shortest token kept.
const MinLength = 2

var (
	// Runs of two or more CJK ideographs are kept verbatim.
	ideographRun = regexp.MustCompile(`[\x{4e00}-\x{9fff}]{2,}`)

	// Identifier-like alphabetic runs are case-folded.
	alphaRun = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]+`)
)

var ideographStopWords = newSet(
	"的", "了", "在", "是", "我", "有", "和", "就", "不", "人",
	"都", "一", "一个", "上", "也", "很", "到", "说", "要", "去",
	"你", "会", "着", "没有", "看", "好", "自己", "这", "他", "她",
	"那", "被", "从", "对", "以", "但", "可以", "什么", "如果",
	"能", "还", "吗", "把", "让", "给", "用", "它", "做", "这个",
	"那个", "已经", "或者", "而且", "因为", "所以", "然后", "虽然",
	"但是", "不是", "可能", "应该", "需要", "进行", "使用",
	"通过", "其他", "这些", "那些", "这样", "那样",
)

var alphaStopWords = newSet(
	"the", "a", "an", "is", "are", "was", "were", "be", "been",
	"being", "have", "has", "had", "do", "does", "did", "will",
	"would", "could", "should", "may", "might", "can", "shall",
	"to", "of", "in", "for", "on", "with", "at", "by", "from",
	"as", "into", "through", "during", "before", "after", "and",
	"but", "or", "nor", "not", "so", "if", "then", "else", "when",
	"up", "out", "about", "it", "its", "this", "that", "these",
	"those", "each", "every", "all", "any", "both", "few", "more",
	"most", "other", "some", "such", "no", "only", "same", "than",
	"too", "very",
)

// Set is an unordered collection of keywords.
type Set map[string]struct{}

func newSet(words ...string) Set {
	s := make(Set, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

// Extract tokenizes text into a keyword set. Empty text yields an empty set.
func Extract(text string) Set {
	out := Set{}
	if text == "" {
		return out
	}
	for _, w := range ideographRun.FindAllString(text, -1) {
		if _, stop := ideographStopWords[w]; !stop {
			out[w] = struct{}{}
		}
	}
	for _, w := range alphaRun.FindAllString(text, -1) {
		w = strings.ToLower(w)
		if _, stop := alphaStopWords[w]; !stop {
			out[w] = struct{}{}
		}
	}
	return out
}

// ExtractAll unions the keyword sets of every text.
func ExtractAll(texts ...string) Set {
	out := Set{}
	for _, t := range texts {
		out.Add(Extract(t))
	}
	return out
}

// Add merges other into s.
func (s Set) Add(other Set) {
	for w := range other {
		s[w] = struct{}{}
	}
}

// Has reports whether w is in the set.
func (s Set) Has(w string) bool {
	_, ok := s[w]
	return ok
}

// Intersect returns the keywords present in both sets.
func (s Set) Intersect(other Set) Set {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	out := Set{}
	for w := range small {
		if _, ok := large[w]; ok {
			out[w] = struct{}{}
		}
	}
	return out
}

// Overlaps reports whether the two sets share at least one keyword.
func (s Set) Overlaps(other Set) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for w := range small {
		if _, ok := large[w]; ok {
			return true
		}
	}
	return false
}

// Sorted returns the keywords in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for w := range s {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
