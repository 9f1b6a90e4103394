/*
Copyright 2025 The HonyGo Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package keyword is the single keyword matching implementation used by
// every component that filters recognition output. Callers depend on the
// Matcher interface and select a strategy; nothing else in the repository
// may reimplement matching inline.
package keyword

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/reyisok/HonyGo-1.0/pkg/engine"
	errutil "github.com/reyisok/HonyGo-1.0/pkg/util/error"
)

// Strategy selects how a keyword is compared against recognized text.
type Strategy string

const (
	StrategyExact      Strategy = "exact"
	StrategyContains   Strategy = "contains"
	StrategyFuzzy      Strategy = "fuzzy"
	StrategyRegex      Strategy = "regex"
	StrategySimilarity Strategy = "similarity"
)

// DefaultStrategy is used when a request does not name one.
const DefaultStrategy = StrategyContains

// ParseStrategy validates a strategy name from the wire.
func ParseStrategy(s string) (Strategy, error) {
	if s == "" {
		return DefaultStrategy, nil
	}
	switch Strategy(s) {
	case StrategyExact, StrategyContains, StrategyFuzzy, StrategyRegex, StrategySimilarity:
		return Strategy(s), nil
	}
	return "", errutil.Error{Code: errutil.BadRequest, Msg: fmt.Sprintf("unknown keyword strategy %q", s)}
}

// Match reports one keyword found in recognition output.
type Match struct {
	Keyword     string        `json:"keyword"`
	MatchedText string        `json:"matched_text"`
	Confidence  float64       `json:"confidence"`
	Bounds      engine.Region `json:"bounds"`
	Strategy    Strategy      `json:"strategy"`
	Similarity  float64       `json:"similarity,omitempty"`
}

// Matcher finds keywords in recognition results.
type Matcher interface {
	Match(result engine.Result, keywords []string, strategy Strategy) ([]Match, error)
}

// similarityCacheTTL bounds how long memoized similarity scores are kept.
// Scores are pure functions of their inputs, the TTL only caps memory.
const similarityCacheTTL = 10 * time.Minute

// similarityCacheCapacity caps the memoization table. Expired and evicted
// entries are discarded lazily on access, so the matcher runs no janitor
// goroutine.
const similarityCacheCapacity = 4096

// matcher is the production Matcher. It keeps compiled regular expressions
// and memoizes similarity scores, both safe for concurrent use.
type matcher struct {
	similarityThreshold float64

	regexMu  sync.RWMutex
	patterns map[string]*regexp.Regexp

	similarities *ttlcache.Cache[string, float64]
}

// NewMatcher builds the production matcher. similarityThreshold is the
// minimum ratio for the similarity strategy, in (0, 1].
func NewMatcher(similarityThreshold float64) Matcher {
	if similarityThreshold <= 0 || similarityThreshold > 1 {
		similarityThreshold = 0.8
	}
	m := &matcher{
		similarityThreshold: similarityThreshold,
		patterns:            make(map[string]*regexp.Regexp),
		similarities: ttlcache.New(
			ttlcache.WithTTL[string, float64](similarityCacheTTL),
			ttlcache.WithCapacity[string, float64](similarityCacheCapacity),
			ttlcache.WithDisableTouchOnHit[string, float64](),
		),
	}
	return m
}

func (m *matcher) Match(result engine.Result, keywords []string, strategy Strategy) ([]Match, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	var matches []Match
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		found, err := m.matchOne(result, kw, strategy)
		if err != nil {
			return nil, err
		}
		matches = append(matches, found...)
	}
	return matches, nil
}

func (m *matcher) matchOne(result engine.Result, keyword string, strategy Strategy) ([]Match, error) {
	// Word-level matching gives positional data; fall back to the plain text
	// when the engine produced no word boxes.
	if len(result.Words) == 0 {
		ok, text, sim, err := m.textMatches(result.PlainText, keyword, strategy)
		if err != nil || !ok {
			return nil, err
		}
		return []Match{{Keyword: keyword, MatchedText: text, Strategy: strategy, Similarity: sim}}, nil
	}

	var matches []Match
	for _, w := range result.Words {
		ok, text, sim, err := m.textMatches(w.Text, keyword, strategy)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		matches = append(matches, Match{
			Keyword:     keyword,
			MatchedText: text,
			Confidence:  w.Confidence,
			Bounds:      w.Bounds,
			Strategy:    strategy,
			Similarity:  sim,
		})
	}
	return matches, nil
}

// textMatches applies one strategy. The returned similarity is only set for
// the similarity strategy.
func (m *matcher) textMatches(text, keyword string, strategy Strategy) (bool, string, float64, error) {
	switch strategy {
	case StrategyExact:
		return text == keyword, text, 0, nil
	case StrategyContains:
		return strings.Contains(text, keyword), text, 0, nil
	case StrategyFuzzy:
		nt, nk := normalize(text), normalize(keyword)
		return nk != "" && strings.Contains(nt, nk), text, 0, nil
	case StrategyRegex:
		re, err := m.compile(keyword)
		if err != nil {
			return false, "", 0, err
		}
		loc := re.FindString(text)
		return loc != "", loc, 0, nil
	case StrategySimilarity:
		sim := m.similarity(text, keyword)
		return sim >= m.similarityThreshold, text, sim, nil
	default:
		return false, "", 0, errutil.Error{Code: errutil.BadRequest, Msg: fmt.Sprintf("unknown keyword strategy %q", strategy)}
	}
}

func (m *matcher) compile(pattern string) (*regexp.Regexp, error) {
	m.regexMu.RLock()
	re, ok := m.patterns[pattern]
	m.regexMu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errutil.Error{Code: errutil.BadRequest, Msg: fmt.Sprintf("invalid keyword pattern %q: %v", pattern, err)}
	}
	m.regexMu.Lock()
	m.patterns[pattern] = re
	m.regexMu.Unlock()
	return re, nil
}

func (m *matcher) similarity(a, b string) float64 {
	key := a + "\x00" + b
	if item := m.similarities.Get(key); item != nil {
		return item.Value()
	}
	sim := similarityRatio(normalize(a), normalize(b))
	m.similarities.Set(key, sim, ttlcache.DefaultTTL)
	return sim
}

// normalize lowercases and strips whitespace so that spacing and casing
// differences in OCR output do not defeat fuzzy comparison.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// similarityRatio computes 1 - d/max(len) where d is the Levenshtein
// distance in runes. Two empty strings are fully similar.
func similarityRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	longest := max(len(ra), len(rb))
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
