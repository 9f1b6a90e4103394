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

package keyword

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reyisok/HonyGo-1.0/pkg/engine"
)

func wordResult(words ...string) engine.Result {
	result := engine.Result{}
	for i, w := range words {
		result.Words = append(result.Words, engine.Word{
			Text:       w,
			Bounds:     engine.Region{X: float64(i * 100), Y: 10, Width: 90, Height: 20},
			Confidence: 0.95,
		})
		if i > 0 {
			result.PlainText += " "
		}
		result.PlainText += w
	}
	return result
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input   string
		want    Strategy
		wantErr bool
	}{
		{input: "", want: DefaultStrategy},
		{input: "exact", want: StrategyExact},
		{input: "contains", want: StrategyContains},
		{input: "fuzzy", want: StrategyFuzzy},
		{input: "regex", want: StrategyRegex},
		{input: "similarity", want: StrategySimilarity},
		{input: "soundex", wantErr: true},
	}
	for _, test := range tests {
		t.Run("input="+test.input, func(t *testing.T) {
			got, err := ParseStrategy(test.input)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestMatchStrategies(t *testing.T) {
	m := NewMatcher(0.8)
	result := wordResult("Invoice", "Total:", "1,024.00")

	tests := []struct {
		name        string
		keyword     string
		strategy    Strategy
		wantMatches int
		wantText    string
	}{
		{
			name:        "exact hit",
			keyword:     "Invoice",
			strategy:    StrategyExact,
			wantMatches: 1,
			wantText:    "Invoice",
		},
		{
			name:        "exact is case sensitive",
			keyword:     "invoice",
			strategy:    StrategyExact,
			wantMatches: 0,
		},
		{
			name:        "contains substring",
			keyword:     "Total",
			strategy:    StrategyContains,
			wantMatches: 1,
			wantText:    "Total:",
		},
		{
			name:        "fuzzy ignores case and spacing",
			keyword:     "INVOICE",
			strategy:    StrategyFuzzy,
			wantMatches: 1,
			wantText:    "Invoice",
		},
		{
			name:        "regex",
			keyword:     `\d+,\d+\.\d{2}`,
			strategy:    StrategyRegex,
			wantMatches: 1,
			wantText:    "1,024.00",
		},
		{
			name:        "similarity tolerates one OCR error",
			keyword:     "Invoce",
			strategy:    StrategySimilarity,
			wantMatches: 1,
			wantText:    "Invoice",
		},
		{
			name:        "similarity rejects distant words",
			keyword:     "Receipt",
			strategy:    StrategySimilarity,
			wantMatches: 0,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			matches, err := m.Match(result, []string{test.keyword}, test.strategy)
			require.NoError(t, err)
			require.Len(t, matches, test.wantMatches)
			if test.wantMatches > 0 {
				assert.Equal(t, test.keyword, matches[0].Keyword)
				assert.Equal(t, test.wantText, matches[0].MatchedText)
				assert.Equal(t, test.strategy, matches[0].Strategy)
				assert.InDelta(t, 0.95, matches[0].Confidence, 1e-9)
				assert.False(t, matches[0].Bounds.IsEmpty())
			}
		})
	}
}

func TestMatchPlainTextFallback(t *testing.T) {
	m := NewMatcher(0.8)
	result := engine.Result{PlainText: "Grand Total 42"}

	matches, err := m.Match(result, []string{"Total"}, StrategyContains)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Grand Total 42", matches[0].MatchedText)
	assert.Zero(t, matches[0].Confidence, "plain text fallback has no word confidence")
}

func TestMatchInvalidRegex(t *testing.T) {
	m := NewMatcher(0.8)
	_, err := m.Match(wordResult("anything"), []string{"("}, StrategyRegex)
	require.Error(t, err)
}

func TestMatchNoKeywords(t *testing.T) {
	m := NewMatcher(0.8)
	matches, err := m.Match(wordResult("text"), nil, StrategyContains)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestNewMatcherLeavesNoBackgroundGoroutines(t *testing.T) {
	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		m := NewMatcher(0.8)
		_, err := m.Match(wordResult("hello"), []string{"helo"}, StrategySimilarity)
		require.NoError(t, err)
	}
	// Allow any stray goroutines a moment to surface before counting.
	time.Sleep(50 * time.Millisecond)
	after := runtime.NumGoroutine()
	assert.LessOrEqual(t, after, before+2, "constructing matchers must not accumulate goroutines")
}

func TestSimilarityRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "abc", 1},
		{"abc", "abd", 1 - 1.0/3},
		{"abc", "", 0},
	}
	for _, test := range tests {
		assert.InDelta(t, test.want, similarityRatio(test.a, test.b), 1e-9, "similarityRatio(%q, %q)", test.a, test.b)
	}
}
