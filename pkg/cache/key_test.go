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

package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyForIsDeterministic(t *testing.T) {
	image := []byte("png bytes")
	a := KeyFor(image, []string{"eng", "chi_sim"}, []string{"invoice"}, "contains")
	b := KeyFor(image, []string{"eng", "chi_sim"}, []string{"invoice"}, "contains")
	assert.Equal(t, a, b)
}

func TestKeyForCanonicalizesParameterOrder(t *testing.T) {
	image := []byte("png bytes")
	a := KeyFor(image, []string{"eng", "chi_sim"}, []string{"total", "invoice"}, "exact")
	b := KeyFor(image, []string{"chi_sim", "eng"}, []string{"invoice", "total"}, "exact")
	assert.Equal(t, a, b, "language and keyword order must not change the key")

	c := KeyFor(image, []string{"ENG", "chi_sim"}, []string{"total", "invoice"}, "exact")
	assert.Equal(t, a, c, "language case must not change the key")
}

func TestKeyForSeparatesFields(t *testing.T) {
	image := []byte("png bytes")

	tests := []struct {
		name string
		a    Key
		b    Key
	}{
		{
			name: "different image",
			a:    KeyFor([]byte("one"), []string{"eng"}, nil, "contains"),
			b:    KeyFor([]byte("two"), []string{"eng"}, nil, "contains"),
		},
		{
			name: "different languages",
			a:    KeyFor(image, []string{"eng"}, nil, "contains"),
			b:    KeyFor(image, []string{"deu"}, nil, "contains"),
		},
		{
			name: "different keywords",
			a:    KeyFor(image, []string{"eng"}, []string{"invoice"}, "contains"),
			b:    KeyFor(image, []string{"eng"}, []string{"receipt"}, "contains"),
		},
		{
			name: "different strategy",
			a:    KeyFor(image, []string{"eng"}, []string{"invoice"}, "contains"),
			b:    KeyFor(image, []string{"eng"}, []string{"invoice"}, "exact"),
		},
		{
			name: "adjacent fields do not merge",
			a:    KeyFor(image, []string{"a", "bc"}, nil, "contains"),
			b:    KeyFor(image, []string{"ab", "c"}, nil, "contains"),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.NotEqual(t, test.a, test.b)
		})
	}
}
