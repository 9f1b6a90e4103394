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
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Key is the deterministic fingerprint of an image plus its recognition
// parameters. Identical images requested with different parameters must
// yield different keys.
type Key struct {
	ImageHash  uint64
	ParamsHash uint64
}

// KeyFor derives the cache key from the image bytes and a canonicalized
// representation of the recognition parameters. Languages and keywords are
// sorted so that ordering differences in the request do not defeat caching.
func KeyFor(image []byte, languages, keywords []string, strategy string) Key {
	h := xxhash.New()

	// Lowercase before sorting so case differences cannot change the
	// canonical order, and therefore the key.
	langs := make([]string, len(languages))
	for i, l := range languages {
		langs[i] = strings.ToLower(l)
	}
	slices.Sort(langs)
	kws := slices.Clone(keywords)
	slices.Sort(kws)

	// A field separator that cannot occur in language codes keeps adjacent
	// fields from colliding ("a","bc" vs "ab","c").
	_, _ = h.WriteString("langs\x00")
	for _, l := range langs {
		_, _ = h.WriteString(l)
		_, _ = h.WriteString("\x00")
	}
	_, _ = h.WriteString("keywords\x00")
	for _, k := range kws {
		_, _ = h.WriteString(k)
		_, _ = h.WriteString("\x00")
	}
	_, _ = h.WriteString("strategy\x00")
	_, _ = h.WriteString(strategy)

	return Key{
		ImageHash:  xxhash.Sum64(image),
		ParamsHash: h.Sum64(),
	}
}
