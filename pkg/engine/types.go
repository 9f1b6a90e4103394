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

// Package engine defines the text-recognition engine contract implemented by
// worker instances.
package engine

import "context"

// Region describes a rectangular area in pixel coordinates with the origin
// in the upper-left corner of the image.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Input encapsulates a single image submitted for recognition.
type Input struct {
	// ID is a caller-provided identifier echoed back in the Result.
	ID string `json:"id,omitempty"`
	// Image is the encoded image payload (PNG or JPEG).
	Image []byte `json:"image"`
	// Languages is a list of trained-data hints (e.g. "eng", "chi_sim").
	Languages []string `json:"languages,omitempty"`
	// Region restricts recognition to a subsection of the image. Nil means
	// the full image is processed.
	Region *Region `json:"region,omitempty"`
	// Metadata passes engine-specific knobs (e.g. "psm" for Tesseract)
	// without hard-coding them into the API surface.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Word is a single recognized token.
type Word struct {
	Text       string  `json:"text"`
	Bounds     Region  `json:"bounds"`
	Confidence float64 `json:"confidence"`
}

// Result captures recognition output for a single input image.
type Result struct {
	// InputID mirrors the Input.ID that produced this result.
	InputID string `json:"input_id,omitempty"`
	// PlainText contains the linearized text extracted from the image.
	PlainText string `json:"plain_text"`
	// Words carries the recognized tokens with positional metadata.
	Words []Word `json:"words,omitempty"`
	// Language indicates the dominant language detected, if known.
	Language string `json:"language,omitempty"`
}

// Engine is the recognition provider contract: one image in, one result out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}
