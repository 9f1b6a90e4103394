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

// Package tesseract implements the engine contract on top of the gosseract
// Tesseract bindings.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/reyisok/HonyGo-1.0/pkg/engine"
	errutil "github.com/reyisok/HonyGo-1.0/pkg/util/error"
)

// Options configures the engine.
type Options struct {
	// DefaultLanguages is used when an input does not name any languages.
	DefaultLanguages []string
}

// Engine runs recognitions through a gosseract client per call. A fresh
// client per recognition keeps language and variable state from leaking
// between requests.
type Engine struct {
	opts          Options
	clientFactory func() *gosseract.Client
}

var _ engine.Engine = &Engine{}

// New constructs a Tesseract-backed engine.
func New(opts Options) *Engine {
	return &Engine{opts: opts, clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize performs OCR on a single image input.
func (e *Engine) Recognize(ctx context.Context, in engine.Input) (engine.Result, error) {
	select {
	case <-ctx.Done():
		return engine.Result{}, ctx.Err()
	default:
	}

	c := e.clientFactory()
	defer c.Close()

	imgData, err := cropImage(in.Image, in.Region)
	if err != nil {
		return engine.Result{}, errutil.Error{Code: errutil.BadRequest, Msg: err.Error()}
	}
	if err := c.SetImageFromBytes(imgData); err != nil {
		return engine.Result{}, fmt.Errorf("set image: %w", err)
	}
	langs := in.Languages
	if len(langs) == 0 {
		langs = e.opts.DefaultLanguages
	}
	if len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return engine.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	for k, v := range in.Metadata {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return engine.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return engine.Result{}, errutil.Error{Code: errutil.RecognitionFailed, Msg: fmt.Sprintf("recognize text: %v", err)}
	}
	plain := strings.TrimSpace(text)

	return engine.Result{
		InputID:   in.ID,
		PlainText: plain,
		Words:     extractWords(c),
		Language:  firstLanguage(langs),
	}, nil
}

func extractWords(c *gosseract.Client) []engine.Word {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil
	}
	words := make([]engine.Word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, engine.Word{
			Text:       b.Word,
			Bounds:     engine.Region{X: float64(b.Box.Min.X), Y: float64(b.Box.Min.Y), Width: float64(b.Box.Dx()), Height: float64(b.Box.Dy())},
			Confidence: b.Confidence / 100.0,
		})
	}
	return words
}

func firstLanguage(langs []string) string {
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}

func cropImage(data []byte, region *engine.Region) ([]byte, error) {
	if region == nil || region.IsEmpty() {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode for region: %w", err)
	}
	rect := image.Rect(
		int(math.Round(region.X)),
		int(math.Round(region.Y)),
		int(math.Round(region.X+region.Width)),
		int(math.Round(region.Y+region.Height)),
	).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("region outside image bounds")
	}
	subImg, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("image does not support sub-image")
	}
	cropped := subImg.SubImage(rect)
	var buf bytes.Buffer
	if err := png.Encode(&buf, cropped); err != nil {
		return nil, fmt.Errorf("encode cropped image: %w", err)
	}
	return buf.Bytes(), nil
}
