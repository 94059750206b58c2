// Package document reads source text into fragments and writes the final text.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// ErrNoText is returned when an input yields no fragments.
var ErrNoText = errors.New("input contains no text")

// Transcript is the speech-to-text JSON layout: one fragment per segment.
type Transcript struct {
	Segments []Segment `json:"segments"`
}

type Segment struct {
	Start float64 `json:"start,omitempty"`
	End   float64 `json:"end,omitempty"`
	Text  string  `json:"text"`
}

// ReadFragments loads path. JSON transcripts yield one fragment per segment,
// anything else one fragment per blank-line separated paragraph.
func ReadFragments(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", path, err)
	}
	fragments, err := ParseFragments(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, fmt.Errorf("input %s: %w", path, err)
	}
	return fragments, nil
}

// ParseFragments splits data into fragments. With transcript set data must be
// a Transcript; segment text is kept verbatim, including leading spaces, since
// segments are merged without a delimiter.
func ParseFragments(data []byte, transcript bool) ([]string, error) {
	var fragments []string
	if transcript {
		var t Transcript
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
		for _, seg := range t.Segments {
			if strings.TrimSpace(seg.Text) != "" {
				fragments = append(fragments, seg.Text)
			}
		}
	} else {
		text := strings.ReplaceAll(string(data), "\r\n", "\n")
		for _, p := range strings.Split(text, "\n\n") {
			if p = strings.TrimSpace(p); p != "" {
				// keep a separator so paragraphs merged without a delimiter stay apart
				fragments = append(fragments, p+"\n\n")
			}
		}
	}
	if len(fragments) == 0 {
		return nil, ErrNoText
	}
	return fragments, nil
}

// ReadText loads a whole file as one string.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read input %s: %w", path, err)
	}
	return string(data), nil
}

// WriteOutput writes text to path. Paths ending in .html or .htm get the
// markdown rendered to sanitised HTML; everything else is written as is.
func WriteOutput(path, text string) error {
	data := []byte(text)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		html, err := RenderHTML(text)
		if err != nil {
			return err
		}
		data = html
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output %s: %w", path, err)
	}
	return nil
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML converts markdown to HTML and strips anything unsafe the model
// may have produced.
func RenderHTML(text string) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return bluemonday.UGCPolicy().SanitizeBytes(buf.Bytes()), nil
}
