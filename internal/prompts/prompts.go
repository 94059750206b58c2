package prompts

import (
	"embed"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// Prompt names, one per embedded file.
const (
	Extract   = "extract"
	Compress  = "compress"
	Write     = "write"
	Translate = "translate"
)

//go:embed *.md
var promptFiles embed.FS

// ErrNotExist is returned by GetSinglePrompt for an unknown prompt name.
var ErrNotExist = errors.New("the prompt does not exist")

// GetPrompts returns every embedded prompt keyed by file name without extension.
func GetPrompts() (map[string]string, error) {
	prompts := make(map[string]string)

	err := fs.WalkDir(promptFiles, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}

		content, err := promptFiles.ReadFile(path)
		if err != nil {
			return err
		}

		fileName := filepath.Base(path)
		key := fileName[:len(fileName)-len(filepath.Ext(fileName))]
		prompts[key] = strings.TrimSpace(string(content))

		return nil
	})
	if err != nil {
		return nil, err
	}

	return prompts, nil
}

// ContextPlaceholder marks the optional line of a prompt that carries the
// user supplied context.
const ContextPlaceholder = "{context}"

// SplitContextLine separates the line holding ContextPlaceholder from the
// rest of prompt. line is empty when the prompt has no such line.
func SplitContextLine(prompt string) (base, line string) {
	lines := strings.Split(prompt, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if line == "" && strings.Contains(l, ContextPlaceholder) {
			line = strings.TrimSpace(l)
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), line
}

func GetSinglePrompt(name string) (val string, err error) {
	prompts, err := GetPrompts()
	if err != nil {
		return "", err
	}
	val, ok := prompts[name]
	if !ok {
		return "", ErrNotExist
	}
	return val, nil
}
