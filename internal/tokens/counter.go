/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package tokens counts tokens the way the target model's tokenizer does and
// knows how many tokens a single request may carry for each model.
package tokens

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Counter returns the token count of a text under one model's tokenizer.
//
// Implementations must be deterministic: the chunker relies on measuring the
// same text twice and getting the same answer.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a plain function to Counter.
type CounterFunc func(text string) int

func (f CounterFunc) Count(text string) int { return f(text) }

// Whitespace counts whitespace separated words. It is a cheap stand-in for a
// real tokenizer, mostly useful in tests and dry runs.
var Whitespace = CounterFunc(func(text string) int {
	return len(strings.Fields(text))
})

// defaultEncoding is used for models tiktoken does not know (e.g. claude-*).
const defaultEncoding = "cl100k_base"

// Tiktoken is the default Counter backed by tiktoken-go.
type Tiktoken struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewTiktoken resolves the encoding for model, falling back to cl100k_base
// when the model name is not registered with tiktoken.
func NewTiktoken(model string) (*Tiktoken, error) {
	encoding := ""
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("get encoding failed, encoding=%v, err=%w", defaultEncoding, err)
		}
		encoding = defaultEncoding
	}
	return &Tiktoken{model: model, encoding: encoding, enc: enc}, nil
}

// Count implements Counter.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Model returns the model identity this counter was built for.
func (t *Tiktoken) Model() string { return t.model }

// Fallback reports whether the model was unknown and cl100k_base is in use.
func (t *Tiktoken) Fallback() bool { return t.encoding == defaultEncoding }
