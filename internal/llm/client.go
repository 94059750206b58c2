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

// Package llm is the model call interface: a prompt name plus template
// variables go in, one or more completions with finish reasons come out.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"doc_summarizer/internal/prompts"
	"doc_summarizer/pkg/logger"
)

var (
	// ErrModelCallFailed wraps every transport, auth, quota or provider failure.
	ErrModelCallFailed = errors.New("model call failed")

	// ErrConfigNil is returned when the config is nil.
	ErrConfigNil = errors.New("config is nil")

	// ErrModelRequired is returned when the model is not provided in config.
	ErrModelRequired = errors.New("model is required in config")

	// ErrUnknownTemplate is returned by Complete for a prompt that was not compiled.
	ErrUnknownTemplate = errors.New("unknown prompt template")
)

// Normalised finish reasons.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// Template variable names shared by the prompts.
const (
	VarText           = "text"
	VarTopic          = "topic"
	VarLanguage       = "language"
	VarContext        = "context"
	VarGenre          = "genre"
	VarSourceLanguage = "source_language"
	VarTargetLanguage = "target_language"
)

// varContextNote receives the rendered context line, or nothing when no
// context was given.
const varContextNote = "context_note"

// FinalTextCue closes the writer's user message so the model starts the document.
const FinalTextCue = "\n\nFinal Text.md:"

// userTemplates maps each system prompt to the user message that carries the text.
var userTemplates = map[string]string{
	prompts.Extract:   "{text}",
	prompts.Compress:  "{text}",
	prompts.Write:     "{text}" + FinalTextCue,
	prompts.Translate: "{text}",
}

// Choice is one candidate completion.
type Choice struct {
	Text         string `json:"text"`
	Role         string `json:"role"`
	FinishReason string `json:"finish_reason"`
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates o into u.
func (u *Usage) Add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

// Response holds every requested choice and the summed usage.
type Response struct {
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Completer is what the summarizer needs from a model.
type Completer interface {
	Complete(ctx context.Context, template string, vars map[string]any, n int) (*Response, error)
	ModelName() string
}

// Config configures a Client.
//
// Required fields:
//   - Model: the chat model every prompt chain ends in
//
// Optional fields:
//   - ModelName: reported in logs and metrics
//   - Sink: receives every request and response
//   - Metrics: per-call ES metrics
//   - RequestsPerMinute: client side throttle, 0 disables it
type Config struct {
	Model             model.BaseChatModel
	ModelName         string
	Sink              *logger.Sink
	Metrics           *logger.Metrics
	RequestsPerMinute float64
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.Model == nil {
		return ErrModelRequired
	}
	return nil
}

// Client runs prompt chains (ChatTemplate -> ChatModel), one per embedded prompt.
type Client struct {
	modelName string
	sink      *logger.Sink
	metrics   *logger.Metrics
	limiter   *rate.Limiter
	callback  *logger.SinkCallback
	chains    map[string]compose.Runnable[map[string]any, *schema.Message]
	notes     map[string]string
}

var _ Completer = (*Client)(nil)

// New compiles one chain per prompt template.
func New(ctx context.Context, cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	systemPrompts, err := prompts.GetPrompts()
	if err != nil {
		return nil, fmt.Errorf("load prompts failed, err=%w", err)
	}

	c := &Client{
		modelName: cfg.ModelName,
		sink:      cfg.Sink,
		metrics:   cfg.Metrics,
		callback:  &logger.SinkCallback{Sink: cfg.Sink},
		chains:    make(map[string]compose.Runnable[map[string]any, *schema.Message], len(userTemplates)),
		notes:     make(map[string]string, len(userTemplates)),
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), 1)
	}

	for name, user := range userTemplates {
		system, ok := systemPrompts[name]
		if !ok {
			return nil, fmt.Errorf("prompt %s: %w", name, prompts.ErrNotExist)
		}
		system, note := prompts.SplitContextLine(system)
		c.notes[name] = note
		tpl := prompt.FromMessages(schema.FString,
			schema.SystemMessage(system+"{"+varContextNote+"}"),
			schema.UserMessage(user))

		chain, err := compose.NewChain[map[string]any, *schema.Message]().
			AppendChatTemplate(tpl).
			AppendChatModel(cfg.Model).
			Compile(ctx, compose.WithGraphName("DocSummarizer."+name))
		if err != nil {
			return nil, fmt.Errorf("compile %s chain failed, err=%w", name, err)
		}
		c.chains[name] = chain
	}
	return c, nil
}

// ModelName returns the configured model identity.
func (c *Client) ModelName() string { return c.modelName }

// Complete renders template with vars and asks the model for n candidates.
// Chat models return one completion per call, so the chain runs n times.
func (c *Client) Complete(ctx context.Context, template string, vars map[string]any, n int) (*Response, error) {
	chain, ok := c.chains[template]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, template)
	}
	if n < 1 {
		n = 1
	}
	vars = c.bindContext(template, vars)

	timer := logger.NewTimer()
	resp := &Response{Choices: make([]Choice, 0, n)}
	for i := 0; i < n; i++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, c.fail(template, timer, err)
			}
		}
		msg, err := chain.Invoke(ctx, vars, compose.WithCallbacks(c.callback))
		if err != nil {
			return nil, c.fail(template, timer, err)
		}
		resp.Choices = append(resp.Choices, toChoice(msg))
		resp.Usage.Add(toUsage(msg))
	}

	c.logResponse(resp)
	c.metrics.Emit(logger.MetricsEvent{
		LogType:          logger.LTModelCall,
		Event:            logger.EventCallComplete,
		Model:            c.modelName,
		Template:         template,
		Choices:          n,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		DurationMs:       timer.ElapsedMs(),
	})
	return resp, nil
}

// bindContext copies vars and adds the context line for template, filled in,
// only when a non-empty context was given.
func (c *Client) bindContext(template string, vars map[string]any) map[string]any {
	bound := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		bound[k] = v
	}
	bound[varContextNote] = ""
	if ctxText, _ := vars[VarContext].(string); ctxText != "" && c.notes[template] != "" {
		bound[varContextNote] = "\n\n" + strings.ReplaceAll(c.notes[template], prompts.ContextPlaceholder, ctxText)
	}
	return bound
}

func (c *Client) fail(template string, timer *logger.Timer, err error) error {
	c.sink.Logf("Model call failed after %dms: %v", timer.ElapsedMs(), err)
	c.metrics.Emit(logger.MetricsEvent{
		LogType:    logger.LTModelError,
		Event:      logger.EventCallError,
		Model:      c.modelName,
		Template:   template,
		DurationMs: timer.ElapsedMs(),
		Error:      err.Error(),
	})
	return fmt.Errorf("%w: model=%s, template=%s: %w", ErrModelCallFailed, c.modelName, template, err)
}

func (c *Client) logResponse(resp *Response) {
	c.sink.Logf("Response: model: %s", c.modelName)
	for i, choice := range resp.Choices {
		c.sink.Log(fmt.Sprintf("choice[%d]: %s:", i, choice.Role), choice.Text)
		c.sink.Logf("choice[%d]: finish_reason: %s", i, choice.FinishReason)
	}
	c.sink.Logf("usage: {\"prompt_tokens\": %d, \"completion_tokens\": %d, \"total_tokens\": %d}",
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
}

func toChoice(msg *schema.Message) Choice {
	if msg == nil {
		return Choice{Role: string(schema.Assistant)}
	}
	ch := Choice{Text: msg.Content, Role: string(msg.Role)}
	if ch.Role == "" {
		ch.Role = string(schema.Assistant)
	}
	if msg.ResponseMeta != nil {
		ch.FinishReason = NormalizeFinishReason(msg.ResponseMeta.FinishReason)
	}
	return ch
}

func toUsage(msg *schema.Message) Usage {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return Usage{}
	}
	u := msg.ResponseMeta.Usage
	return Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// NormalizeFinishReason maps provider specific stop reasons onto stop/length.
func NormalizeFinishReason(reason string) string {
	switch reason {
	case "stop", "end_turn", "stop_sequence":
		return FinishStop
	case "length", "max_tokens":
		return FinishLength
	default:
		return reason
	}
}
