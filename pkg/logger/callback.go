package logger

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// SinkCallback writes every chat model request and failure to a Sink.
type SinkCallback struct {
	Sink *Sink
}

var _ callbacks.Handler = (*SinkCallback)(nil)

func isChatModel(info *callbacks.RunInfo) bool {
	return info != nil && info.Component == components.ComponentOfChatModel
}

func (cb *SinkCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if !isChatModel(info) {
		return ctx
	}
	in := model.ConvCallbackInput(input)
	if in == nil {
		return ctx
	}
	lines := make([]string, 0, len(in.Messages)+1)
	lines = append(lines, "Requesting:")
	for _, m := range in.Messages {
		if m == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	cb.Sink.Log(lines...)
	cb.Sink.Log("Awaiting response...")
	return ctx
}

func (cb *SinkCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if !isChatModel(info) {
		return ctx
	}
	out := model.ConvCallbackOutput(output)
	if out == nil || out.Message == nil {
		return ctx
	}
	cb.Sink.Logf("Response: %s (%d chars)", info.Name, len(out.Message.Content))
	return ctx
}

func (cb *SinkCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	name := ""
	if info != nil {
		name = info.Name
	}
	cb.Sink.Logf("Error in %s: %v", name, err)
	return ctx
}

func (cb *SinkCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

func (cb *SinkCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	return ctx
}
