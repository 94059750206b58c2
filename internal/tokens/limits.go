package tokens

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownModel is returned by Limit when no budget is registered for a model.
var ErrUnknownModel = errors.New("no token limit registered for model")

// limits holds the per-request content budget for each model. The numbers are
// well below each context window so prompt and completion both fit.
var limits = map[string]int{
	"gpt-4":                  5000,
	"gpt-4-0613":             5000,
	"gpt-4-0314":             5000,
	"gpt-3.5-turbo-16k":      10000,
	"gpt-3.5-turbo-16k-0613": 10000,
	"gpt-3.5-turbo":          2000,
	"gpt-3.5-turbo-0613":     2000,
	"gpt-3.5-turbo-0301":     2000,
	"gpt-4-turbo":            30000,
	"gpt-4o":                 30000,
	"gpt-4o-mini":            30000,
}

// families match by prefix when the exact name is not in limits.
var families = map[string]int{
	"claude-": 50000,
	"gpt-4o-": 30000,
}

// Limit returns the token budget for model.
func Limit(model string) (int, error) {
	if n, ok := limits[model]; ok {
		return n, nil
	}
	best, n := "", 0
	for prefix, v := range families {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best, n = prefix, v
		}
	}
	if best == "" {
		return 0, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	return n, nil
}

// Models lists the exactly registered model names, sorted.
func Models() []string {
	out := make([]string, 0, len(limits))
	for m := range limits {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
