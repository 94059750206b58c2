package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"doc_summarizer/internal/config"
	"doc_summarizer/internal/document"
	"doc_summarizer/internal/summarizer"
	"doc_summarizer/internal/tokens"
)

type summarizeFlags struct {
	optionFlags
	input   string
	output  string
	load    bool
	rewrite bool
}

func newSummarizeCmd(g *globalFlags) *cobra.Command {
	f := &summarizeFlags{}
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize a transcript or text file",
		Long: `Summarizes the input into a document of the chosen genre.
A .json input is read as a transcript ({"segments":[{"text":...}]}), anything
else as plain text split at blank lines.

--load resumes the run stored in the checkpoint; --rewrite only regenerates the
final text from the notes the checkpoint holds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSummarize(cmd, g, f)
		},
	}
	addOptionFlags(cmd, &f.optionFlags)
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "Path to the input file")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Path to the output file, .html renders the markdown")
	cmd.Flags().BoolVar(&f.load, "load", false, "Resume the run stored in the checkpoint")
	cmd.Flags().BoolVar(&f.rewrite, "rewrite", false, "Rewrite the final text from the checkpoint")
	_ = cmd.MarkFlagRequired("output")
	cmd.MarkFlagsMutuallyExclusive("load", "rewrite")
	return cmd
}

func runSummarize(cmd *cobra.Command, g *globalFlags, f *summarizeFlags) error {
	if !f.load && !f.rewrite && f.input == "" {
		return errors.New("--input is required unless --load or --rewrite is given")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(g, &f.optionFlags)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var s *summarizer.Summarizer
	if f.load || f.rewrite {
		s, err = resume(ctx, cmd, a, g, &f.optionFlags)
	} else {
		s, err = fresh(ctx, a)
	}
	if err != nil {
		return err
	}

	var text string
	if f.rewrite {
		text, err = s.Rewrite(ctx)
	} else {
		var fragments []string
		if f.input != "" && !f.load {
			if cfg.Verbose {
				cmd.Printf("Loading input from %s.\n", f.input)
			}
			if fragments, err = document.ReadFragments(f.input); err != nil {
				return err
			}
		}
		text, err = s.Summarize(ctx, fragments)
	}
	if err != nil {
		return fmt.Errorf("%w (checkpoint: %s, resume with --load)", err, cfg.GetCheckpoint())
	}

	return emitResult(cmd, cfg, f.output, text, s)
}

func fresh(ctx context.Context, a *app) (*summarizer.Summarizer, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	limit, err := a.cfg.ResolveTokenLimit()
	if err != nil {
		return nil, err
	}
	completer, err := a.completer(ctx, a.cfg.Model)
	if err != nil {
		return nil, err
	}
	counter, err := a.counter(a.cfg.Model)
	if err != nil {
		return nil, err
	}

	sc := a.summarizerConfig(completer, counter, limit)
	sc.Model = a.cfg.Model
	sc.Options = summarizer.Options{
		Genre:    a.cfg.GetGenre(),
		Topic:    a.cfg.GetTopic(),
		Language: a.cfg.GetLanguage(),
		Context:  a.cfg.Context,
		Choices:  a.cfg.GetChoices(),
	}
	return summarizer.New(sc)
}

// resume restores the checkpointed run. Only options given on the command
// line override what the checkpoint recorded.
func resume(ctx context.Context, cmd *cobra.Command, a *app, g *globalFlags, o *optionFlags) (*summarizer.Summarizer, error) {
	if a.cfg.Verbose {
		cmd.Printf("Loading checkpoint from %s.\n", a.store.Location())
	}
	snap, err := summarizer.ReadSnapshot(ctx, a.store)
	if err != nil {
		return nil, err
	}

	modelName := snap.Model
	limit := snap.TokenLimit
	if g.model != "" && g.model != snap.Model {
		modelName = g.model
		if limit, err = tokens.Limit(modelName); err != nil && g.limit <= 0 {
			return nil, fmt.Errorf("%w: pass --limit", config.ErrUnknownModel)
		}
	}
	if g.limit > 0 {
		limit = g.limit
	}

	completer, err := a.completer(ctx, modelName)
	if err != nil {
		return nil, err
	}
	counter, err := a.counter(modelName)
	if err != nil {
		return nil, err
	}

	sc := a.summarizerConfig(completer, counter, limit)
	sc.Model = modelName
	sc.Options = summarizer.Options{
		Genre:    o.genre,
		Topic:    o.topic,
		Language: o.language,
		Context:  o.context,
		Choices:  o.choices,
	}
	return summarizer.Restore(sc, snap)
}

func emitResult(cmd *cobra.Command, cfg *config.Config, output, text string, s *summarizer.Summarizer) error {
	if cfg.Verbose {
		cmd.Printf("Saving summary to %s.\n", output)
	}
	if err := document.WriteOutput(output, text); err != nil {
		return err
	}
	u := s.Usage()
	if cfg.Verbose {
		cmd.Printf("Usage: %d prompt + %d completion tokens.\n", u.PromptTokens, u.CompletionTokens)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Summary:")
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
