package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"doc_summarizer/internal/document"
	"doc_summarizer/internal/summarizer"
)

type translateFlags struct {
	input  string
	output string
	source string
	target string
}

func newTranslateCmd(g *globalFlags) *cobra.Command {
	f := &translateFlags{}
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate a text file from one language to another",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTranslate(cmd, g, f)
		},
	}
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "The path to the text file to translate")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "The path to save the translated text file to")
	cmd.Flags().StringVarP(&f.source, "source-language", "s", "", "The language of the text file to translate")
	cmd.Flags().StringVarP(&f.target, "target-language", "t", "", "The language to translate the text file to")
	for _, name := range []string{"input", "output", "source-language", "target-language"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runTranslate(cmd *cobra.Command, g *globalFlags, f *translateFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(g, nil)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := document.ReadText(f.input)
	if err != nil {
		return err
	}

	completer, err := a.completer(ctx, cfg.Model)
	if err != nil {
		return err
	}
	counter, err := a.counter(cfg.Model)
	if err != nil {
		return err
	}
	limit, err := cfg.ResolveTokenLimit()
	if err != nil {
		return err
	}

	a.sink.SetConsole(cmd.OutOrStdout())
	tr := &summarizer.Translator{Completer: completer, Counter: counter, Limit: limit, Sink: a.sink}
	translated, err := tr.Translate(ctx, text, f.source, f.target)
	if err != nil {
		if errors.Is(err, summarizer.ErrEmptyInput) {
			return errors.New("input file is empty")
		}
		return err
	}
	return document.WriteOutput(f.output, translated)
}
