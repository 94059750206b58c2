package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type rewriteFlags struct {
	optionFlags
	output string
}

func newRewriteCmd(g *globalFlags) *cobra.Command {
	f := &rewriteFlags{}
	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Regenerate the final text from a checkpoint",
		Long: `Writes the final text again from the compressed notes stored in the
checkpoint, e.g. with another genre, language or more candidates.
Same as "summarize --rewrite".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			s, err := resume(ctx, cmd, a, g, &f.optionFlags)
			if err != nil {
				return err
			}
			text, err := s.Rewrite(ctx)
			if err != nil {
				return fmt.Errorf("rewrite: %w", err)
			}
			return emitResult(cmd, cfg, f.output, text, s)
		},
	}
	addOptionFlags(cmd, &f.optionFlags)
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Path to the output file, .html renders the markdown")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
