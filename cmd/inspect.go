package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"doc_summarizer/internal/checkpoint"
	"doc_summarizer/internal/summarizer"
)

func newInspectCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show what a checkpoint holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := loadConfig(g, nil)
			if err != nil {
				return err
			}
			store, err := checkpoint.Open(ctx, cfg.GetCheckpoint(), cfg.CheckpointName)
			if err != nil {
				return err
			}
			defer store.Close()

			snap, err := summarizer.ReadSnapshot(ctx, store)
			if err != nil {
				return err
			}
			printSnapshot(cmd.OutOrStdout(), store.Location(), snap)

			if db, ok := store.(*checkpoint.SQLiteStore); ok {
				names, err := db.Names(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored runs:  %s\n", strings.Join(names, ", "))
			}
			return nil
		},
	}
}

func printSnapshot(w io.Writer, location string, s *summarizer.Snapshot) {
	status := "complete"
	if s.InFlight() {
		status = "in flight"
	}
	stack := "-"
	if len(s.Stack) > 0 {
		stack = strings.Join(s.Stack, " > ")
	}

	fmt.Fprintf(w, "checkpoint:   %s\n", location)
	fmt.Fprintf(w, "run:          %s (%s)\n", s.RunID, status)
	fmt.Fprintf(w, "updated:      %s\n", s.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "model:        %s (limit %d tokens)\n", s.Model, s.TokenLimit)
	fmt.Fprintf(w, "options:      genre=%q topic=%q language=%q choices=%d\n",
		s.Options.Genre, s.Options.Topic, s.Options.Language, s.Options.Choices)
	fmt.Fprintf(w, "failed in:    %s\n", stack)
	fmt.Fprintf(w, "phases:       chunks=%t extracted=%t notes=%t final_notes=%t\n",
		s.Run.Chunks.Done, s.Run.Extracted.Done, s.Run.Notes.Done, s.Run.FinalNotes.Done)
	if s.Merge.Active {
		fmt.Fprintf(w, "merge:        %d/%d fragments, %d merged\n", s.Merge.Cursor, len(s.Merge.Input), len(s.Merge.Merged))
	}
	if s.Extract.Active {
		fmt.Fprintf(w, "extract:      %d/%d chunks (compress=%t)\n", s.Extract.Cursor, len(s.Extract.Fragments), s.Extract.Compress)
	}
	if s.Compress.Active {
		fmt.Fprintf(w, "compress:     round %d, %d notes\n", s.Compress.Round, len(s.Compress.Notes))
	}
	if s.Write.Active {
		fmt.Fprintf(w, "write:        pending (%d chars of notes)\n", len(s.Write.Notes))
	}
	fmt.Fprintf(w, "last notes:   %d chars\n", len(s.LastNotes))
	fmt.Fprintf(w, "usage:        %d prompt + %d completion tokens\n", s.Usage.PromptTokens, s.Usage.CompletionTokens)
}
