package main

import (
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand. Zero values mean "not given" so
// they only override the config file or a checkpoint when set.
type globalFlags struct {
	configPath     string
	model          string
	checkpoint     string
	checkpointName string
	verbose        bool
	logDir         string
	rpm            float64
	limit          int
	maxRounds      int
	esAddrs        []string
}

// optionFlags tune the prompts and the writer.
type optionFlags struct {
	choices  int
	genre    string
	topic    string
	language string
	context  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "doc_summarizer",
		Short: "Recursively summarize documents that exceed a model's token budget",
		Long: `Splits a document into chunks that fit the model, extracts dense notes from
each chunk, compresses the notes until one is left and writes the final text.
Progress is checkpointed after every step so failed runs can be resumed with --load.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "TOML file with default settings")
	pf.StringVarP(&g.model, "model", "m", "", "Model to use. Default: gpt-3.5-turbo")
	pf.StringVarP(&g.checkpoint, "checkpoint", "c", "", "Checkpoint file, *.db/*.sqlite database or postgres:// URL. Default: summarizer.json")
	pf.StringVar(&g.checkpointName, "checkpoint-name", "", "Snapshot name inside a checkpoint database")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Print the log to stdout")
	pf.StringVar(&g.logDir, "log-dir", "", "Directory for the daily log files. Default: ./logs")
	pf.Float64Var(&g.rpm, "rpm", 0, "Maximum model requests per minute, 0 for no limit")
	pf.IntVar(&g.limit, "limit", 0, "Token limit per request, overrides the per-model table")
	pf.IntVar(&g.maxRounds, "max-rounds", 0, "Maximum compression rounds. Default: 16")
	pf.StringSliceVar(&g.esAddrs, "es-addr", nil, "Elasticsearch addresses for logs, metrics and events")

	root.AddCommand(
		newSummarizeCmd(g),
		newRewriteCmd(g),
		newTranslateCmd(g),
		newInspectCmd(g),
	)
	return root
}

func addOptionFlags(cmd *cobra.Command, o *optionFlags) {
	f := cmd.Flags()
	f.IntVarP(&o.choices, "choices", "n", 0, "Number of final text candidates to generate. Default: 1")
	f.StringVarP(&o.genre, "genre", "g", "", "Genre of the final text. Default: detailed textbook. Examples: essay, novel, script")
	f.StringVarP(&o.topic, "topic", "t", "", "Topic of the text. Default: [not specified]")
	f.StringVarP(&o.language, "language", "l", "", "Language of the final text. Default: English")
	f.StringVar(&o.context, "context", "", "Additional context about the text")
}
