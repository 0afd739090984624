package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/vitals/internal/logging"
	"github.com/ppiankov/vitals/internal/model"
	"github.com/ppiankov/vitals/internal/pipeline"
)

var collectCmd = &cobra.Command{
	Use:   "collect [url]",
	Short: "Fetch the source page and write its cleaned text",
	Long: `Collect fetches the source page, strips navigation, scripts and citation
noise, and writes the remaining text to <data-dir>/raw_blob.txt.

The URL defaults to source.url from the configuration.

Example:
  vitals collect
  vitals collect https://ourworldindata.org/marriages-and-divorces --no-cache`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd, stages{collect: true}, func(ctx context.Context, a *app, p *pipeline.Pipeline) error {
			res, err := p.Collect(ctx, sourceURL(a.cfg, args))
			if err != nil {
				return err
			}
			printCollect(cmd.OutOrStdout(), res)
			return nil
		})
	},
}

var structureCmd = &cobra.Command{
	Use:   "structure",
	Short: "Turn the raw text into structured JSON with one model call",
	Long: `Structure reads <data-dir>/raw_blob.txt, asks the configured model for
country -> year -> record JSON and writes <data-dir>/structured_data.json.

Example:
  vitals structure
  vitals structure --provider anthropic --model claude-3-5-sonnet-20241022`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd, stages{structure: true}, func(ctx context.Context, a *app, p *pipeline.Pipeline) error {
			res, err := p.Structure(ctx)
			if err != nil {
				return err
			}
			printStructure(cmd.OutOrStdout(), res)
			return nil
		})
	},
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Flatten the structured JSON and upsert it into the table",
	Long: `Load reads <data-dir>/structured_data.json, flattens it into one record per
(country, year) and upserts the records. Re-running load is idempotent.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd, stages{load: true}, func(ctx context.Context, a *app, p *pipeline.Pipeline) error {
			res, err := p.Load(ctx)
			if res != nil {
				printLoad(cmd.OutOrStdout(), res)
			}
			return err
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run [url]",
	Short: "Run collect, structure and load in sequence",
	Long: `Run executes the three stages in order and stops at the first failure.
Credentials for the model and the store are checked before anything is fetched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd, stages{collect: true, structure: true, load: true}, func(ctx context.Context, a *app, p *pipeline.Pipeline) error {
			out := cmd.OutOrStdout()
			res, err := p.Run(ctx, sourceURL(a.cfg, args))
			if res.Collect != nil {
				printCollect(out, res.Collect)
			}
			if res.Structure != nil {
				printStructure(out, res.Structure)
			}
			if res.Load != nil {
				printLoad(out, res.Load)
			}
			return err
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{collectCmd, runCmd} {
		cmd.Flags().Bool("no-cache", false, "disable the page cache (force a fresh fetch)")
		cmd.Flags().Bool("respect-robots", false, "check robots.txt before fetching")
	}
	for _, cmd := range []*cobra.Command{structureCmd, runCmd} {
		cmd.Flags().String("provider", "", "LLM provider (openai, anthropic, ollama)")
		cmd.Flags().String("model", "", "LLM model name")
	}

	rootCmd.AddCommand(collectCmd, structureCmd, loadCmd, runCmd)
}

// bindStageFlags binds the flags cmd actually has; viper keeps one binding
// per key, so this runs for the executing command only
func bindStageFlags(cmd *cobra.Command) error {
	bindings := map[string]string{
		"respect-robots": "source.respect_robots",
		"provider":       "llm.provider",
		"model":          "llm.model",
	}
	for flag, key := range bindings {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := viper.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	if f := cmd.Flags().Lookup("no-cache"); f != nil && f.Changed {
		viper.Set("cache.enabled", false)
	}
	return nil
}

// withPipeline builds the app and the pipeline for need and runs fn under the stage timeout
func withPipeline(cmd *cobra.Command, need stages, fn func(context.Context, *app, *pipeline.Pipeline) error) error {
	if err := bindStageFlags(cmd); err != nil {
		return err
	}

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	p, cleanup, err := a.buildPipeline(ctx, need)
	defer cleanup()
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Artifacts: %s\n", a.cfg.Artifacts.Dir)
		fmt.Fprintf(os.Stderr, "Stage timeout: %v\n", stageTimeout)
		fmt.Fprintln(os.Stderr)
	}

	if err := fn(ctx, a, p); err != nil {
		a.logger.Error("stage failed", logging.Error(err))
		return err
	}
	return nil
}

func sourceURL(cfg *model.Config, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.Source.URL
}

func printCollect(w io.Writer, res *pipeline.CollectResult) {
	fmt.Fprintf(w, "✓ Collected %d characters -> %s\n", res.Chars, res.Path)
}

func printStructure(w io.Writer, res *pipeline.StructureResult) {
	fmt.Fprintf(w, "✓ Structured %d countries -> %s\n", res.Countries, res.Path)
}

func printLoad(w io.Writer, res *pipeline.LoadResult) {
	fmt.Fprintf(w, "✓ Flattened %d records (%d skipped), %d rows written\n", res.Flattened, res.Skipped, res.Written)
	if verbose {
		for _, warn := range res.Warnings {
			fmt.Fprintf(os.Stderr, "  ⚠ %s\n", formatWarning(warn))
		}
	}
}

func formatWarning(w model.FlattenWarning) string {
	action := "kept"
	if w.Skipped {
		action = "skipped"
	}
	return fmt.Sprintf("%s/%s %s: %s", w.Country, w.Year, action, w.Reason)
}
