package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"accent-analyzer-go/internal/aggregator"
	"accent-analyzer-go/internal/bootstrap"
	"accent-analyzer-go/internal/config"
	"accent-analyzer-go/internal/dataset"
	"accent-analyzer-go/internal/extractor"
	"accent-analyzer-go/internal/logger"
	"accent-analyzer-go/internal/pipeline"
	"accent-analyzer-go/internal/processor"
	"accent-analyzer-go/internal/source"
	"accent-analyzer-go/internal/types"
)

// commandContext lazily loads configuration shared by every subcommand.
type commandContext struct {
	configFlag *string
	cfg        *config.Config
	log        *logger.Logger
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}
	_ = godotenv.Load()
	if *c.configFlag != "" {
		if err := os.Setenv("CONFIG_FILE", *c.configFlag); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	c.cfg = &cfg
	return cfg, nil
}

func (c *commandContext) logger() *logger.Logger {
	if c.log == nil {
		c.log = logger.NewWithOutput(os.Stderr)
	}
	return c.log
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "accentctl",
		Short:         "Detect the English accent spoken in a video",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (TOML)")

	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newAnalyzeCommand(ctx))
	rootCmd.AddCommand(newBatchCommand(ctx))
	return rootCmd
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify ffmpeg is installed and reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ex := extractor.New(cfg.FFmpegPath, ctx.logger())
			if err := ex.CheckAvailable(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is available\n", cfg.FFmpegPath)
			return nil
		},
	}
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var filePath string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "analyze [video-url]",
		Short: "Analyze one video by URL or local file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (filePath == "") == (len(args) == 0) {
				return fmt.Errorf("provide exactly one of a video URL or --file")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			analyzer, err := bootstrap.NewAnalyzer(cfg, ctx.logger(), func(s pipeline.State) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s...\n", processor.StageLabel(s))
			})
			if err != nil {
				return err
			}

			src := types.SourceReference{Kind: types.SourceRemote}
			if len(args) == 1 {
				src.RawURL = args[0]
			} else {
				// the analyzer deletes what it is given, so hand it a copy
				path, err := copyIntoWorkDir(cfg.WorkDir, filePath)
				if err != nil {
					return err
				}
				src = source.Local(path)
			}

			res := processor.ProcessSingle(runCtx, analyzer, src)
			if jsonOut {
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, res.Message())
			}
			if res.Error != nil {
				return fmt.Errorf("analysis failed: %s", res.Error.Kind)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Local MP4 file to analyze")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	return cmd
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var outPath string
	var limit int
	cmd := &cobra.Command{
		Use:   "batch <dataset.xlsx>",
		Short: "Analyze every video URL listed in a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			records, err := dataset.Load(args[0])
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			analyzer, err := bootstrap.NewAnalyzer(cfg, ctx.logger(), nil)
			if err != nil {
				return err
			}
			results := processor.ProcessBatch(runCtx, analyzer, records, limit, ctx.logger(), func(i int, r processor.AnalysisResponse) {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] %s\n", i+1, len(records), r.Message())
			})
			ins := aggregator.Aggregate(results)

			fmt.Fprintln(cmd.OutOrStdout(), renderResults(records, results))
			fmt.Fprintf(cmd.OutOrStdout(), "%d analyzed, %d failed, mean confidence %.2f%%\n", ins.Succeeded, ins.Failed, ins.MeanConfidence)
			if outPath != "" {
				if err := dataset.WriteReport(outPath, records, results, ins); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", outPath)
			}
			return runCtx.Err()
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write an .xlsx report to this path")
	cmd.Flags().IntVar(&limit, "limit", 0, "Only process the first N rows (0 = all)")
	return cmd
}

func renderResults(records []types.VideoRecord, results []processor.AnalysisResponse) string {
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		row := []string{records[i].RowID, records[i].VideoURL, r.Accent, "", ""}
		if r.Confidence != nil {
			row[3] = strconv.FormatFloat(*r.Confidence, 'f', 2, 64)
		}
		if r.Error != nil {
			row[4] = string(r.Error.Kind)
		}
		rows = append(rows, row)
	}
	return renderTable([]string{"Row", "Video", "Accent", "Confidence", "Error"}, rows, 4)
}

func copyIntoWorkDir(workDir, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return processor.Materialize(workDir, f, 0)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
