package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/rget/internal/output"
	"github.com/tanq16/rget/internal/scheduler"
	"github.com/tanq16/rget/internal/utils"
)

var (
	connections int
	timeout     time.Duration
	userAgent   string
	resume      bool
	quiet       bool
	debug       bool
	headers     []string
	rateLimit   int
)

var RgetVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "rget [URL] [--output OUTPUT_PATH]",
	Short:   "rget is a segmented HTTP downloader",
	Version: RgetVersion,
	Args:    cobra.ExactArgs(1),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug, quiet)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		outputPath, _ := cmd.Flags().GetString("output")
		req := buildRequest(args[0], outputPath, connections)
		if err := utils.ValidateRequest(req); err != nil {
			return err
		}
		return runJobs(cmd.Context(), []scheduler.Job{scheduler.NewJob(req)}, 1)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func buildRequest(url, outputPath string, conns int) utils.DownloadRequest {
	ua := userAgent
	if ua == "randomize" {
		ua = utils.GetRandomUserAgent()
	}
	return utils.DownloadRequest{
		URL:         url,
		OutputPath:  outputPath,
		Connections: conns,
		Timeout:     timeout,
		UserAgent:   ua,
		Resume:      resume,
		Quiet:       quiet,
		Headers:     utils.ParseHeaderArgs(headers),
		RateLimit:   rateLimit,
	}
}

func runJobs(ctx context.Context, jobs []scheduler.Job, workers int) error {
	var out io.Writer = os.Stdout
	if quiet {
		out = io.Discard
	}
	results, err := scheduler.Run(ctx, jobs, workers, out)
	if !quiet {
		for _, r := range results {
			if r.Err == nil {
				output.PrintSuccess(fmt.Sprintf("Downloaded to %s", r.OutputPath))
			}
		}
	}
	return err
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		output.PrintError(fmt.Sprintf("Error: %v", err))
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringP("output", "o", "", "Output file path (inferred from the URL if not provided)")
	rootCmd.PersistentFlags().IntVarP(&connections, "connections", "c", utils.DefaultConnections, "Number of connections per download")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "Per-request timeout (eg. 5s, 10m)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent (\"randomize\" picks a browser agent)")
	rootCmd.PersistentFlags().BoolVarP(&resume, "continue", "C", false, "Continue a partially downloaded file")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode, no progress output")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.PersistentFlags().IntVar(&rateLimit, "rate-limit", 0, "Maximum requests per second (0 disables)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newProbeCmd())
}
