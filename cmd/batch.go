package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/tanq16/rget/internal/scheduler"
	"github.com/tanq16/rget/internal/utils"
)

func newBatchCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE] [--workers N]",
		Short: "Download every link listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := utils.ReadDownloadList(args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return errors.New("no entries found in the batch file")
			}
			perJob := scheduler.ConnectionsPerJob(workers, connections)
			jobs := make([]scheduler.Job, 0, len(entries))
			for _, entry := range entries {
				req := buildRequest(entry.URL, entry.OutputPath, perJob)
				if err := utils.ValidateRequest(req); err != nil {
					return err
				}
				jobs = append(jobs, scheduler.NewJob(req))
			}
			return runJobs(cmd.Context(), jobs, workers)
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Number of links to download in parallel")
	return cmd
}
