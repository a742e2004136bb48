package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	rgethttp "github.com/tanq16/rget/internal/downloaders/http"
	"github.com/tanq16/rget/internal/output"
	"github.com/tanq16/rget/internal/utils"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe [URL]",
		Short: "Show the size and range support of a remote file without downloading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := buildRequest(args[0], "", connections)
			if err := utils.ValidateRequest(req); err != nil {
				return err
			}
			client := utils.NewRgetHTTPClient(req.HTTPClientConfig())
			info, err := rgethttp.Probe(cmd.Context(), client, req.URL)
			if err != nil {
				return err
			}
			size := "unknown"
			if info.LengthKnown {
				size = fmt.Sprintf("%s (%d bytes)", output.FormatBytes(uint64(info.Length)), info.Length)
			}
			output.PrintInfo(fmt.Sprintf("Size: %s", size))
			output.PrintInfo(fmt.Sprintf("Range requests: %t", info.RangeSupported))
			output.PrintInfo(fmt.Sprintf("Output name: %s", utils.ResolveOutputPath("", info.FileName, req.URL)))
			return nil
		},
	}
}
