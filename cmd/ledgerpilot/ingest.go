package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mverde/ledgerpilot/internal/config"
	"github.com/mverde/ledgerpilot/internal/service"
)

func newIngestCmd() *cobra.Command {
	var filePath string
	var execute bool
	cmd := &cobra.Command{
		Use:   "ingest [text]",
		Short: "Turn free text or a document into a draft, optionally executing it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			in := service.IngestInput{}
			if len(args) > 0 {
				in.Text = args[0]
			}
			if filePath != "" {
				data, err := os.ReadFile(filePath)
				if err != nil {
					return err
				}
				in.File = data
				in.MIMEType = mime.TypeByExtension(filepath.Ext(filePath))
			}
			if strings.TrimSpace(in.Text) == "" && len(in.File) == 0 {
				return fmt.Errorf("provide text or --file")
			}

			draft := eng.orchestrator.Handle(cmd.Context(), flagOwner, in)
			out := map[string]any{"draft": draft}
			if execute && draft.Error == "" && len(draft.Actions) > 0 {
				results, err := eng.executor.ExecuteActions(cmd.Context(), flagOwner, draft.Actions)
				if err != nil {
					return err
				}
				out["results"] = results
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "document to ingest (pdf, image, text)")
	cmd.Flags().BoolVar(&execute, "execute", false, "execute the draft immediately instead of printing it")
	return cmd
}
