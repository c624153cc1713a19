package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docrag/internal/pipeline"
)

var ingestContentType string

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Extract, split, embed and store documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestContentType, "content-type", "", "MIME type (guessed from the extension when empty)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results := make([]pipeline.Result, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		ct := ingestContentType
		if ct == "" {
			ct = mime.TypeByExtension(filepath.Ext(path))
		}
		doc := pipeline.Document{FileName: filepath.Base(path), ContentType: ct, Data: data}
		track := func(s pipeline.JobStatus) {
			if verbose {
				cmd.PrintErrf("%s: %s\n", doc.FileName, s)
			}
		}
		res, err := a.Ingestor.Ingest(ctx, doc, track)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		results = append(results, res)
	}
	return printJSON(cmd, results)
}
