package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nexconsult/rera-harvester/internal/service/extractor"
	"github.com/spf13/cobra"
)

// newExtractCmd runs the field extractor over a saved page, which is how
// selector changes are checked without a browser.
func newExtractCmd() *cobra.Command {
	var (
		htmlFile string
		id       int
	)

	cmd := &cobra.Command{
		Use:     "extract",
		Short:   "Extract a record from a saved project page",
		Example: "  harvester extract --html page.html --id 12345",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			f, err := os.Open(htmlFile)
			if err != nil {
				return err
			}
			defer f.Close()

			doc, err := extractor.ParseDocument(f, "")
			if err != nil {
				return fmt.Errorf("parse %s: %w", htmlFile, err)
			}
			rec, err := extractor.NewEngine(a.logger).ExtractDocument(cmd.Context(), id, doc)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}

	cmd.Flags().StringVar(&htmlFile, "html", "", "saved project page")
	cmd.Flags().IntVar(&id, "id", 0, "project ID recorded in the output")
	_ = cmd.MarkFlagRequired("html")

	return cmd
}
