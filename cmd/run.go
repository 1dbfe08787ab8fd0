package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	runDocs      string
	runManifest  string
	runOut       string
	runFormat    string
	runNoLLM     bool
	runCompanies []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract MRE records from every announcement in the document store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		applyRunFlags()

		env, err := initPipeline(ctx, runCompanies)
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Pipeline.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	},
}

// applyRunFlags overrides config with the flags that were set.
func applyRunFlags() {
	if runDocs != "" {
		cfg.Docs.Dir = runDocs
	}
	if runManifest != "" {
		cfg.Docs.Manifest = runManifest
	}
	if runOut != "" {
		cfg.Output.Path = runOut
	}
	if runFormat != "" {
		cfg.Output.Format = strings.ToLower(runFormat)
	}
	if runNoLLM {
		cfg.Enrich.Enabled = false
	}
	for i, c := range runCompanies {
		runCompanies[i] = strings.ToUpper(strings.TrimSpace(c))
	}
}

func init() {
	runCmd.Flags().StringVar(&runDocs, "docs", "", "directory of downloaded announcement PDFs (overrides docs.dir)")
	runCmd.Flags().StringVar(&runManifest, "manifest", "", "downloader CSV mapping files to companies and dates")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "output file path (overrides output.path)")
	runCmd.Flags().StringVar(&runFormat, "format", "", "output format: csv, xlsx or json")
	runCmd.Flags().BoolVar(&runNoLLM, "no-llm", false, "skip LLM enrichment of unmapped fragments")
	runCmd.Flags().StringSliceVar(&runCompanies, "company", nil, "only process these ASX codes")
	rootCmd.AddCommand(runCmd)
}
