package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/mre-cli/internal/vocab"
)

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Print the effective label and unit vocabulary as YAML",
	Long:  "Prints the vocabulary in the same YAML shape normalize.vocabulary_file accepts, so it can be copied and extended.",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadVocabulary(cfg)
		if err != nil {
			return err
		}
		return writeVocab(os.Stdout, v)
	},
}

func writeVocab(w io.Writer, v *vocab.Vocabulary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v.File()); err != nil {
		return err
	}
	return enc.Close()
}

func init() {
	rootCmd.AddCommand(vocabCmd)
}
