package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/spf13/cobra"

	models "github.com/fintechpatents/patentcls"
	"github.com/fintechpatents/patentcls/inference"
)

// DefaultFinalConfig is the registry written after the first run prepared
// the models.
const DefaultFinalConfig = "config.ini"

func predictCmd(d *deps) *cobra.Command {
	cfg := models.Config{
		ConfigFile:   DefaultFinalConfig,
		ModelsDir:    models.DefaultModelsDir,
		ArtifactsDir: models.DefaultArtifactsDir,
	}
	var (
		modelID    string
		text       string
		file       string
		labelsFile string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Classify patent text",
		Long:  "Classify text with a packed model and print the label and the confidence of every class.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelID == "" {
				return fmt.Errorf("%w: --model is required", errInvalidArgs)
			}
			input, err := readInput(cmd.InOrStdin(), text, file)
			if err != nil {
				return err
			}

			mgr, err := models.NewManager(cfg, d.managerOptions()...)
			if err != nil {
				return err
			}
			entry, err := mgr.Get(cmd.Context(), modelID)
			if err != nil {
				return err
			}
			if !entry.Packed() {
				return fmt.Errorf("model %s is not packed, run 'patentcls models prepare' first", entry.ID)
			}

			engine, err := d.engine(labelsFile)
			if err != nil {
				return err
			}
			res, err := engine.Infer(cmd.Context(), entry.ArtifactPath, input)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return printResult(cmd.OutOrStdout(), entry, res)
		},
	}

	models.BindConfigFlags(cmd, &cfg)
	flags := cmd.Flags()
	flags.StringVar(&modelID, "model", "", "Identifier of the model to use")
	flags.StringVar(&text, "text", "", "Text to classify")
	flags.StringVar(&file, "file", "", "File with the text to classify, - for stdin")
	flags.StringVar(&labelsFile, "labels_file", "", "INI file mapping class indices to labels")
	flags.BoolVar(&asJSON, "json", false, "Output in JSON format")
	cmd.MarkFlagsMutuallyExclusive("text", "file")

	return cmd
}

// readInput returns the text to classify from --text or --file.
func readInput(stdin io.Reader, text, file string) (string, error) {
	switch {
	case text != "":
		return text, nil
	case file == "-":
		data, err := io.ReadAll(stdin)
		return string(data), err
	case file != "":
		data, err := os.ReadFile(file)
		return string(data), err
	default:
		return "", fmt.Errorf("%w: one of --text or --file is required", errInvalidArgs)
	}
}

func printResult(w io.Writer, entry models.ModelEntry, res inference.Result) error {
	fmt.Fprintf(w, "%s: %s\n\n", entry.Name(), res.Label)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, c := range res.Confidence {
		marker := ""
		if c.Label == res.Label {
			marker = "<"
		}
		fmt.Fprintf(tw, "%s\t%.2f%%\t%s\n", c.Label, c.Percent, marker)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	highlighted := 0
	for _, t := range res.Tokens {
		if t.Present {
			highlighted++
		}
	}
	if highlighted == 0 {
		ancli.Warnf("attention unavailable, no token weights\n")
		return nil
	}

	top := topTokens(res.Tokens, 5)
	fmt.Fprintf(w, "\nMost attended: %s\n", strings.Join(top, ", "))
	return nil
}

// topTokens returns the n tokens with the highest attention weight.
func topTokens(tokens []inference.TokenWeight, n int) []string {
	ranked := make([]inference.TokenWeight, 0, len(tokens))
	for _, t := range tokens {
		if t.Present {
			ranked = append(ranked, t)
		}
	}
	slices.SortStableFunc(ranked, func(a, b inference.TokenWeight) int {
		return cmp.Compare(b.Weight, a.Weight)
	})

	out := make([]string, 0, n)
	for _, t := range ranked {
		if len(out) == n {
			break
		}
		out = append(out, t.Text)
	}
	return out
}
