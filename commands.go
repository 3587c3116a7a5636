package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// Flag names shared with the serve command of the patentcls binary.
const (
	FlagConfigFile   = "path_config_file"
	FlagModelsDir    = "path_models"
	FlagArtifactsDir = "model_tokenizer_pickle_path"
)

// NewCommand returns the "models" command for mounting under a root command.
//
// Subcommands:
//   - models fetch [id...]
//   - models pack [id...]
//   - models prepare
//   - models list [--json]
//
// Global flags: --path_config_file, --path_models, --model_tokenizer_pickle_path, --quiet
func NewCommand(cfg Config, opts ...ManagerOption) *cobra.Command {
	cfg = cfg.withDefaults()

	var quiet bool

	var mgr Manager // set by PersistentPreRunE

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Prepare pretrained classifiers",
		Long:  "Download model archives listed in the registry, unzip them, and pack each tokenizer and model into one artifact.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "help", "completion":
				return nil
			}

			m, err := NewManager(cfg, opts...)
			if err != nil {
				return fmt.Errorf("opening registry: %w", err)
			}
			mgr = m
			return nil
		},
		SilenceUsage: true,
	}

	BindConfigFlags(cmd, &cfg)
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")

	cmd.AddCommand(fetchCmd(&mgr, &quiet))
	cmd.AddCommand(packCmd(&mgr, &quiet))
	cmd.AddCommand(prepareCmd(&mgr, &quiet))
	cmd.AddCommand(listCmd(&mgr))

	return cmd
}

// BindConfigFlags registers the registry and directory flags on cmd as
// persistent flags writing into cfg.
func BindConfigFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.ConfigFile, FlagConfigFile, cfg.ConfigFile, "Registry file with one section per model")
	flags.StringVar(&cfg.ModelsDir, FlagModelsDir, cfg.ModelsDir, "Directory archives are downloaded to and extracted in")
	flags.StringVar(&cfg.ArtifactsDir, FlagArtifactsDir, cfg.ArtifactsDir, "Directory packed tokenizer and model artifacts are written to")
}

func fetchCmd(mgr *Manager, quiet *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [id...]",
		Short: "Download and extract model archives",
		Long:  "Download and extract the archive of each given model, or of every model in the registry. Archives without a root folder are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := progressOptions(cmd.OutOrStdout(), *quiet)

			if len(args) == 0 {
				return (*mgr).FetchAll(ctx, opts...)
			}
			var errs []error
			for _, id := range args {
				if err := (*mgr).Fetch(ctx, id, opts...); err != nil {
					errs = append(errs, err)
				}
				if ctx.Err() != nil {
					break
				}
			}
			return errors.Join(errs...)
		},
	}
}

func packCmd(mgr *Manager, quiet *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "pack [id...]",
		Short: "Pack extracted models into artifacts",
		Long:  "Pack each given model, or every extracted model in the registry, into a single tokenizer and model artifact.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := progressOptions(cmd.OutOrStdout(), *quiet)

			if len(args) == 0 {
				return (*mgr).PackAll(ctx, opts...)
			}
			var errs []error
			for _, id := range args {
				if err := (*mgr).Pack(ctx, id, opts...); err != nil {
					errs = append(errs, err)
				}
				if ctx.Err() != nil {
					break
				}
			}
			return errors.Join(errs...)
		},
	}
}

func prepareCmd(mgr *Manager, quiet *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Fetch and pack every model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*mgr).Prepare(cmd.Context(), progressOptions(cmd.OutOrStdout(), *quiet)...)
		},
	}
}

func listCmd(mgr *Manager) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registry entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := (*mgr).List(cmd.Context())
			if err != nil {
				return err
			}
			return outputEntries(cmd.OutOrStdout(), entries, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

// progressOptions returns the PrepareOptions that print progress to w.
func progressOptions(w io.Writer, quiet bool) []PrepareOption {
	if quiet {
		return nil
	}
	p := &progressPrinter{w: w}
	return []PrepareOption{WithProgress(p.handle)}
}

// progressPrinter renders Progress reports as terminal lines.
// Callbacks arrive synchronously, so it needs no locking.
type progressPrinter struct {
	w io.Writer

	// barActive is set while a download bar occupies the current line.
	barActive bool

	// startTime is when the current download began.
	startTime time.Time

	// lastRender throttles bar redraws.
	lastRender time.Time
}

func (p *progressPrinter) handle(pr Progress) {
	switch pr.Phase {
	case PhaseDownload:
		if !p.barActive {
			fmt.Fprintf(p.w, "%s: downloading\n", pr.ID)
			p.barActive = true
			p.startTime = time.Now()
			p.lastRender = time.Time{}
		}
		if pr.BytesCompleted == 0 || time.Since(p.lastRender) < 100*time.Millisecond {
			return
		}
		p.lastRender = time.Now()
		renderProgress(p.w, pr.BytesCompleted, pr.BytesTotal, p.startTime)
	case PhaseExtract:
		p.endBar()
		if pr.CurrentFile == "" {
			fmt.Fprintf(p.w, "%s: extracting\n", pr.ID)
		}
	case PhasePack:
		p.endBar()
		fmt.Fprintf(p.w, "%s: packing %s\n", pr.ID, pr.CurrentFile)
	case PhaseSkipped:
		p.endBar()
		fmt.Fprintf(p.w, "%s: skipped (%s)\n", pr.ID, pr.Message)
	case PhaseDone:
		p.endBar()
		fmt.Fprintf(p.w, "%s: done -> %s\n", pr.ID, pr.Message)
	}
}

// endBar finishes the download bar line, if one is active.
func (p *progressPrinter) endBar() {
	if !p.barActive {
		return
	}
	if !p.lastRender.IsZero() {
		fmt.Fprintln(p.w)
	}
	p.barActive = false
}

// Output helpers

func outputEntries(w io.Writer, entries []ModelEntry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No models in registry")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tPATH")
	for _, e := range entries {
		state, path := "registered", ""
		switch {
		case e.Packed():
			state, path = "packed", e.ArtifactPath
		case e.ModelPath != "":
			state, path = "extracted", e.ModelPath
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Name(), state, path)
	}
	return tw.Flush()
}

var byteUnits = [...]string{"B", "KB", "MB", "GB"}

// scaleBytes divides n by 1024 until it drops below 1024 or reaches
// byteUnits[top].
func scaleBytes(n float64, top int) (float64, string) {
	i := 0
	for n >= 1024 && i < top {
		n /= 1024
		i++
	}
	return n, byteUnits[i]
}

func formatSize(bytes int64) string {
	v, unit := scaleBytes(float64(bytes), len(byteUnits)-1)
	if unit == "B" {
		return fmt.Sprintf("%d B", bytes)
	}
	return fmt.Sprintf("%.2f %s", v, unit)
}

func formatSpeed(bytesPerSec float64) string {
	v, unit := scaleBytes(bytesPerSec, 2)
	if unit == "B" {
		return fmt.Sprintf("%.0f B/s", v)
	}
	return fmt.Sprintf("%.1f %s/s", v, unit)
}

// renderProgress redraws the download line, with a bar when total is known.
func renderProgress(w io.Writer, current, total int64, startTime time.Time) {
	elapsed := time.Since(startTime)

	var speed float64
	if secs := elapsed.Seconds(); secs > 0 && current > 0 {
		speed = float64(current) / secs
	}
	tail := fmt.Sprintf("(%s, elapsed: %s)", formatSpeed(speed), formatDuration(elapsed))

	if total <= 0 {
		fmt.Fprintf(w, "\r\x1b[KDownloading %s %s", formatSize(current), tail)
		return
	}

	const barWidth = 30
	pct := float64(current) / float64(total) * 100
	filled := min(int(pct/100*barWidth), barWidth)

	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-filled-1)
	}
	fmt.Fprintf(w, "\r\x1b[KDownloading [%s] %.0f%% %s", bar, pct, tail)
}

// formatDuration prints at most two units: "5s", "2m 30s", "1h 5m".
func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60

	switch {
	case h > 0:
		return twoUnits(h, "h", m, "m")
	case m > 0:
		return twoUnits(m, "m", s, "s")
	}
	return fmt.Sprintf("%ds", s)
}

func twoUnits(major int, majorUnit string, minor int, minorUnit string) string {
	if minor == 0 {
		return fmt.Sprintf("%d%s", major, majorUnit)
	}
	return fmt.Sprintf("%d%s %d%s", major, majorUnit, minor, minorUnit)
}
