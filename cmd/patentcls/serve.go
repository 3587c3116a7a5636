package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/spf13/cobra"

	models "github.com/fintechpatents/patentcls"
	"github.com/fintechpatents/patentcls/web"
)

// Serve defaults.
const (
	DefaultAddr           = ":8501"
	DefaultSampleAbstract = "sample_abstract.txt"
)

func serveCmd(d *deps) *cobra.Command {
	cfg := models.Config{
		ConfigFile:   DefaultFinalConfig,
		ModelsDir:    models.DefaultModelsDir,
		ArtifactsDir: models.DefaultArtifactsDir,
	}
	var (
		addr        string
		modelConfig string
		sampleFile  string
		labelsFile  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web front end",
		Long: "Serve the classification page. On the first run, when the final registry does not exist yet, " +
			"every model in the source registry is downloaded and packed before the server starts.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if err := firstRun(ctx, d, modelConfig, cfg); err != nil {
				return err
			}

			mgr, err := models.NewManager(cfg, d.managerOptions()...)
			if err != nil {
				return err
			}
			engine, err := d.engine(labelsFile)
			if err != nil {
				return err
			}
			sample, err := web.ReadSample(sampleFile)
			if err != nil {
				return fmt.Errorf("reading sample abstract: %w", err)
			}

			server := web.NewServer(mgr, engine,
				web.WithLogger(d.log),
				web.WithSample(sample),
				web.WithAccessLog(cmd.OutOrStdout()),
			)
			if !d.listen {
				return nil
			}
			ancli.Okf("serving on %s\n", addr)
			return server.Listen(ctx, addr)
		},
	}

	models.BindConfigFlags(cmd, &cfg)
	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", DefaultAddr, "Address to listen on")
	flags.StringVar(&modelConfig, "path_model_config_file", models.DefaultConfigFile, "Source registry copied on the first run")
	flags.StringVar(&sampleFile, "sample_abstract", DefaultSampleAbstract, "Text pre-filled in the text area, if the file exists")
	flags.StringVar(&labelsFile, "labels_file", "", "INI file mapping class indices to labels")

	return cmd
}

// firstRun prepares every model when cfg.ConfigFile does not exist. The
// source registry is copied to a staging file that the manager updates, and
// the staging file becomes the final registry once preparation ends.
// Preparation failures are reported but do not stop the server.
func firstRun(ctx context.Context, d *deps, source string, cfg models.Config) error {
	if _, err := os.Stat(cfg.ConfigFile); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	ancli.Noticef("first run: downloading and packing models listed in %s\n", source)
	staging := cfg.ConfigFile + ".partial"
	if err := models.CopyRegistry(source, staging); err != nil {
		return err
	}

	stagingCfg := cfg
	stagingCfg.ConfigFile = staging
	mgr, err := models.NewManager(stagingCfg, d.managerOptions()...)
	if err != nil {
		return err
	}

	opts := []models.PrepareOption{models.WithProgress(func(p models.Progress) {
		if p.Phase == models.PhaseDone {
			d.log.Info("prepared", "id", p.ID, "path", p.Message)
		}
	})}
	if err := mgr.Prepare(ctx, opts...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		ancli.Warnf("some models could not be prepared: %v\n", err)
	}

	if err := os.Rename(staging, cfg.ConfigFile); err != nil {
		return fmt.Errorf("%w: %v", models.ErrConfigWrite, err)
	}
	ancli.Okf("models prepared, registry written to %s\n", cfg.ConfigFile)
	return nil
}
