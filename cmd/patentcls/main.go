// Command patentcls classifies fintech patent text with pretrained
// transformer models.
//
//	patentcls models prepare      download, unzip and pack every model
//	patentcls predict --model id  classify text from the command line
//	patentcls serve               run the web front end
//
// Set DEBUG=1 for debug logging and pass --log-json for JSON logs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/baalimago/go_away_boilerplate/pkg/shutdown"
	"github.com/spf13/cobra"

	models "github.com/fintechpatents/patentcls"
	"github.com/fintechpatents/patentcls/inference"
)

// CLI exit codes.
const (
	// ExitSuccess indicates the operation completed successfully.
	ExitSuccess = 0

	// ExitFailure indicates the operation failed.
	ExitFailure = 1

	// ExitInvalidArgs indicates invalid command line arguments.
	ExitInvalidArgs = 2
)

// errInvalidArgs marks usage errors.
var errInvalidArgs = errors.New("invalid arguments")

// deps holds what the commands build their components from.
type deps struct {
	log         *switchLogger
	managerOpts []models.ManagerOption
	engineOpts  []inference.EngineOption
	listen      bool
}

func main() {
	ancli.SetupSlog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { shutdown.Monitor(cancel) }()

	d := &deps{log: newSwitchLogger(), listen: true}
	cmd := newRootCommand(d)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		ancli.Errf("%v\n", err)
	}
	os.Exit(exitCodeFromError(err))
}

func newRootCommand(d *deps) *cobra.Command {
	cobra.EnableTraverseRunHooks = true

	var logJSON bool
	root := &cobra.Command{
		Use:           "patentcls",
		Short:         "Fintech patent classification",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !logJSON {
				return nil
			}
			zl, err := newZapLogger(misc.Truthy(os.Getenv("DEBUG")))
			if err != nil {
				return fmt.Errorf("creating json logger: %w", err)
			}
			d.log.set(zl)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if zl, ok := d.log.get().(*zapLogger); ok {
				_ = zl.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errInvalidArgs, err)
	})

	root.AddCommand(models.NewCommand(models.Config{}, d.managerOptions()...))
	root.AddCommand(predictCmd(d))
	root.AddCommand(serveCmd(d))
	return root
}

// exitCodeFromError maps errors to exit codes.
func exitCodeFromError(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, errInvalidArgs):
		return ExitInvalidArgs
	default:
		return ExitFailure
	}
}

func (d *deps) managerOptions() []models.ManagerOption {
	return append([]models.ManagerOption{models.WithLogger(d.log)}, d.managerOpts...)
}

// engine builds the inference engine, reading labels from labelsFile if set.
func (d *deps) engine(labelsFile string) (*inference.Engine, error) {
	labels := inference.DefaultLabels
	if labelsFile != "" {
		var err error
		if labels, err = inference.LoadLabelSpace(labelsFile); err != nil {
			return nil, err
		}
		d.log.Debug("labels loaded", "path", labelsFile, "count", labels.Len())
	}

	opts := append([]inference.EngineOption{
		inference.WithLabels(labels),
		inference.WithLogger(d.log),
	}, d.engineOpts...)
	return inference.NewEngine(opts...), nil
}
