// Command churnscope trains, saves and queries explained churn models.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/churnscope/artifact"
	"github.com/YuminosukeSato/churnscope/config"
	"github.com/YuminosukeSato/churnscope/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string

	cfg      *config.Config
	registry *artifact.Registry
}

// artifacts kept loaded by one invocation
const registrySize = 4

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "churnscope",
		Short: "Train, persist and explain customer churn models",
		Long: `churnscope fits a categorical encoder, a classification pipeline and a
LIME explainer on a churn table and saves them together as one named
artifact. Saved artifacts score new customers and explain single
predictions feature by feature.

Example:
  churnscope train --config churnscope.yaml
  churnscope predict --model churn --set Contract="Month-to-month" --set tenure=3 ...
  churnscope explain --model churn --csv customer.csv --chart why.png`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Logging.Level = a.logLevel
			}
			if err := log.SetupLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr()); err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "churnscope.yaml", "configuration file (defaults apply when missing)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		a.trainCmd(),
		a.predictCmd(),
		a.explainCmd(),
		a.edaCmd(),
		a.inspectCmd(),
		a.listCmd(),
		a.removeCmd(),
	)
	return root
}

func (a *app) store() (*artifact.DiskStore, error) {
	return artifact.NewDiskStore(a.cfg.Storage.Root)
}

// models returns the process-wide registry of loaded artifacts, opening it
// on first use.
func (a *app) models() (*artifact.Registry, error) {
	if a.registry != nil {
		return a.registry, nil
	}
	store, err := a.store()
	if err != nil {
		return nil, err
	}
	a.registry, err = artifact.NewRegistry(store, registrySize)
	if err != nil {
		return nil, err
	}
	return a.registry, nil
}

// modelName falls back to training.model_name.
func (a *app) modelName(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.Training.ModelName
}
