package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/danshapiro/gamecrew/internal/config"
	"github.com/danshapiro/gamecrew/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand shares once flags are parsed.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "gamecrew",
		Short:         "A team of Gemini-backed roles that hand a game project to one another",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "Path to a YAML config file")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.String("log-format", "console", "Log format (console, json)")
	pf.String("model", "", "Gemini model name")
	pf.String("transport", "", "Backend transport (rest, sdk)")
	pf.String("roles-catalog", "", "YAML file merged over the built-in role catalog")
	bindFlags(a.v, pf, map[string]string{
		"log.level":       "log-level",
		"log.format":      "log-format",
		"model.name":      "model",
		"model.transport": "transport",
		"roles.catalog":   "roles-catalog",
	})

	root.AddCommand(
		newServeCmd(a),
		newTurnCmd(a),
		newPlayCmd(a),
		newRolesCmd(a),
		newModelsCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr()); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}
