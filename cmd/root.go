// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rendercore/internal/config"
	"github.com/xkilldash9x/rendercore/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// configKeyAnnotation marks a flag as an override of a config key.
const configKeyAnnotation = "rendercore/config-key"

// NewRootCommand builds a fresh command tree. Each call has its own flag
// set and viper instance, so commands can be executed repeatedly.
func NewRootCommand() *cobra.Command {
	var cfgFile string
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:           "rendercore",
		Short:         "rendercore renders web pages through a layered, composited pipeline.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(v, cfgFile); err != nil {
				return err
			}
			if err := bindConfigFlags(v, cmd.Flags()); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "rendercore"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting rendercore", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	cmd.SetVersionTemplate("{{.Name}} version {{.Version}}\n")
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command with ctx and logs a failure.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// initializeConfig reads the config file, if any. A missing default file is
// not an error; defaults and RENDERCORE_* variables still apply.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// overrides marks flag name as setting the config key. Only flags given on
// the command line win over the config file and environment.
func overrides(flags *pflag.FlagSet, name, key string) {
	if err := flags.SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
		panic(err)
	}
}

func bindConfigFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[configKeyAnnotation]
		if err != nil || len(keys) == 0 {
			return
		}
		err = v.BindPFlag(keys[0], f)
	})
	return err
}

// configFrom returns the configuration stored by PersistentPreRunE.
func configFrom(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
