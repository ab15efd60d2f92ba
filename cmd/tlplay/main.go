package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jdeisenh/tlplay/pkg/config"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app is the state shared by the subcommands
type app struct {
	v        *viper.Viper
	settings config.Settings
	logger   zerolog.Logger
}

var state app

var rootCmd = &cobra.Command{
	Use:           "tlplay",
	Short:         "Play and inspect editorial timelines",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return state.setup(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default tlplay.toml in . or the user config dir)")
	rootCmd.PersistentFlags().Bool("debug", false, "set log level to debug")
	rootCmd.PersistentFlags().Bool("json", false, "log as JSON")
	rootCmd.PersistentFlags().String("listen", "", "socket:Port for the status and metrics server (e.g. :8080)")
}

func (a *app) setup(cmd *cobra.Command) error {
	dirs := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, config.Name))
	}
	v, err := config.New(afero.NewOsFs(), dirs...)
	if err != nil {
		return err
	}
	if file, _ := cmd.Flags().GetString("config"); file != "" {
		if err := config.ReadFile(v, file); err != nil {
			return err
		}
	}
	lo.Must0(v.BindPFlag(config.HTTPListen, cmd.Root().PersistentFlags().Lookup("listen")))
	if lo.Must(cmd.Flags().GetBool("json")) {
		v.Set(config.LogFormat, "json")
	}
	if lo.Must(cmd.Flags().GetBool("debug")) {
		v.Set(config.LogLevel, "debug")
	}
	s, err := config.Load(v)
	if err != nil {
		return err
	}
	a.v, a.settings = v, s

	if s.JSON {
		a.logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		a.logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.TimeOnly,
		}).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(s.Level)
	a.settings.Timeline.Logger = a.logger
	a.settings.Player.Logger = a.logger
	return nil
}

func main() {
	rootCmd.AddCommand(infoCmd, playCmd, editCmd)
	if err := rootCmd.Execute(); err != nil {
		if state.v == nil {
			// No logger yet
			fmt.Fprintln(os.Stderr, err)
		} else {
			state.logger.Error().Err(err).Send()
		}
		os.Exit(1)
	}
}
