package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deploymenttheory/vdfs4-unpacker/internal/config"
)

var (
	configFile string
	viperInst  = viper.New()
	log        = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "vdfs4-unpack",
	Short: "Read-only unpacker for VDFS4 filesystem images",
	Long: `vdfs4-unpack reads a VDFS4 filesystem image -- the log-structured,
copy-on-write, B+tree-indexed format used on embedded Linux devices -- and
unpacks its directory tree and file contents to a destination directory
without mounting or modifying the image.`,
	Version: "0.1.0-dev",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file (optional)")
	config.BindFlags(viperInst, rootCmd)

	cobra.OnInitialize(func() {
		cfg, err := config.Load(viperInst, configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		applyLogConfig(cfg)
		currentConfig = cfg
	})
}

// currentConfig holds the config resolved in cobra.OnInitialize, read by
// subcommands after cobra parses flags but before Run executes.
var currentConfig config.Config

func applyLogConfig(cfg config.Config) {
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{})
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
