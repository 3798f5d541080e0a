package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/kwharvest/internal/logging"
	"github.com/ppiankov/kwharvest/internal/model"
)

// Version is set at build time with -ldflags "-X ...cli.Version=..."
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kwharvest",
	Short: "kwharvest - autocomplete keyword harvesting and trend reports",
	Long: `kwharvest collects autocomplete suggestions from a marketplace, an
auction site and a search engine, stores them as dated raw dumps, and
derives rising-keyword reports and a ledger of newly seen keywords.

Typical daily flow:
  kwharvest seeds --nouns nouns.csv      (once per locale)
  kwharvest harvest
  kwharvest accumulate
  kwharvest trend --recent 2022-5-3 --previous 2022-5-2`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kwharvest %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.kwharvest/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	pf.String("locale", "", "locale code (en, de)")
	pf.String("marketplace", "", "marketplace whose dumps are read (amazon, ebay, google)")
	pf.String("data-root", "", "root directory of the dated dumps")
	pf.String("log-format", "", "log format (console, json)")

	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = viper.BindPFlag("locale", pf.Lookup("locale"))
	_ = viper.BindPFlag("marketplace", pf.Lookup("marketplace"))
	_ = viper.BindPFlag("data_root", pf.Lookup("data-root"))
	_ = viper.BindPFlag("logging.format", pf.Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig layers defaults, the config file and KWHARVEST_* variables
func initConfig() {
	viper.SetConfigType("yaml")
	if defaults, err := yaml.Marshal(model.DefaultConfig()); err == nil {
		_ = viper.ReadConfig(bytes.NewReader(defaults))
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".kwharvest"))
		viper.SetConfigName("config")
	}

	// KWHARVEST_HARVEST_WORKERS overrides harvest.workers
	viper.SetEnvPrefix("KWHARVEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("cluster.api_key", "KWHARVEST_CLUSTER_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY")

	if err := viper.MergeInConfig(); err == nil {
		if verbose {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", cfgFile, err)
	}
}

// loadConfig returns the effective, validated configuration
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the logger for cfg; --verbose forces debug level
func newLogger(cfg *model.Config) (*zap.Logger, error) {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	return logging.New(level, cfg.Logging.Format)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// setup loads config and logger for a command
func setup() (*model.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
