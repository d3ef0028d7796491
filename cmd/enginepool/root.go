package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "enginepool",
		Short: "Evaluate candidate moves on a RAM-budgeted pool of chess engines",
		Long: `enginepool runs a pool of UCI engines (Stockfish by default), sized so the
host stays under a RAM load ceiling, and scores candidate moves with an
engine evaluation plus an "ease" rating of how natural the move is to play.

Examples:
  enginepool sysinfo
  enginepool discover --fen "<fen>" --top 3
  enginepool evaluate --fen "<fen>" --moves e2e4,d2d4,Nf3
  enginepool serve --addr :8009`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/enginepool/config.yaml)")
	pf.String("engine", "", "path to the UCI engine binary (default: stockfish on PATH)")
	pf.Int("nice", 0, "nice value for engine processes (0=disabled)")
	pf.Int("max-load", 0, "RAM load ceiling in percent")
	pf.Int("max-workers", 0, "maximum engine workers (0=cores-1)")
	pf.Int("hash-ceiling", 0, "per-worker hash ceiling in MB")
	pf.Int("rating", 0, "rating band passed to the move oracle")
	pf.String("explorer-url", "", "chessgraph API used for move statistics")
	pf.String("explorer-table", "", "CSV move-statistics table (.csv, .csv.gz, .csv.zst)")
	pf.String("predict-url", "", "move-prediction endpoint used when statistics are thin")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.Bool("log-json", false, "log JSON instead of console output")

	_ = viper.BindPFlag("engine.path", pf.Lookup("engine"))
	_ = viper.BindPFlag("engine.nice", pf.Lookup("nice"))
	_ = viper.BindPFlag("pool.max_load_percent", pf.Lookup("max-load"))
	_ = viper.BindPFlag("pool.max_workers", pf.Lookup("max-workers"))
	_ = viper.BindPFlag("pool.hash_ceiling_mb", pf.Lookup("hash-ceiling"))
	_ = viper.BindPFlag("pool.rating_band", pf.Lookup("rating"))
	_ = viper.BindPFlag("explorer.url", pf.Lookup("explorer-url"))
	_ = viper.BindPFlag("explorer.table", pf.Lookup("explorer-table"))
	_ = viper.BindPFlag("predict.url", pf.Lookup("predict-url"))
	_ = viper.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("log.json", pf.Lookup("log-json"))

	rootCmd.AddCommand(evaluateCmd, discoverCmd, serveCmd, sysinfoCmd, checkCmd)
}

// initConfig reads the config file and environment into the global viper.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			viper.AddConfigPath(filepath.Join(xdg, "enginepool"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "enginepool"))
		}
	}
	configureViper(viper.GetViper())

	// a missing default config is fine; loadConfig reports a broken one
	_ = viper.ReadInConfig()
}

// configureViper sets env binding and defaults on v.
func configureViper(v *viper.Viper) {
	v.SetEnvPrefix("ENGINEPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("engine.path", "ENGINEPOOL_ENGINE_PATH", "STOCKFISH_PATH")
	setDefaults(v)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
