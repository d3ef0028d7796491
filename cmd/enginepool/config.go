package main

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/freeeve/enginepool/internal/analysis"
	"github.com/freeeve/enginepool/internal/ease"
	"github.com/freeeve/enginepool/internal/engine"
	"github.com/freeeve/enginepool/internal/explorer"
	"github.com/freeeve/enginepool/internal/predict"
	"github.com/freeeve/enginepool/internal/sysinfo"
)

// Config is the full enginepool configuration: flags, ENGINEPOOL_* env
// vars and the YAML config file, in that order of precedence.
type Config struct {
	Engine struct {
		Path string `mapstructure:"path" validate:"required"`
		Nice int    `mapstructure:"nice" validate:"min=0,max=19"`
	} `mapstructure:"engine"`

	Pool struct {
		MaxLoadPercent int           `mapstructure:"max_load_percent" validate:"min=1,max=100"`
		MaxWorkers     int           `mapstructure:"max_workers" validate:"min=0,max=512"`
		HashCeilingMB  int           `mapstructure:"hash_ceiling_mb" validate:"min=16,max=65536"`
		ScaleInterval  time.Duration `mapstructure:"scale_interval" validate:"gt=0"`
		StopGrace      time.Duration `mapstructure:"stop_grace" validate:"gt=0"`
		RatingBand     int           `mapstructure:"rating_band" validate:"min=400,max=3500"`
	} `mapstructure:"pool"`

	Depth struct {
		Eval     int `mapstructure:"eval" validate:"min=1,max=60"`
		Ease     int `mapstructure:"ease" validate:"min=1,max=60"`
		Discover int `mapstructure:"discover" validate:"min=1,max=60"`
		Top      int `mapstructure:"top" validate:"min=1,max=32"`
	} `mapstructure:"depth"`

	Ease struct {
		Beta     float64 `mapstructure:"beta" validate:"gt=0"`
		Alpha    float64 `mapstructure:"alpha" validate:"gt=0,lte=1"`
		MinGames int     `mapstructure:"min_games" validate:"min=0"`
		Mass     float64 `mapstructure:"mass" validate:"gt=0,lte=1"`
	} `mapstructure:"ease"`

	Explorer struct {
		URL          string  `mapstructure:"url" validate:"omitempty,url"`
		Table        string  `mapstructure:"table"`
		RequestsPerS float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	} `mapstructure:"explorer"`

	Predict struct {
		URL          string  `mapstructure:"url" validate:"omitempty,url"`
		RequestsPerS float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	} `mapstructure:"predict"`

	Log struct {
		Level string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error off disabled"`
		JSON  bool   `mapstructure:"json"`
	} `mapstructure:"log"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.path", "stockfish")
	v.SetDefault("engine.nice", 0)
	v.SetDefault("pool.max_load_percent", 80)
	v.SetDefault("pool.max_workers", 0)
	v.SetDefault("pool.hash_ceiling_mb", 256)
	v.SetDefault("pool.scale_interval", 3*time.Second)
	v.SetDefault("pool.stop_grace", engine.DefaultStopGrace)
	v.SetDefault("pool.rating_band", 1500)
	v.SetDefault("depth.eval", 18)
	v.SetDefault("depth.ease", 12)
	v.SetDefault("depth.discover", 20)
	v.SetDefault("depth.top", 3)
	v.SetDefault("ease.beta", ease.DefaultBeta)
	v.SetDefault("ease.alpha", ease.DefaultAlpha)
	v.SetDefault("ease.min_games", ease.DefaultMinGames)
	v.SetDefault("ease.mass", ease.DefaultMass)
	v.SetDefault("explorer.requests_per_second", 5.0)
	v.SetDefault("predict.requests_per_second", 5.0)
	v.SetDefault("log.level", "info")
}

// loadConfig decodes and validates v.
func loadConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Config{}, fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// readConfig loads the global configuration, failing on an unreadable
// explicit config file.
func readConfig() (Config, error) {
	if cfgFile != "" {
		if err := viper.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}
	return loadConfig(viper.GetViper())
}

func (c Config) maxWorkers() int {
	if c.Pool.MaxWorkers > 0 {
		return c.Pool.MaxWorkers
	}
	return max(1, runtime.NumCPU()-1)
}

// launcher resolves the engine binary.
func (c Config) launcher() engine.ExecLauncher {
	path := c.Engine.Path
	if resolved, err := exec.LookPath(path); err == nil {
		path = resolved
	}
	return engine.ExecLauncher{Path: path, Nice: c.Engine.Nice}
}

// statsSource picks the local table over the HTTP explorer. Nil when
// neither is configured.
func (c Config) statsSource(log zerolog.Logger) (explorer.Source, error) {
	if c.Explorer.Table != "" {
		t := explorer.NewTable()
		n, err := t.LoadFile(c.Explorer.Table)
		if err != nil {
			return nil, fmt.Errorf("load explorer table: %w", err)
		}
		log.Info().Str("path", c.Explorer.Table).Int("rows", n).Int("positions", t.Len()).Msg("explorer table loaded")
		return t, nil
	}
	if c.Explorer.URL != "" {
		return explorer.NewHTTPClient(explorer.HTTPConfig{
			BaseURL:      c.Explorer.URL,
			RequestsPerS: c.Explorer.RequestsPerS,
		}), nil
	}
	return nil, nil
}

func (c Config) oracle() predict.Oracle {
	if c.Predict.URL == "" {
		return nil
	}
	return predict.New(predict.Config{URL: c.Predict.URL, RequestsPerS: c.Predict.RequestsPerS})
}

// poolConfig assembles the analysis pool configuration.
func (c Config) poolConfig(log zerolog.Logger) (analysis.Config, error) {
	stats, err := c.statsSource(log)
	if err != nil {
		return analysis.Config{}, err
	}
	pc := analysis.Config{
		Launcher:       c.launcher(),
		Logger:         log,
		System:         sysinfo.Host{},
		Stats:          stats,
		Oracle:         c.oracle(),
		MaxLoadPercent: c.Pool.MaxLoadPercent,
		MaxWorkers:     c.maxWorkers(),
		HashCeilingMB:  c.Pool.HashCeilingMB,
		ScaleInterval:  c.Pool.ScaleInterval,
		RatingBand:     c.Pool.RatingBand,
		StopGrace:      c.Pool.StopGrace,
		Ease: ease.Config{
			Beta:     c.Ease.Beta,
			Alpha:    c.Ease.Alpha,
			MinGames: c.Ease.MinGames,
			Mass:     c.Ease.Mass,
		},
	}
	return pc, nil
}
