package main

import (
	"github.com/rs/zerolog"

	"github.com/freeeve/enginepool/internal/analysis"
	"github.com/freeeve/enginepool/internal/logx"
)

func newLogger(cfg Config) zerolog.Logger {
	return logx.New(logx.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
}

func newPool(cfg Config, log zerolog.Logger) (*analysis.Pool, error) {
	pc, err := cfg.poolConfig(log)
	if err != nil {
		return nil, err
	}
	return analysis.New(pc)
}
