package main

import (
	"encoding/json"
	"os"

	"github.com/basewarphq/bwfunc/bwfunc"
)

type ConfigCmd struct{}

func (c *ConfigCmd) Run(cfg bwfunc.Config) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"logLevel":     cfg.LogLevel.String(),
		"logPretty":    cfg.LogPretty,
		"mode":         cfg.Mode,
		"expiry":       cfg.Expiry.String(),
		"serviceName":  cfg.ServiceName,
		"otelExporter": cfg.OtelExporter,
	})
}
