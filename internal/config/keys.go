package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	env   string
	typ   keyType
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		env: "JOBDECK_DATA_DIR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		env: "JOBDECK_GATEWAY_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Gateway.URL = v.(string) },
	},
	{
		env: "JOBDECK_GATEWAY_TOKEN", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Gateway.Token = v.(string) },
	},
	{
		env: "JOBDECK_MONTHLY_LIMIT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Quota.MonthlyLimit = v.(int) },
	},
	{
		env: "JOBDECK_WARN_RATIO", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Quota.WarnRatio = v.(float64) },
	},
	{
		env: "JOBDECK_SHALLOW_TTL_HOURS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Fetch.ShallowTTLHours = v.(int) },
	},
	{
		env: "JOBDECK_DEEP_TTL_HOURS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Fetch.DeepTTLHours = v.(int) },
	},
	{
		env: "JOBDECK_FAILURE_CEILING", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Fetch.FailureCeiling = v.(int) },
	},
	{
		env: "JOBDECK_MAX_IN_FLIGHT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Fetch.MaxInFlight = v.(int) },
	},
	{
		env: "JOBDECK_SERVER_PORT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		env: "JOBDECK_API_TOKEN", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
	},
	{
		env: "JOBDECK_REFRESH_ENABLED", typ: kBool,
		apply: func(cfg *Config, v any) { cfg.Server.RefreshEnabled = v.(bool) },
	},
	{
		env: "JOBDECK_REFRESH_INTERVAL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Server.RefreshInterval = v.(string) },
	},
	{
		env: "JOBDECK_LOG_LEVEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
