package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Gate actuator modes.
const (
	GateModeSimulated = "simulated"
	GateModeRemote    = "remote"
)

// Config defines parkgate service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"PARKGATE_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"PARKGATE_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"PARKGATE_REDIS_ADDR"`
		Password string `yaml:"password" env:"PARKGATE_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"PARKGATE_REDIS_DB"`
	} `yaml:"redis"`
	Parking struct {
		Zones                    map[string]int `yaml:"zones"`
		HourlyRate               float64        `yaml:"hourlyRate" env:"PARKGATE_HOURLY_RATE"`
		RequirePrepayment        bool           `yaml:"requirePrepayment" env:"PARKGATE_REQUIRE_PREPAYMENT"`
		EvacuationClosesSessions bool           `yaml:"evacuationClosesSessions" env:"PARKGATE_EVACUATION_CLOSES_SESSIONS"`
	} `yaml:"parking"`
	Gate struct {
		Mode         string `yaml:"mode" env:"PARKGATE_GATE_MODE"`
		WriteTimeout int    `yaml:"writeTimeoutSeconds" env:"PARKGATE_GATE_WRITE_TIMEOUT"`
	} `yaml:"gate"`
	Auth struct {
		JWTSecret            string `yaml:"jwtSecret" env:"PARKGATE_JWT_SECRET"`
		TokenTTL             int    `yaml:"tokenTtlSeconds" env:"PARKGATE_TOKEN_TTL"`
		OperatorUsername     string `yaml:"operatorUsername" env:"PARKGATE_OPERATOR_USERNAME"`
		OperatorPasswordHash string `yaml:"operatorPasswordHash" env:"PARKGATE_OPERATOR_PASSWORD_HASH"`
	} `yaml:"auth"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.Parking.Zones = map[string]int{"A": 20}
	cfg.Parking.HourlyRate = 2.0
	cfg.Parking.RequirePrepayment = true
	cfg.Gate.Mode = GateModeSimulated
	cfg.Gate.WriteTimeout = 5
	cfg.Auth.TokenTTL = 3600
	cfg.Auth.OperatorUsername = "operator"

	if err := loadInto(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("config: jwt secret required")
	}
	if cfg.Gate.Mode != GateModeSimulated && cfg.Gate.Mode != GateModeRemote {
		return nil, fmt.Errorf("config: unknown gate mode %q", cfg.Gate.Mode)
	}
	if len(cfg.Parking.Zones) == 0 {
		return nil, errors.New("config: at least one parking zone required")
	}
	for zone, capacity := range cfg.Parking.Zones {
		if capacity <= 0 {
			return nil, fmt.Errorf("config: zone %q capacity must be positive", zone)
		}
	}
	if cfg.Parking.HourlyRate <= 0 {
		return nil, errors.New("config: hourly rate must be positive")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// GateWriteTimeout returns barrier write timeout as duration.
func (c *Config) GateWriteTimeout() time.Duration {
	if c.Gate.WriteTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Gate.WriteTimeout) * time.Second
}

// TokenTTL returns operator token lifetime as duration.
func (c *Config) TokenTTL() time.Duration {
	if c.Auth.TokenTTL <= 0 {
		return time.Hour
	}
	return time.Duration(c.Auth.TokenTTL) * time.Second
}
