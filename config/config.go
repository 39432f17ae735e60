// Package config loads the connector's process configuration from the
// environment (optionally via a .env file in development).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the connector's full runtime configuration.
type Config struct {
	EthConnectURL          string
	FFTMURL                string
	EthConnectUsername     string
	EthConnectPassword     string
	FactoryContractAddress string
	PassthroughHeaders     []string
	Topic                  string
	ListenAddr             string
}

// Load reads configuration from the environment. A .env file at the given
// path is loaded first if present; a missing file is not an error, since
// production deployments set the environment directly.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: failed to load %s: %w", envFile, err)
		}
	}

	cfg := Config{
		EthConnectURL:          os.Getenv("ETHCONNECT_URL"),
		FFTMURL:                os.Getenv("FFTM_URL"),
		EthConnectUsername:     os.Getenv("ETHCONNECT_USERNAME"),
		EthConnectPassword:     os.Getenv("ETHCONNECT_PASSWORD"),
		FactoryContractAddress: os.Getenv("FACTORY_CONTRACT_ADDRESS"),
		Topic:                  os.Getenv("TOPIC"),
		ListenAddr:             os.Getenv("LISTEN_ADDR"),
	}
	if cfg.Topic == "" {
		cfg.Topic = "tokens"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":3000"
	}
	if headers := os.Getenv("PASSTHROUGH_HEADERS"); headers != "" {
		for _, h := range strings.Split(headers, ",") {
			if h = strings.TrimSpace(h); h != "" {
				cfg.PassthroughHeaders = append(cfg.PassthroughHeaders, h)
			}
		}
	}

	if cfg.EthConnectURL == "" {
		return Config{}, fmt.Errorf("config: ETHCONNECT_URL is required")
	}
	return cfg, nil
}
