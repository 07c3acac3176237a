// Package config loads process configuration: required environment
// variables (fatal via ConfigurationError if missing) and a YAML static
// network-seed file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/orcfax/fact-index/internal/errs"
)

// Env is the process's required environment configuration.
type Env struct {
	NodeEnv                  string
	DBHost                   string
	DBEmail                  string
	DBPassword               string
	MainnetChainIndexBaseURL string
	PreviewChainIndexBaseURL string
	DiscordWebhookURL        string
	PrimaryArweaveEndpoint   string
	SecondaryArweaveEndpoint string
}

// LoadEnv reads every required environment variable, returning a
// ConfigurationError for the first one missing.
func LoadEnv() (Env, error) {
	var e Env
	var err error
	if e.NodeEnv, err = require("NODE_ENV"); err != nil {
		return Env{}, err
	}
	if e.DBHost, err = require("DB_HOST"); err != nil {
		return Env{}, err
	}
	if e.DBEmail, err = require("DB_EMAIL"); err != nil {
		return Env{}, err
	}
	if e.DBPassword, err = require("DB_PASSWORD"); err != nil {
		return Env{}, err
	}
	if e.MainnetChainIndexBaseURL, err = require("MAINNET_CHAIN_INDEX_BASE_URL"); err != nil {
		return Env{}, err
	}
	if e.PreviewChainIndexBaseURL, err = require("PREVIEW_CHAIN_INDEX_BASE_URL"); err != nil {
		return Env{}, err
	}
	if e.DiscordWebhookURL, err = require("DISCORD_WEBHOOK_URL"); err != nil {
		return Env{}, err
	}
	if e.PrimaryArweaveEndpoint, err = require("PRIMARY_ARWEAVE_ENDPOINT"); err != nil {
		return Env{}, err
	}
	if e.SecondaryArweaveEndpoint, err = require("SECONDARY_ARWEAVE_ENDPOINT"); err != nil {
		return Env{}, err
	}
	switch e.NodeEnv {
	case "development", "production", "test":
	default:
		return Env{}, errs.NewConfigurationError("NODE_ENV", fmt.Errorf("must be one of development|production|test, got %q", e.NodeEnv))
	}
	return e, nil
}

func require(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", errs.NewConfigurationError(key, fmt.Errorf("not set"))
	}
	return v, nil
}

// GetEnvInt reads an int env var with a default.
func GetEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetEnvInt64 reads an int64 env var with a default.
func GetEnvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// GetEnvFloat reads a float64 env var with a default, used for the
// chain-index client's rate limit (internal/chainindex).
func GetEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// NetworkSeed is one network's static configuration, loaded from YAML at
// boot and used to seed/verify the store's Network records.
type NetworkSeed struct {
	ID                   string `yaml:"id"`
	Name                 string `yaml:"name"`
	FactStatementPointer string `yaml:"fact_statement_pointer"`
	ScriptToken          string `yaml:"script_token"`
	ChainIndexBaseURL    string `yaml:"chain_index_base_url"`
	ActiveFeedsURL       string `yaml:"active_feeds_url"`
	ZeroTimeMs           int64  `yaml:"zero_time_ms"`
	ZeroSlot             int64  `yaml:"zero_slot"`
	SlotLengthMs         int64  `yaml:"slot_length_ms"`
	IgnorePolicies       []string `yaml:"ignore_policies"`
	TracksArchives       bool   `yaml:"tracks_archives"`
}

// NetworksFile is the root shape of the static network-seed YAML file.
type NetworksFile struct {
	Networks []NetworkSeed `yaml:"networks"`
}

// LoadNetworks reads and parses the network-seed YAML file at path.
func LoadNetworks(path string) ([]NetworkSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read networks config %s: %w", path, err)
	}
	var f NetworksFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse networks config %s: %w", path, err)
	}
	return f.Networks, nil
}
