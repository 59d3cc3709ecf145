// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/docrag/docrag/internal/secrets"
	docragerr "github.com/docrag/docrag/pkg/errors"
)

// Config is the top-level docrag configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Answer    AnswerConfig    `mapstructure:"answer"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
}

// ServerConfig controls how docrag listens for connections.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	Backend      string        `mapstructure:"backend"`
	Collection   string        `mapstructure:"collection"`
	Dimensions   int           `mapstructure:"dimensions"`
	Distance     string        `mapstructure:"distance"`
	AutoRecreate bool          `mapstructure:"auto_recreate"`
	Timeout      time.Duration `mapstructure:"timeout"`

	QdrantURL    string `mapstructure:"qdrant_url"`
	QdrantAPIKey string `mapstructure:"qdrant_api_key"`
	SQLitePath   string `mapstructure:"sqlite_path"`

	// RetryMax bounds automatic retries of transient backend failures.
	// 0 disables retrying.
	RetryMax int `mapstructure:"retry_max"`
}

// EmbeddingConfig holds embedding gateway credentials and batching.
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// AnswerConfig holds answer-synthesis settings.
type AnswerConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// RetrievalConfig tunes chunking and the similarity-score rule.
type RetrievalConfig struct {
	ChunkSize    int     `mapstructure:"chunk_size"`
	ChunkOverlap int     `mapstructure:"chunk_overlap"`
	MinScore     float64 `mapstructure:"min_score"`
	Overfetch    int     `mapstructure:"overfetch"`
	MaxInFlight  int     `mapstructure:"max_in_flight"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix DOCRAG_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("store.backend", "qdrant")
	v.SetDefault("store.collection", "documents")
	v.SetDefault("store.distance", "Cosine")
	v.SetDefault("store.qdrant_url", "http://localhost:6333")
	v.SetDefault("store.sqlite_path", "docrag.db")
	v.SetDefault("store.timeout", "15s")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("answer.model", "gpt-4.1-mini")
	v.SetDefault("retrieval.chunk_size", 700)
	v.SetDefault("retrieval.chunk_overlap", 100)
	v.SetDefault("retrieval.min_score", 0.3)
	v.SetDefault("retrieval.overfetch", 2)
	v.SetDefault("retrieval.max_in_flight", 4)

	// Environment
	v.SetEnvPrefix("DOCRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, docragerr.Errorf(docragerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	// API keys may be keyring:// URIs pointing at the OS keyring.
	secrets.ResolveViperSecrets(v, secrets.NewKeyringStore())

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, docragerr.Errorf(docragerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It collects
// every problem rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateRetrieval()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
		return errs
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}

func (c *Config) validateStore() []error {
	var errs []error

	switch c.Store.Backend {
	case "qdrant":
		if c.Store.QdrantURL == "" {
			errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
				"config: store.qdrant_url must not be empty when the qdrant backend is selected"))
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
				"config: store.sqlite_path must not be empty when the sqlite backend is selected"))
		}
	default:
		errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
			"config: store.backend must be one of [qdrant, sqlite], got %q", c.Store.Backend))
	}

	if c.Store.Collection == "" {
		errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
			"config: store.collection must not be empty"))
	}

	validDistances := map[string]bool{"Cosine": true, "Dot": true, "Euclid": true}
	if !validDistances[c.Store.Distance] {
		errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
			"config: store.distance must be one of [Cosine, Dot, Euclid], got %q", c.Store.Distance))
	}

	if c.Store.Dimensions < 0 {
		errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
			"config: store.dimensions must not be negative, got %d", c.Store.Dimensions))
	}
	if c.Store.RetryMax < 0 {
		errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
			"config: store.retry_max must not be negative, got %d", c.Store.RetryMax))
	}

	return errs
}

func (c *Config) validateRetrieval() []error {
	var errs []error

	if c.Retrieval.ChunkSize <= 0 {
		errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
			"config: retrieval.chunk_size must be positive, got %d", c.Retrieval.ChunkSize))
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
			"config: retrieval.chunk_overlap must be in [0, chunk_size), got %d for size %d",
			c.Retrieval.ChunkOverlap, c.Retrieval.ChunkSize))
	}
	if c.Retrieval.MinScore < 0 {
		errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
			"config: retrieval.min_score must not be negative, got %g", c.Retrieval.MinScore))
	}
	if c.Retrieval.Overfetch < 1 {
		errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
			"config: retrieval.overfetch must be at least 1, got %d", c.Retrieval.Overfetch))
	}
	if c.Retrieval.MaxInFlight < 1 {
		errs = append(errs, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
			"config: retrieval.max_in_flight must be at least 1, got %d", c.Retrieval.MaxInFlight))
	}

	return errs
}
