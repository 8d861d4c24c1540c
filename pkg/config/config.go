// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config defines the YAML configuration surface of dbchat.
//
// A config file seeds the session store with database and vector-store
// descriptors and configures the LLM, embedder, and HTTP server. All string
// values support ${VAR} and ${VAR:-default} environment expansion.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/dbchat/pkg/vector"
)

// Config is the top-level configuration.
type Config struct {
	// Server configures the HTTP session API.
	Server ServerConfig `yaml:"server,omitempty"`

	// LLM configures the hosted agent model.
	LLM LLMConfig `yaml:"llm,omitempty"`

	// Embedder configures the embedding model used for table indexes.
	Embedder EmbedderConfig `yaml:"embedder,omitempty"`

	// Databases are pre-registered database descriptors, keyed by id.
	Databases map[string]*DatabaseConfig `yaml:"databases,omitempty"`

	// VectorStores are pre-registered vector store descriptors, keyed by id.
	VectorStores map[string]*vector.ProviderConfig `yaml:"vector_stores,omitempty"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
}

// Address returns the host:port listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults()

	if c.Databases == nil {
		c.Databases = make(map[string]*DatabaseConfig)
	}
	if c.VectorStores == nil {
		c.VectorStores = make(map[string]*vector.ProviderConfig)
	}

	for _, db := range c.Databases {
		db.SetDefaults()
	}
	for _, vs := range c.VectorStores {
		vs.SetDefaults()
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	for id, db := range c.Databases {
		if err := db.Validate(); err != nil {
			return fmt.Errorf("database %q: %w", id, err)
		}
	}
	for id, vs := range c.VectorStores {
		if err := vs.Validate(); err != nil {
			return fmt.Errorf("vector store %q: %w", id, err)
		}
	}
	return nil
}

// Load parses a config file, expands environment references, applies
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses raw YAML config bytes.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
