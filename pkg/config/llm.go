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

package config

import (
	"fmt"
	"os"
)

// LLMConfig configures the hosted OpenAI chat model driving the agent.
type LLMConfig struct {
	// Model name (e.g. "gpt-4o").
	Model string `yaml:"model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`

	// Host overrides the default API endpoint.
	Host string `yaml:"host,omitempty"`

	// Temperature for generation.
	Temperature *float64 `yaml:"temperature,omitempty"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Timeout in seconds for a single API call.
	Timeout int `yaml:"timeout,omitempty"`

	// MaxRetries for transient API failures.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// RetryDelay in seconds between retries.
	RetryDelay int `yaml:"retry_delay,omitempty"`
}

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4o"
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Host == "" {
		c.Host = "https://api.openai.com/v1"
	}
	if c.Temperature == nil {
		t := 0.7
		c.Temperature = &t
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2
	}
}

// Validate checks the configuration.
func (c *LLMConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (set OPENAI_API_KEY)")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	return nil
}

// EmbedderConfig configures the OpenAI embeddings model.
type EmbedderConfig struct {
	// Model name (e.g. "text-embedding-3-small").
	Model string `yaml:"model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`

	// Host overrides the default API endpoint.
	Host string `yaml:"host,omitempty"`

	// Dimension of the produced vectors.
	Dimension int `yaml:"dimension,omitempty"`

	// Timeout in seconds for a single API call.
	Timeout int `yaml:"timeout,omitempty"`

	// MaxRetries for transient API failures.
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// SetDefaults applies default values.
func (c *EmbedderConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Host == "" {
		c.Host = "https://api.openai.com/v1"
	}
	if c.Dimension == 0 {
		// Hosted vector indexes are created with this dimensionality.
		c.Dimension = 1536
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate checks the configuration.
func (c *EmbedderConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (set OPENAI_API_KEY)")
	}
	if c.Dimension < 0 {
		return fmt.Errorf("dimension must be non-negative")
	}
	return nil
}
