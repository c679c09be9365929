// Package config handles code generator configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/codegen/config.yaml, /etc/codegen/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "codegen", "config.yaml"))
	}

	paths = append(paths, "/etc/codegen/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all code generator configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Models     ModelsConfig     `yaml:"models"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Generation GenerationConfig `yaml:"generation"`
	DataDir    string           `yaml:"data_dir"`
	OutputDir  string           `yaml:"output_dir"`
	LogLevel   string           `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelsConfig declares which Ollama models the generator supports.
// Chat models drive reasoning over the prompt and retrieved documents;
// code models drive code emission and structured-output formatting.
type ModelsConfig struct {
	OllamaURL   string   `yaml:"ollama_url"`
	DefaultChat string   `yaml:"default_chat"`
	DefaultCode string   `yaml:"default_code"`
	Chat        []string `yaml:"chat"`
	Code        []string `yaml:"code"`
}

// EmbeddingsConfig defines embedding generation settings for the
// reference-document index.
type EmbeddingsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`   // Embedding model name (e.g., nomic-embed-text)
	BaseURL string `yaml:"baseurl"` // Ollama URL (defaults to models.ollama_url)
}

// GenerationConfig tunes the retry controller.
type GenerationConfig struct {
	// MaxAttempts is the total attempt budget per request (initial try
	// plus retries). Zero means the built-in default of 3.
	MaxAttempts int `yaml:"max_attempts"`
	// TimeoutSec bounds each individual model call. Zero means the
	// built-in default (local generation is not latency-sensitive).
	TimeoutSec int `yaml:"timeout_sec"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:    ListenConfig{Port: 8080},
		DataDir:   "data",
		OutputDir: "output",
		Models: ModelsConfig{
			OllamaURL:   "http://localhost:11434",
			DefaultChat: "mistral",
			DefaultCode: "codellama",
			Chat:        []string{"mistral", "deepseek-r1"},
			Code:        []string{"codellama", "deepseek-coder"},
		},
		Embeddings: EmbeddingsConfig{
			Model: "nomic-embed-text",
		},
	}
}

// ChatModelAllowed reports whether name is a declared chat model.
// An empty name is allowed and means "use the default".
func (c *Config) ChatModelAllowed(name string) bool {
	return name == "" || contains(c.Models.Chat, name)
}

// CodeModelAllowed reports whether name is a declared code model.
// An empty name is allowed and means "use the default".
func (c *Config) CodeModelAllowed(name string) bool {
	return name == "" || contains(c.Models.Code, name)
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
