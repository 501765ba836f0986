// Package config manages the application configuration file (coworker.json):
// provider credentials, the active provider selection, and the UI theme.
//
// The file is read and written as a whole JSON document on each save. It is a
// separate persistence surface from the session store and shares no consistency
// domain with it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vikramships/coworker-core/paths"
)

// APIType identifies the wire protocol a provider speaks.
type APIType string

const (
	APITypeAnthropic        APIType = "anthropic"
	APITypeOpenAICompatible APIType = "openai-compatible"
)

// Theme is the UI theme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Provider holds credentials and model selection for one API provider.
type Provider struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	APIType APIType `json:"apiType"`
	APIKey  string  `json:"apiKey"`
	BaseURL string  `json:"baseURL"`
	Model   string  `json:"model"`
}

// AppConfig is the whole-document application configuration.
type AppConfig struct {
	ActiveProvider string     `json:"activeProvider"`
	Providers      []Provider `json:"providers"`
	Theme          Theme      `json:"theme,omitempty"`

	mu   sync.RWMutex
	path string
}

// legacyFlatConfig is the older single-provider file shape, kept readable
// so existing installs migrate transparently on load.
type legacyFlatConfig struct {
	APIType APIType `json:"apiType"`
	APIKey  string  `json:"apiKey"`
	BaseURL string  `json:"baseURL"`
	Model   string  `json:"model"`
	Theme   Theme   `json:"theme"`
}

// Load reads the config from the default path.
// Returns (nil, nil) when no config file exists yet.
func Load() (*AppConfig, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config from an explicit path.
// Returns (nil, nil) when the file does not exist.
func LoadFrom(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	// Multi-provider shape
	if len(cfg.Providers) > 0 {
		cfg.path = path
		return &cfg, nil
	}

	// Legacy flat single-provider shape
	var legacy legacyFlatConfig
	if err := json.Unmarshal(data, &legacy); err == nil && legacy.APIKey != "" && legacy.BaseURL != "" && legacy.Model != "" {
		apiType := legacy.APIType
		if apiType == "" {
			apiType = APITypeAnthropic
		}
		migrated := &AppConfig{
			ActiveProvider: "default",
			Providers: []Provider{{
				ID:      "default",
				Name:    "Default Provider",
				APIType: apiType,
				APIKey:  legacy.APIKey,
				BaseURL: legacy.BaseURL,
				Model:   legacy.Model,
			}},
			Theme: legacy.Theme,
			path:  path,
		}
		return migrated, nil
	}

	return nil, nil
}

// New creates an empty config bound to the default path, for first-run setup.
func New() (*AppConfig, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return &AppConfig{path: path}, nil
}

// NewAt creates an empty config bound to an explicit path.
func NewAt(path string) *AppConfig {
	return &AppConfig{path: path}
}

// Validate checks that the config is internally consistent: at least one
// provider, and the active provider refers to one of them.
func (c *AppConfig) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validateLocked()
}

func (c *AppConfig) validateLocked() error {
	if len(c.Providers) == 0 {
		return errors.New("invalid config: at least one provider is required")
	}
	for _, p := range c.Providers {
		if p.ID == c.ActiveProvider {
			return nil
		}
	}
	return errors.New("invalid config: active provider not found")
}

// Save validates and writes the config document to its path.
func (c *AppConfig) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.validateLocked(); err != nil {
		return err
	}

	theme := c.Theme
	if theme == "" {
		theme = ThemeSystem
	}
	doc := struct {
		ActiveProvider string     `json:"activeProvider"`
		Providers      []Provider `json:"providers"`
		Theme          Theme      `json:"theme"`
	}{
		ActiveProvider: c.ActiveProvider,
		Providers:      c.Providers,
		Theme:          theme,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0600)
}

// Delete removes the config file. Missing file is not an error.
func (c *AppConfig) Delete() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ActiveProviderConfig returns a copy of the active provider, or nil if the
// active provider is not configured.
func (c *AppConfig) ActiveProviderConfig() *Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.Providers {
		if c.Providers[i].ID == c.ActiveProvider {
			p := c.Providers[i] // copy
			return &p
		}
	}
	return nil
}

// AddProvider appends a provider. The first provider added becomes active.
func (c *AppConfig) AddProvider(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Providers = append(c.Providers, p)
	if c.ActiveProvider == "" {
		c.ActiveProvider = p.ID
	}
}

// RemoveProvider removes a provider by id. Returns false if not found.
// Removing the active provider falls back to the first remaining one.
func (c *AppConfig) RemoveProvider(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, p := range c.Providers {
		if p.ID == id {
			c.Providers = append(c.Providers[:i], c.Providers[i+1:]...)
			if c.ActiveProvider == id {
				c.ActiveProvider = ""
				if len(c.Providers) > 0 {
					c.ActiveProvider = c.Providers[0].ID
				}
			}
			return true
		}
	}
	return false
}

// SetActiveProvider switches the active provider. Returns false if unknown.
func (c *AppConfig) SetActiveProvider(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.Providers {
		if p.ID == id {
			c.ActiveProvider = id
			return true
		}
	}
	return false
}

// SetTheme updates the theme preference.
func (c *AppConfig) SetTheme(theme Theme) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Theme = theme
}

// EffectiveTheme resolves "system" to a concrete theme. The desktop shell is
// responsible for real OS detection; the core defaults system to light.
func EffectiveTheme(theme Theme) Theme {
	if theme == ThemeLight || theme == ThemeDark {
		return theme
	}
	return ThemeLight
}
