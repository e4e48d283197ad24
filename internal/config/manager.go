package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
	"github.com/google/renameio/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. PACEDRECORDER_DEVICE_FPS
const EnvPrefix = "PACEDRECORDER"

// OverrideKeys are the keys command line flags may override
var OverrideKeys = []string{"server_port", "log_level", "device.id", "device.fps"}

// Manager loads, overrides and persists the configuration file
type Manager struct {
	configPath string
	config     *Config
	v          *viper.Viper
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/pacedrecorder/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "pacedrecorder", "config.yaml"), nil
}

// NewManager creates a new configuration manager. An empty configFile selects
// the default path; a missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if _, err := os.Stat(m.configPath); errors.Is(err, os.ErrNotExist) {
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	if err := m.load(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("device", m.config.Device.ID).
		Float64("fps", m.config.Device.FPS).
		Msg("Config loaded")

	return m, nil
}

// load reads the file through viper so env overrides and dotted keys work
func (m *Manager) load() error {
	v := viper.New()
	v.SetConfigFile(m.configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.v = v
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// ApplyOverrides copies explicitly set flag values from src over the loaded
// configuration. Zero values are ignored.
func (m *Manager) ApplyOverrides(src *viper.Viper) error {
	if src == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	for _, key := range OverrideKeys {
		if !src.IsSet(key) {
			continue
		}
		val := src.Get(key)
		if isZero(val) {
			continue
		}
		m.v.Set(key, val)
		changed = true
	}
	if !changed {
		return nil
	}

	cfg := Defaults()
	if err := m.v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to decode overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid override: %w", err)
	}
	m.config = cfg
	return nil
}

func isZero(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case int:
		return val == 0
	case float64:
		return val == 0
	default:
		return false
	}
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	return &cfg
}

// GetViper exposes the viper instance backing the file, for dotted key access
func (m *Manager) GetViper() *viper.Viper {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v
}

// GetConfigPath returns the path of the configuration file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Set parses raw according to the type of the existing value at key,
// validates the result and saves it.
func (m *Manager) Set(key, raw string) error {
	m.mu.Lock()
	if m.v == nil || !m.v.IsSet(key) {
		m.mu.Unlock()
		return fmt.Errorf("configuration key not found: %s", key)
	}

	var value interface{}
	switch cur := m.v.Get(key).(type) {
	case int, int64:
		n, err := strconv.Atoi(raw)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("invalid number for %s: %s", key, raw)
		}
		value = n
	case float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("invalid number for %s: %s", key, raw)
		}
		value = f
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("invalid boolean for %s: %s (use: true or false)", key, raw)
		}
		value = b
	case string:
		value = raw
	default:
		m.mu.Unlock()
		return fmt.Errorf("key %s holds a %T and cannot be set from the command line", key, cur)
	}

	prev := m.v.Get(key)
	m.v.Set(key, value)

	cfg := Defaults()
	if err := m.v.Unmarshal(cfg); err != nil {
		m.v.Set(key, prev)
		m.mu.Unlock()
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		m.v.Set(key, prev)
		m.mu.Unlock()
		return err
	}
	m.config = cfg
	m.mu.Unlock()

	return m.Save()
}

// Save writes the current configuration to disk atomically
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	log := logger.WithComponent("config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		log.Error().Err(err).Str("config_dir", configDir).Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal config")
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := renameio.WriteFile(m.configPath, data, 0644); err != nil {
		log.Error().Err(err).Str("path", m.configPath).Msg("Failed to write config")
		return fmt.Errorf("failed to write config: %w", err)
	}

	log.Debug().Str("path", m.configPath).Msg("Config saved")
	return nil
}
