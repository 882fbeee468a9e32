package conf

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

func init() {
	sources := DefaultSource()
	config, err := sources.Read()
	if err != nil {
		dto, parseErr := parseConfigDTO(defaultConfig)
		if parseErr != nil {
			panic(fmt.Sprintf("failed to parse embedded defaults: %v", parseErr))
		}
		config.Update(dto)
	}
	Configuration = config
}

// defaultConfig contains the embedded default configuration file.
// This file is compiled into the binary and serves as the base layer
// of configuration before the legacy clash.ini, /etc/clashctl/config.toml
// and drop-in files are applied.
//
//go:embed default.toml
var defaultConfig string

// Configuration is the global immutable state.
var Configuration Config

// File names below ClashRoot.
const (
	ConfigFileName    = "config.yaml"
	LatestConfigName  = "latest_config.yaml"
	ProvidersFileName = "providers.yaml"
	CacheFileName     = "cache.db"
	LockFileName      = ".clashctl.lock"
)

// Config represents the immutable public configuration object.
type Config struct {
	InstanceName     string
	Subscription     string
	ClashRoot        string
	ContainerCommand string
	ContainerImage   string
	ContainerWorkdir string
	TestDir          string
	ProvidersFile    string
	Dashboards       []string
	LogLevel         slog.Level
}

// Update applies non-nil values from a configDTO.
func (c *Config) Update(dto configDTO) {
	if dto.InstanceName != nil {
		c.InstanceName = *dto.InstanceName
	}
	if dto.Subscription != nil {
		c.Subscription = *dto.Subscription
	}
	if dto.ClashRoot != nil {
		c.ClashRoot = *dto.ClashRoot
	}
	if dto.ContainerCommand != nil {
		c.ContainerCommand = *dto.ContainerCommand
	}
	if dto.ContainerImage != nil {
		c.ContainerImage = *dto.ContainerImage
	}
	if dto.ContainerWorkdir != nil {
		c.ContainerWorkdir = *dto.ContainerWorkdir
	}
	if dto.TestDir != nil {
		c.TestDir = *dto.TestDir
	}
	if dto.ProvidersFile != nil {
		c.ProvidersFile = *dto.ProvidersFile
	}
	if dto.Dashboards != nil {
		c.Dashboards = *dto.Dashboards
	}
	if dto.LogLevel != nil {
		if level, ok := ParseLevel(*dto.LogLevel); ok {
			c.LogLevel = level
		}
	}
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// ConfigPath is the merged configuration the router runs with.
func (c Config) ConfigPath() string { return filepath.Join(c.ClashRoot, ConfigFileName) }

// OverrideDir holds the override documents merged onto the subscription.
func (c Config) OverrideDir() string { return filepath.Join(c.ClashRoot, "overwrite") }

// DownloadDir holds verified subscription versions.
func (c Config) DownloadDir() string { return filepath.Join(c.ClashRoot, "download") }

// LatestConfigPath is the symlink to the newest verified subscription.
func (c Config) LatestConfigPath() string { return filepath.Join(c.DownloadDir(), LatestConfigName) }

// UIDir holds the dashboards.
func (c Config) UIDir() string { return filepath.Join(c.ClashRoot, "ui") }

// CachePath is the router's cache database.
func (c Config) CachePath() string { return filepath.Join(c.ClashRoot, CacheFileName) }

// LockPath serializes clashctl invocations.
func (c Config) LockPath() string { return filepath.Join(c.ClashRoot, LockFileName) }

// ProvidersPath returns ProvidersFile, or providers.yaml below ClashRoot.
func (c Config) ProvidersPath() string {
	if c.ProvidersFile != "" {
		return c.ProvidersFile
	}
	return filepath.Join(c.ClashRoot, ProvidersFileName)
}

// ContainerConfigPath is ConfigPath as seen from inside the container.
func (c Config) ContainerConfigPath() string {
	return filepath.Join(c.ContainerWorkdir, ConfigFileName)
}

// Directories returns the directories clashctl expects below ClashRoot.
func (c Config) Directories() []string {
	return []string{c.ClashRoot, c.UIDir(), c.OverrideDir(), c.DownloadDir()}
}

// ConfigSource orchestrates loading configuration from multiple sources.
// See the Read method.
type ConfigSource struct {
	LegacyPath string
	Path       string
	DropInDir  string
}

// DefaultSource returns the system-wide configuration locations.
func DefaultSource() *ConfigSource {
	return &ConfigSource{
		LegacyPath: "/config/clash/clash.ini",
		Path:       "/etc/clashctl/config.toml",
		DropInDir:  "/etc/clashctl/config.toml.d/",
	}
}

// Read loads and returns the complete Config by merging all layers:
// 1. Embedded defaults
// 2. Legacy clash.ini
// 3. Main configuration file
// 4. Drop-in files
func (cs *ConfigSource) Read() (Config, error) {
	resolved := Config{}

	// Start with embedded defaults
	dto, err := parseConfigDTO(defaultConfig)
	if err != nil {
		slog.Error("failed to parse embedded defaults", "error", err)
		return resolved, fmt.Errorf("failed to parse embedded defaults: %w", err)
	}
	resolved.Update(dto)

	// Load the ini file older installations were configured with
	if cs.LegacyPath != "" {
		legacy, err := readLegacyFile(cs.LegacyPath)
		if err != nil {
			return resolved, err
		}
		resolved.Update(legacy)
	}

	paths, err := cs.layerPaths()
	if err != nil {
		slog.Error("failed to list drop-in files", "error", err, "dir", cs.DropInDir)
		return resolved, err
	}
	for _, path := range paths {
		layer, found, err := readLayer(path)
		if err != nil {
			// Existing but malformed files are fatal, don't hide problems from
			// the users.
			return resolved, err
		}
		if found {
			resolved.Update(layer)
		}
	}

	return resolved, nil
}

// Validate reports settings required by commands that talk to the instance.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ClashRoot) == "" {
		return fmt.Errorf("clash-root is not set")
	}
	if strings.TrimSpace(c.InstanceName) == "" {
		return fmt.Errorf("instance-name is not set")
	}
	return nil
}

type configDTO struct {
	InstanceName     *string   `toml:"instance-name"`
	Subscription     *string   `toml:"subscription"`
	ClashRoot        *string   `toml:"clash-root"`
	ContainerCommand *string   `toml:"container-command"`
	ContainerImage   *string   `toml:"container-image"`
	ContainerWorkdir *string   `toml:"container-workdir"`
	TestDir          *string   `toml:"test-dir"`
	ProvidersFile    *string   `toml:"providers-file"`
	Dashboards       *[]string `toml:"dashboards"`
	LogLevel         *string   `toml:"log-level"`
}

// parseConfigDTO parses a TOML string into a configDTO.
func parseConfigDTO(data string) (configDTO, error) {
	var dto configDTO

	if err := toml.Unmarshal([]byte(data), &dto); err != nil {
		return dto, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return dto, nil
}

// layerPaths returns the main configuration file followed by the drop-in
// files in lexicographic order. A missing drop-in directory is not an error.
func (cs *ConfigSource) layerPaths() ([]string, error) {
	paths := []string{cs.Path}
	if cs.DropInDir == "" {
		return paths, nil
	}

	entries, err := os.ReadDir(cs.DropInDir)
	if err != nil {
		if os.IsNotExist(err) {
			return paths, nil
		}
		return nil, fmt.Errorf("failed to read drop-in directory %s: %w", cs.DropInDir, err)
	}

	var dropIns []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".toml" {
			dropIns = append(dropIns, filepath.Join(cs.DropInDir, entry.Name()))
		}
	}
	sort.Strings(dropIns)

	return append(paths, dropIns...), nil
}

// readLayer parses one TOML file. found is false when the file does not
// exist.
func readLayer(path string) (dto configDTO, found bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return dto, false, nil
	}
	if err != nil {
		return dto, false, fmt.Errorf("failed to load %s: %w", path, err)
	}
	dto, err = parseConfigDTO(string(data))
	if err != nil {
		return dto, false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return dto, true, nil
}
