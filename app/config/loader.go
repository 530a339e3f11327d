package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// issnPattern matches both print and electronic serial numbers (e.g. 1234-567X).
var issnPattern = regexp.MustCompile(`^[0-9]{4}-[0-9]{3}[0-9Xx]$`)

// Loader handles loading and validation of journal configurations
type Loader struct {
	journalsDir string
}

// NewLoader creates a new configuration loader
func NewLoader(journalsDir string) *Loader {
	return &Loader{journalsDir: journalsDir}
}

// LoadAll loads all YAML configuration files from the journals directory,
// keyed by journal slug.
func (l *Loader) LoadAll() (map[string]*JournalConfig, error) {
	configs := make(map[string]*JournalConfig)

	if _, err := os.Stat(l.journalsDir); os.IsNotExist(err) {
		return configs, nil // Return empty map if directory doesn't exist
	}

	files, err := filepath.Glob(filepath.Join(l.journalsDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YAML files: %w", err)
	}

	// Also check for .yml extension
	ymlFiles, err := filepath.Glob(filepath.Join(l.journalsDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}
	files = append(files, ymlFiles...)

	for _, file := range files {
		config, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		if err := l.validate(config); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", file, err)
		}

		configs[config.Slug] = config
	}

	return configs, nil
}

// loadFile loads a single YAML configuration file
func (l *Loader) loadFile(path string) (*JournalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config JournalConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	l.setDefaults(&config, path)

	return &config, nil
}

// setDefaults applies default values to configuration
func (l *Loader) setDefaults(config *JournalConfig, path string) {
	if config.Slug == "" {
		base := filepath.Base(path)
		config.Slug = strings.TrimSuffix(strings.TrimSuffix(base, ".yaml"), ".yml")
	}
	if config.Language == "" {
		config.Language = "en"
	}
}

// validate validates the configuration
func (l *Loader) validate(config *JournalConfig) error {
	if config.Slug == "" {
		return fmt.Errorf("journal slug is required")
	}
	if config.Title == "" {
		return fmt.Errorf("journal title is required")
	}
	if config.ISSN != "" && !issnPattern.MatchString(config.ISSN) {
		return fmt.Errorf("invalid ISSN: %s", config.ISSN)
	}
	if config.EISSN != "" && !issnPattern.MatchString(config.EISSN) {
		return fmt.Errorf("invalid eISSN: %s", config.EISSN)
	}

	return nil
}
