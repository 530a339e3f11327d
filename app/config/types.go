package config

// JournalConfig describes a journal (harvesting set and deposit container)
// declared in a YAML file under the journals directory.
type JournalConfig struct {
	Slug       string `yaml:"slug"` // Derived from filename when omitted
	Title      string `yaml:"title"`
	ISSN       string `yaml:"issn"`  // Print serial number
	EISSN      string `yaml:"eissn"` // Electronic serial number
	Publisher  string `yaml:"publisher"`
	Language   string `yaml:"language"`
	OpenAccess bool   `yaml:"open_access"`
	Enabled    bool   `yaml:"enabled"`
}
