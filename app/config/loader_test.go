package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()

	writeConfigFile(t, dir, "botany.yaml", `
title: Journal of Experimental Botany
issn: 1234-5678
eissn: 8765-432X
publisher: Example Press
open_access: true
enabled: true
`)
	writeConfigFile(t, dir, "physics.yml", `
slug: mod-physics
title: Modern Physics Letters
language: de
enabled: true
`)

	loader := NewLoader(dir)
	configs, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(configs) != 2 {
		t.Fatalf("Expected 2 configurations, got %d", len(configs))
	}

	botany, ok := configs["botany"]
	if !ok {
		t.Fatal("Expected slug derived from filename")
	}
	if botany.Title != "Journal of Experimental Botany" {
		t.Errorf("Unexpected title: %s", botany.Title)
	}
	if botany.ISSN != "1234-5678" {
		t.Errorf("Unexpected ISSN: %s", botany.ISSN)
	}
	if botany.Language != "en" {
		t.Errorf("Expected default language 'en', got '%s'", botany.Language)
	}
	if !botany.OpenAccess {
		t.Error("Expected open access flag to be set")
	}

	physics, ok := configs["mod-physics"]
	if !ok {
		t.Fatal("Expected explicit slug to win over filename")
	}
	if physics.Language != "de" {
		t.Errorf("Expected language 'de', got '%s'", physics.Language)
	}
}

func TestLoadAllMissingDirectory(t *testing.T) {
	loader := NewLoader("/nonexistent/journals")
	configs, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("Expected no error for missing directory, got: %v", err)
	}
	if len(configs) != 0 {
		t.Errorf("Expected empty map, got %d entries", len(configs))
	}
}

func TestValidate(t *testing.T) {
	loader := NewLoader("")

	tests := []struct {
		name    string
		config  JournalConfig
		wantErr bool
	}{
		{
			name:   "valid minimal",
			config: JournalConfig{Slug: "j", Title: "A Journal"},
		},
		{
			name:    "missing title",
			config:  JournalConfig{Slug: "j"},
			wantErr: true,
		},
		{
			name:    "malformed ISSN",
			config:  JournalConfig{Slug: "j", Title: "A Journal", ISSN: "12345678"},
			wantErr: true,
		},
		{
			name:   "ISSN with X check digit",
			config: JournalConfig{Slug: "j", Title: "A Journal", ISSN: "2049-363X"},
		},
		{
			name:    "malformed eISSN",
			config:  JournalConfig{Slug: "j", Title: "A Journal", EISSN: "not-an-issn"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loader.validate(&tt.config)
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}
