package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
	Port  int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("name: bot\ntoken: ${SAMPLE_TOKEN}\nport: 8080\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var cfg sample
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Token != "s3cret" {
		t.Errorf("token = %q, want expanded value", cfg.Token)
	}
}

func TestLoadRunsValidator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_ = os.WriteFile(path, []byte("port: 0\n"), 0o644)

	var cfg sample
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestLoadOptionalMissingFileKeepsDefaults(t *testing.T) {
	cfg := sample{Name: "default", Port: 3000}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &cfg)
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if found {
		t.Error("found should be false for a missing file")
	}
	if cfg.Name != "default" || cfg.Port != 3000 {
		t.Errorf("defaults changed: %+v", cfg)
	}
}

func TestLoadOptionalOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_ = os.WriteFile(path, []byte("port: 9090\n"), 0o644)

	cfg := sample{Name: "default", Port: 3000}
	found, err := LoadOptional(path, &cfg)
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if !found || cfg.Port != 9090 || cfg.Name != "default" {
		t.Errorf("unexpected result found=%v cfg=%+v", found, cfg)
	}
}
