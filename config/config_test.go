package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	configContent := `
server:
  port: 9090
log:
  level: "debug"
  format: "json"
minio:
  endpoint: "localhost:9000"
  access_key: "minioadmin"
  secret_key: "minioadmin"
  bucket: "review-files"
  use_ssl: false
  expire_days: 14
services:
  answer_url: "http://localhost:5001/api/generate"
  preprocess_url: "http://localhost:5001/api/preprocess"
  timeout_seconds: 90
auth:
  jwt_secret: "test-secret"
  token_expire_hours: 48
store:
  max_documents: 50
users:
  - username: "reviewer"
    password: "reviewpass"
`
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(configContent); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Minio.Bucket != "review-files" {
		t.Errorf("Expected bucket review-files, got %s", cfg.Minio.Bucket)
	}
	if cfg.Services.AnswerURL != "http://localhost:5001/api/generate" {
		t.Errorf("Unexpected answer URL: %s", cfg.Services.AnswerURL)
	}
	if cfg.Services.TimeoutSeconds != 90 {
		t.Errorf("Expected timeout 90, got %d", cfg.Services.TimeoutSeconds)
	}
	if cfg.Services.SuggestURL != "http://localhost:5001/api/generate_prompt" {
		t.Errorf("Expected suggest URL derived from answer URL, got %s", cfg.Services.SuggestURL)
	}
	if cfg.Auth.TokenExpireHours != 48 {
		t.Errorf("Expected token expiry 48h, got %d", cfg.Auth.TokenExpireHours)
	}
	if cfg.Store.MaxDocuments != 50 {
		t.Errorf("Expected max documents 50, got %d", cfg.Store.MaxDocuments)
	}
	if len(cfg.Users) != 1 || cfg.Users[0].Username != "reviewer" {
		t.Errorf("Unexpected users: %+v", cfg.Users)
	}
}

func TestLoadDefaults(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString("server: {}\n"); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Services.TimeoutSeconds != 120 {
		t.Errorf("Expected default timeout 120, got %d", cfg.Services.TimeoutSeconds)
	}
	if cfg.Store.MaxDocuments != 200 {
		t.Errorf("Expected default max documents 200, got %d", cfg.Store.MaxDocuments)
	}
}

func TestLoadExplicitSuggestURL(t *testing.T) {
	configContent := `
services:
  answer_url: "http://answers:5001/api/generate"
  suggest_url: "http://prompts:6001/api/suggest"
`
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(configContent); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Services.SuggestURL != "http://prompts:6001/api/suggest" {
		t.Errorf("Explicit suggest URL was overridden: %s", cfg.Services.SuggestURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestFindUser(t *testing.T) {
	cfg := &Config{Users: []User{
		{Username: "alice", Password: "a"},
		{Username: "bob", Password: "b"},
	}}

	if u := cfg.FindUser("bob"); u == nil || u.Password != "b" {
		t.Errorf("Expected to find bob, got %+v", u)
	}
	if u := cfg.FindUser("carol"); u != nil {
		t.Errorf("Expected nil for unknown user, got %+v", u)
	}
}
