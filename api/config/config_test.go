package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mapLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok && v != ""
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(mapLookup(map[string]string{"ENV": "development"}))
	if err != nil {
		t.Fatalf("FromLookup failed: %v", err)
	}

	if cfg.Port != "4000" {
		t.Errorf("Expected port 4000, got %s", cfg.Port)
	}
	if cfg.DBDriver != DriverSQLite {
		t.Errorf("Expected sqlite driver, got %s", cfg.DBDriver)
	}
	if cfg.MaxBatchSize != MaxBatchSize {
		t.Errorf("Expected batch size %d, got %d", MaxBatchSize, cfg.MaxBatchSize)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Errorf("Expected 24h token ttl, got %s", cfg.TokenTTL)
	}
	if cfg.Worker.DownloadDir != "/tmp/downloads" {
		t.Errorf("Expected default download dir, got %s", cfg.Worker.DownloadDir)
	}
	if !cfg.Worker.IsMediaFile("clip.MP4") {
		t.Error("Expected .mp4 to be recognized as media")
	}
	if cfg.Worker.IsMediaFile("folder/sub") {
		t.Error("Expected path without extension not to be media")
	}
}

func TestFromLookup_BatchSizeNeverExceedsCap(t *testing.T) {
	cfg, err := FromLookup(mapLookup(map[string]string{
		"ENV":            "development",
		"MAX_BATCH_SIZE": "50",
	}))
	if err != nil {
		t.Fatalf("FromLookup failed: %v", err)
	}
	if cfg.MaxBatchSize != MaxBatchSize {
		t.Errorf("Expected batch size capped at %d, got %d", MaxBatchSize, cfg.MaxBatchSize)
	}
}

func TestFromLookup_MergeFormatAlwaysRecognized(t *testing.T) {
	cfg, err := FromLookup(mapLookup(map[string]string{
		"ENV":              "development",
		"MERGE_FORMAT":     "mkv",
		"MEDIA_EXTENSIONS": ".webm",
	}))
	if err != nil {
		t.Fatalf("FromLookup failed: %v", err)
	}
	if !cfg.Worker.IsMediaFile("out.mkv") {
		t.Error("Expected merge format extension to be recognized")
	}
	if cfg.Worker.IsMediaFile("out.mp4") {
		t.Error("Expected .mp4 not to be recognized when not configured")
	}
}

func TestFromLookup_RequiresSecretInProduction(t *testing.T) {
	if _, err := FromLookup(mapLookup(map[string]string{})); err == nil {
		t.Error("Expected error for default secret in production")
	}

	if _, err := FromLookup(mapLookup(map[string]string{"JWT_SECRET": "s3cret"})); err != nil {
		t.Errorf("Expected no error with secret set, got %v", err)
	}
}

func TestFromLookup_PostgresNeedsURL(t *testing.T) {
	_, err := FromLookup(mapLookup(map[string]string{
		"ENV":       "development",
		"DB_DRIVER": "postgres",
	}))
	if err == nil {
		t.Error("Expected error for postgres without DATABASE_URL")
	}
}

func TestLoad_YAMLFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "ENV: development\nSERVICE_PORT: 9090\nTARGET_DIR: /srv/media\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TARGET_DIR", "/mnt/volume")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Expected port from file, got %s", cfg.Port)
	}
	if cfg.Worker.TargetDir != "/mnt/volume" {
		t.Errorf("Expected env to override file, got %s", cfg.Worker.TargetDir)
	}
}
