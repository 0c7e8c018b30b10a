package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Lookup resolves a configuration key. It reports false when the key is unset.
type Lookup func(key string) (string, bool)

type Config struct {
	DownloadDir     string
	TargetDir       string
	MergeFormat     string
	MediaExtensions []string
	MaxActiveJobs   int
	FetchTimeout    time.Duration
	CopyTimeout     time.Duration
	ShutdownTimeout time.Duration
	YtDlpPath       string
	FFprobePath     string
}

func Load(lookup Lookup) *Config {
	if lookup == nil {
		lookup = EnvLookup
	}

	cfg := &Config{
		DownloadDir:     getEnv(lookup, "DOWNLOAD_DIR", "/tmp/downloads"),
		TargetDir:       getEnv(lookup, "TARGET_DIR", "./media"),
		MergeFormat:     strings.TrimPrefix(getEnv(lookup, "MERGE_FORMAT", "mp4"), "."),
		MaxActiveJobs:   getEnvAsInt(lookup, "MAX_ACTIVE_JOBS", 0),
		FetchTimeout:    getEnvAsDuration(lookup, "FETCH_TIMEOUT", 0),
		CopyTimeout:     getEnvAsDuration(lookup, "COPY_TIMEOUT", 0),
		ShutdownTimeout: getEnvAsDuration(lookup, "SHUTDOWN_TIMEOUT", 30*time.Second),
		YtDlpPath:       getEnv(lookup, "YTDLP_PATH", ""),
		FFprobePath:     getEnv(lookup, "FFPROBE_PATH", "ffprobe"),
	}
	cfg.MediaExtensions = normalizeExtensions(
		strings.Split(getEnv(lookup, "MEDIA_EXTENSIONS", ".mp4,.mkv,.webm,.mov,.m4v"), ","),
		cfg.MergeFormat,
	)

	return cfg
}

// IsMediaFile reports whether name ends in one of the recognized media extensions.
func (c *Config) IsMediaFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, e := range c.MediaExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// normalizeExtensions lower-cases and dot-prefixes exts and always includes the merge format.
func normalizeExtensions(exts []string, mergeFormat string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(exts)+1)
	for _, e := range append(exts, mergeFormat) {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

func EnvLookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func getEnv(lookup Lookup, key, defaultValue string) string {
	if value, ok := lookup(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(lookup Lookup, key string, defaultValue int) int {
	if value, ok := lookup(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(lookup Lookup, key string, defaultValue time.Duration) time.Duration {
	if value, ok := lookup(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
