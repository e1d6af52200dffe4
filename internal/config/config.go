package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`

		// UploadsPerMinute caps file selections per client IP.
		UploadsPerMinute int   `yaml:"uploadsPerMinute"`
		MaxUploadBytes   int64 `yaml:"maxUploadBytes"`

		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Session struct {
		// TTL bounds how long an idle tab keeps its session record.
		TTL string `yaml:"ttl"`

		// DraftTTL bounds how long an unfinished setup screen is kept.
		DraftTTL string `yaml:"draftTTL"`
	} `yaml:"session"`
	Assets struct {
		Dir string `yaml:"dir"` // serve pages from disk instead of the embedded copy
		TTL string `yaml:"ttl"`
	} `yaml:"assets"`
	Media struct {
		Backend string `yaml:"backend"` // "disk" (default) or "s3"
		Dir     string `yaml:"dir"`
		S3      struct {
			Endpoint  string `yaml:"endpoint"`
			Bucket    string `yaml:"bucket"`
			AccessKey string `yaml:"accessKey"`
			SecretKey string `yaml:"secretKey"`
			Region    string `yaml:"region"`
		} `yaml:"s3"`
	} `yaml:"media"`
	Thumbnail struct {
		FFmpegBin       string `yaml:"ffmpegBin"`
		FFprobeBin      string `yaml:"ffprobeBin"`
		MetadataTimeout string `yaml:"metadataTimeout"`
		SeekTimeout     string `yaml:"seekTimeout"`
		DrawTimeout     string `yaml:"drawTimeout"`
	} `yaml:"thumbnail"`
}

// Load reads YAML config from path. A missing file yields the zero config so
// the service can run on defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
