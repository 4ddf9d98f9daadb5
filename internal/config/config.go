// Package config loads the photo-derive YAML configuration.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/fpang/photo-derive/internal/derive"
)

// Config represents the run configuration.
type Config struct {
	LongestSide      int           `yaml:"longest_side"`
	Concurrency      int           `yaml:"concurrency"`
	Crop             bool          `yaml:"crop"`
	BlurSigma        float64       `yaml:"blur_sigma"`
	Quality          QualityConfig `yaml:"quality"`
	PreserveMetadata bool          `yaml:"preserve_metadata"`
	S3               S3Config      `yaml:"s3"`
}

// QualityConfig holds the lossy encode quality of each variant.
type QualityConfig struct {
	Resize int `yaml:"resize"`
	Square int `yaml:"square"`
	Crop   int `yaml:"crop"`
}

// S3Config configures s3:// inputs and outputs.
type S3Config struct {
	Region     string `yaml:"region"`
	TagObjects bool   `yaml:"tag_objects"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LongestSide: derive.DefaultLongestSide,
		Crop:        true,
		BlurSigma:   derive.DefaultBlurSigma,
		Quality: QualityConfig{
			Resize: derive.DefaultResizeQuality,
			Square: derive.DefaultSquareQuality,
			Crop:   derive.DefaultCropQuality,
		},
		PreserveMetadata: true,
		S3:               S3Config{TagObjects: true},
	}
}

// Load reads path over the defaults and validates the result. Keys missing
// from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks ranges of every field.
func (c *Config) Validate() error {
	if c.LongestSide <= 0 {
		return fmt.Errorf("longest_side must be positive, got %d", c.LongestSide)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.BlurSigma <= 0 {
		return fmt.Errorf("blur_sigma must be positive, got %g", c.BlurSigma)
	}
	for name, q := range map[string]int{
		"quality.resize": c.Quality.Resize,
		"quality.square": c.Quality.Square,
		"quality.crop":   c.Quality.Crop,
	} {
		if q < 1 || q > 100 {
			return fmt.Errorf("%s must be between 1 and 100, got %d", name, q)
		}
	}
	return nil
}

// Workers returns the effective concurrency bound.
func (c *Config) Workers() int {
	if c.Concurrency == 0 {
		return runtime.NumCPU()
	}
	return c.Concurrency
}

// DeriveOptions maps the configuration onto transform options.
func (c *Config) DeriveOptions() derive.Options {
	return derive.Options{
		LongestSide:      c.LongestSide,
		ResizeQuality:    c.Quality.Resize,
		SquareQuality:    c.Quality.Square,
		CropQuality:      c.Quality.Crop,
		BlurSigma:        c.BlurSigma,
		Crop:             c.Crop,
		PreserveMetadata: c.PreserveMetadata,
	}
}
