/*
Copyright The ORAS Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads the settings of the command line tool from a YAML
// file and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	perrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/rigpull/rigpull/internal/env"
)

// Environment variables overriding the configuration file.
const (
	EnvBaseURL        = "RIGPULL_BASE_URL"
	EnvAPIKey         = "RIGPULL_API_KEY"
	EnvTokenFile      = "RIGPULL_TOKEN_FILE"
	EnvOutputDir      = "RIGPULL_OUTPUT_DIR"
	EnvPageSize       = "RIGPULL_PAGE_SIZE"
	EnvRetryAttempts  = "RIGPULL_RETRY_ATTEMPTS"
	EnvRetryBaseDelay = "RIGPULL_RETRY_BASE_DELAY"
	EnvRetryMaxDelay  = "RIGPULL_RETRY_MAX_DELAY"
	EnvPollInterval   = "RIGPULL_POLL_INTERVAL"
	EnvExportTimeout  = "RIGPULL_EXPORT_TIMEOUT"
	EnvDebug          = "RIGPULL_DEBUG"
)

// Config is the configuration of the command line tool.
type Config struct {
	// BaseURL is the base URL of the animation service.
	BaseURL string `yaml:"base_url"`

	// APIKey is the public API key of the service web application, sent
	// as X-Api-Key.
	APIKey string `yaml:"api_key"`

	// TokenFile is a file holding the bearer token.
	TokenFile string `yaml:"token_file"`

	// OutputDir is the default output directory.
	OutputDir string `yaml:"output_dir"`

	// PageSize is the number of catalog entries requested per page.
	PageSize int `yaml:"page_size"`

	// Debug enables debug logging.
	Debug bool `yaml:"debug"`

	Retry      Retry      `yaml:"retry"`
	Export     Export     `yaml:"export"`
	Extensions Extensions `yaml:"extensions"`
}

// Retry configures the retries of transient failures.
type Retry struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

// Export configures the server-side exports.
type Export struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	Format       string        `yaml:"format"`
	FPS          string        `yaml:"fps"`
	ReduceKF     string        `yaml:"reducekf"`
}

// Extensions configures the file extensions of the payloads per asset
// kind.
type Extensions struct {
	Animation string `yaml:"animation"`
	Pose      string `yaml:"pose"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		BaseURL:  "https://www.mixamo.com",
		APIKey:   "mixamo2",
		PageSize: 96,
		Retry: Retry{
			Attempts:  3,
			BaseDelay: 250 * time.Millisecond,
			MaxDelay:  4 * time.Second,
		},
		Export: Export{
			PollInterval: time.Second,
			Timeout:      2 * time.Minute,
			Format:       "fbx7",
			FPS:          "30",
			ReduceKF:     "0",
		},
		Extensions: Extensions{
			Animation: ".fbx",
			Pose:      ".fbx",
		},
	}
}

// Load returns the default configuration overridden by the file at path,
// if not empty, and then by the environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, perrors.Wrap(err, "failed to read config file")
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, perrors.Wrapf(err, "failed to parse config file %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode decodes a YAML document over cfg, rejecting unknown fields.
// An empty document leaves cfg untouched.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.BaseURL = env.String(EnvBaseURL, c.BaseURL)
	c.APIKey = env.String(EnvAPIKey, c.APIKey)
	c.TokenFile = env.String(EnvTokenFile, c.TokenFile)
	c.OutputDir = env.String(EnvOutputDir, c.OutputDir)

	var err error
	if c.PageSize, err = env.Int(EnvPageSize, c.PageSize); err != nil {
		return err
	}
	if c.Retry.Attempts, err = env.Int(EnvRetryAttempts, c.Retry.Attempts); err != nil {
		return err
	}
	if c.Retry.BaseDelay, err = env.Duration(EnvRetryBaseDelay, c.Retry.BaseDelay); err != nil {
		return err
	}
	if c.Retry.MaxDelay, err = env.Duration(EnvRetryMaxDelay, c.Retry.MaxDelay); err != nil {
		return err
	}
	if c.Export.PollInterval, err = env.Duration(EnvPollInterval, c.Export.PollInterval); err != nil {
		return err
	}
	if c.Export.Timeout, err = env.Duration(EnvExportTimeout, c.Export.Timeout); err != nil {
		return err
	}
	if c.Debug, err = env.Bool(EnvDebug, c.Debug); err != nil {
		return err
	}
	return nil
}

// Validate rejects configurations the tool cannot run with.
func (c Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("base_url: %q is not an absolute http(s) URL", c.BaseURL))
	}
	if c.PageSize < 1 || c.PageSize > 1000 {
		errs = append(errs, fmt.Errorf("page_size: %d is out of range [1, 1000]", c.PageSize))
	}
	if c.Retry.Attempts < 1 {
		errs = append(errs, fmt.Errorf("retry.attempts: must be at least 1, got %d", c.Retry.Attempts))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("retry: delays must not be negative"))
	}
	if c.Retry.MaxDelay > 0 && c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("retry.max_delay: must not be less than base_delay"))
	}
	if c.Export.PollInterval <= 0 {
		errs = append(errs, errors.New("export.poll_interval: must be positive"))
	}
	if c.Export.Timeout < c.Export.PollInterval {
		errs = append(errs, errors.New("export.timeout: must not be less than poll_interval"))
	}
	if strings.TrimSpace(c.Export.Format) == "" {
		errs = append(errs, errors.New("export.format: must not be empty"))
	}
	for name, ext := range map[string]string{"animation": c.Extensions.Animation, "pose": c.Extensions.Pose} {
		if strings.ContainsAny(ext, `/\`) {
			errs = append(errs, fmt.Errorf("extensions.%s: %q must not contain path separators", name, ext))
		}
	}
	return errors.Join(errs...)
}
