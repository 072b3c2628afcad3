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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rigpull.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "https://www.mixamo.com", cfg.BaseURL)
	assert.Equal(t, 96, cfg.PageSize)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 4*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, time.Second, cfg.Export.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.Export.Timeout)
	assert.Equal(t, "fbx7", cfg.Export.Format)
	assert.Equal(t, ".fbx", cfg.Extensions.Animation)
	assert.False(t, cfg.Debug)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
base_url: http://localhost:8080
page_size: 24
debug: true
retry:
  attempts: 5
  base_delay: 100ms
export:
  poll_interval: 2s
  timeout: 5m
  fps: "60"
extensions:
  pose: .dae
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, 24, cfg.PageSize)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.BaseDelay)
	// untouched values keep their defaults
	assert.Equal(t, 4*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 2*time.Second, cfg.Export.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Export.Timeout)
	assert.Equal(t, "60", cfg.Export.FPS)
	assert.Equal(t, "fbx7", cfg.Export.Format)
	assert.Equal(t, ".dae", cfg.Extensions.Pose)
	assert.Equal(t, ".fbx", cfg.Extensions.Animation)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Env(t *testing.T) {
	path := writeConfig(t, "page_size: 24\n")
	t.Setenv(EnvBaseURL, "https://staging.example.com")
	t.Setenv(EnvPageSize, "48")
	t.Setenv(EnvRetryAttempts, "1")
	t.Setenv(EnvPollInterval, "250ms")
	t.Setenv(EnvExportTimeout, "30s")
	t.Setenv(EnvDebug, "1")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.com", cfg.BaseURL)
	assert.Equal(t, 48, cfg.PageSize)
	assert.Equal(t, 1, cfg.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Export.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Export.Timeout)
	assert.True(t, cfg.Debug)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("unknown field", func(t *testing.T) {
		_, err := Load(writeConfig(t, "page_sise: 10\n"))
		assert.ErrorContains(t, err, "page_sise")
	})
	t.Run("bad duration", func(t *testing.T) {
		_, err := Load(writeConfig(t, "export:\n  timeout: forever\n"))
		assert.Error(t, err)
	})
	t.Run("bad env", func(t *testing.T) {
		t.Setenv(EnvPageSize, "lots")
		_, err := Load("")
		assert.ErrorContains(t, err, EnvPageSize)
	})
	t.Run("bad debug env", func(t *testing.T) {
		t.Setenv(EnvDebug, "loud")
		_, err := Load("")
		assert.ErrorContains(t, err, EnvDebug)
	})
	t.Run("invalid value", func(t *testing.T) {
		t.Setenv(EnvRetryAttempts, "0")
		_, err := Load("")
		assert.ErrorContains(t, err, "retry.attempts")
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{name: "relative base url", modify: func(c *Config) { c.BaseURL = "/api" }, want: "base_url"},
		{name: "ftp base url", modify: func(c *Config) { c.BaseURL = "ftp://example.com" }, want: "base_url"},
		{name: "page size", modify: func(c *Config) { c.PageSize = 0 }, want: "page_size"},
		{name: "huge page size", modify: func(c *Config) { c.PageSize = 5000 }, want: "page_size"},
		{name: "negative delay", modify: func(c *Config) { c.Retry.BaseDelay = -time.Second }, want: "retry"},
		{name: "max below base", modify: func(c *Config) { c.Retry.MaxDelay = time.Millisecond }, want: "retry.max_delay"},
		{name: "poll interval", modify: func(c *Config) { c.Export.PollInterval = 0 }, want: "export.poll_interval"},
		{name: "timeout", modify: func(c *Config) { c.Export.Timeout = time.Millisecond }, want: "export.timeout"},
		{name: "format", modify: func(c *Config) { c.Export.Format = " " }, want: "export.format"},
		{name: "extension", modify: func(c *Config) { c.Extensions.Pose = "../x" }, want: "extensions.pose"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
	assert.NoError(t, Default().Validate())
}
