package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoinenguyen27/siren/pkg/config"
)

func TestValidateServeConfig(t *testing.T) {
	tests := []struct {
		name          string
		config        *ServeConfig
		expectedError string
	}{
		{name: "valid config", config: &ServeConfig{Host: "localhost", Port: 3000}},
		{name: "valid IP address", config: &ServeConfig{Host: "127.0.0.1", Port: 3000}},
		{name: "valid 0.0.0.0", config: &ServeConfig{Host: "0.0.0.0", Port: 8080}},
		{name: "empty host", config: &ServeConfig{Host: "", Port: 3000}, expectedError: "host cannot be empty"},
		{name: "invalid host with space", config: &ServeConfig{Host: "local host", Port: 3000}, expectedError: "invalid host: local host"},
		{name: "invalid host with colon", config: &ServeConfig{Host: "localhost:3000", Port: 3000}, expectedError: "invalid host: localhost:3000"},
		{name: "port zero", config: &ServeConfig{Host: "localhost", Port: 0}, expectedError: "port must be between 1 and 65535, got 0"},
		{name: "port too high", config: &ServeConfig{Host: "localhost", Port: 70000}, expectedError: "port must be between 1 and 65535, got 70000"},
		{name: "privileged port still valid", config: &ServeConfig{Host: "localhost", Port: 80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateServeConfig(tt.config)
			if tt.expectedError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.expectedError, err.Error())
		})
	}
}

func newServeFlags() *cobra.Command {
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().String("host", "", "")
	cmd.Flags().Int("port", 0, "")
	cmd.Flags().String("cdp-url", "", "")
	cmd.Flags().Bool("headless", false, "")
	return cmd
}

func TestGetServeConfigFromFlags(t *testing.T) {
	defaults := config.ServerConfig{Host: "localhost", Port: 3000}

	t.Run("falls back to configuration", func(t *testing.T) {
		sc := getServeConfigFromFlags(newServeFlags(), defaults)
		assert.Equal(t, &ServeConfig{Host: "localhost", Port: 3000}, sc)
	})

	t.Run("flags override", func(t *testing.T) {
		saved := cfg
		t.Cleanup(func() { cfg = saved })

		cmd := newServeFlags()
		require.NoError(t, cmd.Flags().Set("port", "4000"))
		require.NoError(t, cmd.Flags().Set("cdp-url", "http://localhost:9222"))

		sc := getServeConfigFromFlags(cmd, defaults)
		assert.Equal(t, &ServeConfig{Host: "localhost", Port: 4000}, sc)
		assert.Equal(t, "http://localhost:9222", cfg.Browser.CDPURL)
	})
}
