package llm

import "github.com/pkg/errors"

// RetryConfig controls retries of transient API failures.
type RetryConfig struct {
	Attempts     int    `mapstructure:"attempts" json:"attempts"`
	InitialDelay int    `mapstructure:"initial_delay_ms" json:"initial_delay_ms"`
	MaxDelay     int    `mapstructure:"max_delay_ms" json:"max_delay_ms"`
	BackoffType  string `mapstructure:"backoff_type" json:"backoff_type"`
}

// DefaultRetryConfig is used when no retry settings are configured.
var DefaultRetryConfig = RetryConfig{
	Attempts:     3,
	InitialDelay: 1000,
	MaxDelay:     10000,
	BackoffType:  "exponential",
}

// Config configures a Client against an OpenAI-compatible endpoint.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	TranscribeModel string
	Temperature     float32
	Retry           RetryConfig
}

// Validate checks the fields required to talk to the API.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("llm api key is not set")
	}
	if c.Model == "" {
		return errors.New("llm model is not set")
	}
	if c.Retry.Attempts < 0 {
		return errors.New("llm retry attempts must not be negative")
	}
	return nil
}
