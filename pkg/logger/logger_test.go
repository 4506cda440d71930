package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger := newLogger()

	require.NotNil(t, logger)
	formatter, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)

	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
}

func TestGetLogger_WithContextLogger(t *testing.T) {
	customLogger := logrus.NewEntry(logrus.New()).WithField("tab_id", "42")
	ctx := WithLogger(context.Background(), customLogger)

	retrieved := G(ctx)

	assert.Equal(t, "42", retrieved.Data["tab_id"])
}

func TestGetLogger_WithoutContextLogger(t *testing.T) {
	retrieved := G(context.Background())

	assert.Equal(t, L.Logger, retrieved.Logger)
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	setLoggerFormat(logger, "json")

	ctx := WithLogger(context.Background(), logrus.NewEntry(logger))
	G(ctx).WithField("step", "open cart").Info("action succeeded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["logLevel"])
	assert.Equal(t, "action succeeded", entry["message"])
	assert.Equal(t, "open cart", entry["step"])

	timestamp, ok := entry["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339Nano, timestamp)
	assert.NoError(t, err)
}

func TestSetLogLevel(t *testing.T) {
	original := L.Logger.GetLevel()
	defer L.Logger.SetLevel(original)

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	err := SetLogLevel("chatty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log level "chatty"`)
}

func TestGlobalLoggerCarriesService(t *testing.T) {
	assert.Equal(t, ServiceName, G(context.Background()).Data["service"])
}

func TestSetLoggerFormatFallsBackToText(t *testing.T) {
	l := logrus.New()
	setLoggerFormat(l, FormatJSON)
	setLoggerFormat(l, "fmt")
	_, ok := l.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}

func TestCollector(t *testing.T) {
	t.Run("records debug lines on the request collector", func(t *testing.T) {
		ctx, c := WithCollector(context.Background())

		Debugf(ctx, "[work] transcript=%q", "open the cart")
		Debugf(ctx, "[work] navigation complete")

		assert.Equal(t, []string{`[work] transcript="open the cart"`, "[work] navigation complete"}, c.Lines())
	})

	t.Run("no collector is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			Debugf(context.Background(), "nothing to see")
		})
		assert.Nil(t, CollectorFrom(context.Background()))
	})

	t.Run("nil collector yields empty lines", func(t *testing.T) {
		var c *Collector
		assert.Equal(t, []string{}, c.Lines())
	})

	t.Run("concurrent writers", func(t *testing.T) {
		ctx, c := WithCollector(context.Background())
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				Debugf(ctx, "line %d", i)
			}(i)
		}
		wg.Wait()
		assert.Len(t, c.Lines(), 20)
	})

	t.Run("lines returns a copy", func(t *testing.T) {
		ctx, c := WithCollector(context.Background())
		Debugf(ctx, "first")
		lines := c.Lines()
		lines[0] = "mutated"
		assert.Equal(t, "first", c.Lines()[0])
	})
}
