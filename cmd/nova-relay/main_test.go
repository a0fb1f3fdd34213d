package main

import (
	"context"
	"testing"
	"time"

	"go.uber.org/fx"

	"nova-relay/internal/config"
)

func TestAppOptions_GraphIsValid(t *testing.T) {
	if err := fx.ValidateApp(appOptions(&config.CLI{})); err != nil {
		t.Fatalf("ValidateApp() error = %v", err)
	}
}

func TestLongestUpstreamTimeout(t *testing.T) {
	cfg := &config.Config{
		OpenWeather: config.OpenWeatherConfig{WeatherTimeoutSeconds: 8, ForecastTimeoutSeconds: 12},
		News:        config.NewsConfig{TimeoutSeconds: 30},
	}
	if got := longestUpstreamTimeout(cfg); got != 30*time.Second {
		t.Errorf("longestUpstreamTimeout() = %v, want 30s", got)
	}
}

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level   string
		enabled bool
	}{
		{"debug", true},
		{"info", false},
		{"warn", false},
		{"error", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := newLogger(&config.Config{Log: config.LogConfig{Level: tt.level, Format: "text"}})
			if got := logger.Enabled(context.Background(), -4); got != tt.enabled {
				t.Errorf("debug enabled = %v, want %v", got, tt.enabled)
			}
		})
	}
}
