package cache

import (
	"errors"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "zero", config: Config{}},
		{name: "default", config: DefaultConfig()},
		{name: "negative entries", config: Config{MaxEntries: -1}, wantErr: true},
		{name: "negative bytes", config: Config{MaxBytes: -1}, wantErr: true},
		{name: "negative buffer", config: Config{ExpiryBuffer: -time.Second}, wantErr: true},
		{name: "negative sweep", config: Config{SweepInterval: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfig_SweepIntervalFollowsBuffer(t *testing.T) {
	cfg := Config{ExpiryBuffer: time.Minute}.withDefaults()
	if cfg.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %v, want 1m", cfg.SweepInterval)
	}
}

func TestDefaultConfig(t *testing.T) {
	if got := DefaultConfig(); got != (Config{}).withDefaults() {
		t.Errorf("DefaultConfig() = %+v, want zero config with defaults", got)
	}
}
