package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"YT_CHANNEL_IDS", "YT_LIVE_IDS", "CHAT_POLL_INTERVAL", "CHAT_RETRY_INTERVAL", "YT_BASE_URL", "OUTBOUND_RPS", "OUTBOUND_BURST", "HTTP_ADDR", "NATS_SUBJECT_PREFIX", "CHAT_REQUEST_TIMEOUT"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval)
	}
	if cfg.RetryInterval != 30*time.Second {
		t.Errorf("RetryInterval = %v, want 30s", cfg.RetryInterval)
	}
	if cfg.BaseURL != "https://www.youtube.com" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.HTTPAddr != ":8080" || cfg.NatsSubjectPrefix != "livechat" {
		t.Errorf("HTTPAddr/NatsSubjectPrefix = %q/%q", cfg.HTTPAddr, cfg.NatsSubjectPrefix)
	}
	if cfg.OutboundRPS != 5 || cfg.OutboundBurst != 5 {
		t.Errorf("outbound = %v/%d", cfg.OutboundRPS, cfg.OutboundBurst)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil without targets")
	}
}

func TestLoadTargets(t *testing.T) {
	t.Setenv("YT_CHANNEL_IDS", " UC1, UC2 ,,UC1")
	t.Setenv("YT_LIVE_IDS", "v1")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg.ChannelIDs, []string{"UC1", "UC2"}) {
		t.Errorf("ChannelIDs = %v", cfg.ChannelIDs)
	}
	if !reflect.DeepEqual(cfg.LiveIDs, []string{"v1"}) {
		t.Errorf("LiveIDs = %v", cfg.LiveIDs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestPollIntervalFormats(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Duration
		wantErr bool
	}{
		{"1500", 1500 * time.Millisecond, false},
		{"2s", 2 * time.Second, false},
		{"250ms", 250 * time.Millisecond, false},
		{"0", 0, true},
		{"-1s", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("CHAT_POLL_INTERVAL", tt.value)
			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Load() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.PollInterval != tt.want {
				t.Errorf("PollInterval = %v, want %v", cfg.PollInterval, tt.want)
			}
		})
	}
}

func TestInvalidOutboundRate(t *testing.T) {
	t.Setenv("OUTBOUND_RPS", "zero")
	if _, err := Load(); err == nil {
		t.Error("Load() error = nil for invalid OUTBOUND_RPS")
	}
}
