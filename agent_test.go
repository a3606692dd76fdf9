package main

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/nedpals/davi-nfc-adapter/nfc"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, cfg AgentConfig)
	}{
		{
			name: "defaults",
			args: nil,
			check: func(t *testing.T, cfg AgentConfig) {
				if cfg.Transport != TransportLibNFC || cfg.Port != defaultPort || !cfg.MDNS {
					t.Errorf("unexpected defaults: %+v", cfg)
				}
				if cfg.ScratchSize != nfc.DefaultScratchSize {
					t.Errorf("ScratchSize = %d, want %d", cfg.ScratchSize, nfc.DefaultScratchSize)
				}
			},
		},
		{
			name: "uart",
			args: []string{"-transport", "uart", "-device", "/dev/ttyUSB0", "-baud", "9600", "-poll", "1s", "-verbose"},
			check: func(t *testing.T, cfg AgentConfig) {
				if cfg.Device != "/dev/ttyUSB0" || cfg.Baud != 9600 || cfg.PollInterval != time.Second || !cfg.Verbose {
					t.Errorf("unexpected config: %+v", cfg)
				}
			},
		},
		{name: "uart without device", args: []string{"-transport", "uart"}, wantErr: true},
		{name: "spi without device", args: []string{"-transport", "spi"}, wantErr: true},
		{name: "unknown transport", args: []string{"-transport", "i2c"}, wantErr: true},
		{name: "zero scratch", args: []string{"-scratch", "0"}, wantErr: true},
		{name: "bad port", args: []string{"-port", "70000"}, wantErr: true},
		{name: "unknown flag", args: []string{"-systray"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _, err := parseFlags(tt.args, io.Discard)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestParseFlags_Version(t *testing.T) {
	// -version skips validation.
	_, showVersion, err := parseFlags([]string{"-version", "-transport", "bogus"}, io.Discard)
	if err != nil || !showVersion {
		t.Errorf("parseFlags(-version) = %v, %v; want true, nil", showVersion, err)
	}
}

func testConfig() AgentConfig {
	return AgentConfig{
		Transport:    TransportLibNFC,
		Port:         0,
		PollInterval: 10 * time.Millisecond,
		ScratchSize:  nfc.DefaultScratchSize,
	}
}

func TestAgent_StartStop(t *testing.T) {
	logger, _ := test.NewNullLogger()
	chip := nfc.NewMockChip()

	agent := NewAgent(testConfig(), logger)
	agent.OpenChip = func(AgentConfig) (nfc.Chip, error) { return chip, nil }

	if err := agent.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := agent.Start(); err == nil {
		t.Error("second Start() returned no error")
	}
	if chip.CountCalls("SAMConfig") != 1 {
		t.Error("Start() did not configure the chip")
	}

	agent.Stop()
	if chip.CountCalls("Close") != 1 {
		t.Errorf("chip closed %d times, want 1", chip.CountCalls("Close"))
	}
	// Stopping twice is a no-op.
	agent.Stop()
}

func TestAgent_StartChipNotFound(t *testing.T) {
	logger, _ := test.NewNullLogger()
	chip := nfc.NewMockChip()
	chip.FirmwareVersionValue = 0

	agent := NewAgent(testConfig(), logger)
	agent.OpenChip = func(AgentConfig) (nfc.Chip, error) { return chip, nil }

	err := agent.Start()
	if !nfc.IsFatalError(err) {
		t.Fatalf("Start() error = %v, want fatal", err)
	}
	if agent.Server != nil {
		t.Error("server created without a chip")
	}
	if chip.CountCalls("Close") != 1 {
		t.Error("chip not closed after failed Begin")
	}
}

func TestAgent_StartOpenError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	agent := NewAgent(testConfig(), logger)
	agent.OpenChip = func(AgentConfig) (nfc.Chip, error) { return nil, errors.New("no device") }

	if err := agent.Start(); err == nil || nfc.IsFatalError(err) {
		t.Errorf("Start() error = %v, want non-fatal open error", err)
	}
}

func TestOpenChip_UnknownTransport(t *testing.T) {
	if _, err := openChip(AgentConfig{Transport: "i2c"}); err == nil {
		t.Error("openChip() accepted unknown transport")
	}
}
