package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nedpals/davi-nfc-adapter/nfc"
	"github.com/nedpals/davi-nfc-adapter/server"
	"github.com/sirupsen/logrus"
)

// Chip transports selectable with -transport.
const (
	TransportLibNFC = "libnfc"
	TransportUART   = "uart"
	TransportSPI    = "spi"
)

// AgentConfig is the command line configuration of the adapter process.
type AgentConfig struct {
	Transport    string
	Device       string
	Baud         int
	Port         int
	PollInterval time.Duration
	ScratchSize  int
	Verbose      bool
	MDNS         bool
	APISecret    string
	RedisAddr    string
}

// Validate checks the option combinations flag parsing cannot.
func (c AgentConfig) Validate() error {
	switch c.Transport {
	case TransportLibNFC:
	case TransportUART, TransportSPI:
		if c.Device == "" {
			return fmt.Errorf("-device is required for the %s transport", c.Transport)
		}
	default:
		return fmt.Errorf("unknown transport %q (want %s, %s or %s)", c.Transport, TransportLibNFC, TransportUART, TransportSPI)
	}
	if c.ScratchSize <= 0 {
		return errors.New("-scratch must be positive")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// openChip opens the chip selected by cfg.
func openChip(cfg AgentConfig) (nfc.Chip, error) {
	switch cfg.Transport {
	case TransportLibNFC:
		return nfc.OpenLibNFC(cfg.Device)
	case TransportUART:
		t, err := nfc.OpenUART(cfg.Device, cfg.Baud)
		if err != nil {
			return nil, err
		}
		return nfc.NewPN532Chip(t), nil
	case TransportSPI:
		t, err := nfc.OpenSPI(cfg.Device)
		if err != nil {
			return nil, err
		}
		return nfc.NewPN532Chip(t), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

// Agent ties the chip, the adapter and the server together.
type Agent struct {
	Config AgentConfig
	Logger *logrus.Logger

	// OpenChip opens the chip on Start. It defaults to the transport named
	// in Config.
	OpenChip func(AgentConfig) (nfc.Chip, error)

	Adapter *nfc.Adapter
	Reader  *server.Reader
	Server  *server.Server
	sink    *server.RedisSink
}

func NewAgent(cfg AgentConfig, logger *logrus.Logger) *Agent {
	return &Agent{
		Config:   cfg,
		Logger:   logger,
		OpenChip: openChip,
	}
}

// Start opens the chip, checks that it answers and starts serving. An error
// for which nfc.IsFatalError is true means no chip was found.
func (a *Agent) Start() error {
	if a.Server != nil {
		return errors.New("agent is already running")
	}

	chip, err := a.OpenChip(a.Config)
	if err != nil {
		return fmt.Errorf("open %s chip: %w", a.Config.Transport, err)
	}

	a.Adapter = nfc.NewAdapter(chip, make([]byte, a.Config.ScratchSize), nfc.WithLogger(a.Logger))
	if err := a.Adapter.Begin(a.Config.Verbose); err != nil {
		chip.Close()
		a.Adapter = nil
		return err
	}

	cfg := server.Config{
		Port:      a.Config.Port,
		APISecret: a.Config.APISecret,
		MDNS:      a.Config.MDNS,
		Logger:    a.Logger,
	}
	if a.Config.RedisAddr != "" {
		a.sink = server.NewRedisSink(a.Config.RedisAddr)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.sink.Ping(ctx); err != nil {
			a.Logger.WithError(err).Warnf("redis at %s is not answering, tags will be recorded once it is", a.Config.RedisAddr)
		}
		cancel()
		cfg.Sink = a.sink
	}

	a.Reader = server.NewReader(a.Adapter, a.Logger, a.Config.PollInterval)
	cfg.Reader = a.Reader
	a.Server = server.New(cfg)

	go func() {
		if err := a.Server.Start(); err != nil {
			a.Logger.WithError(err).Error("server stopped")
		}
	}()
	return nil
}

func (a *Agent) Stop() {
	if a.Server == nil {
		a.Logger.Debug("agent is not running")
		return
	}

	a.Logger.Info("stopping agent")
	a.Server.Stop()
	a.Server = nil

	if err := a.Reader.Close(); err != nil {
		a.Logger.WithError(err).Warn("failed to close chip")
	}
	a.Reader = nil
	a.Adapter = nil

	if a.sink != nil {
		a.sink.Close()
		a.sink = nil
	}
	a.Logger.Info("agent stopped")
}
