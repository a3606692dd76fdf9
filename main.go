// Package main runs an NDEF adapter for a PN532 reader and exposes it to
// WebSocket clients. It reads and writes NDEF messages on MIFARE Classic 1K
// and NFC Forum Type 2 tags.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nedpals/davi-nfc-adapter/buildinfo"
	"github.com/nedpals/davi-nfc-adapter/nfc"
	"github.com/nedpals/davi-nfc-adapter/server"
	"github.com/sirupsen/logrus"
)

const defaultPort = 18080

// parseFlags parses args into an AgentConfig. showVersion is true when
// -version was given.
func parseFlags(args []string, output io.Writer) (cfg AgentConfig, showVersion bool, err error) {
	fs := flag.NewFlagSet(buildinfo.Name, flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cfg.Transport, "transport", TransportLibNFC, "Chip transport: libnfc, uart or spi")
	fs.StringVar(&cfg.Device, "device", "", "libnfc connection string, serial port or SPI port (libnfc auto-detects when empty)")
	fs.IntVar(&cfg.Baud, "baud", nfc.DefaultUARTBaud, "Baud rate for the uart transport")
	fs.IntVar(&cfg.Port, "port", defaultPort, "Port to listen on for the web interface")
	fs.DurationVar(&cfg.PollInterval, "poll", server.DefaultPollInterval, "Interval between tag detection rounds")
	fs.IntVar(&cfg.ScratchSize, "scratch", nfc.DefaultScratchSize, "Scratch buffer size in bytes; bounds the largest NDEF message")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Log chip details and debug output")
	fs.BoolVar(&cfg.MDNS, "mdns", true, "Advertise the server over mDNS")
	fs.StringVar(&cfg.APISecret, "api-secret", "", "Secret WebSocket clients must pass as ?secret= (optional)")
	fs.StringVar(&cfg.RedisAddr, "redis", "", "Redis address to record tag events to (optional)")
	fs.BoolVar(&showVersion, "version", false, "Print version information and exit")

	if err := fs.Parse(args); err != nil {
		return cfg, false, err
	}
	if showVersion {
		return cfg, true, nil
	}
	return cfg, false, cfg.Validate()
}

func newLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func main() {
	cfg, showVersion, err := parseFlags(os.Args[1:], os.Stderr)
	if err == flag.ErrHelp {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if showVersion {
		fmt.Println(buildinfo.BuildInfo())
		return
	}

	logger := newLogger(cfg.Verbose)
	logger.Infof("%s %s", buildinfo.DisplayName, buildinfo.FullVersion())

	agent := NewAgent(cfg, logger)
	if err := agent.Start(); err != nil {
		if nfc.IsFatalError(err) {
			logger.WithError(err).Fatal("no PN53x chip found, check wiring and -transport")
		}
		logger.WithError(err).Fatal("failed to start agent")
	}
	defer agent.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received, stopping server")
}
