package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	tftp "github.com/oblique/tftpd"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "path to a YAML config file")
		listenAddr = pflag.StringP("listen", "l", "0.0.0.0:69", "UDP address to listen on")
		root       = pflag.StringP("root", "r", "", "directory to serve")
		readOnly   = pflag.Bool("read-only", false, "serve RRQ only")
		writeOnly  = pflag.Bool("write-only", false, "serve WRQ only")
		verbose    = pflag.BoolP("verbose", "v", false, "enable debug logging")
	)
	pflag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if *root == "" && *configPath == "" {
		logger.Fatal("tftpd: either --root or --config must be given")
	}

	b := tftp.NewBuilder(nil).WithLogger(logger)

	addr := *listenAddr
	if *configPath != "" {
		cfg, err := tftp.LoadConfig(*configPath)
		if err != nil {
			logger.WithError(err).Fatal("tftpd: failed to load config")
		}
		if _, err := b.ApplyConfig(cfg); err != nil {
			logger.WithError(err).Fatal("tftpd: failed to apply config")
		}
		if cfg.ListenAddress != "" && !pflag.CommandLine.Changed("listen") {
			addr = cfg.ListenAddress
		}
	}
	b = b.WithListenAddress(addr)

	if *root != "" {
		mode := tftp.DirReadWrite
		switch {
		case *readOnly:
			mode = tftp.DirReadOnly
		case *writeOnly:
			mode = tftp.DirWriteOnly
		}
		var h *tftp.DirHandler
		var err error
		switch mode {
		case tftp.DirReadOnly:
			h, err = tftp.NewReadOnlyDirHandler(*root)
		case tftp.DirWriteOnly:
			h, err = tftp.NewWriteOnlyDirHandler(*root)
		default:
			h, err = tftp.NewReadWriteDirHandler(*root)
		}
		if err != nil {
			logger.WithError(err).Fatal("tftpd: failed to open root directory")
		}
		b = b.WithHandler(h)
	}

	srv, err := b.Build()
	if err != nil {
		logger.WithError(err).Fatal("tftpd: failed to build server")
	}
	defer srv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.WithField("addr", addr).Info("tftpd: listening")
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Fatal("tftpd: serve failed")
	}
}
