package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/CefBoud/kafkamux/cache"
	"github.com/CefBoud/kafkamux/checksum"
	"github.com/CefBoud/kafkamux/config"
	"github.com/CefBoud/kafkamux/engine"
	log "github.com/CefBoud/kafkamux/logging"
	"github.com/CefBoud/kafkamux/metrics"
	"github.com/CefBoud/kafkamux/route"
	"github.com/CefBoud/kafkamux/storage"
	"github.com/CefBoud/kafkamux/types"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "kafkamux",
		Short:        "Kafka stream multiplexing gateway",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), crcCmd())
	return root
}

func serveCmd() *cobra.Command {
	var configPath string
	overrides := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept client streams and serve them from shared fanouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.Listen = overrides.Listen
			}
			if flags.Changed("data-dir") {
				cfg.DataDir = overrides.DataDir
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = overrides.LogLevel
			}
			if flags.Changed("type-id") {
				cfg.TypeID = overrides.TypeID
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML or JSON configuration file")
	flags.StringVar(&overrides.Listen, "listen", overrides.Listen, "address to accept clients on")
	flags.StringVar(&overrides.DataDir, "data-dir", overrides.DataDir, "directory of the offset store")
	flags.StringVar(&overrides.LogLevel, "log-level", overrides.LogLevel, "TRACE, DEBUG, INFO, WARN or ERROR")
	flags.Int32Var(&overrides.TypeID, "type-id", overrides.TypeID, "extension type id accepted on BEGIN frames")
	return cmd
}

func serve(ctx context.Context, cfg types.Configuration) (err error) {
	log.SetLogLevel(cfg.LogLevel)
	if _, err := metrics.Setup("kafkamux", cfg.MetricsInterval); err != nil {
		return fmt.Errorf("setting up metrics: %w", err)
	}

	offsets, err := storage.OpenOffsetStore(cfg.DataDir)
	if err != nil {
		return err
	}
	if groups, err := offsets.Groups(); err == nil {
		log.Info("offset store in %s holds %d groups", cfg.DataDir, len(groups))
	}
	defer func() {
		if closeErr := offsets.Close(); closeErr != nil {
			err = multierror.Append(err, closeErr)
		}
	}()

	worker, err := engine.NewWorker(engine.WorkerConfig{
		TypeID:    cfg.TypeID,
		Upstream:  cache.NewLoopback(),
		Offsets:   offsets,
		Allocator: route.NewLocalAllocator(),
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.Run(ctx) }()

	for _, b := range cfg.Bindings {
		if err := worker.Attach(ctx, b); err != nil {
			return fmt.Errorf("attaching binding %d: %w", b.ID, err)
		}
		log.Info("binding %d (%s) attached", b.ID, b.Name)
	}

	server := engine.NewServer(worker)
	if err := server.Listen(cfg.Listen); err != nil {
		return err
	}
	serveErr := server.Serve(ctx)
	log.Info("shutting down")
	cancel()
	<-workerDone
	return serveErr
}

func crcCmd() *cobra.Command {
	crc := &cobra.Command{
		Use:   "crc",
		Short: "CRC-32C helpers",
	}
	crc.AddCommand(&cobra.Command{
		Use:   "combine <crc1> <crc2> <len2>",
		Short: "Combine the CRC-32C of two adjacent byte ranges",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			crc1, err := strconv.ParseUint(args[0], 0, 32)
			if err != nil {
				return fmt.Errorf("crc1: %w", err)
			}
			crc2, err := strconv.ParseUint(args[1], 0, 32)
			if err != nil {
				return fmt.Errorf("crc2: %w", err)
			}
			len2, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("len2: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "0x%08x\n", checksum.CombineCRC32C(uint32(crc1), uint32(crc2), len2))
			return nil
		},
	})
	return crc
}
