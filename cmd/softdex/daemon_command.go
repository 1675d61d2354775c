package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"softdex/internal/daemon"
	"softdex/internal/logging"
	"softdex/internal/metrics"
	"softdex/internal/scan"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var noDevices bool
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run softdexd in the foreground",
		Long: "Run periodic detection passes, rescan on device and manifest changes, " +
			"and serve the HTTP API on paths.api_bind until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			m, err := metrics.New()
			if err != nil {
				return fmt.Errorf("init metrics: %w", err)
			}

			st, err := ctx.openStores(signalCtx)
			if err != nil {
				return err
			}
			defer st.Close()

			p, err := newPipeline(cfg, logger, st, m)
			if err != nil {
				return err
			}
			defer p.Close()

			var enricher scan.Enricher
			opts := []daemon.Option{
				daemon.WithQuerier(p.query),
				daemon.WithMetrics(m),
				daemon.WithLogger(logger),
				daemon.WithDeviceEvents(!noDevices),
				daemon.WithManifestWatch(!noWatch),
			}
			if p.scheduler != nil {
				opts = append(opts, daemon.WithEnrichment(p.scheduler))
				if cfg.Detection.EnrichAfterScan {
					enricher = p.scheduler
				}
			}

			d, err := daemon.New(cfg, p.scanRunner(enricher), opts...)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			logger.Info("softdex daemon starting",
				logging.String("api_bind", cfg.Paths.APIBind),
				logging.Duration("scan_interval", cfg.ScanInterval()),
			)
			if err := d.Run(signalCtx); err != nil {
				if errors.Is(err, daemon.ErrAlreadyRunning) {
					return fmt.Errorf("%w (lock %s)", err, cfg.DaemonLockPath())
				}
				return err
			}
			logger.Info("softdex daemon stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&noDevices, "no-device-events", false, "Do not rescan on udev partition events")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not watch platform manifest directories")
	return cmd
}
