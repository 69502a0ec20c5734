package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"filebuttons/pkg/buttons"
	"filebuttons/pkg/config"
	"filebuttons/pkg/files"
	"filebuttons/pkg/gpio"
	"filebuttons/pkg/log"
	"filebuttons/pkg/metrics"
	"filebuttons/pkg/moonraker"
	"filebuttons/pkg/printer"
	"filebuttons/pkg/reactor"
)

func runCmd(ro *rootOptions) *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the buttons and drive the printer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, ro.configPath, !noWatch)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file when it changes")
	return cmd
}

// backends holds the printer and lister chosen by the settings. client is
// set when either of them is Moonraker.
type backends struct {
	printer printer.Printer
	lister  printer.Lister
	client  *moonraker.Client
}

func openBackends(s *config.Settings) (*backends, error) {
	b := &backends{}
	mr := func() *moonraker.Client {
		if b.client == nil {
			b.client = moonraker.New(moonraker.Options{
				URL:           s.MoonrakerURL,
				APIKey:        s.MoonrakerAPIKey,
				ClientVersion: version,
			})
		}
		return b.client
	}

	switch s.Printer {
	case "moonraker":
		b.printer = mr()
	case "memory":
		b.printer = printer.NewMemory()
	default:
		return nil, fmt.Errorf("unknown printer backend %q", s.Printer)
	}

	switch s.Lister {
	case "moonraker":
		b.lister = mr()
	case "local":
		l := files.NewLocal(s.LocalRoot)
		if s.SDCardRoot != "" {
			l.SetRoot(printer.OriginSDCard, s.SDCardRoot)
		}
		b.lister = l
	default:
		return nil, fmt.Errorf("unknown lister %q", s.Lister)
	}
	return b, nil
}

func (b *backends) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

func run(ctx context.Context, configPath string, watch bool) error {
	logger := log.GetLogger("main")

	raw, err := config.LoadOptions(configPath)
	if err != nil {
		return err
	}
	settings, err := config.DecodeSettings(raw)
	if err != nil {
		return err
	}
	logger.WithFields(log.Fields{
		"version": version,
		"config":  configPath,
		"gpio":    settings.GPIODriver,
		"printer": settings.Printer,
		"lister":  settings.Lister,
	}).Info("filebuttons starting")

	b, err := openBackends(settings)
	if err != nil {
		return err
	}
	defer b.Close()

	if b.client != nil {
		if err := b.client.Connect(ctx); err != nil {
			logger.WithError(err).Warn("printer not ready, retrying on the next press")
		}
		logger.WithField("klippy", b.client.State()).Info("printer state")
	}

	driver, err := gpio.Open(settings.GPIODriver, settings.GPIOChip)
	if err != nil {
		return err
	}
	defer driver.Close()

	bm := metrics.NewButtonMetrics()
	r := reactor.New(0)
	r.Run()
	defer func() {
		r.End()
		r.Wait()
	}()

	opts := buttons.OptionsFromSettings(settings)
	opts.Metrics = bm
	opts.Post = r.Post
	ctrl := buttons.New(b.printer, b.lister, opts)

	claimed := 0
	for _, res := range ctrl.Start(driver, settings.Pins(), settings.BounceTime) {
		if res.OK() {
			claimed++
		}
	}
	defer func() {
		if err := stopOnQueue(r, ctrl, 2*time.Second); err != nil {
			logger.WithError(err).Warn("cannot release button lines")
		}
	}()
	if claimed == 0 {
		return fmt.Errorf("no button line could be claimed on the %s driver", driver.Name())
	}

	if settings.MetricsAddr != "" {
		cfg := metrics.DefaultServerConfig()
		cfg.Address = settings.MetricsAddr
		srv := metrics.NewServer(bm, cfg)
		errCh, err := srv.Start()
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		logger.WithField("addr", srv.Addr()).Info("serving metrics")
		go func() {
			if err := <-errCh; err != nil {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	if watch {
		rm := config.NewReloadManager(configPath, raw)
		rm.SetCallback(func(res config.ReloadResult) {
			r.Post(func() {
				applyReload(ctrl, bm, logger, res)
			})
		})
		rm.SetErrorCallback(func(error) { bm.RecordReload(false) })
		go func() {
			if err := rm.Watch(ctx); err != nil {
				logger.WithError(err).Warn("config watcher stopped")
			}
		}()
	}

	logger.WithField("claimed", claimed).Info("filebuttons ready")
	select {
	case <-ctx.Done():
	case <-r.Done():
	}
	logger.Info("shutting down")
	return nil
}

// stopOnQueue runs ctrl.Stop on the reactor, after the edges already
// queued. Once the reactor has ended, or the call times out, Stop runs
// directly.
func stopOnQueue(r *reactor.Reactor, ctrl *buttons.Controller, timeout time.Duration) error {
	res := r.Call(func() interface{} { return ctrl.Stop() }).Wait(timeout, reactor.ErrTimeout)
	switch res {
	case reactor.ErrReactorClosed, reactor.ErrTimeout:
		return ctrl.Stop()
	}
	err, _ := res.(error)
	return err
}

func applyReload(ctrl *buttons.Controller, bm *metrics.ButtonMetrics, logger *log.Logger, res config.ReloadResult) {
	ctrl.Reconfigure(buttons.OptionsFromSettings(res.Settings))
	bm.RecordReload(true)
	entry := logger.WithField("changed", res.Changed)
	if len(res.RestartRequired) > 0 {
		entry.WithField("restart_required", res.RestartRequired).
			Warn("config reloaded, some options apply after a restart")
		return
	}
	entry.Info("config reloaded")
}
