// SPDX-License-Identifier: GPL-2.0-only

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/gousb"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/viper"

	"github.com/usbtools/fastboot-flasher/fastboot"
	"github.com/usbtools/fastboot-flasher/flasher"
	"github.com/usbtools/fastboot-flasher/transport"
)

const (
	logLevelAll   = "all"
	logLevelDebug = "debug"
	logLevelInfo  = "info"
	logLevelWarn  = "warn"
	logLevelError = "error"
	logLevelNone  = "none"
)

var (
	availableLogLevels = strings.Join([]string{
		logLevelAll,
		logLevelDebug,
		logLevelInfo,
		logLevelWarn,
		logLevelError,
		logLevelNone,
	}, ", ")
)

// Main is the principal function for the binary, wrapped only by `main` for convenience.
func Main() error {
	if err := initConfig(); err != nil {
		return err
	}

	images, err := getConfiguredImages()
	if err != nil {
		return err
	}
	if len(images) == 0 && !viper.GetBool("reboot") {
		return fmt.Errorf("at least one image must be specified")
	}

	selector, err := getConfiguredSelector()
	if err != nil {
		return err
	}

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logLevel := viper.GetString("log-level")
	switch logLevel {
	case logLevelAll:
		logger = level.NewFilter(logger, level.AllowAll())
	case logLevelDebug:
		logger = level.NewFilter(logger, level.AllowDebug())
	case logLevelInfo:
		logger = level.NewFilter(logger, level.AllowInfo())
	case logLevelWarn:
		logger = level.NewFilter(logger, level.AllowWarn())
	case logLevelError:
		logger = level.NewFilter(logger, level.AllowError())
	case logLevelNone:
		logger = level.NewFilter(logger, level.AllowNone())
	default:
		return fmt.Errorf("log level %v unknown; possible values are: %s", logLevel, availableLogLevels)
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)

	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var g run.Group
	{
		// Run the HTTP server.
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		mux.Handle("/metrics", promhttp.HandlerFor(r, promhttp.HandlerOpts{}))
		listen := viper.GetString("listen")
		l, err := net.Listen("tcp", listen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %v", listen, err)
		}

		g.Add(func() error {
			if err := http.Serve(l, mux); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("server exited unexpectedly: %v", err)
			}
			return nil
		}, func(error) {
			_ = l.Close()
		})
	}

	{
		// Exit gracefully on SIGINT and SIGTERM.
		term := make(chan os.Signal, 1)
		signal.Notify(term, syscall.SIGINT, syscall.SIGTERM)
		cancel := make(chan struct{})
		g.Add(func() error {
			for {
				select {
				case <-term:
					_ = logger.Log("msg", "caught interrupt; aborting flash")
					return nil
				case <-cancel:
					return nil
				}
			}
		}, func(error) {
			close(cancel)
		})
	}

	{
		// Run the flash job; its completion stops the whole group.
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return runFlash(ctx, logger, r, selector, images)
		}, func(error) {
			cancel()
		})
	}

	return g.Run()
}

func runFlash(ctx context.Context, logger log.Logger, reg prometheus.Registerer, selector flasher.Selector, images []flasher.ImageSpec) error {
	usbCtx := gousb.NewContext()
	defer func() { _ = usbCtx.Close() }()

	tr, err := transport.OpenDevice(usbCtx, selector.Filter(), log.With(logger, "component", "transport"))
	if err != nil {
		return errors.Wrap(err, "failed to open USB device")
	}
	defer func() { _ = tr.Close() }()

	client, err := fastboot.Connect(ctx, tr,
		fastboot.WithLogger(log.With(logger, "component", "fastboot")),
		fastboot.WithChunkSize(viper.GetInt("chunk-size")),
	)
	if err != nil {
		return errors.Wrap(err, "failed to connect to bootloader")
	}

	if version, err := client.GetVar(ctx, "version"); err == nil {
		_ = level.Info(logger).Log("msg", "bootloader ready", "version", version)
	}

	loaded := make([]flasher.Image, 0, len(images))
	for _, spec := range images {
		data, err := os.ReadFile(spec.Path)
		if err != nil {
			return errors.Wrapf(err, "failed to read image %s", spec.Path)
		}
		loaded = append(loaded, flasher.Image{Partition: spec.Partition, Data: data})
	}

	f := flasher.New(client, log.With(logger, "component", "flasher"), reg)

	if err := f.FlashAll(ctx, loaded, progressReporter()); err != nil {
		return err
	}

	if viper.GetBool("reboot") {
		if err := f.Reboot(ctx); err != nil {
			return err
		}
	}

	_ = logger.Log("msg", "all done; see you next time!")
	return nil
}

// progressReporter renders per-partition progress bars on stderr.
func progressReporter() flasher.ProgressFunc {
	const steps = 1000
	var current string
	var bar *progressbar.ProgressBar
	return func(partition string, fraction float64) {
		if bar == nil || partition != current {
			current = partition
			bar = progressbar.NewOptions(steps,
				progressbar.OptionSetDescription("flashing "+partition),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(int(fraction * steps))
		if fraction >= 1.0 {
			_ = bar.Finish()
		}
	}
}

func main() {
	if err := Main(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Execution failed: %v\n", err)
		os.Exit(1)
	}
}
