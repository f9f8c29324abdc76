// SPDX-License-Identifier: GPL-2.0-only

package flasher

import (
	"context"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/usbtools/fastboot-flasher/fastboot"
)

const unlockTokenVar = "unlock_token"

// Device is the slice of the protocol client the flasher drives.
type Device interface {
	GetVar(ctx context.Context, name string) (string, error)
	Download(ctx context.Context, payload []byte, onProgress fastboot.ProgressFunc) (*fastboot.Response, error)
	Flash(ctx context.Context, partition string, payload []byte, onProgress fastboot.ProgressFunc) (*fastboot.Response, error)
	RunCommand(ctx context.Context, command string) (*fastboot.Response, error)
	Reboot(ctx context.Context) error
}

// TokenSigner produces the signed unlock payload for a device token.
// The signature scheme is device-specific and lives outside this
// module.
type TokenSigner interface {
	Sign(token []byte) ([]byte, error)
}

// Image pairs a partition name with the payload to write to it.
type Image struct {
	Partition string
	Data      []byte
}

// ProgressFunc reports per-image flashing progress.
type ProgressFunc func(partition string, fraction float64)

// Flasher runs flashing workflows against one connected device.
type Flasher struct {
	device Device
	logger log.Logger

	// metrics
	imagesFlashed prometheus.Counter
	bytesSent     prometheus.Counter
	flashFailures prometheus.Counter
}

func New(device Device, logger log.Logger, reg prometheus.Registerer) *Flasher {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	f := &Flasher{
		device: device,
		logger: logger,
		imagesFlashed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fastboot_images_flashed_total",
			Help: "The number of images flashed to the device.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fastboot_payload_bytes_sent_total",
			Help: "The number of payload bytes streamed to the device.",
		}),
		flashFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fastboot_flash_failures_total",
			Help: "The number of failed flash operations.",
		}),
	}
	if reg != nil {
		reg.MustRegister(f.imagesFlashed, f.bytesSent, f.flashFailures)
	}
	return f
}

// FlashAll writes the images to the device strictly in order. The first
// failure aborts the remaining images.
func (f *Flasher) FlashAll(ctx context.Context, images []Image, onProgress ProgressFunc) error {
	for _, img := range images {
		_ = level.Info(f.logger).Log("msg", "flashing image", "partition", img.Partition, "bytes", len(img.Data))

		var perImage fastboot.ProgressFunc
		if onProgress != nil {
			partition := img.Partition
			perImage = func(fraction float64) {
				onProgress(partition, fraction)
			}
		}

		if _, err := f.device.Flash(ctx, img.Partition, img.Data, perImage); err != nil {
			f.flashFailures.Inc()
			return errors.Wrapf(err, "failed to flash %s", img.Partition)
		}
		f.imagesFlashed.Inc()
		f.bytesSent.Add(float64(len(img.Data)))
	}
	return nil
}

// Unlock fetches the device's unlock token, has the signer produce the
// signed payload, stages it and runs the unlock command.
func (f *Flasher) Unlock(ctx context.Context, signer TokenSigner) error {
	token, err := f.device.GetVar(ctx, unlockTokenVar)
	if err != nil {
		return errors.Wrap(err, "failed to read unlock token")
	}
	_ = level.Info(f.logger).Log("msg", "signing unlock token")

	signed, err := signer.Sign([]byte(token))
	if err != nil {
		return errors.Wrap(err, "failed to sign unlock token")
	}

	if _, err := f.device.Download(ctx, signed, nil); err != nil {
		return errors.Wrap(err, "failed to stage signed token")
	}
	if _, err := f.device.RunCommand(ctx, "flashing unlock"); err != nil {
		return errors.Wrap(err, "unlock command rejected")
	}
	_ = level.Info(f.logger).Log("msg", "device unlocked")
	return nil
}

// Reboot leaves bootloader mode once flashing is done.
func (f *Flasher) Reboot(ctx context.Context) error {
	_ = level.Info(f.logger).Log("msg", "rebooting device")
	return f.device.Reboot(ctx)
}
