// SPDX-License-Identifier: GPL-2.0-only

package main

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/usbtools/fastboot-flasher/flasher"
)

// initConfig defines config flags, config file, and envs
func initConfig() error {
	cfgFile := flag.String("config", "", "Path to the config file.")
	flag.String("log-level", logLevelInfo, fmt.Sprintf("Log level to use. Possible values: %s", availableLogLevels))
	flag.String("listen", ":8080", "The address at which to listen for health and metrics.")
	flag.StringSlice("image", nil, "Image to flash, as <partition>=<path>. May be repeated.")
	flag.String("vendor", "", "Hex USB vendor ID to select; empty matches any.")
	flag.String("product", "", "Hex USB product ID to select; empty matches any.")
	flag.Int("chunk-size", 0, "Payload chunk size in bytes; 0 keeps the default.")
	flag.Bool("reboot", false, "Reboot the device after flashing.")

	flag.Parse()
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		return fmt.Errorf("failed to bind config: %w", err)
	}

	if *cfgFile != "" {
		viper.SetConfigFile(*cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/fastboot-flasher/")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error
		} else {
			// Config file was found but another error was produced
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return nil
}

// getConfiguredImages collects image specs from --image flags; when no
// flags are given it falls back to the `images` list in the config
// file.
func getConfiguredImages() ([]flasher.ImageSpec, error) {
	specs := make([]flasher.ImageSpec, 0)
	for _, arg := range viper.GetStringSlice("image") {
		partition, path, ok := strings.Cut(arg, "=")
		if !ok || partition == "" || path == "" {
			return nil, fmt.Errorf("failed to parse image spec %q: expected <partition>=<path>", arg)
		}
		specs = append(specs, flasher.ImageSpec{Partition: partition, Path: path})
	}
	if len(specs) > 0 {
		return specs, nil
	}

	raw := viper.Get("images")
	if raw == nil {
		return specs, nil
	}
	switch rawList := raw.(type) {
	case []interface{}:
		for _, def := range rawList {
			var spec flasher.ImageSpec
			decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				Result:  &spec,
				TagName: "json",
			})
			if err != nil {
				return nil, err
			}
			if err := decoder.Decode(def); err != nil {
				return nil, fmt.Errorf("failed to decode image spec %q: %w", def, err)
			}
			specs = append(specs, spec)
		}
	default:
		return nil, fmt.Errorf("failed to decode images: unexpected type: %T", rawList)
	}
	return specs, nil
}

// getConfiguredSelector builds the device selector from the --vendor
// and --product flags, falling back to the `device` section of the
// config file.
func getConfiguredSelector() (flasher.Selector, error) {
	var selector flasher.Selector

	if raw := viper.Get("device"); raw != nil {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:  &selector,
			TagName: "json",
		})
		if err != nil {
			return selector, err
		}
		if err := decoder.Decode(raw); err != nil {
			return selector, fmt.Errorf("failed to decode device selector %q: %w", raw, err)
		}
	}

	if vendor := viper.GetString("vendor"); vendor != "" {
		if _, err := fmt.Sscanf(vendor, "%x", &selector.Vendor); err != nil {
			return selector, fmt.Errorf("failed to parse vendor ID %q: %w", vendor, err)
		}
	}
	if product := viper.GetString("product"); product != "" {
		if _, err := fmt.Sscanf(product, "%x", &selector.Product); err != nil {
			return selector, fmt.Errorf("failed to parse product ID %q: %w", product, err)
		}
	}
	return selector, nil
}
