// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"strconv"
	"strings"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
	Assets   AssetsConfiguration

	// LogLevel is one of logrus level names
	LogLevel string
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the delay between window event polls, in milliseconds
	EventPollDelay int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	// FramesInFlight is the number of frames the CPU may record
	// ahead of the GPU.
	FramesInFlight   int
	DeviceExtensions []string
	Validation       bool

	ScreenWidth  uint32
	ScreenHeight uint32
}

// AssetsConfiguration points at the asset root, a directory or a kar archive.
type AssetsConfiguration struct {
	Root string
}

// Environment variables read by LoadConfiguration
const (
	EnvFramesPerSecond  = "KORU_FPS"
	EnvEventPollDelay   = "KORU_EVENT_POLL_DELAY"
	EnvFramesInFlight   = "KORU_FRAMES_IN_FLIGHT"
	EnvDeviceExtensions = "KORU_DEVICE_EXTENSIONS"
	EnvValidation       = "KORU_VALIDATION"
	EnvScreenWidth      = "KORU_SCREEN_WIDTH"
	EnvScreenHeight     = "KORU_SCREEN_HEIGHT"
	EnvAssetRoot        = "KORU_ASSET_ROOT"
	EnvLogLevel         = "KORU_LOG_LEVEL"
)

// DefaultConfiguration returns the configuration used when nothing
// is overridden.
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  8,
		},
		Renderer: RendererConfiguration{
			FramesInFlight:   2,
			DeviceExtensions: []string{"VK_KHR_swapchain"},
			ScreenWidth:      1280,
			ScreenHeight:     720,
		},
		Assets: AssetsConfiguration{
			Root: "assets",
		},
		LogLevel: "info",
	}
}

// LoadConfiguration loads the given env files, without overriding
// variables already set, and applies the environment on top of the
// defaults.
func LoadConfiguration(files ...string) (Configuration, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Configuration{}, errors.Wrap(err, "load env files")
		}
	}
	envy.Reload()

	cfg := DefaultConfiguration()
	var err error
	if cfg.Time.FramesPerSecond, err = envInt(EnvFramesPerSecond, cfg.Time.FramesPerSecond); err != nil {
		return cfg, err
	}
	if cfg.Time.EventPollDelay, err = envInt(EnvEventPollDelay, cfg.Time.EventPollDelay); err != nil {
		return cfg, err
	}
	if cfg.Renderer.FramesInFlight, err = envInt(EnvFramesInFlight, cfg.Renderer.FramesInFlight); err != nil {
		return cfg, err
	}
	if cfg.Renderer.FramesInFlight < 1 {
		return cfg, errors.Errorf("%s must be at least 1, got %d", EnvFramesInFlight, cfg.Renderer.FramesInFlight)
	}

	width, err := envInt(EnvScreenWidth, int(cfg.Renderer.ScreenWidth))
	if err != nil {
		return cfg, err
	}
	height, err := envInt(EnvScreenHeight, int(cfg.Renderer.ScreenHeight))
	if err != nil {
		return cfg, err
	}
	if width < 0 || height < 0 {
		return cfg, errors.Errorf("screen size must not be negative, got %dx%d", width, height)
	}
	cfg.Renderer.ScreenWidth, cfg.Renderer.ScreenHeight = uint32(width), uint32(height)

	if v := envy.Get(EnvDeviceExtensions, ""); v != "" {
		cfg.Renderer.DeviceExtensions = strings.Split(v, ",")
	}
	if v := envy.Get(EnvValidation, ""); v != "" {
		if cfg.Renderer.Validation, err = strconv.ParseBool(v); err != nil {
			return cfg, errors.Wrapf(err, "parse %s", EnvValidation)
		}
	}
	cfg.Assets.Root = envy.Get(EnvAssetRoot, cfg.Assets.Root)
	cfg.LogLevel = envy.Get(EnvLogLevel, cfg.LogLevel)
	return cfg, nil
}

func envInt(key string, def int) (int, error) {
	v := envy.Get(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, errors.Wrapf(err, "parse %s", key)
	}
	return n, nil
}
