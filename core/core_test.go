// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/devblok/korugraph/core"
)

func TestLoadConfigurationDefaults(t *testing.T) {
	c := qt.New(t)
	cfg, err := core.LoadConfiguration()
	c.Assert(err, qt.IsNil)
	c.Assert(cfg, qt.DeepEquals, core.DefaultConfiguration())
}

func TestLoadConfigurationEnvironment(t *testing.T) {
	c := qt.New(t)
	t.Setenv(core.EnvScreenWidth, "800")
	t.Setenv(core.EnvFramesInFlight, "3")
	t.Setenv(core.EnvDeviceExtensions, "VK_KHR_swapchain,VK_KHR_maintenance1")
	t.Setenv(core.EnvValidation, "true")

	cfg, err := core.LoadConfiguration()
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(800))
	c.Assert(cfg.Renderer.ScreenHeight, qt.Equals, uint32(720))
	c.Assert(cfg.Renderer.FramesInFlight, qt.Equals, 3)
	c.Assert(cfg.Renderer.Validation, qt.IsTrue)
	c.Assert(cfg.Renderer.DeviceExtensions, qt.DeepEquals, []string{"VK_KHR_swapchain", "VK_KHR_maintenance1"})
}

func TestLoadConfigurationFile(t *testing.T) {
	c := qt.New(t)
	file := filepath.Join(t.TempDir(), "koru.env")
	c.Assert(os.WriteFile(file, []byte("KORU_ASSET_ROOT=packs/base.kar\nKORU_FPS=144\n"), 0644), qt.IsNil)
	t.Cleanup(func() {
		os.Unsetenv(core.EnvAssetRoot)
		os.Unsetenv(core.EnvFramesPerSecond)
	})

	cfg, err := core.LoadConfiguration(file)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Assets.Root, qt.Equals, "packs/base.kar")
	c.Assert(cfg.Time.FramesPerSecond, qt.Equals, 144)
}

func TestLoadConfigurationInvalid(t *testing.T) {
	c := qt.New(t)
	t.Setenv(core.EnvFramesInFlight, "0")
	_, err := core.LoadConfiguration()
	c.Assert(err, qt.ErrorMatches, "KORU_FRAMES_IN_FLIGHT must be at least 1.*")

	t.Setenv(core.EnvFramesInFlight, "two")
	_, err = core.LoadConfiguration()
	c.Assert(err, qt.ErrorMatches, "parse KORU_FRAMES_IN_FLIGHT.*")

	_, err = core.LoadConfiguration(filepath.Join(t.TempDir(), "missing.env"))
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestLoadConfigurationNegativeScreen(t *testing.T) {
	c := qt.New(t)
	t.Setenv(core.EnvScreenWidth, "-1")
	_, err := core.LoadConfiguration()
	c.Assert(err, qt.ErrorMatches, "screen size must not be negative, got -1x.*")

	t.Setenv(core.EnvScreenWidth, "1024")
	t.Setenv(core.EnvScreenHeight, "-768")
	_, err = core.LoadConfiguration()
	c.Assert(err, qt.ErrorMatches, "screen size must not be negative, got 1024x-768")

	t.Setenv(core.EnvScreenHeight, "0")
	cfg, err := core.LoadConfiguration()
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(1024))
	c.Assert(cfg.Renderer.ScreenHeight, qt.Equals, uint32(0))
}

func TestContextMust(t *testing.T) {
	c := qt.New(t)
	ctx := core.NewContext(core.DefaultConfiguration())
	hook := test.NewLocal(ctx.Log)
	ctx.Log.ExitFunc = func(int) { panic("exit") }

	ctx.Must(nil, "never logged")
	c.Assert(hook.AllEntries(), qt.HasLen, 0)

	c.Assert(func() { ctx.Must(errors.New("boom"), "device lost") }, qt.PanicMatches, "exit")
	c.Assert(hook.LastEntry().Level, qt.Equals, log.FatalLevel)
	c.Assert(hook.LastEntry().Message, qt.Equals, "device lost")
}

func TestContextLogger(t *testing.T) {
	c := qt.New(t)
	ctx := core.NewContext(core.Configuration{LogLevel: "debug"})
	hook := test.NewLocal(ctx.Log)

	ctx.Logger("surface").Debug("rebuilt")
	c.Assert(hook.LastEntry().Data["component"], qt.Equals, "surface")
	c.Assert(ctx.Log.GetLevel(), qt.Equals, log.DebugLevel)
}

func TestTimeTickers(t *testing.T) {
	c := qt.New(t)
	tm := core.NewTime(core.TimeConfiguration{FramesPerSecond: 1000, EventPollDelay: 1})
	defer tm.Stop()

	<-tm.FpsTicker().C
	<-tm.EventTicker().C
	c.Assert(tm.Fps(), qt.Equals, 1000)
	c.Assert(tm.Elapsed() > 0, qt.IsTrue)
}

func TestGetPixels(t *testing.T) {
	c := qt.New(t)
	img := image.NewNRGBA(image.Rect(2, 2, 4, 3))
	img.Set(2, 2, color.NRGBA{R: 255, A: 255})
	img.Set(3, 2, color.NRGBA{B: 255, A: 255})

	c.Assert(core.GetPixels(img), qt.DeepEquals, []uint8{255, 0, 0, 255, 0, 0, 255, 255})
}

func BenchmarkGetPixels(b *testing.B) {
	img := image.NewNRGBA(image.Rect(0, 0, 512, 512))
	for idx := 0; idx < b.N; idx++ {
		core.GetPixels(img)
	}
}
