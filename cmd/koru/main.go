// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"flag"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/devblok/korugraph/assets"
	"github.com/devblok/korugraph/core"
	"github.com/devblok/korugraph/gfx"
	"github.com/devblok/korugraph/graph"
	"github.com/devblok/korugraph/registry"
	"github.com/devblok/korugraph/renderer"
	"github.com/devblok/korugraph/utility/collada"
	"github.com/devblok/korugraph/vkr"
)

func init() {
	runtime.LockOSThread()
}

var (
	cpuProfile   = flag.String("cpuprof", "", "write cpu profile to `file`")
	memProfile   = flag.String("memprof", "", "write memory profile to `file`")
	traceProfile = flag.String("trace", "", "write execution trace to `file`")
	debug        = flag.Bool("vkdbg", false, "enable Vulkan validation layers")
	envFiles     = flag.String("env", "", "comma separated env files to load")
	modelPath    = flag.String("model", "", "Collada model to load from the asset root")
	texturePath  = flag.String("texture", "", "texture to load from the asset root")
)

func newWindow(cfg core.RendererConfiguration) *sdl.Window {
	window, err := sdl.CreateWindow("Koru3D",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.ScreenWidth),
		int32(cfg.ScreenHeight),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		panic(err)
	}
	return window
}

// scene is a depth tested pass rendering straight into the swapchain.
func scene() *graph.Def {
	def := graph.NewDef()
	depth := def.NewImage("depth").SetFormat(gfx.FormatD32Sfloat).SetSizeRelative(1, 1)
	color := def.SwapchainImage("color")
	def.NewPass("main").
		AddOutput(color).
		AddOutput(depth).
		SetClearColor([4]float32{0.05, 0.05, 0.05, 1}).
		SetRecord(func(rc *graph.RecordContext) {})
	return def
}

func main() {
	flag.Parse()

	var files []string
	if *envFiles != "" {
		files = strings.Split(*envFiles, ",")
	}
	configuration, err := core.LoadConfiguration(files...)
	if err != nil {
		panic(err)
	}
	configuration.Renderer.Validation = configuration.Renderer.Validation || *debug
	ctx := core.NewContext(configuration)
	logger := ctx.Logger("main")

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			panic(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			panic(err)
		}
		if err := trace.Start(f); err != nil {
			panic(err)
		}
		defer trace.Stop()
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		panic(err)
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		panic(err)
	}
	defer sdl.VulkanUnloadLibrary()

	window := newWindow(configuration.Renderer)
	defer window.Destroy()

	instance, err := vkr.NewInstance(vkr.DefaultApplicationInfo, sdl.VulkanGetVkGetInstanceProcAddr(), vkr.InstanceConfig{
		Extensions: window.VulkanGetInstanceExtensions(),
		Validation: configuration.Renderer.Validation,
	})
	if err != nil {
		panic(err)
	}
	defer instance.Destroy()

	surface, err := window.VulkanCreateSurface(instance.Handle())
	if err != nil {
		panic(err)
	}
	instance.SetSurface(surface)

	device, err := vkr.NewDevice(instance, 0, configuration.Renderer.DeviceExtensions, ctx.Logger("vkr"))
	if err != nil {
		panic(err)
	}
	defer device.Destroy()

	fsys, err := assets.Open(configuration.Assets.Root)
	if err != nil {
		logger.WithError(err).Warn("asset root unavailable, continuing without assets")
		fsys = assets.Dir(os.DirFS("."))
	}
	defer fsys.Close()

	reg := registry.New(ctx, device, fsys, collada.Decode)
	var modelRef, textureRef registry.Ref
	if *modelPath != "" {
		modelRef, err = reg.Models.Request(*modelPath)
		ctx.Must(err, "load model")
		if m, ok := reg.Models.Get(modelRef); ok {
			logger.WithFields(log.Fields{"model": *modelPath, "indices": m.IndexCount()}).Info("model loaded")
		}
	}
	if *texturePath != "" {
		textureRef, err = reg.Textures.Request(*texturePath)
		ctx.Must(err, "load texture")
		if t, ok := reg.Textures.Get(textureRef); ok {
			logger.WithFields(log.Fields{"texture": *texturePath, "extent": t.Extent().String()}).Info("texture loaded")
		}
	}

	vkRenderer, err := renderer.New(ctx, device, reg, scene(),
		configuration.Renderer.ScreenWidth, configuration.Renderer.ScreenHeight)
	if err != nil {
		ctx.Fatal(err, "create renderer")
	}
	defer vkRenderer.Destroy()

	timeService := core.NewTime(configuration.Time)
	defer timeService.Stop()
	report := time.NewTicker(time.Second)
	defer report.Stop()

	var reported renderer.Stats
EventLoop:
	for {
		select {
		case <-timeService.FpsTicker().C:
			if err := vkRenderer.DrawFrame(); err != nil {
				logger.WithError(err).Error("draw frame")
			}
		case <-report.C:
			stats := vkRenderer.Stats()
			logger.WithFields(log.Fields{
				"fps":     stats.Presented - reported.Presented,
				"skipped": stats.Skipped - reported.Skipped,
				"cgo":     runtime.NumCgoCall(),
			}).Debug("frame rate")
			reported = stats
		case <-timeService.EventTicker().C:
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						break EventLoop
					}
				case *sdl.WindowEvent:
					switch et.Event {
					case sdl.WINDOWEVENT_SIZE_CHANGED:
						vkRenderer.NotifyResize(uint32(et.Data1), uint32(et.Data2))
					case sdl.WINDOWEVENT_MINIMIZED:
						vkRenderer.NotifyResize(0, 0)
					case sdl.WINDOWEVENT_RESTORED:
						w, h := window.VulkanGetDrawableSize()
						vkRenderer.NotifyResize(uint32(w), uint32(h))
					}
				case *sdl.QuitEvent:
					break EventLoop
				}
			}
		}
	}

	if modelRef.Valid() {
		reg.Models.Release(modelRef)
	}
	if textureRef.Valid() {
		reg.Textures.Release(textureRef)
	}

	stats := vkRenderer.Stats()
	logger.WithFields(log.Fields{
		"frames":    stats.Frames,
		"presented": stats.Presented,
		"rebuilds":  stats.Rebuilds,
		"elapsed":   timeService.Elapsed().String(),
	}).Info("exiting")

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			panic(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			panic(err)
		}
	}
}
