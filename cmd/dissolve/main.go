package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"os"
	"os/signal"
	"runtime"

	"github.com/gekko3d/dissolve"
	"github.com/gekko3d/dissolve/render/frame"
	"github.com/gekko3d/dissolve/render/gpu"
	"github.com/gekko3d/dissolve/render/graph"
	"github.com/gekko3d/dissolve/render/soft"

	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	headless := flag.Bool("headless", false, "render on the CPU device without a window")
	frames := flag.Int("frames", 0, "stop after this many frames (0 runs until closed)")
	out := flag.String("out", "", "headless: write the last frame to this PNG")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	cfg := dissolve.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = dissolve.LoadConfig(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	if *debug {
		cfg.Debug = true
	}
	log := dissolve.NewDefaultLogger("dissolve", cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	if *headless {
		err = runHeadless(ctx, cfg, log, *frames, *out)
	} else {
		err = runWindowed(ctx, cfg, log, *frames)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func runHeadless(ctx context.Context, cfg dissolve.Config, log dissolve.Logger, frames int, out string) error {
	if frames <= 0 {
		frames = 60
	}
	dev := soft.New(graph.ScenePlan(), soft.Options{
		Extent:         cfg.Extent(),
		FramesInFlight: cfg.FramesInFlight,
		Palette:        cfg.PaletteOrDefault(),
		Logger:         log,
	})
	defer dev.Close()

	app := dissolve.NewGame(cfg, dev, nil, log)
	if err := run(ctx, app, frames); err != nil {
		return err
	}
	if out == "" {
		return nil
	}
	img := dev.Snapshot()
	if img == nil {
		return errors.New("no frame was presented")
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", out, err)
	}
	log.Infof("wrote %s", out)
	return f.Close()
}

func runWindowed(ctx context.Context, cfg dissolve.Config, log dissolve.Logger, frames int) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw init: %w", err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	window, err := glfw.CreateWindow(int(cfg.Window.Width), int(cfg.Window.Height), cfg.Window.Title, nil, nil)
	if err != nil {
		return fmt.Errorf("create window: %w", err)
	}
	defer window.Destroy()

	fbw, fbh := window.GetFramebufferSize()
	extent := cfg.Extent()
	extent.Width, extent.Height = uint32(fbw), uint32(fbh)
	mgr, err := gpu.New(wgpuglfw.GetSurfaceDescriptor(window), extent, gpu.Options{
		FramesInFlight: cfg.FramesInFlight,
		Palette:        cfg.PaletteOrDefault(),
		Validate:       cfg.Debug,
		Logger:         log,
	})
	if err != nil {
		return err
	}
	defer mgr.Release()

	app := dissolve.NewGame(cfg, mgr, pollWindow(window), log)
	if r, ok := dissolve.Resource[dissolve.Renderer](app); ok {
		window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
			r.RequestResize(extentOf(width, height))
		})
	}
	return run(ctx, app, frames)
}

func run(ctx context.Context, app *dissolve.App, frames int) error {
	var err error
	if frames > 0 {
		for i := 0; i < frames && !app.Done() && err == nil; i++ {
			if err = ctx.Err(); err == nil {
				err = app.Step()
			}
		}
	} else {
		err = app.Run(ctx)
	}
	if r, ok := dissolve.Resource[dissolve.Renderer](app); ok {
		if werr := r.Close(context.Background()); werr != nil && err == nil {
			err = werr
		}
		app.Logger().Infof("frames: %d presented, %d resized, %d failed",
			r.Results[frame.Success], r.Results[frame.NeedsResize], r.Results[frame.Fatal])
	}
	return err
}
