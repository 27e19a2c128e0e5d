/*
vkstage plans glTF assets into upload-ready buffers and stages them onto a
Vulkan device.

	vkstage [flags] plan <asset.gltf>...
	vkstage [flags] upload <asset.gltf>...
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spaghettifunk/vkstage/engine"
	"github.com/spaghettifunk/vkstage/engine/core"
)

// readProgress draws one byte progress bar per staging fill.
type readProgress struct {
	bar *progressbar.ProgressBar
}

func (p *readProgress) update(done, total int) {
	if p.bar == nil {
		p.bar = progressbar.DefaultBytes(int64(total), "reading")
	}
	p.bar.Set(done)
	if done >= total {
		p.bar.Finish()
		p.bar = nil
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] plan|upload <asset>...\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "TOML or YAML configuration file")
	watch := flag.Bool("watch", false, "keep running and process assets again when they change")
	assetsDir := flag.String("assets", "", "directory to watch, overrides the configuration")
	validation := flag.Bool("validation", false, "enable the Vulkan validation layer")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	command, paths := flag.Arg(0), flag.Args()[1:]
	if command != "plan" && command != "upload" {
		usage()
		os.Exit(2)
	}
	if len(paths) == 0 && !*watch {
		usage()
		os.Exit(2)
	}

	cfg := core.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = core.LoadConfig(*configPath); err != nil {
			core.LogFatal("%s", err)
			os.Exit(1)
		}
	}
	if *watch {
		cfg.Assets.Watch = true
	}
	if *assetsDir != "" {
		cfg.Assets.Dir = *assetsDir
	}
	if *validation {
		cfg.Device.Validation = true
	}
	if err := core.ConfigureLogging(cfg.Logging); err != nil {
		core.LogFatal("%s", err)
		os.Exit(1)
	}

	progress := &readProgress{}
	e := engine.New(cfg, engine.Options{
		Headless: command == "plan",
		Progress: progress.update,
	})
	if err := e.Initialize(); err != nil {
		core.LogFatal("%s", err)
		e.Shutdown()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		cancel()
	}()

	process := func(path string) error {
		if command == "plan" {
			s, err := e.Plan(path)
			if err != nil {
				return err
			}
			printSummary(path, s)
			return nil
		}
		if _, err := e.Upload(ctx, path); err != nil {
			return err
		}
		printMetrics(path, e.Metrics())
		return nil
	}

	status := 0
	for _, path := range paths {
		if err := process(path); err != nil {
			core.LogError("%s: %s", path, err)
			status = 1
		}
	}
	if *watch {
		if err := e.Run(ctx, process); err != nil {
			core.LogError("%s", err)
			status = 1
		}
	}

	if err := e.Shutdown(); err != nil {
		core.LogError("%s", err)
		status = 1
	}
	os.Exit(status)
}

func printSummary(path string, s engine.Summary) {
	fmt.Printf("%s\n", path)
	fmt.Printf("  meshes:             %d\n", s.Meshes)
	fmt.Printf("  draw calls:         %d (%d with generated tangents)\n", s.DrawCalls, s.GeneratedTangent)
	fmt.Printf("  unique attributes:  %d\n", s.Attributes)
	fmt.Printf("  unique bindings:    %d\n", s.Bindings)
	fmt.Printf("  pipelines:          %d\n", s.Pipelines)
	fmt.Printf("  geometry bytes:     %d\n", s.GeometryBytes)
	fmt.Printf("  uniform bytes:      %d\n", s.UniformBytes)
	fmt.Printf("  texture layers:     %d\n", s.Images)
}

func printMetrics(path string, m *core.UploadMetrics) {
	fmt.Printf("%s\n", path)
	fmt.Printf("  bytes staged:       %d\n", m.BytesStaged)
	fmt.Printf("  transfers:          %d submitted, %d reclaimed\n", m.TransfersSubmitted, m.TransfersReclaimed)
	fmt.Printf("  pending high water: %d\n", m.PendingHighWater)
	fmt.Printf("  average latency:    %s\n", m.AvgLatency)
}
