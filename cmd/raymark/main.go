// Command raymark places a marker where a screen pointer ray hits the
// configured scene.
//
// Usage:
//
//	raymark init [-o raymark.toml]
//	raymark pick -config raymark.toml -x 400 -y 300 [-png out.png] [-upload]
//	raymark serve -config raymark.toml [-addr :8080]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/soypat/raymark"
	"github.com/soypat/raymark/config"
	"github.com/soypat/raymark/mesh"
	"github.com/soypat/raymark/preview"
	"github.com/soypat/raymark/publish"
	"github.com/soypat/raymark/scene"
	"github.com/soypat/raymark/server"
)

const usage = `usage: raymark <command> [flags]

commands:
  init   write the default configuration
  pick   place the marker under one pointer position
  serve  stream marker placements over websockets
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	var err error
	switch args[0] {
	case "init":
		err = runInit(args[1:], stdout, stderr)
	case "pick":
		err = runPick(ctx, args[1:], stdout, stderr)
	case "serve":
		err = runServe(ctx, args[1:], stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "raymark: unknown command %q\n%s", args[0], usage)
		return 2
	}
	switch {
	case errors.Is(err, flag.ErrHelp):
		return 0
	case err != nil:
		fmt.Fprintln(stderr, "raymark:", err)
		return 1
	}
	return 0
}

// common holds the flags shared by pick and serve.
type common struct {
	config    string
	vv, v, q  bool
	logOutput io.Writer
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "configuration file, defaults only when empty")
	fs.BoolVar(&c.vv, "vv", false, "debug logging")
	fs.BoolVar(&c.v, "v", false, "verbose logging")
	fs.BoolVar(&c.q, "q", false, "only log errors")
}

func (c *common) logger() *slog.Logger {
	return newLogger(c.logOutput, levelFromFlags(c.vv, c.v, c.q))
}

func runInit(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("o", "", "output file, stdout when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return config.Default().WriteTOML(stdout)
	}
	var buf bytes.Buffer
	if err := config.Default().WriteTOML(&buf); err != nil {
		return err
	}
	return os.WriteFile(*out, buf.Bytes(), 0o644)
}

func runPick(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("pick", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := common{logOutput: stderr}
	c.register(fs)
	x := fs.Float64("x", 0, "pointer x in pixels from the left")
	y := fs.Float64("y", 0, "pointer y in pixels from the top")
	pngOut := fs.String("png", "", "write a preview PNG to this file")
	upload := fs.Bool("upload", false, "upload the preview to the configured bucket")
	if err := fs.Parse(args); err != nil {
		return err
	}
	log := c.logger()
	cfg, err := config.Load(c.config)
	if err != nil {
		return err
	}
	sc := scene.New()
	defer sc.Close()
	if err := sc.Load(cfg.Targets, cfg.Dir()); err != nil {
		return err
	}
	log.Debug("scene loaded", "targets", sc.Names())

	vp := cfg.Viewport.Build()
	cam, err := cfg.Camera.Build(vp)
	if err != nil {
		return err
	}
	var (
		reply server.Reply
		img   bytes.Buffer
	)
	err = sc.View(func(names []string, meshes []*mesh.Mesh) error {
		targets := make([]raymark.Surface, len(meshes))
		for i, m := range meshes {
			targets[i] = m
		}
		pk, err := raymark.NewPicker(cam, vp, cfg.Marker.Pick(), targets...)
		if err != nil {
			return err
		}
		start := time.Now()
		pk.PointerMove(*x, *y)
		log.Info("picked", "x", *x, "y", *y, "targets", len(pk.Targets()), "state", pk.Marker().State(), "elapsed", time.Since(start))
		reply = server.ReplyFor(pk, names, nil)
		if *pngOut == "" && !*upload {
			return nil
		}
		return preview.Render(&img, server.PreviewOptions(cfg), cam, meshes, pk.Marker())
	})
	if err != nil {
		return err
	}

	if *pngOut != "" {
		if err := os.WriteFile(*pngOut, img.Bytes(), 0o644); err != nil {
			return err
		}
		log.Info("wrote preview", "path", *pngOut)
	}
	if *upload {
		pub, err := publish.New(cfg.Publish, log)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("pick-%d.png", time.Now().UnixNano())
		if *pngOut != "" {
			name = filepath.Base(*pngOut)
		}
		if _, err := pub.PNG(ctx, name, img.Bytes()); err != nil {
			return err
		}
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(reply)
}

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := common{logOutput: stderr}
	c.register(fs)
	addr := fs.String("addr", "", "listen address, overrides the configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	log := c.logger()
	cfg, err := config.Load(c.config)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	sc := scene.New()
	defer sc.Close()
	if err := sc.Load(cfg.Targets, cfg.Dir()); err != nil {
		return err
	}
	srv := server.New(sc, cfg, log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if c.config != "" {
		go func() {
			err := config.Watch(ctx, c.config, func(next *config.Config, err error) {
				if err != nil {
					log.Error("configuration reload", "err", err)
					return
				}
				if err := sc.Load(next.Targets, next.Dir()); err != nil {
					log.Error("reloading targets", "err", err)
					return
				}
				srv.SetConfig(next)
				log.Info("configuration reloaded", "targets", sc.Names(), "version", sc.Version())
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("configuration watcher stopped", "err", err)
			}
		}()
	}

	hs := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	log.Warn("serving pointer stream", "addr", cfg.Server.Addr, "targets", sc.Names())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
