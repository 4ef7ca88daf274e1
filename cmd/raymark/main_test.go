package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soypat/raymark/config"
	"github.com/soypat/raymark/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pickConfig = `
[viewport]
width = 100
height = 100

[camera]
eye = [0, 10, 0]
target = [0, 0, 0]

[[target]]
name = "ground"
primitive = "plane"
width = 4
depth = 4

[preview]
width = 32
height = 24
supersample = 1
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raymark.toml")
	require.NoError(t, os.WriteFile(path, []byte(pickConfig), 0o644))
	return path
}

func TestLevelFromFlags(t *testing.T) {
	for _, test := range []struct {
		vv, v, q bool
		want     slog.Level
	}{
		{want: slog.LevelWarn},
		{vv: true, want: slog.LevelDebug},
		{v: true, want: slog.LevelInfo},
		{q: true, want: slog.LevelError},
		{vv: true, q: true, want: slog.LevelDebug},
		{v: true, q: true, want: slog.LevelInfo},
	} {
		assert.Equal(t, test.want, levelFromFlags(test.vv, test.v, test.q), "vv=%v v=%v q=%v", test.vv, test.v, test.q)
	}
}

func TestInit(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(context.Background(), []string{"init"}, &stdout, &stderr), stderr.String())
	cfg, err := config.Parse(&stdout)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Targets, cfg.Targets)

	out := filepath.Join(t.TempDir(), "raymark.toml")
	require.Equal(t, 0, run(context.Background(), []string{"init", "-o", out}, &stdout, &stderr))
	_, err = config.Load(out)
	assert.NoError(t, err)
}

func TestPick(t *testing.T) {
	path := writeConfig(t)
	pngOut := filepath.Join(t.TempDir(), "pick.png")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"pick", "-config", path, "-x", "61", "-y", "43", "-png", pngOut}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var rp server.Reply
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rp))
	assert.True(t, rp.Visible)
	assert.Equal(t, "ground", rp.Target)
	assert.InDelta(t, 0.01, rp.Position[1], 1e-9)

	fp, err := os.Open(pngOut)
	require.NoError(t, err)
	defer fp.Close()
	img, err := png.Decode(fp)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
}

func TestPickMiss(t *testing.T) {
	path := writeConfig(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"pick", "-config", path, "-x", "1", "-y", "1"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	var rp server.Reply
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rp))
	assert.False(t, rp.Visible)
	assert.Empty(t, rp.Target)
}

func TestPickUploadWithoutBucket(t *testing.T) {
	path := writeConfig(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"pick", "-config", path, "-upload"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "no bucket")
}

func TestServeStopsOnCancel(t *testing.T) {
	path := writeConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	var stdout, stderr bytes.Buffer
	go func() {
		done <- run(ctx, []string{"serve", "-config", path, "-addr", "127.0.0.1:0", "-q"}, &stdout, &stderr)
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), nil, &stdout, &stderr))
	assert.Equal(t, 2, run(context.Background(), []string{"frobnicate"}, &stdout, &stderr))
	assert.True(t, strings.Contains(stderr.String(), "unknown command"))
	assert.Equal(t, 0, run(context.Background(), []string{"pick", "-h"}, &stdout, &stderr))
}
