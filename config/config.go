// Package config loads raymark settings from TOML files and the
// environment.
//
// Values are layered: defaults, then the TOML file, then a .env file next
// to it, then RAYMARK_* environment variables. Secrets are only read from
// the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/soypat/raymark"
	"github.com/soypat/raymark/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config is the complete raymark configuration.
type Config struct {
	Viewport Viewport `toml:"viewport"`
	Camera   Camera   `toml:"camera"`
	Marker   Marker   `toml:"marker"`
	Targets  []Target `toml:"target"`
	Preview  Preview  `toml:"preview"`
	Publish  Publish  `toml:"publish"`
	Server   Server   `toml:"server"`

	// dir is the directory of the loaded file.
	dir string
}

// Viewport is the pointer area in pixels.
type Viewport struct {
	Width  float64 `toml:"width"`
	Height float64 `toml:"height"`
}

// Camera kinds.
const (
	Perspective  = "perspective"
	Orthographic = "orthographic"
)

// Camera places and projects the view rays are cast from.
type Camera struct {
	Kind string `toml:"kind"`
	// FovY is the vertical field of view in degrees of a perspective camera.
	FovY float64 `toml:"fovy"`
	// Height is the vertical extent of an orthographic camera.
	Height float64    `toml:"height"`
	Near   float64    `toml:"near"`
	Far    float64    `toml:"far"`
	Eye    [3]float64 `toml:"eye"`
	Target [3]float64 `toml:"target"`
	Up     [3]float64 `toml:"up"`
}

// Marker configures marker placement and drawing.
type Marker struct {
	Offset      float64 `toml:"offset"`
	MaxDistance float64 `toml:"max_distance"`
	// Radius of the disc drawn in previews.
	Radius float64 `toml:"radius"`
}

// Target is a mesh rays are cast against, either a gallery primitive or
// a mesh file.
type Target struct {
	Name      string `toml:"name"`
	Primitive string `toml:"primitive,omitempty"`
	// Path to a mesh file, relative to the configuration file.
	Path string `toml:"path,omitempty"`

	Width    float64 `toml:"width,omitempty"`
	Height   float64 `toml:"height,omitempty"`
	Depth    float64 `toml:"depth,omitempty"`
	Radius   float64 `toml:"radius,omitempty"`
	Tube     float64 `toml:"tube,omitempty"`
	Segments int     `toml:"segments,omitempty"`
	Rings    int     `toml:"rings,omitempty"`

	Position [3]float64 `toml:"position"`
	// Scale of zero is read as 1.
	Scale [3]float64 `toml:"scale"`
	// Rotation holds Euler angles about X, Y and Z in degrees.
	Rotation [3]float64 `toml:"rotation"`
	Side     string     `toml:"side,omitempty"`
}

// Preview configures rendered snapshots.
type Preview struct {
	Width       int    `toml:"width"`
	Height      int    `toml:"height"`
	Supersample int    `toml:"supersample"`
	Background  string `toml:"background"`
	Color       string `toml:"color"`
	MarkerColor string `toml:"marker_color"`
}

// Publish configures snapshot uploads to S3 compatible storage.
type Publish struct {
	Endpoint string `toml:"endpoint"`
	Region   string `toml:"region"`
	Bucket   string `toml:"bucket"`
	Prefix   string `toml:"prefix"`
	Timeout  string `toml:"timeout"`

	AccessKey string `toml:"-"`
	SecretKey string `toml:"-"`
}

// Server configures the pointer stream server.
type Server struct {
	Addr string `toml:"addr"`
}

// Default returns a configuration with a camera above a 20 by 20 ground plane.
func Default() *Config {
	return &Config{
		Viewport: Viewport{Width: 800, Height: 600},
		Camera: Camera{
			Kind:   Perspective,
			FovY:   60,
			Height: 20,
			Near:   0.1,
			Far:    1000,
			Eye:    [3]float64{0, 10, 10},
			Up:     [3]float64{0, 1, 0},
		},
		Marker: Marker{Offset: 0.01, Radius: 0.25},
		Targets: []Target{{
			Name:      "ground",
			Primitive: mesh.PrimPlane,
			Width:     20,
			Depth:     20,
		}},
		Preview: Preview{
			Width:       800,
			Height:      600,
			Supersample: 2,
			Background:  "#FFF8E3",
			Color:       "#468966",
			MarkerColor: "#FF4136",
		},
		Publish: Publish{Prefix: "raymark/", Timeout: "30s"},
		Server:  Server{Addr: ":8080"},
		dir:     ".",
	}
}

// Load reads the TOML file at path over the defaults and applies
// environment overrides. An empty path loads the defaults only.
// Unknown keys in the file are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.decode(b); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		cfg.dir = filepath.Dir(path)
	}
	// A missing .env file is fine.
	_ = godotenv.Load(filepath.Join(cfg.dir, ".env"))
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML over the defaults without reading the environment.
func Parse(r io.Reader) (*Config, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := cfg.decode(b); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// decode reads b over c. Targets declared in the file replace those of c,
// a file without targets keeps them.
func (c *Config) decode(b []byte) error {
	prev := c.Targets
	c.Targets = nil
	dec := toml.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return err
	}
	if len(c.Targets) == 0 {
		c.Targets = prev
	}
	return nil
}

// WriteTOML encodes c as TOML.
func (c *Config) WriteTOML(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(c)
}

// Dir returns the directory relative target paths are resolved against.
func (c *Config) Dir() string { return c.dir }

// env variable names.
const (
	EnvAddr         = "RAYMARK_ADDR"
	EnvMarkerOffset = "RAYMARK_MARKER_OFFSET"
	EnvS3Endpoint   = "RAYMARK_S3_ENDPOINT"
	EnvS3Region     = "RAYMARK_S3_REGION"
	EnvS3Bucket     = "RAYMARK_S3_BUCKET"
	EnvS3Prefix     = "RAYMARK_S3_PREFIX"
	EnvS3AccessKey  = "RAYMARK_S3_ACCESS_KEY"
	EnvS3SecretKey  = "RAYMARK_S3_SECRET_KEY"
)

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for name, dst := range map[string]*string{
		EnvAddr:        &c.Server.Addr,
		EnvS3Endpoint:  &c.Publish.Endpoint,
		EnvS3Region:    &c.Publish.Region,
		EnvS3Bucket:    &c.Publish.Bucket,
		EnvS3Prefix:    &c.Publish.Prefix,
		EnvS3AccessKey: &c.Publish.AccessKey,
		EnvS3SecretKey: &c.Publish.SecretKey,
	} {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	if v, ok := lookup(EnvMarkerOffset); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMarkerOffset, err)
		}
		c.Marker.Offset = f
	}
	return nil
}

// Validate checks every section and returns all problems found.
func (c *Config) Validate() error {
	var errs []error
	if !c.Viewport.Build().Valid() {
		errs = append(errs, fmt.Errorf("viewport: %w", raymark.ErrInvalidViewport))
	}
	if _, err := c.Camera.Build(c.Viewport.Build()); err != nil {
		errs = append(errs, fmt.Errorf("camera: %w", err))
	}
	if !finite(c.Marker.Offset) || c.Marker.Offset < 0 {
		errs = append(errs, fmt.Errorf("marker: offset %g must be non-negative", c.Marker.Offset))
	}
	if !finite(c.Marker.MaxDistance) {
		errs = append(errs, errors.New("marker: non-finite max_distance"))
	}
	names := make(map[string]bool)
	for i, t := range c.Targets {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("target %d: missing name", i))
		} else if names[t.Name] {
			errs = append(errs, fmt.Errorf("target %d: duplicate name %q", i, t.Name))
		}
		names[t.Name] = true
		if (t.Primitive == "") == (t.Path == "") {
			errs = append(errs, fmt.Errorf("target %q: need exactly one of primitive or path", t.Name))
		}
		if _, err := mesh.ParseSide(t.Side); err != nil {
			errs = append(errs, fmt.Errorf("target %q: %w", t.Name, err))
		}
	}
	if c.Preview.Width <= 0 || c.Preview.Height <= 0 || c.Preview.Supersample < 1 {
		errs = append(errs, fmt.Errorf("preview: bad size %dx%d supersample %d", c.Preview.Width, c.Preview.Height, c.Preview.Supersample))
	}
	if _, err := c.Publish.TimeoutDuration(); err != nil {
		errs = append(errs, fmt.Errorf("publish: %w", err))
	}
	return errors.Join(errs...)
}

// Build returns the viewport in raymark form.
func (v Viewport) Build() raymark.Viewport {
	return raymark.Viewport{Width: v.Width, Height: v.Height}
}

// Build returns the configured camera with the aspect ratio of vp.
func (c Camera) Build(vp raymark.Viewport) (raymark.Camera, error) {
	aspect := 1.0
	if vp.Valid() {
		aspect = vp.Aspect()
	}
	eye, target, up := vec(c.Eye), vec(c.Target), vec(c.Up)
	switch c.Kind {
	case Perspective, "":
		return raymark.NewPerspectiveCamera(c.FovY, aspect, c.Near, c.Far, eye, target, up)
	case Orthographic:
		return raymark.NewOrthographicCamera(c.Height, aspect, c.Near, c.Far, eye, target, up)
	}
	return nil, fmt.Errorf("unknown camera kind %q", c.Kind)
}

// Pick returns the marker placement settings.
func (m Marker) Pick() *raymark.Config {
	return &raymark.Config{MarkerOffset: m.Offset, MaxDistance: m.MaxDistance}
}

// Build creates the target mesh. Relative paths resolve against baseDir.
func (t Target) Build(baseDir string) (*mesh.Mesh, error) {
	var (
		m   *mesh.Mesh
		err error
	)
	if t.Path != "" {
		path := t.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		m, err = mesh.Load(path)
	} else {
		m, err = mesh.Primitive(t.Primitive, mesh.Params{
			Width:    t.Width,
			Height:   t.Height,
			Depth:    t.Depth,
			Radius:   t.Radius,
			Tube:     t.Tube,
			Segments: t.Segments,
			Rings:    t.Rings,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", t.Name, err)
	}
	side, err := mesh.ParseSide(t.Side)
	if err != nil {
		m.Release()
		return nil, fmt.Errorf("target %q: %w", t.Name, err)
	}
	m.SetSide(side)
	scale := vec(t.Scale)
	if scale == (r3.Vec{}) {
		scale = r3.Vec{X: 1, Y: 1, Z: 1}
	}
	rot := mesh.Euler(deg(t.Rotation[0]), deg(t.Rotation[1]), deg(t.Rotation[2]))
	if err := m.SetTransform(vec(t.Position), scale, rot); err != nil {
		m.Release()
		return nil, fmt.Errorf("target %q: %w", t.Name, err)
	}
	return m, nil
}

// TimeoutDuration parses the upload timeout. Empty means no timeout.
func (p Publish) TimeoutDuration() (time.Duration, error) {
	if p.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.Timeout)
	if err == nil && d < 0 {
		err = fmt.Errorf("negative timeout %s", p.Timeout)
	}
	return d, err
}

// Enabled reports whether a bucket is configured.
func (p Publish) Enabled() bool { return p.Bucket != "" }

func vec(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

func deg(a float64) float64 { return a * math.Pi / 180 }

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
