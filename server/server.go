// Package server streams marker placements to browser front ends over
// websockets.
//
// Each connection owns its camera, picker and marker, configured from the
// server configuration at connect time. The scene is shared by all
// connections.
package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/soypat/raymark"
	"github.com/soypat/raymark/config"
	"github.com/soypat/raymark/mesh"
	"github.com/soypat/raymark/preview"
	"github.com/soypat/raymark/scene"
	"gonum.org/v1/gonum/spatial/r3"
)

// Client message types.
const (
	MsgResize      = "resize"
	MsgPointerMove = "pointermove"
	MsgPointerDown = "pointerdown"
	MsgPointerUp   = "pointerup"
	MsgWheel       = "wheel"
)

const maxMessageSize = 4096

// Message is sent by clients.
type Message struct {
	Type   string  `json:"type"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	DeltaY float64 `json:"deltaY,omitempty"`
}

// Reply is sent after every client message and describes the marker.
type Reply struct {
	Visible  bool       `json:"visible"`
	Position [3]float64 `json:"position"`
	Normal   [3]float64 `json:"normal"`
	Distance float64    `json:"distance"`
	// Target names the scene slot hit, empty on a miss.
	Target string `json:"target,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Server is an http.Handler serving /ws, /healthz and /snapshot.png.
type Server struct {
	sc       *scene.Scene
	log      *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu  sync.RWMutex
	cfg *config.Config

	conns atomic.Int64
	hits  atomic.Uint64
}

// New returns a server picking against sc. cfg supplies the camera,
// viewport and marker settings of new connections.
func New(sc *scene.Scene, cfg *config.Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		sc:  sc,
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/snapshot.png", s.handleSnapshot)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// SetConfig changes the configuration used by connections opened afterwards.
func (s *Server) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Connections returns the number of open websocket connections.
func (s *Server) Connections() int64 { return s.conns.Load() }

// Hits returns how many pointer moves of closed connections placed the
// marker on a surface.
func (s *Server) Hits() uint64 { return s.hits.Load() }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"targets":     s.sc.Names(),
		"version":     s.sc.Version(),
		"connections": s.Connections(),
		"hits":        s.Hits(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxMessageSize)

	sess, err := s.newSession(s.Config())
	if err != nil {
		s.log.Error("creating pick session", "err", err)
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}
	n := s.conns.Add(1)
	defer s.conns.Add(-1)
	log := s.log.With("remote", r.RemoteAddr)
	log.Info("pointer stream opened", "connections", n)

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("pointer stream read", "err", err)
			}
			break
		}
		reply := sess.handle(msg)
		if reply.Error != "" {
			log.Debug("bad pointer message", "type", msg.Type, "err", reply.Error)
		}
		if err := ws.WriteJSON(reply); err != nil {
			log.Warn("pointer stream write", "err", err)
			break
		}
	}
	hits := sess.picker.Marker().Hits()
	s.hits.Add(hits)
	log.Info("pointer stream closed", "hits", hits)
}

// session is the per connection pick state.
type session struct {
	sc      *scene.Scene
	picker  *raymark.Picker
	steer   raymark.LookSteering
	persp   *raymark.PerspectiveCamera
	version uint64
	names   []string
}

func (s *Server) newSession(cfg *config.Config) (*session, error) {
	vp := cfg.Viewport.Build()
	cam, err := cfg.Camera.Build(vp)
	if err != nil {
		return nil, err
	}
	pk, err := raymark.NewPicker(cam, vp, cfg.Marker.Pick())
	if err != nil {
		return nil, err
	}
	sess := &session{sc: s.sc, picker: pk}
	if persp, ok := cam.(*raymark.PerspectiveCamera); ok {
		sess.persp = persp
		sess.steer.LookAlong(persp.Forward())
	}
	sess.refresh()
	return sess, nil
}

// refresh rebuilds the picker targets after the scene slots changed.
func (sess *session) refresh() {
	v := sess.sc.Version()
	if sess.names != nil && v == sess.version {
		return
	}
	names, surfaces := sess.sc.Surfaces()
	sess.picker.SetTargets(surfaces...)
	sess.names, sess.version = names, v
}

func (sess *session) handle(msg Message) Reply {
	switch msg.Type {
	case MsgResize:
		if err := sess.picker.Resize(raymark.Viewport{Width: msg.Width, Height: msg.Height}); err != nil {
			return sess.reply(err)
		}
	case MsgPointerDown:
		if sess.persp != nil {
			sess.steer.PointerDown(msg.X, msg.Y)
		}
	case MsgPointerUp:
		sess.steer.PointerUp()
	case MsgWheel:
		if sess.persp == nil {
			return sess.reply(fmt.Errorf("zoom needs a perspective camera"))
		}
		if err := sess.steer.Zoom(sess.persp, msg.DeltaY); err != nil {
			return sess.reply(err)
		}
	case MsgPointerMove:
		if sess.steer.Dragging() {
			sess.steer.PointerMove(msg.X, msg.Y)
			if err := sess.steer.Apply(sess.persp); err != nil {
				return sess.reply(err)
			}
		}
		sess.refresh()
		sess.picker.PointerMove(msg.X, msg.Y)
	default:
		return sess.reply(fmt.Errorf("unknown message type %q", msg.Type))
	}
	return sess.reply(nil)
}

func (sess *session) reply(err error) Reply {
	return ReplyFor(sess.picker, sess.names, err)
}

// ReplyFor describes the marker of pk. names are the slot names of the
// picker targets in order.
func ReplyFor(pk *raymark.Picker, names []string, err error) Reply {
	mk := pk.Marker()
	rp := Reply{
		Visible:  mk.Visible(),
		Position: array(mk.Position()),
		Normal:   array(mk.Normal()),
	}
	if hit, idx := pk.Last(); idx >= 0 && mk.Visible() {
		rp.Distance = hit.Distance
		if idx < len(names) {
			rp.Target = names[idx]
		}
	}
	if err != nil {
		rp.Error = err.Error()
	}
	return rp
}

// handleSnapshot renders the configured view as PNG. With x and y query
// parameters the marker is placed under that pixel first.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config()
	vp := cfg.Viewport.Build()
	cam, err := cfg.Camera.Build(vp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
	y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
	place := errX == nil && errY == nil

	var buf bytes.Buffer
	err = s.sc.View(func(names []string, meshes []*mesh.Mesh) error {
		targets := make([]raymark.Surface, len(meshes))
		for i, m := range meshes {
			targets[i] = m
		}
		pk, err := raymark.NewPicker(cam, vp, cfg.Marker.Pick(), targets...)
		if err != nil {
			return err
		}
		if place {
			pk.PointerMove(x, y)
			if _, idx := pk.Last(); idx >= 0 {
				w.Header().Set("X-Raymark-Target", names[idx])
			}
		}
		return preview.Render(&buf, PreviewOptions(cfg), pk.Camera(), meshes, pk.Marker())
	})
	if err != nil {
		s.log.Error("rendering snapshot", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

// PreviewOptions returns the preview settings of cfg.
func PreviewOptions(cfg *config.Config) preview.Options {
	return preview.Options{
		Width:        cfg.Preview.Width,
		Height:       cfg.Preview.Height,
		Supersample:  cfg.Preview.Supersample,
		Background:   cfg.Preview.Background,
		Color:        cfg.Preview.Color,
		MarkerColor:  cfg.Preview.MarkerColor,
		MarkerRadius: cfg.Marker.Radius,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func array(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }
