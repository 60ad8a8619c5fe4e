package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"fluidsim/core"
	"fluidsim/physics"
	"fluidsim/simulation"
)

// frameMessage is what clients receive for every published frame.
// Velocity holds two components per cell in 2D and three in 3D.
type frameMessage struct {
	Type     string        `json:"type"`
	Step     uint64        `json:"step"`
	Dims     [3]int        `json:"dims"`
	Density  []float32     `json:"density"`
	Velocity []float32     `json:"velocity"`
	Stats    physics.Stats `json:"stats"`
}

// controlMessage is what clients may send; absent fields are left alone
type controlMessage struct {
	Paused       *bool `json:"paused"`
	StepsPerTick *int  `json:"stepsPerTick"`
	Reset        bool  `json:"reset"`
}

func newFrameMessage(f *simulation.Frame) frameMessage {
	return frameMessage{
		Type:     "frame",
		Step:     f.Step,
		Dims:     [3]int{f.Dims.X, f.Dims.Y, f.Dims.Z},
		Density:  f.Density(),
		Velocity: f.Velocity(),
		Stats:    f.Stats,
	}
}

const writeTimeout = 5 * time.Second

type server struct {
	runner   *simulation.Runner
	upgrader websocket.Upgrader
}

func newServer(runner *simulation.Runner) *server {
	return &server{
		runner: runner,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // viewers are served from anywhere during development
			},
		},
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

// serve listens on addr until ctx is done
func (s *server) serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.routes()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	core.Logger().Info("server listening", "addr", addr)

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	f := s.runner.Latest()
	if f == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Step   uint64        `json:"step"`
		Paused bool          `json:"paused"`
		Stats  physics.Stats `json:"stats"`
	}{f.Step, s.runner.Paused(), f.Stats})
}

func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		core.Logger().Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()
	core.Logger().Info("client connected", "remote", r.RemoteAddr)

	frames, cancel := s.runner.Subscribe()
	defer cancel()

	// the reader owns control messages; the writer below owns the socket
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg controlMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			s.apply(msg)
		}
	}()

	if f := s.runner.Latest(); f != nil {
		if err := s.send(conn, f); err != nil {
			core.Logger().Warn("dropping client", "remote", r.RemoteAddr, "err", err)
			return
		}
	}
	for {
		select {
		case <-closed:
			core.Logger().Info("client disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := s.send(conn, f); err != nil {
				core.Logger().Warn("dropping client", "remote", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}

func (s *server) send(conn *websocket.Conn, f *simulation.Frame) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(newFrameMessage(f))
}

func (s *server) apply(msg controlMessage) {
	if msg.Paused != nil {
		s.runner.Pause(*msg.Paused)
	}
	if msg.StepsPerTick != nil {
		s.runner.SetStepsPerTick(*msg.StepsPerTick)
	}
	if msg.Reset {
		s.runner.Reset()
	}
}
