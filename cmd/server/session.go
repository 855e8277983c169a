package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/text/language"

	mandel "github.com/marben/ingemi"
	"github.com/marben/ingemi/present"
	"github.com/marben/ingemi/progressive"
	"github.com/marben/ingemi/search"
)

// request is a viewer command as sent by the page, e.g.
// {"op":"pan","dx":-12,"dy":4} or {"op":"landmark","name":"spiral"}.
type request struct {
	Op     string  `json:"op"`
	DX     float64 `json:"dx,omitempty"`
	DY     float64 `json:"dy,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Factor float64 `json:"factor,omitempty"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	Name   string  `json:"name,omitempty"`

	Viewport *mandel.Viewport `json:"viewport,omitempty"`
}

// command translates r into a controller command.
func (r request) command() (progressive.Command, error) {
	switch r.Op {
	case "pan":
		return progressive.Pan{DX: r.DX, DY: r.DY}, nil
	case "center":
		return progressive.Center{X: r.X, Y: r.Y}, nil
	case "zoom":
		return progressive.Zoom{Factor: r.Factor}, nil
	case "reset":
		return progressive.Reset{}, nil
	case "random":
		return progressive.Random{}, nil
	case "refresh":
		return progressive.Refresh{}, nil
	case "resolution":
		return progressive.SetResolution{SampleFactor: r.Factor}, nil
	case "resize":
		return progressive.Resize{Width: r.Width, Height: r.Height}, nil
	case "viewport":
		if r.Viewport == nil {
			return nil, errors.New("viewport: missing \"viewport\"")
		}
		return progressive.SetViewport{Viewport: *r.Viewport}, nil
	case "landmark":
		region, ok := mandel.Landmark(r.Name)
		if !ok {
			return nil, fmt.Errorf("unknown landmark %q", r.Name)
		}
		return progressive.SetViewport{Viewport: region.Viewport()}, nil
	}
	return nil, fmt.Errorf("unknown op %q", r.Op)
}

// reply is a JSON text message sent next to each binary PNG frame, or alone
// when a command or pass failed.
type reply struct {
	Type       string          `json:"type"`
	Line       string          `json:"line,omitempty"`
	Generation uint64          `json:"generation,omitempty"`
	Level      int             `json:"level"`
	Levels     int             `json:"levels,omitempty"`
	Final      bool            `json:"final,omitempty"`
	Viewport   mandel.Viewport `json:"viewport"`
	Search     *search.Stats   `json:"search,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// session couples one websocket connection to one controller.
type session struct {
	conn *websocket.Conn
	ctrl *progressive.Controller
	tag  language.Tag
}

func newSession(conn *websocket.Conn, cfg progressive.Config) (*session, error) {
	ctrl, err := progressive.New(cfg)
	if err != nil {
		return nil, err
	}
	return &session{conn: conn, ctrl: ctrl, tag: language.English}, nil
}

// serve renders the initial view and then relays commands in and frames out
// until the peer closes or ctx is done.
func (s *session) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- s.ctrl.Run(ctx) }()

	pushErr := make(chan error, 1)
	go func() {
		err := s.push(ctx)
		cancel()
		pushErr <- err
	}()

	err := s.receive(ctx)
	cancel()
	if perr := <-pushErr; err == nil {
		err = perr
	}
	<-runErr

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	s.conn.Close(websocket.StatusInternalError, "session failed")
	return err
}

// receive reads commands and hands them to the controller. Unknown or
// invalid commands are answered with an error reply; the session goes on.
func (s *session) receive(ctx context.Context) error {
	if err := s.ctrl.Do(ctx, progressive.Refresh{}); err != nil {
		return err
	}
	for {
		var req request
		if err := wsjson.Read(ctx, s.conn, &req); err != nil {
			return err
		}
		cmd, err := req.command()
		if err == nil {
			err = s.ctrl.Do(ctx, cmd)
			if err != nil && !errors.Is(err, mandel.ErrConfig) {
				return err
			}
		}
		if err != nil {
			if err := wsjson.Write(ctx, s.conn, reply{Type: "error", Error: err.Error()}); err != nil {
				return err
			}
		}
	}
}

// push forwards controller events: a PNG of the frame scaled to the client,
// then its status line.
func (s *session) push(ctx context.Context) error {
	var buf bytes.Buffer
	for ev := range s.ctrl.Events() {
		// ev.Status describes this frame; the controller may already be
		// rendering the next level.
		st := ev.Status
		rep := reply{
			Type:       "status",
			Line:       present.Status(s.tag, st),
			Generation: ev.Generation,
			Level:      ev.Level,
			Levels:     ev.Levels,
			Final:      ev.Final,
			Viewport:   ev.Viewport,
			Search:     ev.Search,
		}
		if ev.Err != nil {
			rep.Type = "error"
			rep.Error = ev.Err.Error()
			if err := wsjson.Write(ctx, s.conn, rep); err != nil {
				return err
			}
			continue
		}

		img, err := present.Fit(ev.Frame, st.Width, st.Height)
		if err != nil {
			return err
		}
		buf.Reset()
		if err := present.EncodePNG(&buf, img); err != nil {
			return err
		}
		if err := s.conn.Write(ctx, websocket.MessageBinary, buf.Bytes()); err != nil {
			return err
		}
		if err := wsjson.Write(ctx, s.conn, rep); err != nil {
			return err
		}
		if ev.Final {
			log.Printf("frame %d done in %s: %s", ev.Generation, ev.Elapsed, rep.Line)
		}
	}
	return nil
}
