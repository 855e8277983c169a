package main

import (
	"embed"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/marben/ingemi/progressive"
)

//go:embed static
var staticFiles embed.FS

// webServer creates a server serving the viewer page and the websocket
// endpoint. Every websocket connection gets its own controller built from cfg.
func webServer(addr string, cfg progressive.Config) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("listening on http://localhost%s", addr)
	return srv
}

func newMux(cfg progressive.Config) *http.ServeMux {
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		// the embedded tree is fixed at build time
		panic(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", websocketHandler(cfg))
	mux.Handle("/", http.FileServerFS(static))
	return mux
}

// websocketHandler upgrades the connection and serves one viewer session on
// it until either side goes away.
func websocketHandler(cfg progressive.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			log.Println(err)
			return
		}
		defer c.CloseNow()

		s, err := newSession(c, cfg)
		if err != nil {
			log.Printf("new session: %v", err)
			c.Close(websocket.StatusInternalError, "session setup failed")
			return
		}
		if err := s.serve(r.Context()); err != nil {
			log.Printf("session %s: %v", r.RemoteAddr, err)
		}
	}
}
