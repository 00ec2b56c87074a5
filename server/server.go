package main

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"arena-server/internal/room"
)

const qrSize = 256

var uuidPathRe = regexp.MustCompile(`^/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// roomURL is the share link for a room. The SPA route is the room id.
func (h *Hub) roomURL(id string) string {
	return strings.TrimRight(h.publicURL, "/") + "/" + id
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub, clientDir string) *http.ServeMux {
	mux := http.NewServeMux()

	// Serve static files with no-cache so browsers always revalidate
	fs := http.FileServer(http.Dir(clientDir))
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		// SPA: serve index.html for root and room paths
		if r.URL.Path == "/" || uuidPathRe.MatchString(r.URL.Path) {
			http.ServeFile(w, r, filepath.Join(clientDir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	}))

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Debug("upgrade", zap.Error(err))
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	})

	mux.HandleFunc("GET /api/rooms", func(w http.ResponseWriter, r *http.Request) {
		list := []room.Info{}
		if hub.rooms != nil {
			list = hub.rooms.List()
		}
		writeJSON(w, http.StatusOK, list)
	})

	mux.HandleFunc("POST /api/rooms", func(w http.ResponseWriter, r *http.Request) {
		if hub.rooms == nil {
			http.Error(w, "rooms unavailable", http.StatusServiceUnavailable)
			return
		}
		rm, err := hub.rooms.Create()
		if errors.Is(err, room.ErrTooManyRooms) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			hub.log.Error("create room", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		resp := RoomCreatedMsg{ID: rm.ID(), URL: hub.roomURL(rm.ID())}
		if hub.tickets != nil {
			if resp.Ticket, err = hub.tickets.Issue(rm.ID()); err != nil {
				hub.log.Error("issue ticket", zap.String("room", rm.ID()), zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}
		hub.analytics.Track(EvtRoomCreated, rm.ID(), "", "")
		hub.log.Info("room created", zap.String("room", rm.ID()), zap.String("ip", extractIP(r)))
		writeJSON(w, http.StatusCreated, resp)
	})

	// Tickets for an existing room, used by share links.
	mux.HandleFunc("POST /api/rooms/{id}/ticket", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if hub.rooms == nil {
			http.NotFound(w, r)
			return
		}
		if _, ok := hub.rooms.Get(id); !ok {
			http.NotFound(w, r)
			return
		}
		resp := RoomCreatedMsg{ID: id, URL: hub.roomURL(id)}
		if hub.tickets != nil {
			var err error
			if resp.Ticket, err = hub.tickets.Issue(id); err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("GET /api/rooms/{id}/qr", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if hub.rooms == nil {
			http.NotFound(w, r)
			return
		}
		if _, ok := hub.rooms.Get(id); !ok {
			http.NotFound(w, r)
			return
		}
		png, err := qrcode.Encode(hub.roomURL(id), qrcode.Medium, qrSize)
		if err != nil {
			hub.log.Error("qr encode", zap.String("room", id), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})

	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := StatsMsg{Connections: hub.TotalConns()}
		if hub.rooms != nil {
			stats.Rooms = hub.rooms.Len()
		}
		counts, err := hub.analytics.EventCounts(7)
		if err != nil {
			hub.log.Warn("event counts", zap.Error(err))
		}
		stats.Events = counts
		writeJSON(w, http.StatusOK, stats)
	})

	return mux
}
