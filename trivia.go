package main

import (
	"embed"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"
)

//go:embed trivia
var triviaAssets embed.FS

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)

		return err == nil && u.Host == r.Host
	},
}

// sanitizeRoomCode strips anything that is not a letter or digit and
// uppercases the rest, so codes survive copy-paste and URL mangling.
func sanitizeRoomCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	code = b.String()
	if len(code) > 8 {
		code = code[:8]
	}

	return code
}

func redirectNewRoom(cfg *Config, path string, manager *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		code := manager.newRoomCode()
		logf(cfg, "ROOMS: Created %s for %s", code, realIP(r))

		http.Redirect(w, r, cfg.prefix+path+"/"+code, http.StatusTemporaryRedirect)
	}
}

func serveRoomPage(cfg *Config, errs chan<- error) httprouter.Handle {
	raw, err := triviaAssets.ReadFile("trivia/index.html")
	if err != nil {
		panic(err)
	}
	page := []byte(strings.ReplaceAll(string(raw), "{{prefix}}", cfg.prefix))

	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if sanitizeRoomCode(p.ByName("roomcode")) != p.ByName("roomcode") {
			http.Redirect(w, r, cfg.prefix+"/", http.StatusTemporaryRedirect)

			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write(page)
		if err != nil {
			errs <- err
		}
	}
}

func serveTriviaAssets(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		name := strings.TrimPrefix(p.ByName("asset"), "/")

		data, err := triviaAssets.ReadFile("trivia/" + name)
		if err != nil {
			http.NotFound(w, r)

			return
		}

		switch {
		case strings.HasSuffix(name, ".css"):
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		case strings.HasSuffix(name, ".js"):
			w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		default:
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		_, err = w.Write(data)
		if err != nil {
			errs <- err
		}
	}
}

// serveRoomQR renders the room join URL as a PNG, for getting phones into
// the lobby without typing.
func serveRoomQR(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code := sanitizeRoomCode(p.ByName("roomcode"))
		if code == "" {
			http.NotFound(w, r)

			return
		}

		joinURL := cfg.scheme() + "://" + r.Host + cfg.prefix + "/trivia/" + code

		png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
		if err != nil {
			errs <- err
			http.Error(w, "QR generation failed", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		_, err = w.Write(png)
		if err != nil {
			errs <- err
		}
	}
}

// serveConcept hands out a secret phrase from the built-in list, skipping
// any the caller has already used and biasing toward the requested topic.
// With a room code, the room's own round history supplies the used set, so
// hosts cannot be served a repeat even with a stale client.
func serveConcept(cfg *Config, store *RoomStore, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		query := r.URL.Query()
		topic := trimToMax(query.Get("topic"), maxTextLength)

		used := query["used"]
		if joined := query.Get("usedList"); joined != "" {
			used = append(used, strings.Split(joined, ",")...)
		}

		if code := sanitizeRoomCode(query.Get("room")); code != "" {
			state, err := store.Load(code)
			if err == nil && state != nil {
				used = append(used, state.usedTargets()...)
				if state.CurrentTarget != "" {
					used = append(used, state.CurrentTarget)
				}
				if topic == "" {
					topic = state.GameTopic
				}
			}
		}

		response := map[string]string{"concept": pickConcept(used, topic)}
		if topic == "" {
			response["suggestedTopic"] = pickRandomTopic()
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)

		err := json.NewEncoder(w).Encode(response)
		if err != nil {
			errs <- err
		}
	}
}

// serveScoreProxy forwards resolver scoring requests to the configured
// scoring service. The coordinator itself never calls out; when no service
// is configured, resolvers fall back to lexical-only scoring client-side.
func serveScoreProxy(cfg *Config, errs chan<- error) httprouter.Handle {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if cfg.scoreAPI == "" {
			http.Error(w, "No scoring service configured", http.StatusServiceUnavailable)

			return
		}

		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, cfg.scoreAPI, r.Body)
		if err != nil {
			errs <- err
			http.Error(w, "Scoring request failed", http.StatusBadGateway)

			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			errs <- err
			http.Error(w, "Scoring service unreachable", http.StatusBadGateway)

			return
		}
		defer resp.Body.Close()

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(resp.StatusCode)

		_, err = io.Copy(w, resp.Body)
		if err != nil {
			errs <- err
		}
	}
}

func serveWS(cfg *Config, manager *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code := sanitizeRoomCode(p.ByName("roomcode"))
		if code == "" {
			http.NotFound(w, r)

			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ROOMS: Upgrade failed for %s: %v", realIP(r), err)

			return
		}

		room := manager.getRoom(code)

		client := &Client{
			conn:         conn,
			send:         make(chan serverMessage, 8),
			connectionID: newConnectionID(),
			limiter:      rate.NewLimiter(rate.Limit(10), 20),
		}

		select {
		case room.register <- client:
		case <-room.shutdown:
			_ = conn.Close()

			return
		}

		go writePump(client)
		go readPump(cfg, room, client)
	}
}

func readPump(cfg *Config, room *Room, client *Client) {
	defer func() {
		select {
		case room.unreg <- client:
		case <-room.shutdown:
		}
		_ = client.conn.Close()
	}()

	client.conn.SetReadLimit(64 * 1024)

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("room", room.code).Msg("websocket read ended")
			}

			return
		}

		if !client.limiter.Allow() {
			logf(cfg, "ROOMS: Rate limit hit in %s, dropping message", room.code)

			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			room.sendAsync(client, errorMessage(errInvalidPayload))

			continue
		}

		select {
		case room.inbox <- envelope{client: client, msg: msg}:
		case <-room.shutdown:
			return
		}
	}
}

func writePump(client *Client) {
	for msg := range client.send {
		if err := client.conn.WriteJSON(msg); err != nil {
			return
		}
	}

	_ = client.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func registerTriviaGame(cfg *Config, path string, store *RoomStore, mux *httprouter.Router) {
	errs := make(chan error, 64)
	go func() {
		for err := range errs {
			log.Error().Err(err).Msg("trivia handler error")
		}
	}()

	manager := newRoomManager(cfg, store)

	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, path, manager))
	mux.GET(cfg.prefix+"/join", serveJoinRedirect(cfg, path))
	mux.GET(cfg.prefix+path+"/:roomcode", serveRoomPage(cfg, errs))
	mux.GET(cfg.prefix+path+"/:roomcode/ws", serveWS(cfg, manager))
	mux.GET(cfg.prefix+path+"/:roomcode/qr", serveRoomQR(cfg, errs))
	mux.GET(cfg.prefix+"/assets/*asset", serveTriviaAssets(cfg, errs))
	mux.GET(cfg.prefix+"/api/concept", serveConcept(cfg, store, errs))
	mux.POST(cfg.prefix+"/api/score", serveScoreProxy(cfg, errs))
}
