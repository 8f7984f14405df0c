package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

func homePage(cfg *Config) string {
	var b strings.Builder

	b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	b.WriteString(getFavicon())
	b.WriteString(`<title>jeoprompty</title>`)
	b.WriteString(`<style>body{font-family:system-ui,sans-serif;max-width:36rem;margin:4rem auto;padding:0 1rem}` +
		`a.new,button{display:inline-block;padding:.6rem 1.2rem;border:1px solid #333;border-radius:.4rem;` +
		`background:#111;color:#fff;text-decoration:none;font-size:1rem;cursor:pointer}` +
		`input{padding:.6rem;border:1px solid #999;border-radius:.4rem;font-size:1rem;text-transform:uppercase}` +
		`form{margin-top:2rem}</style></head><body>`)
	b.WriteString(`<h1>jeoprompty</h1>`)
	b.WriteString(`<p>Write the question; the machine writes the answer. Closest to the secret phrase wins.</p>`)
	b.WriteString(`<a class="new" href="` + cfg.prefix + `/trivia">Start a new room</a>`)
	b.WriteString(`<form action="` + cfg.prefix + `/join" method="get">`)
	b.WriteString(`<input name="code" maxlength="8" placeholder="ROOM CODE" required> `)
	b.WriteString(`<button type="submit">Join</button></form>`)
	b.WriteString(`</body></html>`)

	return b.String()
}

func serveHomePage(cfg *Config) httprouter.Handle {
	page := []byte(homePage(cfg))

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(page)
	}
}

// serveJoinRedirect bounces the landing form to the room page, after the same
// code sanitization the room manager applies.
func serveJoinRedirect(cfg *Config, path string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		code := sanitizeRoomCode(r.URL.Query().Get("code"))
		if code == "" {
			http.Redirect(w, r, cfg.prefix+"/", http.StatusTemporaryRedirect)
			return
		}
		http.Redirect(w, r, cfg.prefix+path+"/"+code, http.StatusTemporaryRedirect)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /trivia/`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
