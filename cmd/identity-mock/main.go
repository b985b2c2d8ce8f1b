// Command identity-mock serves canned Neynar and Warpcast responses for local
// development. Point NEYNAR_BASE_URL at /neynar and WARPCAST_BASE_URL at
// /warpcast on this server.
package main

import (
	"flag"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Clark-Hu/universal-rate/internal/logging"
)

func main() {
	var (
		port    = flag.String("port", "9099", "port to listen on")
		data    = flag.String("data", "cmd/identity-mock/fixtures.json", "path to mock data file")
		apiKey  = flag.String("neynar-key", "", "require this Neynar API key when set")
		logReqs = flag.Bool("log", false, "enable request logging")
	)
	flag.Parse()

	logger := logging.New("identity-mock", logging.Config{Format: "console"})

	fx, err := loadFixtures(*data)
	if err != nil {
		logger.Fatal().Err(err).Msg("load mock data")
	}
	logger.Info().Int("users", len(fx.Users)).Int("casts", len(fx.Casts)).Msg("loaded mock entries")

	addr := ":" + *port
	logger.Info().Str("addr", addr).Msg("mock identity listening")
	if err := http.ListenAndServe(addr, newRouter(fx, *apiKey, *logReqs, logger)); err != nil {
		logger.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}

func newRouter(fx *fixtures, apiKey string, logReqs bool, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if logReqs {
		r.Use(hlog.NewHandler(logger))
		r.Use(hlog.AccessHandler(func(r *http.Request, status, _ int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", duration).
				Msg("request")
		}))
	}

	r.Route("/neynar", func(r chi.Router) {
		r.Use(requireKey(apiKey))
		r.Get("/user/by-username", func(w http.ResponseWriter, r *http.Request) {
			u, ok := fx.username(r.URL.Query().Get("username"))
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"message": "User not found"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"user": neynarUser(u)})
		})
		r.Get("/user/bulk", func(w http.ResponseWriter, r *http.Request) {
			users := []map[string]any{}
			for _, raw := range strings.Split(r.URL.Query().Get("fids"), ",") {
				fid, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
				if err != nil {
					continue
				}
				if u, ok := fx.user(fid); ok {
					users = append(users, neynarUser(u))
				}
			}
			writeJSON(w, http.StatusOK, map[string]any{"users": users})
		})
		r.Get("/cast", func(w http.ResponseWriter, r *http.Request) {
			fid, ok := fx.castAuthor(r.URL.Query().Get("identifier"))
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"message": "Cast not found"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"cast": map[string]any{"author": map[string]any{"fid": fid}}})
		})
	})

	r.Route("/warpcast", func(r chi.Router) {
		r.Get("/user-by-username", func(w http.ResponseWriter, r *http.Request) {
			u, ok := fx.username(r.URL.Query().Get("username"))
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]any{"errors": []map[string]string{{"message": "No FID associated with username"}}})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"user": map[string]any{"fid": u.FID, "username": u.Username}}})
		})
		r.Get("/user", func(w http.ResponseWriter, r *http.Request) {
			u, ok := fixtureFromQuery(fx, r)
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]any{"errors": []map[string]string{{"message": "User not found"}}})
				return
			}
			writeJSON(w, http.StatusOK, warpcastUser(u))
		})
		r.Get("/verifications", func(w http.ResponseWriter, r *http.Request) {
			u, ok := fixtureFromQuery(fx, r)
			if !ok {
				writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"verifications": []any{}}})
				return
			}
			writeJSON(w, http.StatusOK, warpcastVerifications(u))
		})
	})
	return r
}

func requireKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" && r.Header.Get("x-api-key") != apiKey {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func fixtureFromQuery(fx *fixtures, r *http.Request) (fixtureUser, bool) {
	fid, err := strconv.ParseInt(r.URL.Query().Get("fid"), 10, 64)
	if err != nil {
		return fixtureUser{}, false
	}
	return fx.user(fid)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
