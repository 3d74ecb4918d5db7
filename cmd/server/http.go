package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"truce.ai/internal/sim/arena"
	"truce.ai/internal/sim/commands"
	"truce.ai/internal/transport/ws"
)

const adminTimeout = 5 * time.Second

func newMux(a *arena.Arena, logger *zap.Logger, adminHTTP bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(arena.NewCollector(a), collectors.NewGoCollector())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	if adminHTTP {
		mux.HandleFunc("/admin/v1/state", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			writeJSON(rw, http.StatusOK, struct {
				Tick       uint64        `json:"tick"`
				TickRateHz int           `json:"tick_rate_hz"`
				Metrics    arena.Metrics `json:"metrics"`
			}{
				Tick:       a.CurrentTick(),
				TickRateHz: a.TickRateHz(),
				Metrics:    a.Metrics(),
			})
		}))
		mux.HandleFunc("/admin/v1/combat", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
			defer cancel()
			recs, err := a.CombatList(ctx)
			if err != nil {
				writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "combat": recs})
		}))
		mux.HandleFunc("/admin/v1/reconcile", loopbackOnly(postOnly(func(rw http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
			defer cancel()
			n, err := a.Reconcile(ctx)
			if err != nil {
				writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			logger.Info("reconciliation requested over admin http", zap.Int("repaired", n))
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "repaired": n})
		})))
		mux.HandleFunc("/admin/v1/cmd", loopbackOnly(postOnly(func(rw http.ResponseWriter, r *http.Request) {
			var req struct {
				Actor string   `json:"actor"`
				Name  string   `json:"name"`
				Args  []string `json:"args"`
			}
			if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 64*1024)).Decode(&req); err != nil {
				writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "bad json"})
				return
			}
			caller := commands.Console()
			if s := strings.TrimSpace(req.Actor); s != "" {
				id, err := uuid.Parse(s)
				if err != nil {
					writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "bad actor id"})
					return
				}
				caller = commands.Caller{ID: id, Admin: true}
			}
			ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
			defer cancel()
			res, err := a.Command(ctx, caller, req.Name, req.Args)
			if err != nil {
				writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			writeJSON(rw, http.StatusOK, res)
		})))
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(a, logger).Handler())
	return mux
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
