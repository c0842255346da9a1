package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"
)

// handleKernelBuffer serves GET /kernel_buffer?start=&size=. Missing or
// malformed parameters fall back to the whole buffer.
func (s *Server) handleKernelBuffer(w http.ResponseWriter, r *http.Request) {
	start := queryInt(r, "start", 0)
	size := queryInt(r, "size", -1)
	writeJSON(w, s.service.Read(start, size))
}

// queryInt reads a non-negative integer parameter. Values beyond the int
// range clamp to math.MaxInt.
func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.ParseUint(r.URL.Query().Get(key), 10, 64)
	if errors.Is(err, strconv.ErrRange) || (err == nil && v > math.MaxInt) {
		return math.MaxInt
	}
	if err != nil {
		return def
	}
	return int(v)
}

func (s *Server) cached(key string, ttl time.Duration, collect func(context.Context) (any, error), text bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := s.cache.Get(key, ttl, func() ([]byte, error) {
			v, err := collect(r.Context())
			if err != nil {
				return nil, err
			}
			if text {
				return []byte(fmt.Sprint(v)), nil
			}
			return json.Marshal(v)
		})
		if err != nil {
			s.logger.Warn("collect failed", "path", key, "err", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if text {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		w.Write(body)
	}
}

func (s *Server) handleKernelWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrader.Error already replied
	}
	sess := newSession(conn, s.service, s.logger)
	sess.run(r.Context())
}
