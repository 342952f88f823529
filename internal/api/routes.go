package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radio-control/fhc/internal/audit"
	"github.com/radio-control/fhc/internal/auth"
	"github.com/radio-control/fhc/internal/channel"
	"github.com/radio-control/fhc/internal/fh"
	"github.com/radio-control/fhc/internal/gpio"
)

const apiV1 = "/api/v1"

const maxBodyBytes = 64 << 10

// methods maps an HTTP method to its handler.
type methods map[string]http.HandlerFunc

// RegisterRoutes registers every v1 endpoint on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(apiV1+"/health", s.handleHealth)

	s.route(mux, "/fh/config", methods{http.MethodGet: s.getConfig, http.MethodPut: s.putConfig})
	s.route(mux, "/fh/tables/{table}", methods{http.MethodGet: s.getTable, http.MethodPut: s.putTable})
	s.route(mux, "/fh/tables/{table}/transfer", methods{http.MethodGet: s.getTransfer})
	s.route(mux, "/fh/active", methods{http.MethodGet: s.getActive, http.MethodPut: s.putActive})
	s.route(mux, "/fh/frames/{frame}", methods{http.MethodGet: s.getFrame})
	s.route(mux, "/fh/hop", methods{http.MethodPost: s.postHop})

	s.route(mux, "/channels", methods{http.MethodGet: s.getChannels})
	s.route(mux, "/channels/{channel}", methods{http.MethodGet: s.getChannel, http.MethodPut: s.putChannel})

	s.route(mux, "/gpio/interrupts/mask", methods{http.MethodGet: s.getIntMask, http.MethodPut: s.putIntMask})
	s.route(mux, "/gpio/interrupts/status", methods{http.MethodGet: s.getIntStatus})
	s.route(mux, "/gpio/interrupts/handle", methods{http.MethodPost: s.postIntHandle})
	s.route(mux, "/gpio/signals/{signal}", methods{http.MethodGet: s.getSignal, http.MethodPut: s.putSignal})

	telemetry := s.handleTelemetry
	if s.authMiddleware != nil {
		telemetry = s.authMiddleware.Protect(auth.ScopeTelemetry, withAuditUser(telemetry))
	}
	mux.HandleFunc(apiV1+"/telemetry", onlyMethods(methods{http.MethodGet: telemetry}))
}

// route registers path with per-method handlers. GET needs the read scope,
// every other method the control scope.
func (s *Server) route(mux *http.ServeMux, path string, ms methods) {
	guarded := make(methods, len(ms))
	for method, h := range ms {
		h = s.logged(h)
		if s.authMiddleware != nil {
			scope := auth.ScopeControl
			if method == http.MethodGet {
				scope = auth.ScopeRead
			}
			h = s.authMiddleware.Protect(scope, withAuditUser(h))
		}
		guarded[method] = h
	}
	mux.HandleFunc(apiV1+path, onlyMethods(guarded))
}

func onlyMethods(ms methods) http.HandlerFunc {
	allowed := make([]string, 0, len(ms))
	for m := range ms {
		allowed = append(allowed, m)
	}
	sort.Strings(allowed)
	allow := strings.Join(allowed, ", ")

	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := ms[r.Method]
		if !ok {
			w.Header().Set("Allow", allow)
			WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed,
				fmt.Sprintf("Only %s allowed", allow), nil)
			return
		}
		h(w, r)
	}
}

func withAuditUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if claims := auth.ClaimsFrom(r.Context()); claims != nil {
			r = r.WithContext(audit.WithUser(r.Context(), claims.Subject))
		}
		next(w, r)
	}
}

func (s *Server) logged(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		s.log.Debug("request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("latency", time.Since(start)))
	}
}

// decodeStrict decodes one JSON object into v, rejecting unknown fields
// and trailing data.
func decodeStrict(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest(fmt.Sprintf("Malformed JSON: %v", err))
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return badRequest("Trailing data after JSON object")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Only GET allowed", nil)
		return
	}
	WriteSuccess(w, map[string]interface{}{
		"status":    "ok",
		"version":   Version,
		"uptimeSec": int64(time.Since(s.startTime).Seconds()),
		"transport": s.transport,
	})
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if s.telemetryHub == nil {
		WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, "Telemetry not available", nil)
		return
	}
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	if err := s.telemetryHub.Subscribe(r.Context(), w, r); err != nil {
		s.log.Debug("telemetry subscriber ended", zap.Error(err))
	}
}

func pathTable(r *http.Request) (fh.TableID, error) {
	id, err := fh.ParseTableID(r.PathValue("table"))
	if err != nil {
		return fh.TableID{}, notFound(fmt.Sprintf("Unknown table %q", r.PathValue("table")))
	}
	return id, nil
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.orchestrator.Inspect(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, cfg)
}

func (s *Server) putConfig(w http.ResponseWriter, r *http.Request) {
	var cfg fh.Config
	if err := decodeStrict(r, &cfg); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.orchestrator.Configure(r.Context(), cfg); err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, cfg)
}

type tableBody struct {
	Frames []fh.HopFrame `json:"frames"`
}

type tableView struct {
	Table  fh.TableID    `json:"table"`
	Count  int           `json:"count"`
	Frames []fh.HopFrame `json:"frames"`
}

func (s *Server) getTable(w http.ResponseWriter, r *http.Request) {
	id, err := pathTable(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	capacity := fh.MaxTableFrames
	if v := r.URL.Query().Get("capacity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > fh.MaxTableFrames {
			writeErr(w, NewAPIError(CodeInvalidRange,
				fmt.Sprintf("capacity must be 0..%d", fh.MaxTableFrames), http.StatusBadRequest, nil))
			return
		}
		capacity = n
	}
	frames, err := s.orchestrator.Table(r.Context(), id, capacity)
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, tableView{Table: id, Count: len(frames), Frames: frames})
}

func (s *Server) putTable(w http.ResponseWriter, r *http.Request) {
	id, err := pathTable(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var body tableBody
	if err := decodeStrict(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.orchestrator.ConfigureTable(r.Context(), id, body.Frames); err != nil {
		writeErr(w, err)
		return
	}
	tr, err := s.orchestrator.Transfer(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, tr)
}

func (s *Server) getTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathTable(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	tr, err := s.orchestrator.Transfer(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, tr)
}

type activeBody struct {
	Table fh.TableID `json:"table"`
}

func (s *Server) getActive(w http.ResponseWriter, r *http.Request) {
	id, err := s.orchestrator.ActiveTable(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, activeBody{Table: id})
}

func (s *Server) putActive(w http.ResponseWriter, r *http.Request) {
	var body activeBody
	if err := decodeStrict(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.orchestrator.SetActiveTable(r.Context(), body.Table); err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, body)
}

func (s *Server) getFrame(w http.ResponseWriter, r *http.Request) {
	idx, err := fh.ParseFrameIndex(r.PathValue("frame"))
	if err != nil {
		writeErr(w, notFound(fmt.Sprintf("Unknown frame %q", r.PathValue("frame"))))
		return
	}
	f, err := s.orchestrator.FrameInfo(r.Context(), idx)
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{"index": idx, "frame": f})
}

func (s *Server) postHop(w http.ResponseWriter, r *http.Request) {
	issued, err := s.orchestrator.Hop(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, map[string]bool{"issued": issued})
}

func pathChannel(r *http.Request) (channel.ID, error) {
	id, err := channel.ParseID(r.PathValue("channel"))
	if err != nil {
		return 0, notFound(fmt.Sprintf("Unknown channel %q", r.PathValue("channel")))
	}
	return id, nil
}

func (s *Server) getChannels(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, s.orchestrator.Channels())
}

func (s *Server) getChannel(w http.ResponseWriter, r *http.Request) {
	id, err := pathChannel(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	ch, err := s.orchestrator.Channel(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, ch)
}

func (s *Server) putChannel(w http.ResponseWriter, r *http.Request) {
	id, err := pathChannel(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var body struct {
		State channel.State `json:"state"`
	}
	if err := decodeStrict(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.orchestrator.SetChannelState(r.Context(), id, body.State); err != nil {
		writeErr(w, err)
		return
	}
	ch, err := s.orchestrator.Channel(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, ch)
}

type intView struct {
	Value   gpio.IntStatus `json:"value"`
	Sources []string       `json:"sources"`
}

func viewOf(s gpio.IntStatus) intView {
	return intView{Value: s, Sources: s.Names()}
}

func (s *Server) getIntMask(w http.ResponseWriter, r *http.Request) {
	mask, err := s.orchestrator.InterruptMask(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, viewOf(mask))
}

// putIntMask accepts either a raw value or a list of source names.
func (s *Server) putIntMask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value   *gpio.IntStatus `json:"value"`
		Sources []string        `json:"sources"`
	}
	if err := decodeStrict(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	var mask gpio.IntStatus
	switch {
	case body.Value != nil && body.Sources != nil:
		writeErr(w, badRequest("Give either value or sources, not both"))
		return
	case body.Value != nil:
		mask = *body.Value
	default:
		m, err := gpio.ParseIntStatus(body.Sources)
		if err != nil {
			writeErr(w, NewAPIError(CodeInvalidRange, err.Error(), http.StatusBadRequest, nil))
			return
		}
		mask = m
	}
	if err := s.orchestrator.SetInterruptMask(r.Context(), mask); err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, viewOf(mask))
}

func (s *Server) getIntStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.orchestrator.InterruptStatus(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, viewOf(st))
}

func (s *Server) postIntHandle(w http.ResponseWriter, r *http.Request) {
	rep, err := s.orchestrator.HandleInterrupt(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, rep)
}

func pathSignal(r *http.Request) (gpio.Signal, error) {
	sig, err := gpio.ParseSignal(r.PathValue("signal"))
	if err != nil {
		return 0, notFound(fmt.Sprintf("Unknown signal %q", r.PathValue("signal")))
	}
	return sig, nil
}

func (s *Server) getSignal(w http.ResponseWriter, r *http.Request) {
	sig, err := pathSignal(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	cfg, err := s.orchestrator.InspectSignal(r.Context(), sig)
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, cfg)
}

func (s *Server) putSignal(w http.ResponseWriter, r *http.Request) {
	sig, err := pathSignal(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var cfg gpio.PinConfig
	if err := decodeStrict(r, &cfg); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.orchestrator.ConfigureSignal(r.Context(), sig, cfg); err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, cfg)
}
