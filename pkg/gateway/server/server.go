// Package server exposes the HTTP surface of the call engine: the
// websocket media-stream endpoint plus health and metrics. One
// orchestrator is created per media connection.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/web3mammon/sonic-prism-core/pkg/core/cache"
	"github.com/web3mammon/sonic-prism-core/pkg/core/call"
	"github.com/web3mammon/sonic-prism-core/pkg/core/pace"
	"github.com/web3mammon/sonic-prism-core/pkg/core/record"
	"github.com/web3mammon/sonic-prism-core/pkg/core/respond"
	"github.com/web3mammon/sonic-prism-core/pkg/core/session"
	"github.com/web3mammon/sonic-prism-core/pkg/gateway/metrics"
	"github.com/web3mammon/sonic-prism-core/pkg/gateway/transport"
	"github.com/web3mammon/sonic-prism-core/pkg/store/calllog"
)

// Deps are the shared collaborators every call is wired with. The
// recognizer is per-call, so it comes in as a factory.
type Deps struct {
	Sessions      *session.Manager
	Cache         *cache.AudioCache
	Resolver      *respond.Resolver
	Recorder      *record.Recorder
	Logs          calllog.Logger
	Metrics       *metrics.Metrics
	Synthesizer   call.Synthesizer
	Terminator    call.Terminator
	NewRecognizer func() call.Recognizer

	SessionConfig session.Config
	PacerConfig   pace.Config
	GreetingKey   string

	Logger *slog.Logger
}

// Server serves the media-stream websocket and operational endpoints.
type Server struct {
	deps Deps
	log  *slog.Logger
}

// New builds a server. A nil Logger falls back to slog.Default.
func New(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{deps: deps, log: log}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/media", s.handleMedia)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		mux.Handle("/metrics", s.deps.Metrics.Handler())
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleMedia owns one media-stream connection from upgrade to close.
// The read loop translates transport events into orchestrator calls;
// outbound audio rides the same connection via the pacer.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	conn, err := transport.Upgrade(w, r)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var (
		orch      *call.Orchestrator
		callID    string
		direction session.Direction
		startedAt time.Time
	)

	for {
		event, err := conn.ReadEvent()
		if err != nil {
			if orch != nil {
				orch.HandleTransportError(err)
			}
			return
		}

		switch ev := event.(type) {
		case transport.ConnectedEvent:
			s.log.Debug("media stream connected")

		case transport.StartEvent:
			if orch != nil {
				s.log.Warn("duplicate start event ignored", "call_id", callID)
				continue
			}
			callID = ev.CallSID
			if callID == "" {
				callID = ev.StreamSID
			}
			direction = session.Inbound
			if ev.CustomParams["direction"] == "outbound" {
				direction = session.Outbound
			}
			startedAt = time.Now()

			orch = s.newOrchestrator(conn, callID, &orch, &direction, &startedAt)
			if s.deps.Metrics != nil {
				s.deps.Metrics.RecordCallStart()
			}
			if err := orch.Start(r.Context(), callID, ev.From(), ev.To(), direction); err != nil {
				s.log.Error("call start failed", "call_id", callID, "error", err)
				if s.deps.Metrics != nil {
					s.deps.Metrics.RecordError("server", "start_failed")
				}
				return
			}
			s.log.Info("call started",
				"call_id", callID,
				"stream_sid", ev.StreamSID,
				"from", ev.From(),
				"direction", direction.String(),
			)

		case transport.MediaEvent:
			if orch == nil {
				continue
			}
			if s.deps.Metrics != nil {
				s.deps.Metrics.RecordInboundBytes(len(ev.Payload))
			}
			orch.HandleInboundMedia(ev.Payload)

		case transport.MarkEvent:
			s.log.Debug("mark acknowledged", "call_id", callID, "name", ev.Name)

		case transport.StopEvent:
			if orch != nil {
				orch.HandleStop()
			}
			s.log.Info("media stream stopped", "call_id", callID)
			return
		}
	}
}

// newOrchestrator wires the per-call orchestrator against the shared
// collaborators and the metric hooks. The pointer arguments let the
// state-change hook read values the read loop sets after construction.
func (s *Server) newOrchestrator(conn *transport.Conn, callID string, orchRef **call.Orchestrator, direction *session.Direction, startedAt *time.Time) *call.Orchestrator {
	hooks := call.Hooks{
		OnDebug: func(category, message string) {
			s.log.Debug(message, "category", category, "call_id", callID)
		},
	}
	if m := s.deps.Metrics; m != nil {
		hooks.OnInterruption = m.RecordInterruption
		hooks.OnTurn = func(latency time.Duration) { m.RecordTurn("response", latency) }
		hooks.OnStreamedBytes = m.RecordStreamedBytes
		hooks.OnStateChange = func(from, to call.State) {
			if to != call.StateClosed {
				return
			}
			status := "completed"
			if o := *orchRef; o != nil {
				status = o.FinalStatus()
			}
			m.RecordCallEnd(status, direction.String(), time.Since(*startedAt))
		}
	}

	return call.New(call.Deps{
		Sessions:      s.deps.Sessions,
		Cache:         s.deps.Cache,
		Resolver:      s.deps.Resolver,
		Recorder:      s.deps.Recorder,
		Transport:     conn,
		Recognizer:    s.deps.NewRecognizer(),
		Synthesizer:   s.deps.Synthesizer,
		Terminator:    s.deps.Terminator,
		Logs:          s.deps.Logs,
		SessionConfig: s.deps.SessionConfig,
		PacerConfig:   s.deps.PacerConfig,
		GreetingKey:   s.deps.GreetingKey,
	}, hooks)
}
