package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rbright/trace/internal/analysis"
	"github.com/rbright/trace/internal/fault"
	"github.com/rbright/trace/internal/payload"
	"github.com/rbright/trace/internal/session"
	"github.com/rbright/trace/internal/version"
)

// uploadField is the multipart form field carrying the clip.
const uploadField = "file"

// multipartOverhead allows for boundaries and part headers on top of the clip limit.
const multipartOverhead = 64 << 10

func (s *Server) routes(metricsHandler http.Handler) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(s.observe)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	mux.Get("/", s.handleRoot)
	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if metricsHandler != nil {
		mux.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	mux.Post("/analyze", s.handleAnalyzeUpload)

	mux.Route("/api/sessions", func(rt chi.Router) {
		rt.Post("/", s.handleCreateSession)
		rt.Route("/{id}", func(rt chi.Router) {
			rt.Get("/", s.withSession(s.handleGetSession))
			rt.Delete("/", s.handleDeleteSession)
			rt.Get("/payload", s.withSession(s.handlePreviewPayload))
			rt.Put("/payload", s.withSession(s.handleSelectPayload))
			rt.Post("/analyze", s.withSession(s.handleAnalyzeSession))
			rt.Post("/reset", s.withSession(s.handleResetSession))
			rt.Get("/events", s.withSession(s.handleEvents))
		})
	})

	return mux
}

// observe logs and measures every request under its route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.RecordHTTP(r.Context(), r.Method, route, status, elapsed.Seconds())
		s.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type rootResponse struct {
	Status    string  `json:"status"`
	Engine    string  `json:"engine"`
	Version   string  `json:"version"`
	Timestamp float64 `json:"timestamp"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	writeJSON(w, http.StatusOK, rootResponse{
		Status:    "online",
		Engine:    version.Engine,
		Version:   version.Version,
		Timestamp: float64(now.UnixNano()) / 1e9,
	})
}

// analyzeResponse carries the full report plus the flat verdict fields of
// the original upload API.
type analyzeResponse struct {
	Verdict          string          `json:"verdict"`
	SpoofProbability float64         `json:"spoof_probability"`
	HumanProbability float64         `json:"human_probability"`
	Confidence       float64         `json:"confidence"`
	ProcessingTime   float64         `json:"processing_time"`
	Report           analysis.Report `json:"report"`
}

func (s *Server) handleAnalyzeUpload(w http.ResponseWriter, r *http.Request) {
	start := s.now()
	p, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer p.Release()

	if s.analyzer == nil {
		writeError(w, fault.New(fault.Configuration, "no analyzer configured"))
		return
	}
	rep, err := s.analyzer.Analyze(r.Context(), p)
	if err != nil {
		s.logger.Warn("one-shot analysis failed", "clip", p.Name(), "error", err.Error())
		writeError(w, err)
		return
	}

	elapsed := s.now().Sub(start).Seconds()
	writeJSON(w, http.StatusOK, analyzeResponse{
		Verdict:          strings.ToLower(string(rep.Decision)),
		SpoofProbability: rep.Provenance.SyntheticProbability,
		HumanProbability: rep.Provenance.HumanProbability,
		Confidence:       rep.Scores.Confidence,
		ProcessingTime:   float64(int64(elapsed*100)) / 100,
		Report:           rep,
	})
}

// readUpload streams the "file" part of a multipart body into a payload.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*payload.Payload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fault.Wrap(fault.InvalidInput, err, "expected a multipart/form-data upload")
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, fault.New(fault.InvalidInput, "missing %q file field", uploadField)
		}
		if err != nil {
			return nil, fault.Wrap(fault.InvalidInput, err, "read upload")
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}

		name := part.FileName()
		p, err := payload.Read(name, part.Header.Get("Content-Type"), part, s.maxUpload)
		_ = part.Close()
		return p, err
	}
}

// sessionView is a session snapshot tagged with its id.
type sessionView struct {
	ID string `json:"id"`
	session.Snapshot
}

type sessionHandler func(http.ResponseWriter, *http.Request, string, *session.Controller)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ctrl, err := s.sessions.get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		h(w, r, id, ctrl)
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, ctrl, err := s.sessions.create(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("session created", "session", id)
	writeJSON(w, http.StatusCreated, sessionView{ID: id, Snapshot: ctrl.Snapshot()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request, id string, ctrl *session.Controller) {
	writeJSON(w, http.StatusOK, sessionView{ID: id, Snapshot: ctrl.Snapshot()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.remove(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("session closed", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectPayload(w http.ResponseWriter, r *http.Request, id string, ctrl *session.Controller) {
	p, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := ctrl.Select(p); err != nil {
		p.Release()
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{ID: id, Snapshot: ctrl.Snapshot()})
}

// handlePreviewPayload streams the selected clip back for playback.
func (s *Server) handlePreviewPayload(w http.ResponseWriter, r *http.Request, _ string, ctrl *session.Controller) {
	path, mimeType, err := ctrl.Preview()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}

func (s *Server) handleAnalyzeSession(w http.ResponseWriter, r *http.Request, id string, ctrl *session.Controller) {
	started, err := ctrl.Analyze(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if started {
		status = http.StatusAccepted
	}
	writeJSON(w, status, sessionView{ID: id, Snapshot: ctrl.Snapshot()})
}

func (s *Server) handleResetSession(w http.ResponseWriter, _ *http.Request, id string, ctrl *session.Controller) {
	if err := ctrl.Reset(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{ID: id, Snapshot: ctrl.Snapshot()})
}
