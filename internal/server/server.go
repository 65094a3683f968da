// Package server exposes the ingestion engine over HTTP.
package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mverde/ledgerpilot/internal/database/repository"
	"github.com/mverde/ledgerpilot/internal/service"
	"github.com/mverde/ledgerpilot/internal/storage"
)

// Server wires HTTP routes to the service layer.
type Server struct {
	Orchestrator  *service.Orchestrator
	Executor      *service.Executor
	Confirmations *service.ConfirmationService

	Entities         *repository.EntityRepo
	Events           *repository.EventRepo
	ConfirmationRepo *repository.ConfirmationRepo

	Blobs  *storage.FileStore
	Logger *slog.Logger
}

// ownerHeader identifies the acting user. Single-user deployments can omit
// it and get the default owner.
const (
	ownerHeader  = "X-Owner-ID"
	defaultOwner = "default"
	maxUpload    = 10 << 20
)

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
		r.Post("/actions/execute", s.handleExecute)

		r.Get("/entities", s.handleListEntities)
		r.Get("/events", s.handleListEvents)
		r.Delete("/events/{id}", s.handleDeleteEvent)

		r.Get("/confirmations", s.handleListConfirmations)
		r.Post("/confirmations/confirm", s.handleBulkConfirm)
		r.Post("/confirmations/discard", s.handleBulkDiscard)
		r.Post("/confirmations/{id}/confirm", s.handleConfirm)
		r.Post("/confirmations/{id}/discard", s.handleDiscard)
	})
	return r
}

func owner(r *http.Request) string {
	if o := strings.TrimSpace(r.Header.Get(ownerHeader)); o != "" {
		return o
	}
	return defaultOwner
}

// handleIngest accepts either JSON {"text": ...} or multipart form data with
// a "file" part (and optional "text" caption). Documents are archived in the
// blob store before extraction.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	in, blobPath, ok := s.readIngestInput(w, r)
	if !ok {
		return
	}
	draft := s.Orchestrator.Handle(r.Context(), owner(r), in)
	resp := map[string]any{"draft": draft}
	if blobPath != "" {
		resp["document"] = blobPath
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readIngestInput(w http.ResponseWriter, r *http.Request) (service.IngestInput, string, bool) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			writeError(w, http.StatusBadRequest, "parse form: "+err.Error())
			return service.IngestInput{}, "", false
		}
		in := service.IngestInput{Text: r.FormValue("text")}
		var blobPath string
		if file, hdr, err := r.FormFile("file"); err == nil {
			defer file.Close()
			data, err := io.ReadAll(io.LimitReader(file, maxUpload))
			if err != nil {
				writeError(w, http.StatusBadRequest, "read file: "+err.Error())
				return service.IngestInput{}, "", false
			}
			in.File = data
			in.MIMEType = hdr.Header.Get("Content-Type")
			if s.Blobs != nil {
				if p, err := s.Blobs.Store(data, in.MIMEType); err == nil {
					blobPath = p
				} else {
					s.logger().Warn("blob store failed", "error", err)
				}
			}
		}
		if in.Text == "" && len(in.File) == 0 {
			writeError(w, http.StatusBadRequest, "text or file required")
			return service.IngestInput{}, "", false
		}
		return in, blobPath, true
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "parse body: "+err.Error())
		return service.IngestInput{}, "", false
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return service.IngestInput{}, "", false
	}
	return service.IngestInput{Text: body.Text}, "", true
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actions []service.Action `json:"actions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "parse body: "+err.Error())
		return
	}
	if len(body.Actions) == 0 {
		writeError(w, http.StatusBadRequest, "actions required")
		return
	}
	results, err := s.Executor.ExecuteActions(r.Context(), owner(r), body.Actions)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	ents, err := s.Entities.ListActive(r.Context(), owner(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entityViews(ents)})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.EventFilters{
		EntityID:  q.Get("entity_id"),
		EventType: q.Get("type"),
		Status:    q.Get("status"),
		Search:    q.Get("search"),
	}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(repository.DateOnly, v); err == nil {
			f.Since = t
		}
	}
	if v := q.Get("until"); v != "" {
		if t, err := time.Parse(repository.DateOnly, v); err == nil {
			f.Until = t
		}
	}
	events, err := s.Events.List(r.Context(), owner(r), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": eventViews(events)})
}

// handleDeleteEvent removes an event after reversing its balance effect.
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Executor.DeleteEvent(r.Context(), owner(r), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) handleListConfirmations(w http.ResponseWriter, r *http.Request) {
	list, err := s.ConfirmationRepo.ListPending(r.Context(), owner(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"confirmations": confirmationViews(list)})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	results, err := s.Confirmations.Confirm(r.Context(), owner(r), id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Confirmations.Discard(r.Context(), owner(r), id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"discarded": id})
}

func (s *Server) handleBulkConfirm(w http.ResponseWriter, r *http.Request) {
	ids, ok := readIDs(w, r)
	if !ok {
		return
	}
	outcomes := s.Confirmations.ConfirmBulk(r.Context(), owner(r), ids)
	status := http.StatusOK
	for _, o := range outcomes {
		if !o.Success {
			status = http.StatusMultiStatus
			break
		}
	}
	writeJSON(w, status, map[string]any{"results": outcomes})
}

func (s *Server) handleBulkDiscard(w http.ResponseWriter, r *http.Request) {
	ids, ok := readIDs(w, r)
	if !ok {
		return
	}
	if err := s.Confirmations.DiscardBulk(r.Context(), owner(r), ids); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"discarded": len(ids)})
}

func readIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "parse body: "+err.Error())
		return nil, false
	}
	if len(body.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return nil, false
	}
	return body.IDs, true
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger().Info("http",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start))
	})
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
