// Package api exposes the HTTP surface of the service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/networg/constructsafe/internal/config"
	"github.com/networg/constructsafe/internal/flowclient"
	"github.com/networg/constructsafe/internal/model"
	"github.com/networg/constructsafe/internal/queue"
	"github.com/networg/constructsafe/internal/s3storage"
	"github.com/networg/constructsafe/internal/service"
	"github.com/networg/constructsafe/internal/storage"
	"github.com/networg/constructsafe/internal/ticket"
	"github.com/networg/constructsafe/internal/validation"
)

// ExtractQueue schedules evidence text extraction.
type ExtractQueue interface {
	EnqueueExtract(ctx context.Context, payload queue.ExtractPayload) error
}

// Server routes HTTP requests into the service layer.
type Server struct {
	cfg     *config.Config
	records *service.Records
	store   storage.Store
	objects *s3storage.Storage
	tasks   ExtractQueue
	flow    *flowclient.Client
	server  *http.Server
	once    sync.Once
}

// New constructs a Server. objects and flow may be nil when the evidence and
// report features are disabled (tests, minimal deployments).
func New(cfg *config.Config, records *service.Records, store storage.Store, objects *s3storage.Storage, tasks ExtractQueue, flow *flowclient.Client) *Server {
	return &Server{
		cfg:     cfg,
		records: records,
		store:   store,
		objects: objects,
		tasks:   tasks,
		flow:    flow,
	}
}

// Handler builds the route table. Exposed separately from Run for httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/nonconformities", s.handleCollection)
	mux.HandleFunc("/nonconformities/", s.handleRecordRoute)
	return corsMiddleware(loggingMiddleware(mux))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.Handler(),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	log.Printf("api listening on %s", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var rec model.NonConformity
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	rec.ID = ""
	rec.TicketNumber = strings.TrimSpace(rec.TicketNumber)
	if !rec.Type.Valid() {
		http.Error(w, "unknown non-conformity type", http.StatusBadRequest)
		return
	}
	// Empty severity and status are allowed; the service defaults them.
	if rec.Severity != "" && !rec.Severity.Valid() {
		http.Error(w, "unknown severity", http.StatusBadRequest)
		return
	}
	if rec.Status != "" && !rec.Status.Valid() {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}
	created, err := s.records.Create(r.Context(), &rec)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleRecordRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/nonconformities/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		s.handleRecord(w, r, id)
		return
	}
	switch parts[1] {
	case "report":
		s.handleReport(w, r, id)
	case "actions":
		s.handleActions(w, r, id)
	case "evidence":
		if len(parts) == 4 && parts[3] == "url" {
			s.handleEvidenceURL(w, r, id, parts[2])
			return
		}
		s.handleEvidence(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		rec, err := s.records.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, rec)
	case http.MethodPatch:
		var delta model.Delta
		if err := json.NewDecoder(r.Body).Decode(&delta); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if delta.Type != nil && !delta.Type.Valid() {
			http.Error(w, "unknown non-conformity type", http.StatusBadRequest)
			return
		}
		if delta.Severity != nil && !delta.Severity.Valid() {
			http.Error(w, "unknown severity", http.StatusBadRequest)
			return
		}
		if delta.Status != nil && !delta.Status.Valid() {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}
		rec, err := s.records.Update(r.Context(), id, &delta)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, rec)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleReport triggers the external PDF workflow. The record must be fully
// committed with a ticket number before the trigger fires.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.flow == nil {
		http.Error(w, "report workflow not configured", http.StatusServiceUnavailable)
		return
	}
	rec, err := s.records.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec.TicketNumber == "" {
		http.Error(w, "record has no ticket number yet", http.StatusConflict)
		return
	}
	if err := s.flow.TriggerReport(r.Context(), rec.ID, rec.TicketNumber); err != nil {
		log.Printf("trigger report for %s: %v", rec.TicketNumber, err)
		http.Error(w, "report workflow trigger failed", http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"recordId":     rec.ID,
		"ticketNumber": rec.TicketNumber,
	})
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request, recordID string) {
	switch r.Method {
	case http.MethodGet:
		actions, err := s.store.ListCorrectiveActions(r.Context(), recordID)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, actions)
	case http.MethodPost:
		var action model.CorrectiveAction
		if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if action.Name == "" {
			http.Error(w, "action name is required", http.StatusBadRequest)
			return
		}
		if action.Priority == "" {
			action.Priority = model.PriorityMedium
		}
		if !action.Priority.Valid() {
			http.Error(w, "unknown priority", http.StatusBadRequest)
			return
		}
		if action.Status == "" {
			action.Status = model.StatusOpen
		}
		action.ID = uuid.NewString()
		action.NonConformityID = recordID
		if err := s.store.CreateCorrectiveAction(r.Context(), &action); err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, action)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request, recordID string) {
	switch r.Method {
	case http.MethodGet:
		evidence, err := s.store.ListEvidence(r.Context(), recordID)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, evidence)
	case http.MethodPost:
		s.handleEvidenceUpload(w, r, recordID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleEvidenceUpload(w http.ResponseWriter, r *http.Request, recordID string) {
	if s.objects == nil {
		http.Error(w, "evidence storage not configured", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	if _, err := s.records.Get(ctx, recordID); err != nil {
		writeError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize+1024)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		http.Error(w, "expecting multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file part", http.StatusBadRequest)
		return
	}
	defer file.Close()

	fileType := model.FileType(r.FormValue("fileType"))
	if fileType == "" {
		fileType = model.FileOther
	}
	if !fileType.Valid() {
		http.Error(w, "unknown file type", http.StatusBadRequest)
		return
	}

	evidenceID := uuid.NewString()
	objectKey := fmt.Sprintf("%s/%s/%s", recordID, evidenceID, filepath.Base(header.Filename))
	contentType := sniffContentType(file, header)
	if err := s.objects.UploadAttachment(ctx, objectKey, file, header.Size, contentType); err != nil {
		log.Printf("upload evidence for %s: %v", recordID, err)
		http.Error(w, "failed to store attachment", http.StatusInternalServerError)
		return
	}
	ev := &model.Evidence{
		ID:              evidenceID,
		NonConformityID: recordID,
		Name:            header.Filename,
		FileType:        fileType,
		ObjectKey:       objectKey,
		Notes:           r.FormValue("notes"),
	}
	if err := s.store.CreateEvidence(ctx, ev); err != nil {
		writeError(w, err)
		return
	}
	if contentType == "application/pdf" {
		payload := queue.ExtractPayload{
			EvidenceID: evidenceID,
			ObjectKey:  objectKey,
			FileName:   header.Filename,
		}
		if err := s.tasks.EnqueueExtract(ctx, payload); err != nil {
			log.Printf("enqueue extract for evidence %s: %v", evidenceID, err)
		}
	}
	respondJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleEvidenceURL(w http.ResponseWriter, r *http.Request, recordID, evidenceID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.objects == nil {
		http.Error(w, "evidence storage not configured", http.StatusServiceUnavailable)
		return
	}
	ev, err := s.store.GetEvidence(r.Context(), evidenceID)
	if err != nil || ev.NonConformityID != recordID {
		http.Error(w, "evidence not found", http.StatusNotFound)
		return
	}
	url, err := s.objects.PresignAttachmentURL(r.Context(), ev.ObjectKey, 5*time.Minute)
	if err != nil {
		http.Error(w, "failed to generate url", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// sniffContentType prefers the real bytes over the client-declared header.
func sniffContentType(file multipart.File, header *multipart.FileHeader) string {
	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return header.Header.Get("Content-Type")
	}
	if n == 0 {
		return header.Header.Get("Content-Type")
	}
	return http.DetectContentType(buf[:n])
}

func writeError(w http.ResponseWriter, err error) {
	var rej *validation.Rejection
	switch {
	case errors.As(err, &rej):
		respondJSON(w, http.StatusUnprocessableEntity, rej)
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "record not found", http.StatusNotFound)
	case errors.Is(err, ticket.ErrContention):
		http.Error(w, "numbering contention, retry the request", http.StatusConflict)
	case errors.Is(err, storage.ErrDuplicateTicket):
		http.Error(w, "ticket number already in use", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
