// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/clinicacampos/bfa-notary/internal/audit"
	"github.com/clinicacampos/bfa-notary/internal/chain"
	"github.com/clinicacampos/bfa-notary/internal/consolidate"
	"github.com/clinicacampos/bfa-notary/internal/hashing"
	"github.com/clinicacampos/bfa-notary/internal/metrics"
	"github.com/clinicacampos/bfa-notary/internal/models"
	"github.com/clinicacampos/bfa-notary/internal/storage"
	"github.com/clinicacampos/bfa-notary/pkg/utils"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int           `json:"port"`
	Host          string        `json:"host"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics"`
	EnableHealth  bool          `json:"enable_health"`
}

// ChainClient is the node access the server needs beyond the auditor:
// a connectivity probe and a throwaway submission for the test route.
type ChainClient interface {
	Ping(ctx context.Context) error
	Submit(ctx context.Context, digestHex string) (*models.ChainSubmission, error)
}

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config       *ServerConfig
	server       *http.Server
	router       *mux.Router
	storage      storage.Storage
	consolidator *consolidate.Consolidator
	auditor      *audit.Auditor
	chainClient  ChainClient
	metrics      *metrics.PrometheusMetrics
	logger       *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	config *ServerConfig,
	store storage.Storage,
	consolidator *consolidate.Consolidator,
	auditor *audit.Auditor,
	chainClient ChainClient,
	promMetrics *metrics.PrometheusMetrics,
) (*HTTPServer, error) {

	server := &HTTPServer{
		config:       config,
		storage:      store,
		consolidator: consolidator,
		auditor:      auditor,
		chainClient:  chainClient,
		metrics:      promMetrics,
		logger:       utils.GetLogger(),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metrics != nil {
		s.router.Use(s.metricsMiddleware)
	}

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health check endpoints
	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	// Metrics endpoints
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Clinical entry endpoints
	api.HandleFunc("/patients/{id}/entries", s.addEntryHandler).Methods("POST")
	api.HandleFunc("/patients/{id}/entries", s.listEntriesHandler).Methods("GET")
	api.HandleFunc("/patients/{id}/record", s.getRecordHandler).Methods("GET")

	// Blockchain endpoints
	api.HandleFunc("/blockchain/register/{id}", s.registerHandler).Methods("POST")
	api.HandleFunc("/blockchain/verify/{id}", s.verifyHandler).Methods("GET")
	api.HandleFunc("/blockchain/audits", s.listAuditsHandler).Methods("GET")
	api.HandleFunc("/blockchain/audits/{id}", s.listPatientAuditsHandler).Methods("GET")
	api.HandleFunc("/blockchain/test", s.testTxHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metrics != nil {
		health := s.storage.GetHealth()
		s.metrics.UpdateComponentHealth("storage", health.Healthy)
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithField("error", err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Catch immediate binding errors before declaring success
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// actor extracts the caller identity supplied by the authentication
// layer in front of this service.
func actor(r *http.Request) string {
	if v := r.Header.Get("X-Actor"); v != "" {
		return v
	}
	return "anonymous"
}

// Health Handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// detailedHealthHandler returns per-component health
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	storageHealth := s.storage.GetHealth()

	nodeHealthy := true
	var nodeError string
	if err := s.chainClient.Ping(r.Context()); err != nil {
		nodeHealthy = false
		nodeError = err.Error()
	}

	status := "healthy"
	if !storageHealth.Healthy || !nodeHealthy {
		status = "degraded"
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now(),
		"components": map[string]interface{}{
			"storage": storageHealth,
			"bfa_node": map[string]interface{}{
				"healthy": nodeHealthy,
				"error":   nodeError,
			},
		},
	}

	s.writeJSON(w, http.StatusOK, health)
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp": time.Now(),
		"storage":   storageStats,
	})
}

// Clinical entry handlers

// addEntryHandler stores a new clinical entry and re-consolidates the
// patient's record
func (s *HTTPServer) addEntryHandler(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry := &models.ClinicalEntry{
		PatientID: patientID,
		AuthorID:  actor(r),
		Content:   body.Content,
	}

	digest, err := s.consolidator.AddEntry(r.Context(), entry)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"entry_id":   entry.ID,
		"patient_id": patientID,
		"digest":     digest,
	})
}

// listEntriesHandler lists a patient's clinical entries
func (s *HTTPServer) listEntriesHandler(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]

	entries, err := s.storage.ListEntries(r.Context(), patientID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve entries", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"patient_id": patientID,
		"entries":    entries,
		"total":      len(entries),
	})
}

// getRecordHandler returns the patient's consolidated record
func (s *HTTPServer) getRecordHandler(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]

	record, err := s.storage.GetRecord(r.Context(), patientID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve record", err)
		return
	}
	if record == nil {
		s.writeError(w, http.StatusNotFound, "No consolidated record for patient", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, record)
}

// Blockchain handlers

// registerHandler consolidates and publishes the patient's digest
func (s *HTTPServer) registerHandler(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	start := time.Now()

	result, err := s.auditor.RegisterDigest(r.Context(), patientID, actor(r))
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRegistration("error", time.Since(start))
		}
		s.writeDomainError(w, err)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordRegistration(string(result.Status), time.Since(start))
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"patient_id": result.PatientID,
		"digest":     result.Digest,
		"tx_ref":     result.TxRef,
		"status":     result.Status,
		"message":    "Digest published to the BFA",
	})
}

// verifyHandler compares the stored digest against the chain
func (s *HTTPServer) verifyHandler(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	start := time.Now()

	result, err := s.auditor.Verify(r.Context(), patientID, actor(r))
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordVerification("error", time.Since(start))
		}
		s.writeDomainError(w, err)
		return
	}

	if s.metrics != nil {
		outcome := "valid"
		if !result.Valid {
			outcome = "invalid"
		}
		s.metrics.RecordVerification(outcome, time.Since(start))
		s.metrics.AuditEntriesTotal.Inc()
	}

	message := "Integrity verified"
	if !result.Valid {
		message = "Record digest does not match the chain"
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"patient_id":   result.PatientID,
		"local_digest": result.LocalDigest,
		"chain_digest": result.ChainDigest,
		"tx_ref":       result.TxRef,
		"valid":        result.Valid,
		"timestamp":    result.Timestamp,
		"message":      message,
	})
}

// listAuditsHandler lists the global audit ledger
func (s *HTTPServer) listAuditsHandler(w http.ResponseWriter, r *http.Request) {
	filter := parseAuditFilter(r)

	audits, err := s.auditor.ListAudits(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve audits", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"audits": audits,
		"total":  len(audits),
	})
}

// listPatientAuditsHandler lists the ledger for one patient
func (s *HTTPServer) listPatientAuditsHandler(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]

	filter := parseAuditFilter(r)
	filter.PatientID = &patientID

	audits, err := s.auditor.ListAudits(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve audits", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"patient_id": patientID,
		"audits":     audits,
		"total":      len(audits),
	})
}

// testTxHandler publishes a throwaway digest to prove node connectivity
func (s *HTTPServer) testTxHandler(w http.ResponseWriter, r *http.Request) {
	probe := fmt.Sprintf("bfa-notary connectivity probe %d", time.Now().UnixNano())
	digest := hashing.Digest([]byte(probe))

	submission, err := s.chainClient.Submit(r.Context(), digest)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"digest": digest,
		"tx_ref": submission.TxRef,
	})
}

func parseAuditFilter(r *http.Request) models.AuditFilter {
	filter := models.AuditFilter{Limit: 100}

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	return filter
}

// Utility Methods

// writeDomainError maps core error kinds to HTTP statuses: missing
// entries or registration are client errors, an unreachable node is
// 503, an unknown transaction on the chain side is a bad gateway.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hashing.ErrNoEntries):
		s.writeError(w, http.StatusBadRequest, "Patient has no clinical entries", err)
	case errors.Is(err, audit.ErrNoRecord):
		s.writeError(w, http.StatusNotFound, "No consolidated record for patient", err)
	case errors.Is(err, audit.ErrNotRegistered):
		s.writeError(w, http.StatusBadRequest, "Record has not been registered on the BFA", err)
	case errors.Is(err, chain.ErrNodeUnreachable):
		s.writeError(w, http.StatusServiceUnavailable, "BFA node unreachable", err)
	case errors.Is(err, chain.ErrTxNotFound):
		s.writeError(w, http.StatusBadGateway, "Transaction not found on the BFA", err)
	case errors.Is(err, chain.ErrSubmitFailed):
		s.writeError(w, http.StatusBadGateway, "BFA rejected the transaction", err)
	default:
		var appErr *utils.AppError
		if errors.As(err, &appErr) && appErr.Code == utils.ErrCodeValidation {
			s.writeError(w, http.StatusBadRequest, appErr.Message, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithField("error", err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
			"error":   err,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
