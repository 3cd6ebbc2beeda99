package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/JonMunkholm/regingest/internal/core"
	"github.com/JonMunkholm/regingest/internal/record"
	"github.com/JonMunkholm/regingest/internal/source"
)

// runRequest is the object form of a run body. A bare JSON array is
// accepted as well.
type runRequest struct {
	Records json.RawMessage `json:"records"`
	Source  string          `json:"source"`
}

// handleRun executes the pipeline on the posted batch. Non-fatal outcomes
// answer 200 with success=false when nothing was written.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	records, err := s.readBatch(w, r)
	if err != nil {
		respondError(w, r, err, "")
		return
	}

	res, err := s.service.Run(r.Context(), records)
	if err != nil {
		respondError(w, r, err, res.RunID)
		return
	}
	writeJSON(w, http.StatusOK, res.Report())
}

// handleValidate reports what a run would reject without touching storage.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	records, err := s.readBatch(w, r)
	if err != nil {
		respondError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, s.service.Validate(r.Context(), records).Report())
}

// handleRunStatus returns the run limiter state.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Limiter().Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"entity": s.service.Entity(),
		"runs":   s.service.Limiter().Status(),
	})
}

// readBatch decodes the request body: CSV when the content type says so,
// otherwise a JSON array or a runRequest object. The body is capped at
// MaxBodyBytes.
func (s *Server) readBatch(w http.ResponseWriter, r *http.Request) ([]*record.Record, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidBatch, err)
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		return decodeBatch(record.FormatCSV, data)
	}
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) == 0 || trimmed[0] != '{' {
		return decodeBatch(record.FormatJSON, data)
	}

	var req runRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidBatch, err)
	}
	switch {
	case req.Source != "" && len(req.Records) > 0:
		return nil, fmt.Errorf("%w: set either records or source, not both", errBadRequest)
	case req.Source != "":
		return s.readSource(r, req.Source)
	case len(req.Records) == 0:
		return nil, fmt.Errorf("%w: batch must be a JSON array of objects", core.ErrInvalidBatch)
	}
	return decodeBatch(record.FormatJSON, req.Records)
}

func decodeBatch(format record.Format, data []byte) ([]*record.Record, error) {
	records, err := record.Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidBatch, err)
	}
	return records, nil
}

// readSource loads a batch by reference. Only object storage is reachable
// over HTTP; local paths and stdin belong to the CLI.
func (s *Server) readSource(r *http.Request, ref string) ([]*record.Record, error) {
	if s.reader == nil || !source.IsS3(ref) {
		return nil, fmt.Errorf("%w: source must be an s3:// reference", errBadRequest)
	}
	b, err := s.reader.Read(r.Context(), ref)
	if err != nil {
		return nil, err
	}
	return b.Records, nil
}
