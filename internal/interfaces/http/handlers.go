package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/xmlongan/jmomden/internal/service"
	"github.com/xmlongan/jmomden/pkg/bcast"
	"github.com/xmlongan/jmomden/pkg/denorig"
	"github.com/xmlongan/jmomden/pkg/numerr"
)

const maxBodyBytes = 1 << 20

// badRequest marks errors caused by the request content
type badRequest struct{ error }

func (e badRequest) Unwrap() error { return e.error }

// classify maps an error to a status code and error code
func classify(err error) (int, string) {
	var br badRequest
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "model_not_found"
	case errors.Is(err, numerr.ErrDegenerate):
		return http.StatusUnprocessableEntity, "degenerate_moments"
	case errors.Is(err, numerr.ErrShape):
		return http.StatusBadRequest, "shape_mismatch"
	case errors.Is(err, numerr.ErrSequencing), errors.Is(err, numerr.ErrDivision):
		return http.StatusBadRequest, "invalid_input"
	case errors.As(err, &br):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeJSON writes JSON response with proper error handling
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		s.logger.Error().Err(err).Msg("response encoding failed")
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// writeError writes standardized error response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Msg("request failed")
	}
	s.writeError(w, r, status, code, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest{fmt.Errorf("invalid JSON body: %w", err)}
	}
	return nil
}

// notFound handles 404 responses
func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "The requested endpoint does not exist")
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Version:   s.version,
		Models:    len(s.registry.List()),
	}
	if s.health != nil {
		check := s.health.Health(r.Context())
		resp.Database = &check
		if !check.Healthy {
			resp.Status = "degraded"
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) buildModel(w http.ResponseWriter, r *http.Request) {
	var req BuildModelRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, r, badRequest{err})
		return
	}
	resolved, err := req.Resolve(s.defaultDegree, s.defaultFamily)
	if err != nil {
		if status, _ := classify(err); status == http.StatusInternalServerError {
			err = badRequest{err}
		}
		s.fail(w, r, err)
		return
	}

	m, err := s.registry.Build(r.Context(), service.BuildRequest{
		Moments: resolved.Table,
		Degree:  resolved.Degree,
		Family:  resolved.Family,
	})
	if err != nil {
		if status, _ := classify(err); status == http.StatusInternalServerError {
			err = badRequest{err}
		}
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/models/"+m.ID)
	s.writeJSON(w, http.StatusCreated, m.Snapshot())
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	models := s.registry.List()
	s.writeJSON(w, http.StatusOK, ModelListResponse{Models: models, Count: len(models)})
}

func (s *Server) getModel(w http.ResponseWriter, r *http.Request) {
	m, err := s.registry.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m.Snapshot())
}

func (s *Server) deleteModel(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) joint(w http.ResponseWriter, r *http.Request) {
	s.evaluate(w, r, "joint")
}

func (s *Server) conditional(w http.ResponseWriter, r *http.Request) {
	s.evaluate(w, r, "conditional")
}

func (s *Server) evaluate(w http.ResponseWriter, r *http.Request, op string) {
	var req EvalRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	out, err := s.eval(r, id, op, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, EvalResponse{ModelID: id, Op: op, Values: Operand{Value: out, set: true}})
}

// eval runs one evaluation request against model id
func (s *Server) eval(r *http.Request, id, op string, req EvalRequest) (bcast.Value, error) {
	if !req.V.set || !req.Y.set {
		return bcast.Value{}, badRequest{errors.New("both v and y are required")}
	}
	switch op {
	case "joint":
		return s.registry.Joint(r.Context(), id, req.V.Value, req.Y.Value)
	case "conditional":
		opts := []denorig.CondOption{denorig.WithWarn(req.Warn)}
		if req.Repair != nil {
			opts = append(opts, denorig.WithRepair(*req.Repair))
		}
		return s.registry.Conditional(r.Context(), id, req.Y.Value, req.V.Value, opts...)
	default:
		return bcast.Value{}, badRequest{fmt.Errorf("unknown op %q", op)}
	}
}
