package http

import (
	"context"
	"errors"
	"net/http"

	"ecocalc/internal/core"
	applog "ecocalc/internal/log"
	"ecocalc/internal/services"
	"ecocalc/internal/storage"
)

// CalculationAPI is the service surface the handlers depend on.
type CalculationAPI interface {
	Calculate(ctx context.Context, in core.CalculationInput) (core.CalculationResult, error)
	History(ctx context.Context, limit int) ([]core.CalculationResult, error)
	Calculation(ctx context.Context, id string) (core.CalculationResult, error)
	Stats(ctx context.Context) (core.UsageStats, error)
	Health() services.HealthStatus
	Ready(ctx context.Context) error
}

var _ CalculationAPI = (*services.CalculationService)(nil)

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in, err := DecodeCalculationInput(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logRejected(ctx, err, applog.OpParse, nil)
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	result, err := s.svc.Calculate(ctx, in)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			logRejected(ctx, err, applog.OpValidate, nil)
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
		s.logError(ctx, "Calculation failed", err, applog.OpCalculate)
		InternalServerError().Write(w)
		return
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogCalculationCreated(ctx, result.ID, result.Scope1, result.Scope2, result.Scope3, result.Total)
	NewJSONResponse().Data(result).Write(w)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := ParseLimit(r.URL.Query())
	if err != nil {
		logRejected(ctx, err, applog.OpParse, nil)
		BadRequestError(err.Error()).Write(w)
		return
	}

	items, err := s.svc.History(ctx, limit)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			logRejected(ctx, err, applog.OpHistory, applog.LogFields{applog.FieldLimit: limit})
			BadRequestError(err.Error()).Write(w)
			return
		}
		s.logError(ctx, "History query failed", err, applog.OpHistory)
		InternalServerError().Write(w)
		return
	}

	NewJSONResponse().Data(items).Write(w)
}

func (s *Server) handleCalculation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := s.svc.Calculation(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			NotFoundError("Calculation not found.").Write(w)
			return
		}
		s.logError(ctx, "Calculation lookup failed", err, applog.OpHistory)
		InternalServerError().Write(w)
		return
	}

	NewJSONResponse().Data(result).Write(w)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := s.svc.Stats(ctx)
	if err != nil {
		s.logError(ctx, "Stats query failed", err, applog.OpStats)
		InternalServerError().Write(w)
		return
	}

	NewJSONResponse().Data(stats).Write(w)
}

// handleFactors serves the factor table grouped by scope, e.g. {"scope1":{"naturalGas":2.02,...}}.
func (s *Server) handleFactors(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]map[core.Category]float64, 3)
	for _, f := range core.Factors() {
		group, ok := out[f.Scope.String()]
		if !ok {
			group = make(map[core.Category]float64)
			out[f.Scope.String()] = group
		}
		group[f.Category] = f.Value
	}
	NewJSONResponse().Header("Cache-Control", "public, max-age=3600").Data(out).Write(w)
}

func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(s.svc.Health()).Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ready(r.Context()); err != nil {
		s.logError(r.Context(), "Readiness check failed", err, applog.OpReady)
		ServiceUnavailableError("not ready").Write(w)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) logError(ctx context.Context, msg string, err error, op string) {
	errorType := applog.ErrorTypeInternal
	if errors.Is(err, context.DeadlineExceeded) {
		errorType = applog.ErrorTypeTimeout
	}
	applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, msg, err, errorType, op, nil)
}

// logRejected records a client error at debug level; the caller gets the message in the body.
func logRejected(ctx context.Context, err error, op string, fields applog.LogFields) {
	if fields == nil {
		fields = applog.NewFields()
	}
	fields.WithError(err, applog.ErrorTypeValidation).WithOperation(op)
	applog.FromContext(ctx).DebugContext(ctx, "Request rejected", fields.ToSlice()...)
}
