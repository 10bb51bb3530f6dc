package ratings

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/travelmap/ratings-api/internal/domain"
)

const tracerName = "github.com/travelmap/ratings-api/internal/app/ratings"

// Observer receives the outcome of every store I/O operation.
type Observer interface {
	ObserveOperation(op string, code string, elapsed time.Duration)
}

// OutcomeOK is the code reported to an Observer for a successful operation.
const OutcomeOK = "OK"

func (s *Store) instrument(ctx context.Context, op string, userID domain.UserID, code domain.CountryCode) (context.Context, func(error)) {
	attrs := []attribute.KeyValue{attribute.String("user.id", string(userID))}
	if code != domain.NoCountry {
		attrs = append(attrs, attribute.String("country.code", string(code)))
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ratings."+op, trace.WithAttributes(attrs...))
	start := time.Now()

	return ctx, func(err error) {
		outcome := OutcomeOK
		if err != nil {
			outcome = CodeTransport
			var e *Error
			if errors.As(err, &e) {
				outcome = e.Code
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if s.observer != nil {
			s.observer.ObserveOperation(op, outcome, time.Since(start))
		}
	}
}
