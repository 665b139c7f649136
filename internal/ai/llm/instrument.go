package llm

import (
	"context"
	"errors"
	"time"

	"aibbs/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("aibbs/ai/llm")

// instrumented 给每次调用加超时，并记录 span、耗时和 debug 日志
type instrumented struct {
	next    Gateway
	timeout time.Duration
	log     *zap.Logger
}

// WithTimeout 每次调用超过 d 即取消
func WithTimeout(g Gateway, d time.Duration, log *zap.Logger) Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &instrumented{next: g, timeout: d, log: log}
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Complete(ctx context.Context, req Request) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("llm.provider", i.next.Name()),
		attribute.Float64("llm.temperature", req.Temperature),
		attribute.Int("llm.max_tokens", req.MaxTokens),
	))
	defer span.End()

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := i.next.Complete(ctx, req)
	elapsed := time.Since(start)
	metrics.LLMLatency.WithLabelValues(i.next.Name(), metrics.OK(err == nil)).Observe(elapsed.Seconds())

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = &BackendError{Provider: i.next.Name(), Kind: KindTimeout, Err: ctx.Err()}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err))
		i.log.Warn("llm call failed",
			zap.String("provider", i.next.Name()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return "", err
	}

	span.SetAttributes(attribute.Int("llm.output_chars", len(out)))
	i.log.Debug("llm call ok", zap.String("provider", i.next.Name()), zap.Duration("elapsed", elapsed))
	return out, nil
}
