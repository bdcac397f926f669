package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"CryptoSignal/internal/domain/models"
	domrepo "CryptoSignal/internal/domain/repository"
	pkgkafka "CryptoSignal/pkg/kafka"
	applogger "CryptoSignal/pkg/logger"
)

// Analyzer is the pipeline surface the request handler and scheduler use.
type Analyzer interface {
	AnalyzeAll(ctx context.Context, symbols []string) []models.Bundle
	Refresh(ctx context.Context, symbols []string) []models.Bundle
}

// AnalysisRequestHandler answers on-demand analysis requests from Kafka by
// publishing the resulting bundles.
type AnalysisRequestHandler struct {
	topic     string
	pipeline  Analyzer
	publisher domrepo.Publisher
	metrics   domrepo.Metrics
	validate  *validator.Validate
	log       *applogger.Logger
}

func NewAnalysisRequestHandler(topic string, p Analyzer, pub domrepo.Publisher, m domrepo.Metrics, log *applogger.Logger) *AnalysisRequestHandler {
	return &AnalysisRequestHandler{
		topic:     topic,
		pipeline:  p,
		publisher: pub,
		metrics:   m,
		validate:  validator.New(),
		log:       log.Named("request-handler"),
	}
}

func (h *AnalysisRequestHandler) Topic() string { return h.topic }

// Handle decodes {"request_id","symbols","refresh"}. Malformed requests are
// logged and acknowledged; only publish failures are retried.
func (h *AnalysisRequestHandler) Handle(ctx context.Context, b []byte) error {
	var req models.AnalysisRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("request_unmarshal")
		h.log.Warn("dropping malformed request", applogger.Error(err))
		return nil
	}
	if err := h.validate.Struct(req); err != nil {
		h.metrics.RecordError("request_invalid")
		h.log.Warn("dropping invalid request", applogger.String("request_id", req.RequestID), applogger.Error(err))
		return nil
	}

	start := time.Now()
	var bundles []models.Bundle
	if req.Refresh {
		bundles = h.pipeline.Refresh(ctx, req.Symbols)
	} else {
		bundles = h.pipeline.AnalyzeAll(ctx, req.Symbols)
	}
	h.metrics.RecordLatency("request_analyze", time.Since(start).Seconds())

	if err := h.publisher.PublishBatch(ctx, bundles); err != nil {
		return fmt.Errorf("publish request %s: %w", req.RequestID, err)
	}
	h.log.Info("request answered",
		applogger.String("request_id", req.RequestID),
		applogger.String("trace_id", pkgkafka.TraceID(ctx)),
		applogger.Int("bundles", len(bundles)))
	return nil
}

var _ pkgkafka.MessageHandler = (*AnalysisRequestHandler)(nil)
