package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/service/ratelimit"
	"CryptoSignal/internal/usecase"
	"CryptoSignal/pkg/config"
	xhttp "CryptoSignal/pkg/http"
	xlogger "CryptoSignal/pkg/logger"
)

const maxSymbolsPerRequest = 20

var _ xhttp.Handler = (*SignalsEchoHandler)(nil)

// SignalService is the pipeline surface the handlers use.
type SignalService interface {
	usecase.Analyzer
	Analyze(ctx context.Context, symbol string) models.Bundle
}

// HealthCheck reports a dependency's status. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// SignalsEchoHandler serves signal bundles and the raw market data behind them.
type SignalsEchoHandler struct {
	cfg      *config.Config
	logger   *xlogger.Logger
	signals  SignalService
	data     usecase.MarketData
	limiter  *ratelimit.Limiter
	burst    float64
	perSec   float64
	defaults []string
	checks   map[string]HealthCheck
}

func NewSignalsEchoHandler(cfg *config.Config, logger *xlogger.Logger, signals SignalService, data usecase.MarketData, limiter *ratelimit.Limiter, checks map[string]HealthCheck) *SignalsEchoHandler {
	return &SignalsEchoHandler{
		cfg:      cfg,
		logger:   logger.Named("api"),
		signals:  signals,
		data:     data,
		limiter:  limiter,
		burst:    cfg.Server.RateLimit.Burst,
		perSec:   cfg.Server.RateLimit.PerSecond,
		defaults: cfg.SymbolNames(),
		checks:   checks,
	}
}

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api", h.throttle)
	g.GET("/signals", h.Signals)
	g.GET("/signals/:symbol", h.Signal)
	g.GET("/price/:symbol", h.Price)
	g.GET("/history/:symbol", h.History)
}

// throttle applies a per-client token bucket.
func (h *SignalsEchoHandler) throttle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.limiter.Allow("http:"+c.RealIP(), h.burst, h.perSec) {
			h.logger.Warn("client throttled", xlogger.String("remote", c.RealIP()), xlogger.String("route", c.Path()))
			c.Response().Header().Set("Retry-After", "1")
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
		}
		return next(c)
	}
}

// Signals returns bundles for ?symbols=BTC,ETH or every configured symbol.
func (h *SignalsEchoHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbols := h.defaults
	if req.Symbols != "" {
		symbols = splitSymbols(req.Symbols)
	}
	if len(symbols) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("no symbols requested"))
	}
	if len(symbols) > maxSymbolsPerRequest {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_MAX", "symbols", "too many symbols", http.StatusBadRequest).
			WithParam("max", maxSymbolsPerRequest))
	}
	for _, s := range symbols {
		if !isAlpha(s) {
			return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_ALPHA", "symbols", "symbols must contain letters only", http.StatusBadRequest).
				WithParam("symbol", s))
		}
		if err := h.supported(s); err != nil {
			return xhttp.AppErrorResponse(c, err)
		}
	}

	ctx := c.Request().Context()
	var bundles []models.Bundle
	if req.Refresh {
		bundles = h.signals.Refresh(ctx, symbols)
	} else {
		bundles = h.signals.AnalyzeAll(ctx, symbols)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=30")
	return xhttp.ListResponse(c, bundles, int64(len(bundles)))
}

func (h *SignalsEchoHandler) Signal(c echo.Context) error {
	req := &models.SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)
	if err := h.supported(symbol); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	ctx := c.Request().Context()

	var b models.Bundle
	if req.Refresh {
		b = h.signals.Refresh(ctx, []string{symbol})[0]
	} else {
		b = h.signals.Analyze(ctx, symbol)
	}
	return xhttp.SuccessResponse(c, b)
}

func (h *SignalsEchoHandler) Price(c echo.Context) error {
	req := &models.SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)
	if err := h.supported(symbol); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	p := h.data.Price(c.Request().Context(), symbol)
	return xhttp.SuccessResponse(c, p)
}

func (h *SignalsEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)
	if err := h.supported(symbol); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	s := h.data.History(c.Request().Context(), symbol, req.Days)
	return xhttp.SuccessResponse(c, s)
}

// supported rejects tickers missing from the symbol table.
func (h *SignalsEchoHandler) supported(symbol string) *xhttp.AppError {
	if _, ok := h.cfg.Symbol(symbol); ok {
		return nil
	}
	return xhttp.NewAppError("ERR_UNSUPPORTED", "symbol", "symbol is not supported", http.StatusNotFound).
		WithParam("symbol", symbol)
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Time   time.Time         `json:"time"`
}

// Health runs every registered check with a short deadline.
func (h *SignalsEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	res := healthStatus{Status: "ok", Checks: map[string]string{}, Time: time.Now().UTC()}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "ok"
	}
	return c.JSON(code, res)
}

func splitSymbols(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return s != ""
}
