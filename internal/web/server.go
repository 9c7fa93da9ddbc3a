// Package web exposes the read-only HTTP API: reconciled prices, source
// health, tradeability checks, trail analysis and an SSE price stream.
package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/priceguard/internal/domain"
	"github.com/vadiminshakov/priceguard/internal/services/aggregator"
	"github.com/vadiminshakov/priceguard/pkg/indicators"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

const (
	streamPollInterval = 2 * time.Second
	defaultPeriod      = 14
)

type priceService interface {
	Prices(ctx context.Context, assets []domain.AssetID) (map[domain.AssetID]domain.ReconciledPrice, error)
	Tradeable(assets ...domain.AssetID) error
	Status() []domain.SourceStatus
}

type trailReader interface {
	After(index uint64) ([]domain.ReconciledPriceRecord, error)
	TrailFor(asset domain.AssetID, index uint64) ([]domain.ReconciledPriceRecord, error)
}

type balanceService interface {
	Balances(ctx context.Context) ([]domain.AssetBalance, error)
}

// Server serves the price API over HTTP.
type Server struct {
	addr     string
	prices   priceService
	trail    trailReader
	balances balanceService
	assets   []domain.AssetID
	logger   *zap.Logger
}

// NewServer creates a web server over the given price service and trail.
// The assets list is the default set served when a request names none.
func NewServer(addr string, prices priceService, trail trailReader, assets []domain.AssetID, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{addr: addr, prices: prices, trail: trail, assets: assets, logger: logger}
}

// WithBalances registers the wallet balance endpoint.
func (s *Server) WithBalances(svc balanceService) *Server {
	s.balances = svc
	return s
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/prices", s.handlePrices).Methods(http.MethodGet)
	r.HandleFunc("/prices/stream", s.handlePriceStream).Methods(http.MethodGet)
	r.HandleFunc("/tradeable", s.handleTradeable).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/analysis", s.handleAnalysis).Methods(http.MethodGet)
	if s.balances != nil {
		r.HandleFunc("/balances", s.handleBalances).Methods(http.MethodGet)
	}
	return r
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via ACME.
// It also starts an HTTP server on port 80 to handle ACME HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	// HTTP server on port 80 for ACME challenges and HTTP->HTTPS redirects.
	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("http (acme) server shutdown error", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("https server shutdown error", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http (acme) server error", zap.Error(err))
		}
	}()

	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handlePrices returns the reconciled price per requested asset. Assets
// with no usable price are serialized as null, never as zero.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	assets := s.requestedAssets(r)
	if len(assets) == 0 {
		http.Error(w, "no assets requested", http.StatusBadRequest)
		return
	}

	prices, err := s.prices.Prices(r.Context(), assets)
	if err != nil && !errors.Is(err, aggregator.ErrNoPrice) {
		s.logger.Warn("price lookup failed", zap.Error(err))
		http.Error(w, "prices unavailable", http.StatusServiceUnavailable)
		return
	}

	out := make(map[string]*domain.ReconciledPrice, len(assets))
	for _, asset := range assets {
		if rec, ok := prices[asset]; ok {
			p := rec
			out[asset.Symbol()] = &p
		} else {
			out[asset.Symbol()] = nil
		}
	}

	writeJSON(w, http.StatusOK, out)
}

type tradeableResult struct {
	Tradeable bool   `json:"tradeable"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Server) handleTradeable(w http.ResponseWriter, r *http.Request) {
	assets := s.requestedAssets(r)
	if len(assets) == 0 {
		http.Error(w, "no assets requested", http.StatusBadRequest)
		return
	}

	out := make(map[string]tradeableResult, len(assets))
	for _, asset := range assets {
		if err := s.prices.Tradeable(asset); err != nil {
			out[asset.Symbol()] = tradeableResult{Tradeable: false, Reason: err.Error()}
		} else {
			out[asset.Symbol()] = tradeableResult{Tradeable: true}
		}
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.balances.Balances(r.Context())
	if err != nil {
		s.logger.Warn("balance lookup failed", zap.Error(err))
		http.Error(w, "balances unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

type healthResponse struct {
	Status  string                `json:"status"`
	Sources []domain.SourceStatus `json:"sources"`
}

// handleHealth reports per-source circuit state. The service is degraded
// when any enabled source has an open circuit, down when all do.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sources := s.prices.Status()

	enabled, open := 0, 0
	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		enabled++
		if src.CircuitState == "open" {
			open++
		}
	}

	status := "ok"
	code := http.StatusOK
	switch {
	case enabled == 0 || open == enabled:
		status = "down"
		code = http.StatusServiceUnavailable
	case open > 0:
		status = "degraded"
	}

	writeJSON(w, code, healthResponse{Status: status, Sources: sources})
}

type analysisResponse struct {
	Asset  string `json:"asset"`
	Period int    `json:"period"`
	Points int    `json:"points"`
	SMA    string `json:"sma,omitempty"`
	EMA    string `json:"ema,omitempty"`
	RSI    string `json:"rsi,omitempty"`
}

// handleAnalysis computes SMA, EMA and RSI over the persisted trail of
// one asset. Advisory output only.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.URL.Query().Get("asset"))
	if symbol == "" {
		http.Error(w, "asset query param is required", http.StatusBadRequest)
		return
	}
	if s.trail == nil {
		http.Error(w, "price trail not available", http.StatusServiceUnavailable)
		return
	}

	period := defaultPeriod
	if raw := r.URL.Query().Get("period"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 2 {
			http.Error(w, "period must be an integer >= 2", http.StatusBadRequest)
			return
		}
		period = p
	}

	asset := domain.NewAssetID(strings.ToUpper(symbol), "Unit", "none", "none")
	records, err := s.trail.TrailFor(asset, 0)
	if err != nil {
		s.logger.Warn("trail read failed", zap.String("asset", symbol), zap.Error(err))
		http.Error(w, "trail read failed", http.StatusInternalServerError)
		return
	}

	series := make([]decimal.Decimal, 0, len(records))
	for _, rec := range records {
		series = append(series, rec.Price.Recommended)
	}

	resp := analysisResponse{Asset: strings.ToUpper(symbol), Period: period, Points: len(series)}
	if sma, err := indicators.CalculateSMA(series, period); err == nil && len(sma) > 0 {
		resp.SMA = sma[len(sma)-1].StringFixed(8)
	}
	if ema, err := indicators.CalculateEMA(series, period); err == nil && len(ema) > 0 {
		resp.EMA = ema[len(ema)-1].StringFixed(8)
	}
	if rsi, err := indicators.CalculateRSI(series, period); err == nil && len(rsi) > 0 {
		resp.RSI = rsi[len(rsi)-1].StringFixed(2)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handlePriceStream streams reconciled prices over SSE as they land in
// the trail. Supports resume via the Last-Event-ID header.
func (s *Server) handlePriceStream(w http.ResponseWriter, r *http.Request) {
	if s.trail == nil {
		http.Error(w, "price trail not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// comment heartbeat so proxies keep the connection
	heartbeat := time.NewTicker(20 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(streamPollInterval)
	defer pollTicker.Stop()

	lastIndex := parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("last_event_id"))
	sendPrices := func() error {
		records, err := s.trail.After(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Price)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: price\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendPrices(); err != nil {
		http.Error(w, "failed to load price trail", http.StatusInternalServerError)
		s.logger.Warn("price stream initial load failed", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendPrices(); err != nil {
				s.logger.Warn("price stream poll failed", zap.Error(err))
			}
		}
	}
}

// requestedAssets resolves the assets query param, falling back to the
// configured set when the request names none.
func (s *Server) requestedAssets(r *http.Request) []domain.AssetID {
	raw := strings.TrimSpace(r.URL.Query().Get("assets"))
	if raw == "" {
		return s.assets
	}

	var assets []domain.AssetID
	for _, symbol := range strings.Split(raw, ",") {
		symbol = strings.TrimSpace(strings.ToUpper(symbol))
		if symbol == "" {
			continue
		}
		assets = append(assets, domain.NewAssetID(symbol, "Unit", "none", "none"))
	}
	return assets
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// parseLastEventID extracts an SSE event ID from either the Last-Event-ID
// header or a query parameter. The header is preferred.
func parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
