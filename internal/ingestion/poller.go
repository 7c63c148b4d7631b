package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"TradeScope/internal/observability"
)

// DefaultPollInterval is used when the configured interval is zero.
const DefaultPollInterval = 3 * time.Second

// TradesPoller periodically fetches recent trades from an upstream
// indexer REST endpoint and feeds them into the same raw channel as the
// NATS subscriber. Each poll re-fetches a lookback window, so overlap
// with previous polls (and with NATS delivery) is expected; the
// normalizer's dedup makes the overlap harmless.
type TradesPoller struct {
	baseURL  string
	client   *http.Client
	interval time.Duration
	lookback time.Duration
	rawChan  chan<- RawEvent
	metrics  *observability.Metrics
	logger   zerolog.Logger

	lastPoll time.Time
}

func NewTradesPoller(
	baseURL string,
	interval, lookback time.Duration,
	rawChan chan<- RawEvent,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *TradesPoller {
	if interval == 0 {
		interval = DefaultPollInterval
	}
	return &TradesPoller{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		interval: interval,
		lookback: lookback,
		rawChan:  rawChan,
		metrics:  metrics,
		logger:   logger,
		lastPoll: time.Now().Add(-lookback),
	}
}

// Start begins polling until ctx is done.
func (p *TradesPoller) Start(ctx context.Context) {
	p.logger.Info().
		Str("base_url", p.baseURL).
		Dur("interval", p.interval).
		Msg("trades poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if err := p.poll(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("initial poll failed")
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("trades poller stopped")
			return
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				p.logger.Warn().Err(err).Msg("poll failed")
			}
		}
	}
}

func (p *TradesPoller) poll(ctx context.Context) error {
	after := p.lastPoll.Add(-p.lookback)
	url := fmt.Sprintf("%s/trades?after=%d&limit=500", p.baseURL, after.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.metrics.PollRequests.WithLabelValues("error").Inc()
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.metrics.PollRequests.WithLabelValues("error").Inc()
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.metrics.PollRequests.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.metrics.PollRequests.WithLabelValues("error").Inc()
		return fmt.Errorf("read body: %w", err)
	}
	p.metrics.PollRequests.WithLabelValues("200").Inc()
	p.lastPoll = time.Now()

	raw := RawEvent{
		Subject:   url,
		Kind:      "trades",
		Data:      body,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}

	select {
	case p.rawChan <- raw:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
