package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/pkg/config"
	"github.com/wonny/lianban/pkg/httputil"
	"github.com/wonny/lianban/pkg/logger"
	"github.com/wonny/lianban/pkg/redis"
)

// ZhituClient handles the zhitu (智兔数服) pool API
// ⭐ SSOT: zhitu 호출은 이 클라이언트에서만
type ZhituClient struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	token      string
}

// NewZhituClient creates a client over a prepared http client
func NewZhituClient(httpClient *httputil.Client, cfg config.ZhituConfig, log *logger.Logger) *ZhituClient {
	if log == nil {
		log = logger.Nop()
	}
	return &ZhituClient{
		httpClient: httpClient,
		logger:     log,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
	}
}

// NewZhituClientFromConfig wires retry, the local rate limit and, when
// Redis is enabled, the shared sliding-window limit
func NewZhituClientFromConfig(cfg *config.Config, rdb *redis.Client, log *logger.Logger) *ZhituClient {
	hc := httputil.New(log, cfg.Zhitu.Timeout).
		WithRetry(cfg.Zhitu.MaxRetries, 500*time.Millisecond).
		WithRate(cfg.Zhitu.RatePerSec)
	if rdb != nil && rdb.Enabled() {
		limit := redis.ZhituRateLimit
		limit.Limit = int(cfg.Zhitu.RatePerSec)
		if limit.Limit < 1 {
			limit.Limit = 1
		}
		hc = hc.WithRateLimiter(redis.NewRateLimiter(rdb, "lianban"), limit)
	}
	return NewZhituClient(hc, cfg.Zhitu, log)
}

// FetchPool downloads one pool. An empty pool yields ErrNoData (休市).
func (c *ZhituClient) FetchPool(ctx context.Context, kind PoolKind, date time.Time) ([]PoolRecord, error) {
	if c.token == "" {
		return nil, fmt.Errorf("zhitu token not configured")
	}

	endpoint := fmt.Sprintf("%s/hs/pool/%s/%s?token=%s",
		c.baseURL, kind.endpoint(), dateString(date), url.QueryEscape(c.token))

	body, err := c.httpClient.GetBytes(ctx, endpoint)
	if err != nil {
		var se *httputil.StatusError
		if errors.As(err, &se) {
			se.URL = strings.Replace(se.URL, url.QueryEscape(c.token), "***", 1)
		}
		return nil, fmt.Errorf("fetch %s: %w", describe(kind, date), err)
	}

	records, err := ParsePool(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", describe(kind, date), err)
	}
	if len(records) == 0 {
		return nil, ErrNoData
	}

	c.logger.WithDate(date).WithFields(map[string]interface{}{
		"pool":  string(kind),
		"count": len(records),
	}).Debug("Fetched zhitu pool")

	return records, nil
}

// FetchLimitUpPool downloads the 涨停股池
func (c *ZhituClient) FetchLimitUpPool(ctx context.Context, date time.Time) ([]PoolRecord, error) {
	return c.FetchPool(ctx, PoolLimitUp, date)
}

// ZhituSource is a Source backed by the zhitu API. Bars come from klines
// when given.
type ZhituSource struct {
	client *ZhituClient
	*assembler
}

// NewZhituSource creates an API-backed source
func NewZhituSource(client *ZhituClient, klines *KlineStore, log *logger.Logger) *ZhituSource {
	s := &ZhituSource{client: client}
	s.assembler = newAssembler(s, klines, log)
	return s
}

// Load implements Source
func (s *ZhituSource) Load(ctx context.Context, date time.Time) (*contracts.DailyBatch, error) {
	return s.load(ctx, date)
}

func (s *ZhituSource) readPool(ctx context.Context, kind PoolKind, date time.Time) ([]PoolRecord, error) {
	return s.client.FetchPool(ctx, kind, date)
}
