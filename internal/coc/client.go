package coc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/cache"
	"main/internal/credential"
	"main/internal/errors"
	"main/internal/obs"
	"main/pkg/exception"
)

const (
	defaultBaseURL     = "https://api.clashofclans.com/v1"
	defaultTimeout     = 12 * time.Second
	defaultConcurrency = 6

	defaultClanTTL   = time.Minute
	defaultPlayerTTL = 5 * time.Minute
	defaultWarTTL    = 30 * time.Second
)

// Config controls the gateway client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Concurrency int

	ClanTTL   time.Duration
	PlayerTTL time.Duration
	WarTTL    time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.ClanTTL <= 0 {
		c.ClanTTL = defaultClanTTL
	}
	if c.PlayerTTL <= 0 {
		c.PlayerTTL = defaultPlayerTTL
	}
	if c.WarTTL <= 0 {
		c.WarTTL = defaultWarTTL
	}
	return c
}

// Client serves cached, deduplicated, failover-resilient fetches against the
// upstream API. It composes the TTL cache, the request coalescer, and the
// credential selector; every tracker loop shares one instance.
type Client struct {
	cfg     Config
	http    *http.Client
	store   *cache.Store
	flight  *cache.Coalescer
	creds   *credential.Selector
	sem     chan struct{}
	metrics *obs.Metrics
}

// NewClient wires the gateway together.
func NewClient(cfg Config, httpClient *http.Client, creds *credential.Selector, metrics *obs.Metrics) *Client {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		store:   cache.NewStore(),
		flight:  cache.NewCoalescer(),
		creds:   creds,
		sem:     make(chan struct{}, cfg.Concurrency),
		metrics: metrics,
	}
}

// Clan fetches the clan document for a tag.
func (c *Client) Clan(ctx context.Context, tag string) (*Clan, error) {
	return getOrFetch[Clan](ctx, c, "clan:"+tag, "/clans/"+url.PathEscape(tag), c.cfg.ClanTTL)
}

// ClanMembers fetches the clan roster. A missing clan yields ErrNotFound;
// any other failure surfaces unchanged so callers can skip the tick.
func (c *Client) ClanMembers(ctx context.Context, tag string) ([]ClanMember, error) {
	clan, err := c.Clan(ctx, tag)
	if err != nil {
		return nil, err
	}
	return clan.MemberList, nil
}

// Player fetches the player document for a tag.
func (c *Client) Player(ctx context.Context, tag string) (*Player, error) {
	return getOrFetch[Player](ctx, c, "player:"+tag, "/players/"+url.PathEscape(tag), c.cfg.PlayerTTL)
}

// CurrentWar fetches the clan's current war.
func (c *Client) CurrentWar(ctx context.Context, tag string) (*War, error) {
	return getOrFetch[War](ctx, c, "war:"+tag, "/clans/"+url.PathEscape(tag)+"/currentwar", c.cfg.WarTTL)
}

// CapitalRaidSeason fetches the clan's capital raid seasons.
func (c *Client) CapitalRaidSeason(ctx context.Context, tag string) (*CapitalRaidSeason, error) {
	return getOrFetch[CapitalRaidSeason](ctx, c, "raid:"+tag, "/clans/"+url.PathEscape(tag)+"/capitalraidseason", c.cfg.ClanTTL)
}

// InvalidateClan drops every cached document for a clan.
func (c *Client) InvalidateClan(tag string) {
	c.store.Invalidate("clan:" + tag)
	c.store.Invalidate("war:" + tag)
	c.store.Invalidate("raid:" + tag)
}

// Cache exposes the underlying store for status reporting.
func (c *Client) Cache() *cache.Store {
	return c.store
}

// getOrFetch is the cached, coalesced fetch path. A fresh entry short-circuits
// the upstream entirely; otherwise concurrent callers for the same key share
// one settled outcome.
func getOrFetch[T any](ctx context.Context, c *Client, key, path string, ttl time.Duration) (*T, error) {
	if v, ok := c.store.Get(key, ttl); ok {
		c.metrics.IncCacheHit()
		if v == any(cache.Absent) {
			return nil, exception.ErrNotFound
		}
		return v.(*T), nil
	}
	c.metrics.IncCacheMiss()

	v, shared, err := c.flight.Do(ctx, key, func() (any, error) {
		return c.fetch(ctx, key, path, func(body []byte) (any, error) {
			out := new(T)
			if err := json.Unmarshal(body, out); err != nil {
				return nil, errors.Wrap(exception.ErrMalformed, err.Error())
			}
			return out, nil
		})
	})
	if shared {
		c.metrics.IncCoalescedWait()
	}
	if err != nil {
		return nil, err
	}
	typed, ok := v.(*T)
	if !ok {
		return nil, exception.ErrMalformed
	}
	return typed, nil
}

// fetch runs one logical upstream fetch: pick the active credential, try the
// remaining ones in order on failure, and cache whatever settles. A 404 is a
// successful settlement; it is cached as confirmed-absent with the same TTL
// class as positive results.
func (c *Client) fetch(ctx context.Context, key, path string, decode func([]byte) (any, error)) (any, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	active, err := c.creds.Select(ctx)
	if err != nil {
		return nil, err
	}
	candidates := append([]credential.Credential{active}, c.creds.Candidates(active)...)

	started := time.Now()
	defer func() { c.metrics.ObserveFetch(time.Since(started)) }()

	for i, cred := range candidates {
		v, err := c.request(ctx, path, cred, decode)
		switch {
		case err == nil:
			if i > 0 {
				c.metrics.IncFailover()
			}
			c.creds.ReportSuccess(cred)
			c.store.Set(key, v)
			return v, nil

		case errors.Is(err, exception.ErrNotFound):
			// the credential worked; the resource is confirmed missing
			c.creds.ReportSuccess(cred)
			c.store.SetAbsent(key)
			c.metrics.IncNotFound()
			return nil, exception.ErrNotFound

		case errors.Is(err, exception.ErrMalformed):
			// the credential worked; another one will not fix the payload
			c.creds.ReportSuccess(cred)
			c.metrics.IncFetchFailure()
			return nil, err

		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err

		default:
			c.creds.ReportFailure(cred)
			logs.Warnf("fetch %s with credential %q failed, err: %+v", path, cred.Identity, err)
		}
	}

	c.creds.ReportExhausted()
	c.metrics.IncFetchFailure()
	return nil, errors.Wrap(exception.ErrExhausted, path)
}

// request performs a single authenticated GET under the per-request timeout
// and maps transport and status failures onto the error taxonomy.
func (c *Client) request(ctx context.Context, path string, cred credential.Credential, decode func([]byte) (any, error)) (any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/json")

	c.metrics.IncUpstreamCall()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if reqCtx.Err() != nil {
			return nil, errors.Wrap(exception.ErrTimeout, path)
		}
		return nil, errors.Wrap(exception.ErrConnection, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, exception.ErrNotFound
	default:
		return nil, exception.NewHTTPError(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(exception.ErrConnection, err.Error())
	}
	return decode(body)
}
