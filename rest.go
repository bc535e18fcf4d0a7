package chiru

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Fuyukai/chiru/discord"
)

const (
	apiBasePath = "/api/v10"

	// How long to sleep on a 429 before the single retry.
	rateLimitMaxBackoff = 10 * time.Second
)

// UserAgent is sent with every REST call.
var UserAgent = "DiscordBot (https://github.com/Fuyukai/chiru, " + VERSION + ")"

// RestClient is a minimal client for the parts of the HTTP API the gateway
// layer needs. Rate limits are tracked per route from the response headers;
// a request that would exhaust a bucket waits for the reset first.
type RestClient struct {
	logger zerolog.Logger

	baseURL string
	token   string

	http *http.Client

	bucketsMu sync.Mutex
	buckets   map[string]*restBucket
}

type restBucket struct {
	remaining int64
	resetAt   time.Time
}

// NewRestClient creates a REST client using the given token.
func NewRestClient(logger zerolog.Logger, baseURL, token string) *RestClient {
	return &RestClient{
		logger: logger.With().Str("component", "rest").Logger(),

		baseURL: baseURL,
		token:   token,

		http: &http.Client{Timeout: 30 * time.Second},

		buckets: make(map[string]*restBucket),
	}
}

// GetGatewayBot fetches the gateway URL and recommended shard count.
func (r *RestClient) GetGatewayBot(ctx context.Context) (*discord.GatewayBot, error) {
	var gateway discord.GatewayBot

	err := r.do(ctx, http.MethodGet, "/gateway/bot", nil, &gateway)
	if err != nil {
		return nil, err
	}

	return &gateway, nil
}

// CreateMessage sends a message to a channel.
func (r *RestClient) CreateMessage(ctx context.Context, channelID discord.Snowflake, params discord.CreateMessageParams) (*discord.Message, error) {
	var message discord.Message

	route := fmt.Sprintf("/channels/%d/messages", int64(channelID))

	err := r.do(ctx, http.MethodPost, route, params, &message)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

func (r *RestClient) do(ctx context.Context, method, route string, body, out any) error {
	if err := r.waitForBucket(ctx, route); err != nil {
		return err
	}

	resp, err := r.once(ctx, method, route, body, out)
	if err != nil {
		return err
	}

	if resp != http.StatusTooManyRequests {
		return nil
	}

	// Retry exactly once after the bucket resets.
	if err := r.waitForBucket(ctx, route); err != nil {
		return err
	}

	resp, err = r.once(ctx, method, route, body, out)
	if err != nil {
		return err
	}

	if resp == http.StatusTooManyRequests {
		return ErrRateLimited
	}

	return nil
}

// once performs a single request, updating the route's rate limit bucket
// from the response headers.
func (r *RestClient) once(ctx context.Context, method, route string, body, out any) (int, error) {
	var reader io.Reader

	if body != nil {
		payload, err := jsonDecoder.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+apiBasePath+route, reader)
	if err != nil {
		return 0, err
	}

	req.Header.Set("Authorization", "Bot "+r.token)
	req.Header.Set("User-Agent", UserAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	r.updateBucket(route, resp.Header)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return resp.StatusCode, ErrAuthenticationFailed
	case resp.StatusCode == http.StatusTooManyRequests:
		r.logger.Warn().Str("route", route).Msg("Request was rate limited")

		return resp.StatusCode, nil
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(resp.Body)

		return resp.StatusCode, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, data)
	}

	if out != nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, err
		}

		if err := jsonDecoder.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// waitForBucket sleeps until the route's bucket has capacity.
func (r *RestClient) waitForBucket(ctx context.Context, route string) error {
	r.bucketsMu.Lock()
	bucket, ok := r.buckets[route]

	var wait time.Duration

	if ok && bucket.remaining <= 0 {
		wait = time.Until(bucket.resetAt)
	}
	r.bucketsMu.Unlock()

	if wait <= 0 {
		return nil
	}

	if wait > rateLimitMaxBackoff {
		wait = rateLimitMaxBackoff
	}

	r.logger.Debug().
		Str("route", route).
		Dur("wait", wait).
		Msg("Waiting for rate limit bucket")

	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *RestClient) updateBucket(route string, headers http.Header) {
	remainingHeader := headers.Get("X-RateLimit-Remaining")
	resetAfterHeader := headers.Get("X-RateLimit-Reset-After")

	if remainingHeader == "" || resetAfterHeader == "" {
		return
	}

	remaining, err := strconv.ParseInt(remainingHeader, 10, 64)
	if err != nil {
		return
	}

	resetAfter, err := strconv.ParseFloat(resetAfterHeader, 64)
	if err != nil {
		return
	}

	r.bucketsMu.Lock()
	r.buckets[route] = &restBucket{
		remaining: remaining,
		resetAt:   time.Now().Add(time.Duration(resetAfter * float64(time.Second))),
	}
	r.bucketsMu.Unlock()
}
