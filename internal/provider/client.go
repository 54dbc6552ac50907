// Package provider talks to the ringless-voicemail delivery service: one call
// uploads the rendered audio, a second asks for the drop to a phone number.
package provider

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appErrors "github.com/unclebandit/voicedrop-backend/internal/errors"
	"github.com/unclebandit/voicedrop-backend/internal/logger"
	"github.com/unclebandit/voicedrop-backend/internal/metrics"
)

const (
	headerTeamID = "X-Team-ID"
	headerSecret = "X-Team-Secret"

	mediaPath = "/media"
	dropsPath = "/drops"

	maxAudioBytes    = 50 << 20
	maxResponseBytes = 1 << 20
)

type Config struct {
	BaseURL string
	TeamID  string
	Secret  string
	BrandID string
	Timeout time.Duration
}

// MediaRef identifies audio already uploaded to the provider.
type MediaRef string

// MessageID is the provider's identifier for one requested drop.
type MessageID string

type DispatchRequest struct {
	Phone            string
	MediaRef         MediaRef
	ForwardingNumber string
	ForeignRef       string
}

// UploadError covers every way uploadMedia can fail.
type UploadError struct {
	Stage      string // fetch, encode, upload, response
	StatusCode int
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("media upload failed at %s (status %d): %v", e.Stage, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("media upload failed at %s: %v", e.Stage, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

type DispatchError struct {
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("voicemail dispatch failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("voicemail dispatch failed: %v", e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      MediaCache
	log        logger.Logger
	maxAudio   int64
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMediaCache(cache MediaCache) Option {
	return func(c *Client) { c.cache = cache }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.NewNoOpLogger(),
		maxAudio:   maxAudioBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckConfigured returns a ConfigurationError naming every missing credential.
func (c *Client) CheckConfigured() error {
	var missing []string
	if c.cfg.TeamID == "" {
		missing = append(missing, "team_id")
	}
	if c.cfg.Secret == "" {
		missing = append(missing, "secret")
	}
	if c.cfg.BrandID == "" {
		missing = append(missing, "brand_id")
	}
	if len(missing) > 0 {
		return appErrors.NewMissingCredentials(missing...)
	}
	return nil
}

// UploadMedia fetches the rendered audio and submits it to the provider.
func (c *Client) UploadMedia(ctx context.Context, sourceURL, filename string) (MediaRef, error) {
	if err := c.CheckConfigured(); err != nil {
		return "", err
	}

	key := c.mediaCacheKey(sourceURL)
	if ref, ok := c.cachedMediaRef(ctx, key); ok {
		return ref, nil
	}

	start := time.Now()
	ref, err := c.uploadMedia(ctx, sourceURL, filename)
	observe("upload_media", start, err)
	if err != nil {
		return "", err
	}

	c.storeMediaRef(ctx, key, ref)
	return ref, nil
}

func (c *Client) uploadMedia(ctx context.Context, sourceURL, filename string) (MediaRef, error) {
	audio, err := c.fetchSource(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	if len(audio) == 0 {
		return "", &UploadError{Stage: "encode", Err: errors.New("source audio is empty")}
	}

	body := map[string]interface{}{
		"team_id":     c.cfg.TeamID,
		"secret":      c.cfg.Secret,
		"brand_id":    c.cfg.BrandID,
		"filename":    filename,
		"file_base64": base64.StdEncoding.EncodeToString(audio),
	}

	status, respBody, err := c.postJSON(ctx, mediaPath, body)
	if err != nil {
		return "", &UploadError{Stage: "upload", Err: err}
	}
	if status < 200 || status > 299 {
		return "", &UploadError{Stage: "upload", StatusCode: status, Err: errors.New(snippet(respBody))}
	}

	id, err := extractID(respBody, mediaRefKeys)
	if err != nil {
		return "", &UploadError{Stage: "response", StatusCode: status, Err: err}
	}
	return MediaRef(id), nil
}

func (c *Client) fetchSource(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, &UploadError{Stage: "fetch", Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UploadError{Stage: "fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UploadError{Stage: "fetch", StatusCode: resp.StatusCode, Err: fmt.Errorf("source audio unavailable: %s", sourceURL)}
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, c.maxAudio+1))
	if err != nil {
		return nil, &UploadError{Stage: "fetch", Err: err}
	}
	if int64(len(audio)) > c.maxAudio {
		return nil, &UploadError{Stage: "fetch", Err: fmt.Errorf("source audio exceeds %d bytes", c.maxAudio)}
	}
	return audio, nil
}

// DispatchMessage asks the provider to drop previously uploaded media.
func (c *Client) DispatchMessage(ctx context.Context, r DispatchRequest) (MessageID, error) {
	if err := c.CheckConfigured(); err != nil {
		return "", err
	}

	body := map[string]interface{}{
		"team_id":           c.cfg.TeamID,
		"secret":            c.cfg.Secret,
		"brand_id":          c.cfg.BrandID,
		"phone_number":      r.Phone,
		"forwarding_number": r.ForwardingNumber,
		"media_ref":         string(r.MediaRef),
		"foreign_id":        r.ForeignRef,
	}

	start := time.Now()
	id, err := c.dispatch(ctx, body)
	observe("dispatch_message", start, err)
	return id, err
}

func (c *Client) dispatch(ctx context.Context, body map[string]interface{}) (MessageID, error) {
	status, respBody, err := c.postJSON(ctx, dropsPath, body)
	if err != nil {
		return "", &DispatchError{Err: err}
	}
	if status < 200 || status > 299 {
		return "", &DispatchError{StatusCode: status, Err: errors.New(snippet(respBody))}
	}
	id, err := extractID(respBody, messageIDKeys)
	if err != nil {
		return "", &DispatchError{StatusCode: status, Err: err}
	}
	return MessageID(id), nil
}

func (c *Client) postJSON(ctx context.Context, path string, body interface{}) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerTeamID, c.cfg.TeamID)
	req.Header.Set(headerSecret, c.cfg.Secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) mediaCacheKey(sourceURL string) string {
	sum := sha256.Sum256([]byte(c.cfg.TeamID + "|" + c.cfg.BrandID + "|" + sourceURL))
	return hex.EncodeToString(sum[:])
}

func (c *Client) cachedMediaRef(ctx context.Context, key string) (MediaRef, bool) {
	if c.cache == nil {
		return "", false
	}
	ref, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		metrics.MediaCacheLookups.WithLabelValues("error").Inc()
		c.log.Warn("media cache lookup failed", map[string]interface{}{"error": err})
		return "", false
	}
	if !ok {
		metrics.MediaCacheLookups.WithLabelValues("miss").Inc()
		return "", false
	}
	metrics.MediaCacheLookups.WithLabelValues("hit").Inc()
	return MediaRef(ref), true
}

func (c *Client) storeMediaRef(ctx context.Context, key string, ref MediaRef) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, string(ref)); err != nil {
		c.log.Warn("media cache store failed", map[string]interface{}{"error": err})
	}
}

func observe(op string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.ProviderCallDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "empty response body"
	}
	if len(s) > 256 {
		return s[:256] + "..."
	}
	return s
}
