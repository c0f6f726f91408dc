package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"golang.org/x/time/rate"

	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/observability/metrics"
	"github.com/biotrack/biotrack/internal/record"
)

const (
	componentName = "remote"

	// DefaultTimeout is applied to requests whose context has no deadline.
	DefaultTimeout = 30 * time.Second

	defaultUserAgent           = "biotrack"
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultResponseHeaderWait  = 10 * time.Second
	defaultDialTimeout         = 30 * time.Second
	defaultDialKeepAlive       = 30 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 16 << 20
	// maxErrorSnippet caps the body excerpt kept in error messages.
	maxErrorSnippet = 256
)

// HTTPConfig describes the REST endpoint of the remote source.
type HTTPConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// Token is sent as a bearer token when set.
	Token string
	// RateLimit is the sustained request rate per second. Zero disables limiting.
	RateLimit float64
	Burst     int
}

// HTTPClient is a Source backed by a JSON REST API:
//
//	GET   /records?kind=<kind>
//	GET   /records?owner=<ownerId>
//	POST  /records                          -> {"remoteId": "..."}
//	PATCH /records/<kind>/<remoteId>/status
type HTTPClient struct {
	base      *url.URL
	client    *http.Client
	timeout   time.Duration
	userAgent string
	token     string
	limiter   *rate.Limiter
	log       logger.Logger
	metrics   metrics.Recorder
}

var _ Source = (*HTTPClient)(nil)

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPMetrics records per-operation metrics.
func WithHTTPMetrics(rec metrics.Recorder) HTTPOption {
	return func(c *HTTPClient) {
		if rec != nil {
			c.metrics = rec
		}
	}
}

// WithTransport replaces the underlying http.Client.
func WithTransport(client *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if client != nil {
			c.client = client
		}
	}
}

// NewHTTPClient validates cfg and builds a client with a pooled transport.
func NewHTTPClient(cfg HTTPConfig, log logger.Logger, opts ...HTTPOption) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf("invalid remote base URL %q", cfg.BaseURL).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Context("base_url", cfg.BaseURL).
			Build()
	}
	if log == nil {
		log = logger.Global().Module(componentName)
	}

	c := &HTTPClient{
		base:      base,
		client:    &http.Client{Transport: newTransport()},
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		token:     cfg.Token,
		log:       log,
		metrics:   metrics.NopRecorder{},
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if cfg.RateLimit > 0 {
		burst := max(cfg.Burst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: defaultDialKeepAlive,
		}).DialContext,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderWait,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// FetchAll returns every record of kind.
func (c *HTTPClient) FetchAll(ctx context.Context, kind record.Kind) (_ []record.Raw, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpFetch, start, err) }()

	body, err := c.do(ctx, metrics.OpFetch, http.MethodGet, c.endpoint(url.Values{"kind": {string(kind)}}, "records"), nil)
	if err != nil {
		return nil, err
	}
	return decodeRecords(body)
}

// FetchByOwner returns every record submitted by ownerID.
func (c *HTTPClient) FetchByOwner(ctx context.Context, ownerID string) (_ []record.Raw, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpFetch, start, err) }()

	body, err := c.do(ctx, metrics.OpFetch, http.MethodGet, c.endpoint(url.Values{"owner": {ownerID}}, "records"), nil)
	if err != nil {
		return nil, err
	}
	return decodeRecords(body)
}

// uploadPayload is the wire form of a new record. ClientRef lets the server
// deduplicate retried uploads of the same local record.
type uploadPayload struct {
	ClientRef      string          `json:"clientRef"`
	OwnerID        string          `json:"ownerId"`
	OwnerName      string          `json:"ownerName,omitempty"`
	Kind           record.Kind     `json:"kind"`
	CommonName     string          `json:"commonName"`
	ScientificName string          `json:"scientificName,omitempty"`
	Description    string          `json:"description,omitempty"`
	Location       record.Location `json:"location"`
	Details        record.Details  `json:"details,omitempty"`
	ImageRef       string          `json:"imageRef,omitempty"`
	Status         record.Status   `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
}

func payloadFor(rec record.Record) uploadPayload {
	return uploadPayload{
		ClientRef:      rec.ID,
		OwnerID:        rec.OwnerID,
		OwnerName:      rec.OwnerName,
		Kind:           rec.Kind,
		CommonName:     rec.CommonName,
		ScientificName: rec.ScientificName,
		Description:    rec.Description,
		Location:       rec.Location,
		Details:        rec.Details,
		ImageRef:       rec.ImageRef,
		Status:         rec.Status,
		CreatedAt:      rec.CreatedAt,
	}
}

// Upload posts rec and returns the id the server assigned.
func (c *HTTPClient) Upload(ctx context.Context, rec record.Record) (_ string, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpUpload, start, err) }()

	body, err := c.do(ctx, metrics.OpUpload, http.MethodPost, c.endpoint(nil, "records"), payloadFor(rec))
	if err != nil {
		return "", err
	}
	id, err := decodeRemoteID(body)
	if err != nil {
		return "", err
	}
	c.log.Debug("record uploaded",
		logger.String("record", record.IdentityKey(rec)),
		logger.String("remote_id", id))
	return id, nil
}

// SetStatus sends a review decision for remoteID.
func (c *HTTPClient) SetStatus(ctx context.Context, remoteID string, update StatusUpdate) (err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpSetState, start, err) }()

	target := c.endpoint(nil, "records", string(update.Kind), remoteID, "status")
	_, err = c.do(ctx, metrics.OpSetState, http.MethodPatch, target, update)
	if record.IsNotFound(err) {
		return record.NewNotFoundError(record.Key(update.Kind, remoteID))
	}
	return err
}

// Close releases idle connections.
func (c *HTTPClient) Close() {
	c.client.CloseIdleConnections()
}

func (c *HTTPClient) endpoint(query url.Values, segments ...string) string {
	u := c.base.JoinPath(segments...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do runs one request and returns the response body of a 2xx reply.
func (c *HTTPClient) do(ctx context.Context, op, method, target string, payload any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, c.transportError(err, op, method, target)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.transportError(err, op, method, target)
		}
	}

	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.New(fmt.Errorf("encode %s payload: %w", op, err)).
				Component(componentName).
				Category(errors.CategoryValidation).
				Context("operation", op).
				Build()
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, c.transportError(err, op, method, target)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.transportError(err, op, method, target)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.transportError(err, op, method, target)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, data, op, method, target)
	}
	return data, nil
}

func (c *HTTPClient) transportError(err error, op, method, target string) error {
	category := errors.CategoryNetwork
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		category = errors.CategoryTimeout
	case errors.Is(err, context.Canceled):
		category = errors.CategoryCancellation
	}
	c.log.Warn("remote request failed",
		logger.String("operation", op),
		logger.String("method", method),
		logger.Error(err))
	return errors.New(fmt.Errorf("remote %s: %w", op, err)).
		Component(componentName).
		Category(category).
		Priority(errors.PriorityMedium).
		Context("operation", op).
		Context("method", method).
		Context("url", target).
		Build()
}

func statusError(code int, body []byte, op, method, target string) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorSnippet {
		snippet = snippet[:maxErrorSnippet]
	}
	if code == http.StatusNotFound {
		return errors.New(fmt.Errorf("%w: remote %s returned 404", record.ErrNotFound, op)).
			Component(componentName).
			Category(errors.CategoryNotFound).
			Priority(errors.PriorityLow).
			Context("operation", op).
			Context("url", target).
			Build()
	}
	priority := errors.PriorityMedium
	if code >= http.StatusInternalServerError {
		priority = errors.PriorityHigh
	}
	return errors.New(fmt.Errorf("remote %s: HTTP %d: %s", op, code, snippet)).
		Component(componentName).
		Category(errors.CategoryHTTP).
		Priority(priority).
		Context("operation", op).
		Context("method", method).
		Context("status_code", code).
		Context("url", target).
		Build()
}

func (c *HTTPClient) observe(op string, start time.Time, err error) {
	c.metrics.RecordDuration(op, time.Since(start).Seconds())
	if err == nil {
		c.metrics.RecordOperation(op, metrics.StatusSuccess)
		return
	}
	c.metrics.RecordOperation(op, metrics.StatusError)
	category := errors.CategoryGeneric
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		category = ee.Category
	}
	c.metrics.RecordError(op, string(category))
}

// decodeRecords parses a list response. Records fetched from the remote are
// remote by definition, whatever the payload claims.
func decodeRecords(body []byte) ([]record.Raw, error) {
	raws, err := record.DecodeRawList(body)
	if err != nil {
		return nil, err
	}
	for i := range raws {
		if raws[i].ID == "" {
			raws[i].ID = raws[i].RemoteID
		}
		raws[i].Origin = string(record.OriginRemote)
		raws[i].RemoteID = ""
	}
	return raws, nil
}

func decodeRemoteID(body []byte) (string, error) {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return "", errors.New(fmt.Errorf("decode upload response: %w", err)).
			Component(componentName).
			Category(errors.CategoryFileParsing).
			Build()
	}
	if data, err := obj.GetObject("data"); err == nil {
		obj = data
	}
	for _, key := range []string{"remoteId", "remote_id", "id"} {
		if s, err := obj.GetString(key); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), nil
		}
	}
	return "", errors.Newf("upload response carries no record id").
		Component(componentName).
		Category(errors.CategoryFileParsing).
		Build()
}
