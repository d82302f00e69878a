package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/roach88/epsync/internal/ir"
)

const (
	// DefaultRetryMax is the number of retries for 429 and 5xx responses.
	DefaultRetryMax = 4
	// DefaultPageSize is the pageSize query parameter sent on List.
	DefaultPageSize = 100
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 30 * time.Second
)

// RESTClient talks to the catalog REST API with a static bearer token.
type RESTClient struct {
	http     *retryablehttp.Client
	baseURL  string
	token    string
	api      APIVersion
	pageSize int
	logger   *slog.Logger
}

// RESTOption configures a RESTClient.
type RESTOption func(*RESTClient)

// WithAPIVersion selects the v1 or v2 API. Default V2.
func WithAPIVersion(v APIVersion) RESTOption {
	return func(c *RESTClient) {
		c.api = v
	}
}

// WithRetryMax sets the retry count for retryable responses.
func WithRetryMax(n int) RESTOption {
	return func(c *RESTClient) {
		c.http.RetryMax = n
	}
}

// WithRetryWait bounds the backoff between retries.
func WithRetryWait(lo, hi time.Duration) RESTOption {
	return func(c *RESTClient) {
		c.http.RetryWaitMin = lo
		c.http.RetryWaitMax = hi
	}
}

// WithListPageSize sets the pageSize parameter sent on List.
func WithListPageSize(n int) RESTOption {
	return func(c *RESTClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRESTLogger routes request and retry logs to logger.
func WithRESTLogger(logger *slog.Logger) RESTOption {
	return func(c *RESTClient) {
		c.logger = logger
		c.http.Logger = logger
	}
}

// NewRESTClient creates a client for the catalog at baseURL.
func NewRESTClient(baseURL, token string, opts ...RESTOption) (*RESTClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid baseURL %q: %w", baseURL, err)
	}
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = DefaultRetryMax
	hc.HTTPClient.Timeout = DefaultTimeout
	hc.Logger = nil
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &RESTClient{
		http:     hc,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		token:    token,
		api:      V2,
		pageSize: DefaultPageSize,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Entities implements Client. Types the selected API does not serve get
// a client whose calls fail with *UnsupportedError. v2 application
// domains carry their topic domains under TopicDomainsKey.
func (c *RESTClient) Entities(t ir.EntityType) EntityClient {
	r, ok := routes[c.api][t]
	if !ok {
		return unsupported{typ: t, api: c.api}
	}
	e := &restEntities{c: c, typ: t, route: r}
	if c.api == V2 && t == ir.TypeApplicationDomain {
		return &domainEntities{restEntities: e}
	}
	return e
}

// envelope is the wire shape of every response body.
type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta struct {
		Pagination *pagination `json:"pagination,omitempty"`
	} `json:"meta"`
}

type pagination struct {
	PageNumber int  `json:"pageNumber"`
	Count      int  `json:"count"`
	PageSize   int  `json:"pageSize"`
	NextPage   *int `json:"nextPage"`
	TotalPages int  `json:"totalPages"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// do performs one request, retrying per the retryablehttp policy, and
// decodes a JSON envelope into out when out is non-nil.
func (c *RESTClient) do(ctx context.Context, method, path string, query url.Values, body any, out *envelope) error {
	op := method + " " + path

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal body: %w", op, err)
		}
		payload = b
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("catalog request", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Op: op, Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

type restEntities struct {
	c     *RESTClient
	typ   ir.EntityType
	route route
}

func (e *restEntities) List(ctx context.Context, f Filter, page int) (Page, error) {
	q := url.Values{}
	q.Set("pageNumber", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(e.c.pageSize))
	if f.Name != "" {
		q.Set("name", f.Name)
	}
	if f.ParentID != "" && e.route.parentQuery != "" {
		q.Set(e.route.parentQuery, f.ParentID)
	}

	var env envelope
	if err := e.c.do(ctx, http.MethodGet, e.route.path, q, nil, &env); err != nil {
		return Page{}, err
	}

	var objs []map[string]any
	if len(env.Data) > 0 {
		if err := decodeData(env.Data, &objs); err != nil {
			return Page{}, fmt.Errorf("list %s: %w", e.typ, err)
		}
	}
	p := Page{Items: make([]ir.Snapshot, 0, len(objs))}
	for _, obj := range objs {
		p.Items = append(p.Items, e.snapshot(obj))
	}
	if env.Meta.Pagination != nil {
		p.NextPage = env.Meta.Pagination.NextPage
	}
	return p, nil
}

func (e *restEntities) Get(ctx context.Context, id string) (ir.Snapshot, error) {
	return e.one(ctx, http.MethodGet, id, nil)
}

func (e *restEntities) Create(ctx context.Context, d Draft) (ir.Snapshot, error) {
	body := make(map[string]any, len(d.Settings)+3)
	for k, v := range d.Settings {
		body[k] = v
	}
	if d.Name != "" {
		body["name"] = d.Name
	}
	if d.Version != "" {
		body["version"] = d.Version
	}
	if d.ParentID != "" && e.route.parentField != "" {
		body[e.route.parentField] = d.ParentID
	}

	var env envelope
	if err := e.c.do(ctx, http.MethodPost, e.route.path, nil, body, &env); err != nil {
		return ir.Snapshot{}, err
	}
	return e.decodeOne(env)
}

func (e *restEntities) Update(ctx context.Context, id string, s ir.Settings) (ir.Snapshot, error) {
	return e.one(ctx, http.MethodPatch, id, map[string]any(s))
}

func (e *restEntities) Delete(ctx context.Context, id string) error {
	err := e.c.do(ctx, http.MethodDelete, e.itemPath(id), nil, nil, nil)
	return e.mapNotFound(id, err)
}

func (e *restEntities) one(ctx context.Context, method, id string, body any) (ir.Snapshot, error) {
	var env envelope
	if err := e.c.do(ctx, method, e.itemPath(id), nil, body, &env); err != nil {
		return ir.Snapshot{}, e.mapNotFound(id, err)
	}
	return e.decodeOne(env)
}

func (e *restEntities) itemPath(id string) string {
	return e.route.path + "/" + url.PathEscape(id)
}

func (e *restEntities) mapNotFound(id string, err error) error {
	if err != nil && IsNotFound(err) {
		return &NotFoundError{Type: e.typ, ID: id, Err: err}
	}
	return err
}

func (e *restEntities) decodeOne(env envelope) (ir.Snapshot, error) {
	var obj map[string]any
	if err := decodeData(env.Data, &obj); err != nil {
		return ir.Snapshot{}, fmt.Errorf("decode %s: %w", e.typ, err)
	}
	return e.snapshot(obj), nil
}

// snapshot splits a wire object into identity fields and settings.
func (e *restEntities) snapshot(obj map[string]any) ir.Snapshot {
	s := ir.Snapshot{Settings: ir.Settings{}}
	s.ID, _ = obj["id"].(string)
	s.Name, _ = obj["name"].(string)
	s.Version, _ = obj["version"].(string)
	if e.route.parentField != "" {
		s.ParentID, _ = obj[e.route.parentField].(string)
	}
	for k, v := range obj {
		if k == e.route.parentField || isIdentityField(k) {
			continue
		}
		s.Settings[k] = v
	}
	return s
}

func isIdentityField(k string) bool {
	return slices.Contains(identityFields, k)
}

func decodeData(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

type unsupported struct {
	typ ir.EntityType
	api APIVersion
}

func (u unsupported) err() error {
	return &UnsupportedError{Type: u.typ, API: u.api}
}

func (u unsupported) List(context.Context, Filter, int) (Page, error) { return Page{}, u.err() }
func (u unsupported) Get(context.Context, string) (ir.Snapshot, error) {
	return ir.Snapshot{}, u.err()
}
func (u unsupported) Create(context.Context, Draft) (ir.Snapshot, error) {
	return ir.Snapshot{}, u.err()
}
func (u unsupported) Update(context.Context, string, ir.Settings) (ir.Snapshot, error) {
	return ir.Snapshot{}, u.err()
}
func (u unsupported) Delete(context.Context, string) error { return u.err() }
