package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/bulkgen/internal/models"
)

// HTTPClient talks to the bulkgen API. It holds the bearer token and the
// per-family nonces handed out after login.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger

	mu     sync.RWMutex
	token  string
	nonces map[models.Family]string
	runID  string
}

func NewHTTPClient(baseURL string, httpClient *http.Client, logger zerolog.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger.With().Str("component", "http_client").Logger(),
		nonces:  make(map[models.Family]string),
	}
}

// Login exchanges admin credentials for a token and fetches fresh nonces.
func (c *HTTPClient) Login(ctx context.Context, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(req, "login", &out); err != nil {
		return "", err
	}
	c.SetToken(out.Token)
	if err := c.FetchNonces(ctx); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// SetRunID makes Stop also signal the given server-side run.
func (c *HTTPClient) SetRunID(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runID = runID
}

func (c *HTTPClient) FetchNonces(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/nonces", nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	nonces := make(map[models.Family]string)
	if err := c.doJSON(req, "nonces", &nonces); err != nil {
		return err
	}
	c.mu.Lock()
	c.nonces = nonces
	c.mu.Unlock()
	return nil
}

func (c *HTTPClient) authorize(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *HTTPClient) nonce(family models.Family) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nonces[family]
}

func (c *HTTPClient) doJSON(req *http.Request, action string, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Action: action, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &TransportError{
			Action: action,
			Err:    errors.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Action: action, Err: errors.Wrap(err, "decode response")}
	}
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// call posts one action and decodes the envelope data into out. A
// success=false envelope becomes an ExecutorError; anything that is not an
// envelope becomes a TransportError.
func (c *HTTPClient) call(ctx context.Context, action string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ajax/"+action, body)
	if err != nil {
		return &TransportError{Action: action, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Action: action, Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debug().Str("action", action).Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("batch request")

	if resp.StatusCode >= http.StatusInternalServerError {
		return &TransportError{Action: action, Err: errors.Errorf("server returned %d", resp.StatusCode)}
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &TransportError{Action: action, Err: errors.Wrapf(err, "status %d", resp.StatusCode)}
	}
	if !env.Success {
		var msg struct {
			Message string `json:"message"`
		}
		json.Unmarshal(env.Data, &msg)
		return &ExecutorError{Action: action, Status: resp.StatusCode, Message: msg.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &TransportError{Action: action, Err: errors.Wrap(err, "decode data")}
	}
	return nil
}

func (c *HTTPClient) postForm(ctx context.Context, action string, family models.Family, form url.Values, out interface{}) error {
	form.Set("nonce", c.nonce(family))
	return c.call(ctx, action, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", out)
}

func generateAction(kind models.RecordKind) string {
	if kind == models.RecordOrder {
		return "generate_orders_batch"
	}
	return "generate_products_batch"
}

func (c *HTTPClient) GenerateBatch(ctx context.Context, kind models.RecordKind, size int, opts GenerateOptions) (GenerateResult, error) {
	form := url.Values{}
	form.Set("batch_size", strconv.Itoa(size))
	form.Set("batch_number", strconv.Itoa(opts.BatchNumber))
	if kind == models.RecordProduct && opts.PriceMax > 0 {
		form.Set("price_min", strconv.FormatFloat(opts.PriceMin, 'f', 2, 64))
		form.Set("price_max", strconv.FormatFloat(opts.PriceMax, 'f', 2, 64))
	}
	var out GenerateResult
	err := c.postForm(ctx, generateAction(kind), models.FamilyGeneration, form, &out)
	return out, err
}

func (c *HTTPClient) Stop(ctx context.Context) error {
	form := url.Values{}
	c.mu.RLock()
	if c.runID != "" {
		form.Set("run_id", c.runID)
	}
	c.mu.RUnlock()
	return c.postForm(ctx, "stop_generation", models.FamilyGeneration, form, nil)
}

func (c *HTTPClient) StartExport(ctx context.Context, kind models.RecordKind, filters models.ExportFilters) (ExportStart, error) {
	form := url.Values{}
	form.Set("kind", string(kind))
	if filters.ExportAll {
		form.Set("export_all", "1")
	}
	if filters.DateFrom != "" {
		form.Set("date_from", filters.DateFrom)
	}
	if filters.DateTo != "" {
		form.Set("date_to", filters.DateTo)
	}
	form["statuses[]"] = filters.Statuses
	form["product_types[]"] = filters.ProductTypes
	form["categories[]"] = filters.Categories
	form["tags[]"] = filters.Tags

	var out ExportStart
	err := c.postForm(ctx, "start_export", models.FamilyExport, form, &out)
	return out, err
}

func (c *HTTPClient) ExportBatch(ctx context.Context, token string, size, index, totalBatches int) (ExportBatchResult, error) {
	form := url.Values{}
	form.Set("export_session", token)
	form.Set("batch_size", strconv.Itoa(size))
	form.Set("batch_number", strconv.Itoa(index))
	form.Set("total_batches", strconv.Itoa(totalBatches))
	var out ExportBatchResult
	err := c.postForm(ctx, "export_batch", models.FamilyExport, form, &out)
	return out, err
}

func (c *HTTPClient) ImportBatch(ctx context.Context, req ImportRequest) (ImportBatchResult, error) {
	var out ImportBatchResult
	if req.Token != "" {
		form := url.Values{}
		form.Set("import_session", req.Token)
		form.Set("batch_size", strconv.Itoa(req.BatchSize))
		form.Set("current_batch", strconv.Itoa(req.Batch))
		err := c.postForm(ctx, "import_batch", models.FamilyImport, form, &out)
		return out, err
	}

	body, contentType, err := c.uploadBody(req)
	if err != nil {
		return out, err
	}
	err = c.call(ctx, "import_batch", body, contentType, &out)
	return out, err
}

func (c *HTTPClient) uploadBody(req ImportRequest) (io.Reader, string, error) {
	f, err := os.Open(req.FilePath)
	if err != nil {
		return nil, "", &ValidationError{Field: "file", Message: err.Error()}
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"kind":          string(req.Kind),
		"batch_size":    strconv.Itoa(req.BatchSize),
		"current_batch": strconv.Itoa(req.Batch),
		"nonce":         c.nonce(models.FamilyImport),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	part, err := mw.CreateFormFile("csv_file", filepath.Base(req.FilePath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", errors.Wrap(err, "read upload")
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *HTTPClient) Counts(ctx context.Context) (Counts, error) {
	var out Counts
	err := c.postForm(ctx, "get_counts", models.FamilyDelete, url.Values{}, &out)
	return out, err
}

func (c *HTTPClient) DeleteBatch(ctx context.Context, kind models.RecordKind, offset int) (DeleteBatchResult, error) {
	form := url.Values{}
	form.Set("kind", string(kind))
	form.Set("offset", strconv.Itoa(offset))
	var out DeleteBatchResult
	err := c.postForm(ctx, "delete_batch", models.FamilyDelete, form, &out)
	return out, err
}
