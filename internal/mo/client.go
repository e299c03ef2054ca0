// Package mo is a client for the Mushroom Observer API2.
//
// It covers the subset the review tool uses: observation lookup and
// creation, image upload and attachment, and field slip management. The
// API has two quirks the client papers over: errors may arrive in a 200
// body under an "errors" array, and "results" entries may be full
// objects or bare numeric IDs depending on the requested detail level.
package mo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nemf/photo-review/internal/logger"
)

const (
	// DefaultBaseURL is the production Mushroom Observer instance.
	DefaultBaseURL = "https://mushroomobserver.org"

	userAgent      = "NEMF-Review-Tool/1.0"
	requestTimeout = 30 * time.Second

	// LicenseCCBySA3 is Creative Commons Attribution-ShareAlike 3.0, the
	// default for uploaded images.
	LicenseCCBySA3 = 1
)

// Client is an authenticated Mushroom Observer API2 client. One client is
// built per request-carrying reviewer since the API key is per user; the
// rate limiter is shared when clients come from the same Factory.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     logger.Logger
}

// Factory builds per-user clients that share one HTTP transport and one
// rate limiter, so concurrent reviewers cannot stack requests on the
// upstream server.
type Factory struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     logger.Logger
}

// NewFactory creates a client factory for the given MO instance. An empty
// baseURL selects production. rps throttles outbound requests across all
// clients; zero or negative disables throttling.
func NewFactory(baseURL string, rps float64, log logger.Logger) *Factory {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Factory{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// Client returns a client authenticated with apiKey.
func (f *Factory) Client(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: f.baseURL,
		http:    f.http,
		limiter: f.limiter,
		log:     f.log,
	}
}

// Observation is the subset of MO observation fields the tool reads.
type Observation struct {
	ID    int64  `json:"id"`
	Notes string `json:"notes"`
}

// FieldSlip is the subset of MO field slip fields the tool reads.
type FieldSlip struct {
	ID            int64  `json:"id"`
	Code          string `json:"code"`
	ObservationID int64  `json:"observation_id"`
}

// Image is the subset of MO image fields the tool reads.
type Image struct {
	ID int64 `json:"id"`
}

type apiError struct {
	Code    string `json:"code"`
	Details string `json:"details"`
}

type apiResponse struct {
	Results []json.RawMessage `json:"results"`
	Errors  []apiError        `json:"errors"`
}

// ObservationURL returns the public page for an observation.
func (c *Client) ObservationURL(id int64) string {
	return fmt.Sprintf("%s/obs/%d", c.baseURL, id)
}

// GetObservation fetches an observation by ID.
func (c *Client) GetObservation(ctx context.Context, id int64) (*Observation, error) {
	resp, err := c.request(ctx, http.MethodGet, fmt.Sprintf("/api2/observations/%d", id), nil)
	if err != nil {
		return nil, err
	}
	obs := &Observation{ID: id}
	if err := decodeFirst(resp.Results, obs); err != nil {
		return nil, err
	}
	return obs, nil
}

// VerifyObservationExists reports whether an observation exists.
func (c *Client) VerifyObservationExists(ctx context.Context, id int64) (bool, error) {
	_, err := c.GetObservation(ctx, id)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// VerifyImageExists reports whether an image exists.
func (c *Client) VerifyImageExists(ctx context.Context, id int64) (bool, error) {
	_, err := c.request(ctx, http.MethodGet, fmt.Sprintf("/api2/images/%d", id), nil)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UploadImage uploads the file at path as a new MO image and returns its
// ID. The API wants the key in the multipart form rather than the auth
// header for uploads.
func (c *Client) UploadImage(ctx context.Context, path, copyrightHolder, notes string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &Error{Kind: KindGeneric, Message: fmt.Sprintf("image file not found: %s", path)}
	}
	defer file.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := map[string]string{
		"api_key":          c.apiKey,
		"copyright_holder": copyrightHolder,
		"license":          strconv.Itoa(LicenseCCBySA3),
		"notes":            notes,
		"original_name":    filepath.Base(path),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, &Error{Kind: KindGeneric, Message: "build upload form: " + err.Error()}
		}
	}

	part, err := mw.CreateFormFile("upload", filepath.Base(path))
	if err != nil {
		return nil, &Error{Kind: KindGeneric, Message: "build upload form: " + err.Error()}
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, &Error{Kind: KindGeneric, Message: "read image file: " + err.Error()}
	}
	if err := mw.Close(); err != nil {
		return nil, &Error{Kind: KindGeneric, Message: "build upload form: " + err.Error()}
	}

	resp, err := c.do(ctx, http.MethodPost, "/api2/images", &body, mw.FormDataContentType(), false)
	if err != nil {
		return nil, err
	}
	img := &Image{}
	if err := decodeFirst(resp.Results, img); err != nil {
		return nil, err
	}
	return img, nil
}

// CreateObservationParams are the inputs for CreateObservation. LocationID
// wins over LocationName when both are set.
type CreateObservationParams struct {
	Date         string
	LocationID   *int64
	LocationName string
	NameID       *int64
	Notes        string
	ImageIDs     []int64
}

// CreateObservation creates a new observation and returns it.
func (c *Client) CreateObservation(ctx context.Context, p CreateObservationParams) (*Observation, error) {
	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("date", p.Date)
	form.Set("notes", p.Notes)

	switch {
	case p.LocationID != nil:
		form.Set("location", strconv.FormatInt(*p.LocationID, 10))
	case p.LocationName != "":
		form.Set("place_name", p.LocationName)
	}
	if p.NameID != nil {
		form.Set("name", strconv.FormatInt(*p.NameID, 10))
	}
	if len(p.ImageIDs) > 0 {
		ids := make([]string, len(p.ImageIDs))
		for i, id := range p.ImageIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		form.Set("images", strings.Join(ids, ","))
	}

	resp, err := c.postForm(ctx, http.MethodPost, "/api2/observations", form)
	if err != nil {
		return nil, err
	}
	obs := &Observation{}
	if err := decodeFirst(resp.Results, obs); err != nil {
		return nil, err
	}
	return obs, nil
}

// AddImageToObservation attaches an existing image to an observation.
func (c *Client) AddImageToObservation(ctx context.Context, observationID, imageID int64) error {
	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("id", strconv.FormatInt(observationID, 10))
	form.Set("add_images", strconv.FormatInt(imageID, 10))

	_, err := c.postForm(ctx, http.MethodPatch, "/api2/observations", form)
	return err
}

// AppendObservationNotes fetches the observation's current notes and
// appends notes to them, separated by a blank line.
func (c *Client) AppendObservationNotes(ctx context.Context, observationID int64, notes string) error {
	obs, err := c.GetObservation(ctx, observationID)
	if err != nil {
		return err
	}

	updated := notes
	if obs.Notes != "" {
		updated = obs.Notes + "\n\n" + notes
	}

	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("id", strconv.FormatInt(observationID, 10))
	form.Set("set_notes", updated)

	_, err = c.postForm(ctx, http.MethodPatch, "/api2/observations", form)
	return err
}

// GetFieldSlipByCode looks up a field slip. Returns nil without error when
// the code is unknown.
func (c *Client) GetFieldSlipByCode(ctx context.Context, code string) (*FieldSlip, error) {
	q := url.Values{}
	q.Set("code", code)
	q.Set("detail", "low")

	resp, err := c.request(ctx, http.MethodGet, "/api2/field_slips?"+q.Encode(), nil)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	fs := &FieldSlip{}
	if err := decodeFirst(resp.Results, fs); err != nil {
		return nil, err
	}
	return fs, nil
}

// CreateFieldSlip creates a new field slip, optionally linked to an
// observation.
func (c *Client) CreateFieldSlip(ctx context.Context, code string, observationID *int64) (*FieldSlip, error) {
	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("code", code)
	if observationID != nil {
		form.Set("observation", strconv.FormatInt(*observationID, 10))
	}

	resp, err := c.postForm(ctx, http.MethodPost, "/api2/field_slips", form)
	if err != nil {
		return nil, err
	}
	fs := &FieldSlip{Code: code}
	if err := decodeFirst(resp.Results, fs); err != nil {
		return nil, err
	}
	return fs, nil
}

// UpdateFieldSlip relinks an existing field slip to an observation and/or
// changes its code. Nil and empty values leave the field alone.
func (c *Client) UpdateFieldSlip(ctx context.Context, id int64, observationID *int64, code string) (*FieldSlip, error) {
	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("id", strconv.FormatInt(id, 10))
	if observationID != nil {
		form.Set("set_observation", strconv.FormatInt(*observationID, 10))
	}
	if code != "" {
		form.Set("set_code", code)
	}

	resp, err := c.postForm(ctx, http.MethodPatch, "/api2/field_slips", form)
	if err != nil {
		return nil, err
	}
	fs := &FieldSlip{ID: id, Code: code}
	if err := decodeFirst(resp.Results, fs); err != nil {
		return nil, err
	}
	return fs, nil
}

// CreateOrLinkFieldSlip creates the field slip for code pointing at
// observationID, or accepts an existing slip already linked to the same
// observation. An existing slip with no observation is relinked in place.
// A slip linked elsewhere is a conflict.
func (c *Client) CreateOrLinkFieldSlip(ctx context.Context, code string, observationID int64) (*FieldSlip, error) {
	existing, err := c.GetFieldSlipByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return c.CreateFieldSlip(ctx, code, &observationID)
	}

	if existing.ObservationID != 0 {
		if existing.ObservationID == observationID {
			return existing, nil
		}
		return nil, &Error{
			Kind: KindConflict,
			Message: fmt.Sprintf(
				"field slip %s already exists for observation %d, cannot link to observation %d",
				code, existing.ObservationID, observationID,
			),
		}
	}

	return c.UpdateFieldSlip(ctx, existing.ID, &observationID, "")
}

// request performs a non-upload call with header auth.
func (c *Client) request(ctx context.Context, method, endpoint string, body io.Reader) (*apiResponse, error) {
	return c.do(ctx, method, endpoint, body, "", true)
}

// postForm performs a form-encoded call with the API key in the form.
func (c *Client) postForm(ctx context.Context, method, endpoint string, form url.Values) (*apiResponse, error) {
	body := strings.NewReader(form.Encode())
	return c.do(ctx, method, endpoint, body, "application/x-www-form-urlencoded", false)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string, headerAuth bool) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindTransient, Message: "rate limit wait: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, &Error{Kind: KindGeneric, Message: "build request: " + err.Error()}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if headerAuth {
		// The API key doubles as the basic auth username, empty password.
		req.SetBasicAuth(c.apiKey, "")
	}

	c.log.Debug("MO API request",
		logger.String("method", method),
		logger.String("endpoint", endpoint),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Kind: KindTransient, Message: "request canceled: " + err.Error()}
		}
		return nil, &Error{Kind: KindTransient, Message: "request failed: " + err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: "read response: " + err.Error()}
	}

	// Errors can arrive in a 200 body, so the body is checked first.
	var parsed apiResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil && resp.StatusCode < http.StatusBadRequest {
			return nil, &Error{
				Kind:    KindGeneric,
				Message: fmt.Sprintf("non-JSON response (status %d): %s", resp.StatusCode, truncate(raw, 200)),
			}
		}
	}
	if len(parsed.Errors) > 0 {
		return nil, classify(parsed.Errors[0])
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &Error{Kind: KindAuth, Message: "API key authentication failed"}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Kind: KindNotFound, Message: "resource not found: " + endpoint}
	case resp.StatusCode == http.StatusConflict:
		return nil, &Error{Kind: KindConflict, Message: truncate(raw, 200)}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &Error{Kind: KindTransient, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(raw, 200))}
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, &Error{Kind: KindGeneric, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(raw, 200))}
	}

	return &parsed, nil
}

func classify(e apiError) *Error {
	msg := e.Details
	if msg == "" {
		msg = "unknown error"
	}
	kind := KindGeneric
	switch {
	case strings.Contains(e.Code, "MustAuthenticate"), strings.Contains(e.Code, "Unauthorized"):
		kind = KindAuth
	case strings.Contains(e.Code, "NotFound"):
		kind = KindNotFound
	case strings.Contains(e.Code, "Conflict"):
		kind = KindConflict
	}
	return &Error{Kind: kind, Code: e.Code, Message: msg}
}

// decodeFirst unmarshals the first result into v. A bare numeric result is
// treated as the object's ID, which the API emits at low detail levels.
func decodeFirst(results []json.RawMessage, v any) error {
	if len(results) == 0 {
		return nil
	}
	raw := results[0]

	if err := json.Unmarshal(raw, v); err == nil {
		return nil
	}

	var id int64
	if err := json.Unmarshal(raw, &id); err == nil {
		idOnly := struct {
			ID int64 `json:"id"`
		}{ID: id}
		data, _ := json.Marshal(idOnly)
		return json.Unmarshal(data, v)
	}

	return &Error{Kind: KindGeneric, Message: "unexpected result shape: " + truncate(raw, 120)}
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
