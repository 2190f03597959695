package pocketbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/sirupsen/logrus"

	"toolbox/internal/model"
)

// APIError carries the record store's HTTP status and message so the HTTP
// surface can pass them through instead of swallowing them.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("record store returned status %d: %s", e.Status, e.Message)
}

// Client talks to a PocketBase instance holding the essays collection and
// its file attachments. Every operation authenticates with the configured
// service account before the actual call; tokens are not cached across
// requests.
type Client struct {
	baseURL    string
	email      string
	password   string
	httpClient *http.Client
	log        *logrus.Logger
}

// New creates a record store client. timeout bounds every single HTTP call.
func New(baseURL, email, password string, timeout time.Duration, log *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		email:      email,
		password:   password,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type authResponse struct {
	Token string `json:"token"`
}

// Authenticate exchanges the service account credentials for a bearer token.
// The store keeps principals in more than one collection, so a failed login
// against users is retried against staff before giving up.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	token, err := c.authWithCollection(ctx, "users")
	if err == nil {
		return token, nil
	}
	c.log.WithError(err).Warn("users collection auth failed, trying staff collection")

	token, staffErr := c.authWithCollection(ctx, "staff")
	if staffErr == nil {
		return token, nil
	}

	return "", fmt.Errorf("record store authentication failed: %w", staffErr)
}

func (c *Client) authWithCollection(ctx context.Context, collection string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"identity": c.email,
		"password": c.password,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal auth payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/collections/%s/auth-with-password", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.apiError(resp)
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", fmt.Errorf("failed to parse auth response: %w", err)
	}
	if auth.Token == "" {
		return "", fmt.Errorf("auth response contained no token")
	}

	return auth.Token, nil
}

type listResponse struct {
	Items []model.Essay `json:"items"`
}

// ListEssays fetches all essay records sorted by creation time descending.
func (c *Client) ListEssays(ctx context.Context) ([]model.Essay, error) {
	body, err := c.doJSON(ctx, http.MethodGet, "/api/collections/essays/records?sort=-created", nil)
	if err != nil {
		return nil, err
	}

	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to parse essay list: %w", err)
	}

	return list.Items, nil
}

// GetEssay fetches a single essay record.
func (c *Client) GetEssay(ctx context.Context, id string) (*model.Essay, error) {
	body, err := c.doJSON(ctx, http.MethodGet, "/api/collections/essays/records/"+id, nil)
	if err != nil {
		return nil, mapNotFound(err, "essay "+id)
	}

	var essay model.Essay
	if err := json.Unmarshal(body, &essay); err != nil {
		return nil, fmt.Errorf("failed to parse essay record: %w", err)
	}

	return &essay, nil
}

// CreateEssay persists a new essay record with status pending and no audio.
func (c *Client) CreateEssay(ctx context.Context, title, content, voiceID string) (*model.Essay, error) {
	payload := map[string]any{
		"title":         title,
		"content":       content,
		"status":        model.StatusPending,
		"audio_file_id": "",
		"voiceId":       voiceID,
	}

	body, err := c.doJSON(ctx, http.MethodPost, "/api/collections/essays/records", payload)
	if err != nil {
		return nil, err
	}

	var essay model.Essay
	if err := json.Unmarshal(body, &essay); err != nil {
		return nil, fmt.Errorf("failed to parse created essay: %w", err)
	}

	c.log.WithField("essay_id", essay.ID).Info("essay record created")
	return &essay, nil
}

// UpdateEssay applies a partial update to an essay record.
func (c *Client) UpdateEssay(ctx context.Context, id string, fields map[string]any) error {
	_, err := c.doJSON(ctx, http.MethodPatch, "/api/collections/essays/records/"+id, fields)
	if err != nil {
		return mapNotFound(err, "essay "+id)
	}
	return nil
}

// DeleteEssay removes an essay record.
func (c *Client) DeleteEssay(ctx context.Context, id string) error {
	_, err := c.doJSON(ctx, http.MethodDelete, "/api/collections/essays/records/"+id, nil)
	if err != nil {
		return mapNotFound(err, "essay "+id)
	}
	return nil
}

type fileResponse struct {
	ID string `json:"id"`
}

// UploadAudio uploads synthesized audio as a multipart file attached to the
// essay record and returns the stored file id.
func (c *Client) UploadAudio(ctx context.Context, id string, data []byte, filename string) (string, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="%s"`, filename))
	header.Set("Content-Type", "audio/mpeg")

	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write audio payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/api/files/essays/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("audio upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", c.apiError(resp)
	}

	var file fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	if file.ID == "" {
		return "", fmt.Errorf("upload response contained no file id")
	}

	c.log.WithFields(logrus.Fields{"essay_id": id, "audio_file_id": file.ID, "size": len(data)}).
		Info("audio uploaded")
	return file.ID, nil
}

// GetAudio resolves the essay's audio reference and fetches the underlying
// blob. Essays without audio map to model.ErrNotFound.
func (c *Client) GetAudio(ctx context.Context, id string) (string, []byte, error) {
	essay, err := c.GetEssay(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if essay.AudioFileID == "" {
		return "", nil, fmt.Errorf("essay %s has no audio file: %w", id, model.ErrNotFound)
	}

	token, err := c.Authenticate(ctx)
	if err != nil {
		return "", nil, err
	}

	url := fmt.Sprintf("%s/api/files/essays/%s/%s", c.baseURL, id, essay.AudioFileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create audio request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("audio fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil, fmt.Errorf("audio file for essay %s: %w", id, model.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, c.apiError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read audio body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	return contentType, data, nil
}

// doJSON authenticates, performs a JSON request against the record API and
// returns the raw response body.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("record store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.apiError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

// apiError builds an APIError from a non-2xx response, preferring the
// store's own message field over the raw body.
func (c *Client) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var pbErr struct {
		Message string `json:"message"`
	}
	message := string(body)
	if err := json.Unmarshal(body, &pbErr); err == nil && pbErr.Message != "" {
		message = pbErr.Message
	}

	c.log.WithFields(logrus.Fields{"status": resp.StatusCode, "message": message}).
		Warn("record store error")

	return &APIError{Status: resp.StatusCode, Message: message}
}

// mapNotFound converts a 404 APIError into model.ErrNotFound so callers can
// match on the sentinel.
func mapNotFound(err error, subject string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("%s: %w", subject, model.ErrNotFound)
	}
	return err
}
