// Package modelapi posts audio files to model inference services.
package modelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Upload is one multipart request: plain fields plus the audio file.
type Upload struct {
	URL      string
	APIKey   string
	Fields   map[string]string
	FilePath string
}

type Client struct {
	HTTP *http.Client
}

func New(timeout time.Duration) *Client {
	return &Client{HTTP: &http.Client{Timeout: timeout}}
}

// StatusError is a response the service rejected.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service returned %d: %s", e.Code, e.Body)
}

// PostJSON sends up once and decodes the JSON response into target. Model
// calls are never retried; a failed call fails the run.
func (c *Client) PostJSON(ctx context.Context, up Upload, target any) error {
	audio, err := os.ReadFile(up.FilePath)
	if err != nil {
		return fmt.Errorf("read audio: %w", err)
	}
	body, contentType, err := buildForm(up, audio)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, up.URL, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if up.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+up.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	if len(raw) == 0 {
		return errors.New("empty body")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("json decode error: %v body=%s", err, string(raw))
	}
	return nil
}

func buildForm(up Upload, audio []byte) (*bytes.Buffer, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	for k, v := range up.Fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %q: %w", k, err)
		}
	}
	part, err := w.CreateFormFile("file", filepath.Base(up.FilePath))
	if err != nil {
		return nil, "", fmt.Errorf("create file field: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &b, w.FormDataContentType(), nil
}
