package uploads

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SupabaseClient defines what we need from Supabase storage.
type SupabaseClient interface {
	Upload(ctx context.Context, bucket, path, contentType string, body io.Reader) error
	PublicURL(bucket, path string) string
}

// HTTPClient is a SupabaseClient backed by the storage REST API.
type HTTPClient struct {
	BaseURL   string
	SecretKey string
	Client    *http.Client
}

var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

func (c *HTTPClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return defaultHTTPClient
}

func (c *HTTPClient) Upload(ctx context.Context, bucket, path, contentType string, body io.Reader) error {
	if c.BaseURL == "" {
		return fmt.Errorf("supabase: SUPABASE_URL is not set")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("supabase: SUPABASE_SECRET_KEY is not set")
	}
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", strings.TrimRight(c.BaseURL, "/"), bucket, escapePath(path))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	// Match @supabase/supabase-js: both apikey and Authorization Bearer (same key)
	req.Header.Set("apikey", c.SecretKey)
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("x-upsert", "false")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("supabase request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		bodyStr := string(respBody)
		// 403 Unauthorized / Invalid Compact JWS = anon key sent as Bearer; storage writes need service_role
		if resp.StatusCode == 400 || resp.StatusCode == 403 {
			if strings.Contains(bodyStr, "Invalid Compact JWS") || strings.Contains(bodyStr, "Unauthorized") {
				return fmt.Errorf("supabase storage requires the service_role key, not the anon key: set SUPABASE_SECRET_KEY (raw body: %s)", bodyStr)
			}
		}
		return fmt.Errorf("supabase error: status %d body: %s", resp.StatusCode, bodyStr)
	}
	return nil
}

func (c *HTTPClient) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", strings.TrimRight(c.BaseURL, "/"), bucket, escapePath(path))
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

// SupabaseStorage stores attachments in a public Supabase bucket under "notices/".
type SupabaseStorage struct {
	Client SupabaseClient
	Bucket string
}

func (s *SupabaseStorage) Put(ctx context.Context, name, contentType string, body io.Reader, size int64) (string, error) {
	path := "notices/" + name
	if err := s.Client.Upload(ctx, s.Bucket, path, contentType, body); err != nil {
		return "", err
	}
	return s.Client.PublicURL(s.Bucket, path), nil
}
