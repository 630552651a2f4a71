// Package photo uploads the evidence photos attached to stock edits. Upload
// failure is never fatal: callers persist the original local reference when
// no remote URL comes back.
package photo

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kassirpos/agent/internal/xid"
)

type Uploader interface {
	// Upload returns the public URL for the stored photo, or "" when the
	// photo could not be uploaded.
	Upload(ctx context.Context, localRef string) (string, error)
}

// Noop keeps every reference local.
type Noop struct{}

func (Noop) Upload(_ context.Context, _ string) (string, error) { return "", nil }

// RESTUploader posts photo files to the backend's storage bucket endpoint.
type RESTUploader struct {
	baseURL string
	apiKey  string
	bucket  string
	client  *http.Client
}

func NewRESTUploader(baseURL, apiKey, bucket string) *RESTUploader {
	if bucket == "" {
		bucket = "stock-photos"
	}
	return &RESTUploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		bucket:  bucket,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (u *RESTUploader) Upload(ctx context.Context, localRef string) (string, error) {
	// Already-remote references pass through untouched.
	if localRef == "" || strings.HasPrefix(localRef, "http") {
		return localRef, nil
	}

	file, err := os.Open(strings.TrimPrefix(localRef, "file://"))
	if err != nil {
		log.Printf("[photo] WARN: open %s: %v", localRef, err)
		return "", nil
	}
	defer file.Close()

	name := xid.New("stock") + filepath.Ext(localRef)
	if filepath.Ext(localRef) == "" {
		name += ".jpg"
	}

	body := &strings.Builder{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", nil
	}
	if _, err := io.Copy(part, file); err != nil {
		log.Printf("[photo] WARN: read %s: %v", localRef, err)
		return "", nil
	}
	if err := writer.Close(); err != nil {
		return "", nil
	}

	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", u.baseURL, u.bucket, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body.String()))
	if err != nil {
		return "", nil
	}
	req.Header.Set("apikey", u.apiKey)
	req.Header.Set("Authorization", "Bearer "+u.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		log.Printf("[photo] WARN: upload %s: %v", name, err)
		return "", nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[photo] WARN: upload %s: status %d", name, resp.StatusCode)
		return "", nil
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", u.baseURL, u.bucket, name), nil
}
