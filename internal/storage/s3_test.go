package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// newTestS3 creates an S3 struct with a mock HTTP backend for testing.
func newTestS3(t *testing.T, handler http.Handler) *S3 {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := s3.New(s3.Options{
		BaseEndpoint: aws.String(server.URL),
		Region:       "eu-west-1",
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
	})

	return &S3{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    "test-bucket",
	}
}

func TestS3_Put_Success(t *testing.T) {
	var capturedPath, capturedContentType, capturedBody string

	store := newTestS3(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		capturedPath = r.URL.Path
		capturedContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		capturedBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))

	url, err := store.Put(context.Background(), "exports/c1/2024-Q1.csv", strings.NewReader("box,vat\n"), "text/csv")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if url != "s3://test-bucket/exports/c1/2024-Q1.csv" {
		t.Errorf("url: got %q", url)
	}
	if !strings.HasSuffix(capturedPath, "/test-bucket/exports/c1/2024-Q1.csv") {
		t.Errorf("path: got %q", capturedPath)
	}
	if capturedContentType != "text/csv" {
		t.Errorf("content type: got %q", capturedContentType)
	}
	if capturedBody != "box,vat\n" {
		t.Errorf("body: got %q", capturedBody)
	}
}

func TestS3_Put_Error(t *testing.T) {
	store := newTestS3(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<?xml version="1.0"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`))
	}))

	_, err := store.Put(context.Background(), "forbidden.csv", strings.NewReader("data"), "text/csv")
	if err == nil {
		t.Fatal("expected error for S3 403, got nil")
	}
	if !strings.Contains(err.Error(), "putting object") {
		t.Errorf("error should wrap with context, got: %v", err)
	}
}

func TestS3_Get(t *testing.T) {
	store := newTestS3(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "missing.csv") {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("box,vat\n1a,210.00\n"))
	}))

	rc, err := store.Get(context.Background(), "exports/2024-Q1.csv")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "box,vat\n1a,210.00\n" {
		t.Errorf("body: got %q", data)
	}

	if _, err := store.Get(context.Background(), "exports/missing.csv"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestS3_Delete(t *testing.T) {
	var capturedMethod, capturedPath string

	store := newTestS3(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedMethod = r.Method
		capturedPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := store.Delete(context.Background(), "exports/old.csv"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if capturedMethod != http.MethodDelete {
		t.Errorf("method: got %q, want DELETE", capturedMethod)
	}
	if !strings.HasSuffix(capturedPath, "exports/old.csv") {
		t.Errorf("path: got %q", capturedPath)
	}
}

func TestS3_PresignGet(t *testing.T) {
	store := newTestS3(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	url, err := store.PresignGet(context.Background(), "exports/2024-Q1.csv", 15*time.Minute)
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}
	if !strings.Contains(url, "test-bucket") || !strings.Contains(url, "exports") {
		t.Errorf("presigned URL should contain bucket and key, got %q", url)
	}
	if !strings.Contains(url, "X-Amz-Signature") {
		t.Errorf("presigned URL should be signed, got %q", url)
	}
	if !strings.Contains(url, "X-Amz-Expires=900") {
		t.Errorf("presigned URL should carry the expiry, got %q", url)
	}
}

func TestNewS3(t *testing.T) {
	s, err := NewS3(context.Background(), S3Config{
		Endpoint:       "https://s3.example.com/",
		Region:         "eu-west-1",
		AccessKey:      "AKIA...",
		SecretKey:      "secret",
		ForcePathStyle: true,
		Bucket:         "btw-exports",
	})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	if s.bucket != "btw-exports" {
		t.Errorf("bucket: got %q", s.bucket)
	}
	if s.client == nil || s.presigner == nil {
		t.Error("client and presigner should be set")
	}
}
