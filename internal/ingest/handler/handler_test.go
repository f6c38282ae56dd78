package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"gallery_backend/internal/adapters/storage"
	gallerysvc "gallery_backend/internal/gallery/service"
	"gallery_backend/internal/ingest/pipeline"
	"gallery_backend/platform/apperr"
	"gallery_backend/platform/logger"
	"gallery_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type fakeBlobStore struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeBlobStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*storage.StoredObject, error) {
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	return &storage.StoredObject{
		PublicURL:   "https://cdn.example.com/" + key,
		DownloadURL: "https://cdn.example.com/" + key + "?download",
		Key:         key,
	}, nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, key string) error { return nil }

func (f *fakeBlobStore) EnsureBucketExists(ctx context.Context) error { return nil }

type testEnv struct {
	router *gin.Engine
	svc    *gallerysvc.Service
	store  *fakeBlobStore
}

func newTestEnv(t *testing.T, maxImages int) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.New("test")
	svc, err := gallerysvc.NewService(context.Background(), gallerysvc.NewMemoryStore(), maxImages, log)
	if err != nil {
		t.Fatalf("new gallery service: %v", err)
	}

	store := &fakeBlobStore{}
	val := pipeline.NewValidator(pipeline.DefaultMaxSize)
	pipe := pipeline.NewPipeline(pipeline.NewTranscoder(), pipeline.NewNamer(), store, log)
	orch := pipeline.NewOrchestrator(val, pipe, svc, maxImages, 2, log)
	h := New(pipe, orch, val, svc, validator.New())

	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1"))
	return &testEnv{router: router, svc: svc, store: store}
}

func pngBody(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func doUpload(env *testEnv, filename, contentType string, body []byte) *httptest.ResponseRecorder {
	target := "/api/v1/upload"
	if filename != "" {
		target += "?filename=" + filename
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestUploadReturnsReceipt(t *testing.T) {
	env := newTestEnv(t, 10)
	raw := pngBody(t)

	w := doUpload(env, "photo.png", "image/png", raw)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		URL              string `json:"url"`
		DownloadURL      string `json:"downloadUrl"`
		Pathname         string `json:"pathname"`
		OriginalSize     int64  `json:"originalSize"`
		CompressedSize   int64  `json:"compressedSize"`
		CompressionRatio int    `json:"compressionRatio"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.URL == "" || resp.DownloadURL == "" {
		t.Fatalf("missing URLs in response: %+v", resp)
	}
	if !strings.HasSuffix(resp.Pathname, ".jpg") {
		t.Fatalf("stored key %q should carry the canonical extension", resp.Pathname)
	}
	if resp.OriginalSize != int64(len(raw)) {
		t.Fatalf("originalSize %d, want %d", resp.OriginalSize, len(raw))
	}
	if resp.CompressedSize <= 0 {
		t.Fatalf("compressedSize %d", resp.CompressedSize)
	}
}

func TestUploadRequiresFilename(t *testing.T) {
	env := newTestEnv(t, 10)

	w := doUpload(env, "", "image/png", pngBody(t))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "filename") {
		t.Fatalf("error should mention the filename parameter: %s", w.Body.String())
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	env := newTestEnv(t, 10)

	w := doUpload(env, "doc.pdf", "application/pdf", []byte("%PDF-1.4"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(env.store.keys) != 0 {
		t.Fatal("rejected upload must not reach the blob store")
	}
}

func TestUploadRejectsEmptyBody(t *testing.T) {
	env := newTestEnv(t, 10)

	w := doUpload(env, "photo.png", "image/png", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUploadRejectsOversizedDeclaredSize(t *testing.T) {
	env := newTestEnv(t, 10)

	// The declared length alone turns the request away before the body is
	// consumed.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload?filename=big.png", bytes.NewReader([]byte("x")))
	req.Header.Set("Content-Type", "image/png")
	req.ContentLength = pipeline.DefaultMaxSize + 1
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "maximum allowed size") {
		t.Fatalf("error should mention the size ceiling: %s", w.Body.String())
	}
}

func TestPipelineErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		kind apperr.Kind
	}{
		{pipeline.ErrFileTooLarge, apperr.KindTooLarge},
		{pipeline.ErrUnsupportedType, apperr.KindValidation},
		{pipeline.ErrEmptyFile, apperr.KindValidation},
		{pipeline.ErrMissingFilename, apperr.KindValidation},
		{pipeline.ErrUnreadableImage, apperr.KindInternal},
		{&pipeline.StoreError{Key: "k", Err: errors.New("boom")}, apperr.KindInternal},
		{errors.New("unclassified"), apperr.KindBadRequest},
	}
	for _, tc := range cases {
		mapped := asAppError(tc.err)
		if mapped.Kind != tc.kind {
			t.Fatalf("%v: mapped to kind %d, want %d", tc.err, mapped.Kind, tc.kind)
		}
	}
}

func TestUploadUnreadableBytesIsServerError(t *testing.T) {
	env := newTestEnv(t, 10)

	// The declared type passes the pre-filter; the decode failure is an
	// ingestion-side problem, not a client one.
	w := doUpload(env, "photo.png", "image/png", []byte("not a png at all"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func batchRequest(t *testing.T, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="files"; filename="%s"`, name)}
		if strings.HasSuffix(name, ".txt") {
			header["Content-Type"] = []string{"text/plain"}
		} else {
			header["Content-Type"] = []string{"image/png"}
		}
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/gallery/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestBatchUploadCommitsAllSuccesses(t *testing.T) {
	env := newTestEnv(t, 10)
	raw := pngBody(t)

	req := batchRequest(t, map[string][]byte{"a.png": raw, "b.png": raw})
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		URLs   []string `json:"urls"`
		Count  int      `json:"count"`
		Failed int      `json:"failed"`
		Error  string   `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.URLs) != 2 {
		t.Fatalf("expected 2 committed images, got count %d urls %v", resp.Count, resp.URLs)
	}
	if resp.Failed != 0 || resp.Error != "" {
		t.Fatalf("unexpected failures: %d %q", resp.Failed, resp.Error)
	}
	if env.svc.Size() != 2 {
		t.Fatalf("collection size %d, want 2", env.svc.Size())
	}
}

func TestBatchUploadPartialFailure(t *testing.T) {
	env := newTestEnv(t, 10)

	req := batchRequest(t, map[string][]byte{"a.png": pngBody(t), "notes.txt": []byte("hi")})
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("partial failure still settles with 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Count  int    `json:"count"`
		Failed int    `json:"failed"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || resp.Failed != 1 {
		t.Fatalf("expected 1 stored and 1 failed, got %d/%d", resp.Count, resp.Failed)
	}
	if resp.Error == "" {
		t.Fatal("batch with failures should carry the first failure message")
	}
}

func TestBatchUploadOverCapacity(t *testing.T) {
	env := newTestEnv(t, 1)
	raw := pngBody(t)

	req := batchRequest(t, map[string][]byte{"a.png": raw, "b.png": raw})
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "at most 1 images") {
		t.Fatalf("capacity message should name the limit: %s", w.Body.String())
	}
	if env.svc.Size() != 0 {
		t.Fatalf("rejected batch must not mutate the collection, size %d", env.svc.Size())
	}
	if len(env.store.keys) != 0 {
		t.Fatal("rejected batch must not reach the blob store")
	}
}

func TestBatchUploadNoFiles(t *testing.T) {
	env := newTestEnv(t, 10)

	req := batchRequest(t, map[string][]byte{})
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
