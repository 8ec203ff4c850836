package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"

	"voucherDesk/internal/errcode"
	"voucherDesk/internal/layout"
	"voucherDesk/internal/tasks"
	"voucherDesk/internal/templates"
)

type fakePrints struct {
	doc     *PrintDocument
	err     error
	lastReq PrintRequest
}

func (f *fakePrints) Fetch(_ context.Context, _ string, req PrintRequest, _ string) (*PrintDocument, error) {
	f.lastReq = req
	return f.doc, f.err
}

type fakeRenderer struct {
	pdfCalls  int
	shotCalls int
}

func (f *fakeRenderer) PDF(_ context.Context, _ string, _ layout.Dimensions) ([]byte, error) {
	f.pdfCalls++
	return []byte("%PDF-1.7"), nil
}

func (f *fakeRenderer) Screenshot(_ context.Context, _ string, _ layout.Dimensions, _ int) ([]byte, error) {
	f.shotCalls++
	return []byte{0xff, 0xd8}, nil
}

type fakeStorage struct {
	uploaded map[string][]byte
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	s.uploaded[objectName] = b
	return &minio.UploadInfo{}, nil
}

func (s *fakeStorage) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://example.invalid/" + objectKey, nil
}

func (s *fakeStorage) GenerateDownloadURL(_ context.Context, objectKey string, _ time.Duration, _ string) (string, error) {
	return "https://example.invalid/download/" + objectKey, nil
}

type fakeRecorder struct {
	id  int64
	url string
	err error
}

func (r *fakeRecorder) SetPreview(_ context.Context, id int64, _ string, url string) error {
	r.id, r.url = id, url
	return r.err
}

type fakePublisher struct {
	channels []string
	messages []NotifyMessage
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channels = append(p.channels, channel)
	var msg NotifyMessage
	_ = json.Unmarshal(message.([]byte), &msg)
	p.messages = append(p.messages, msg)
	return redis.NewIntCmd(ctx)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDoc() *PrintDocument {
	return &PrintDocument{HTML: "<html></html>", Page: layout.Dimensions{Width: 794, Height: 559}}
}

func TestTemplatePreviewHandler(t *testing.T) {
	prints := &fakePrints{doc: testDoc()}
	renderer := &fakeRenderer{}
	store := &fakeStorage{uploaded: map[string][]byte{}}
	recorder := &fakeRecorder{}
	pub := &fakePublisher{}
	h := NewTemplatePreviewHandler(prints, renderer, store, recorder, pub, testLogger())

	task, err := tasks.NewTemplatePreviewTask("1234", "corr-1")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process task: %v", err)
	}

	if !prints.lastReq.Sample {
		t.Fatal("expected preview to request sample data")
	}
	if _, ok := store.uploaded["templates/1234/preview.jpg"]; !ok {
		t.Fatalf("preview not uploaded: %v", store.uploaded)
	}
	if recorder.id != 1234 || !strings.HasSuffix(recorder.url, "templates/1234/preview.jpg") {
		t.Fatalf("unexpected preview record id=%d url=%s", recorder.id, recorder.url)
	}
	if len(pub.messages) != 1 || pub.channels[0] != "template_notify:1234" || pub.messages[0].Status != "completed" {
		t.Fatalf("unexpected notifications %+v", pub.messages)
	}
}

func TestTemplatePreviewHandlerSkipsDeletedTemplate(t *testing.T) {
	prints := &fakePrints{err: &PrintStatusError{StatusCode: http.StatusNotFound}}
	renderer := &fakeRenderer{}
	h := NewTemplatePreviewHandler(prints, renderer, &fakeStorage{uploaded: map[string][]byte{}}, &fakeRecorder{}, &fakePublisher{}, testLogger())

	task, _ := tasks.NewTemplatePreviewTask("1234", "")
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("expected deleted template to be skipped, got %v", err)
	}
	if renderer.shotCalls != 0 {
		t.Fatal("renderer should not be called")
	}

	recorder := &fakeRecorder{err: templates.ErrNotFound}
	h = NewTemplatePreviewHandler(&fakePrints{doc: testDoc()}, renderer, &fakeStorage{uploaded: map[string][]byte{}}, recorder, &fakePublisher{}, testLogger())
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("expected template deleted mid-task to be skipped, got %v", err)
	}
}

func TestTemplatePreviewHandlerRejectsBadPayload(t *testing.T) {
	h := NewTemplatePreviewHandler(&fakePrints{}, &fakeRenderer{}, &fakeStorage{}, &fakeRecorder{}, &fakePublisher{}, testLogger())

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeTemplatePreview, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	task, _ := tasks.NewTemplatePreviewTask("abc", "")
	if err := h.ProcessTask(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for bad id, got %v", err)
	}
}

func TestVoucherRenderHandlerReportsMissingFields(t *testing.T) {
	doc := testDoc()
	doc.MissingFields = []string{"receiver_phone"}
	prints := &fakePrints{doc: doc}
	renderer := &fakeRenderer{}
	store := &fakeStorage{uploaded: map[string][]byte{}}
	pub := &fakePublisher{}
	h := NewVoucherRenderHandler(prints, renderer, store, pub, testLogger())

	task, err := tasks.NewVoucherRenderTask(tasks.VoucherRenderPayload{
		TemplateID: "55",
		RenderID:   "r-1",
		Data:       map[string]string{"amount": "100"},
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process task: %v", err)
	}

	if prints.lastReq.Data["amount"] != "100" {
		t.Fatalf("data not forwarded: %+v", prints.lastReq)
	}
	if string(store.uploaded["templates/55/renders/r-1.pdf"]) != "%PDF-1.7" {
		t.Fatalf("pdf not uploaded: %v", store.uploaded)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one notification, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.ErrorCode != errcode.ResourceMissing || msg.RenderID != "r-1" || len(msg.MissingFields) != 1 {
		t.Fatalf("unexpected notification %+v", msg)
	}
}

func TestVoucherRenderHandlerReturnsFetchError(t *testing.T) {
	prints := &fakePrints{err: errors.New("connection refused")}
	pub := &fakePublisher{}
	h := NewVoucherRenderHandler(prints, &fakeRenderer{}, &fakeStorage{uploaded: map[string][]byte{}}, pub, testLogger())

	task, _ := tasks.NewVoucherRenderTask(tasks.VoucherRenderPayload{TemplateID: "55", RenderID: "r-1"})
	if err := h.ProcessTask(context.Background(), task); err == nil {
		t.Fatal("expected error to trigger retry")
	}
	if len(pub.messages) != 0 {
		t.Fatal("non-final attempts must not publish errors")
	}
}

func TestVoucherRenderHandlerNotifiesDeletedTemplate(t *testing.T) {
	prints := &fakePrints{err: &PrintStatusError{StatusCode: http.StatusNotFound}}
	renderer := &fakeRenderer{}
	pub := &fakePublisher{}
	h := NewVoucherRenderHandler(prints, renderer, &fakeStorage{uploaded: map[string][]byte{}}, pub, testLogger())

	task, _ := tasks.NewVoucherRenderTask(tasks.VoucherRenderPayload{TemplateID: "55", RenderID: "r-2"})
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("expected deleted template to be skipped, got %v", err)
	}
	if renderer.pdfCalls != 0 {
		t.Fatal("renderer should not be called")
	}
	if len(pub.messages) != 1 || pub.messages[0].Status != "skipped" || pub.messages[0].ErrorCode != errcode.TemplateGone {
		t.Fatalf("unexpected notifications %+v", pub.messages)
	}
}
