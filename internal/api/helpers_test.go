package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"voucherDesk/internal/database"
	"voucherDesk/internal/editor"
	"voucherDesk/internal/printtoken"
	"voucherDesk/internal/storage"
	"voucherDesk/internal/tasks"
	"voucherDesk/internal/templates"
)

const testInternalSecret = "internal-secret"

type fakeStorage struct {
	uploaded        map[string][]byte
	objects         map[string][]byte
	deletedPrefixes []string
	listed          []storage.ObjectMeta
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		uploaded: map[string][]byte{},
		objects:  map[string][]byte{},
	}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	s.uploaded[objectName] = b
	return &minio.UploadInfo{}, nil
}

func (s *fakeStorage) ReadObject(_ context.Context, objectKey string, _ int64) ([]byte, string, error) {
	b, ok := s.objects[objectKey]
	if !ok {
		return nil, "", minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return b, "image/png", nil
}

func (s *fakeStorage) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://example.invalid/" + objectKey, nil
}

func (s *fakeStorage) GenerateDownloadURL(_ context.Context, objectKey string, _ time.Duration, filename string) (string, error) {
	return "https://example.invalid/" + objectKey + "?filename=" + filename, nil
}

func (s *fakeStorage) ListObjects(_ context.Context, prefix string, _ int) ([]storage.ObjectMeta, error) {
	out := make([]storage.ObjectMeta, 0)
	for _, obj := range s.listed {
		if strings.HasPrefix(obj.Key, prefix) {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (s *fakeStorage) DeletePrefix(_ context.Context, prefix string) error {
	s.deletedPrefixes = append(s.deletedPrefixes, prefix)
	return nil
}

type fakeRenders struct {
	payloads []tasks.VoucherRenderPayload
}

func (f *fakeRenders) EnqueueRender(_ context.Context, p tasks.VoucherRenderPayload) (string, error) {
	f.payloads = append(f.payloads, p)
	return "task-" + p.RenderID, nil
}

type testEnv struct {
	router  *gin.Engine
	db      *gorm.DB
	storage *fakeStorage
	renders *fakeRenders
	tokens  *printtoken.Service
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:api_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T, scanner VirusScanner) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db := newTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := templates.NewService(db, node, nil, nil, logger)
	store := newFakeStorage()
	renders := &fakeRenders{}
	tokens, err := printtoken.NewService("print-secret", time.Hour)
	require.NoError(t, err)

	assets := NewAssetHandler(db, store, scanner, nil, node)
	handlers, err := NewHandlers(Deps{
		Templates:     svc,
		Renders:       renders,
		Storage:       store,
		Tokens:        tokens,
		Editor:        editor.NewManager(editor.NewMemoryStore(time.Hour), svc, nil, logger),
		Assets:        assets,
		PublicBaseURL: "https://vouchers.example/",
		Logger:        logger,
	})
	require.NoError(t, err)

	router := NewRouter(logger)
	RegisterRoutes(router, handlers, testInternalSecret)
	return &testEnv{router: router, db: db, storage: store, renders: renders, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body=%s", w.Body.String())
	return out
}

const sendTemplateJSON = `{
	"name": "وصل إرسال",
	"templateType": "send_transfer",
	"pageSize": "a5_landscape",
	"elements": [
		{"id": "f1", "type": "text_field", "fieldKey": "sender_name", "x": 520, "y": 170, "width": 160, "height": 25},
		{"id": "f2", "type": "text_field", "fieldKey": "amount", "x": 100, "y": 170, "width": 160, "height": 25},
		{"id": "r1", "type": "rectangle", "x": 10, "y": 10, "width": 300, "height": 100}
	]
}`

func (e *testEnv) createTemplate(t *testing.T, body string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/templates", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id, _ := decodeBody(t, w)["id"].(string)
	require.NotEmpty(t, id)
	return id
}
