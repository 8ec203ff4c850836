package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"voucherDesk/internal/api/middleware"
	"voucherDesk/internal/database"
	"voucherDesk/internal/storage"
)

const (
	defaultAssetMaxBytes    = 5 * 1024 * 1024
	defaultMaxUploadsPerDay = 200
	assetURLTTL             = 15 * time.Minute
)

var errMaliciousFile = errors.New("malicious file detected")

// VirusScanner 在上传前扫描文件内容。
type VirusScanner interface {
	Scan(ctx context.Context, r io.Reader) error
}

// ClamdScanner 通过 clamd 的 INSTREAM 命令扫描。
type ClamdScanner struct {
	client *clamd.Clamd
}

func NewClamdScanner(addr string) *ClamdScanner {
	return &ClamdScanner{client: clamd.NewClamd(addr)}
}

func (s *ClamdScanner) Scan(_ context.Context, r io.Reader) error {
	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := s.client.ScanStream(r, abortChan)
	if err != nil {
		return fmt.Errorf("scan file: %w", err)
	}
	infected := false
	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			infected = true
		}
	}
	if infected {
		return errMaliciousFile
	}
	return nil
}

// AssetHandler 负责图片素材的上传与访问。素材对象键写入 Image 元素的 imageUrl，
// 打印时由 API 内联为 data URI。
type AssetHandler struct {
	DB            *gorm.DB
	Storage       ObjectStorage
	Scanner       VirusScanner
	IDs           *snowflake.Node
	MaxBytes      int64
	MIMEWhitelist map[string]string

	quota *dailyQuota
	now   func() time.Time
}

// NewAssetHandler 返回 AssetHandler 实例；redisClient 为 nil 时不做频率限制。
func NewAssetHandler(db *gorm.DB, storageClient ObjectStorage, scanner VirusScanner, redisClient redisRateCounter, ids *snowflake.Node) *AssetHandler {
	h := &AssetHandler{
		DB:       db,
		Storage:  storageClient,
		Scanner:  scanner,
		IDs:      ids,
		MaxBytes: defaultAssetMaxBytes,
		MIMEWhitelist: map[string]string{
			"image/png":  ".png",
			"image/jpeg": ".jpg",
			"image/webp": ".webp",
		},
		now: time.Now,
	}
	if redisClient != nil {
		h.quota = &dailyQuota{client: redisClient, prefix: "asset_upload", limit: defaultMaxUploadsPerDay}
	}
	return h
}

type assetResponse struct {
	ID          string    `json:"id"`
	ObjectKey   string    `json:"objectKey"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// POST /v1/assets/upload
// 上传前依次校验大小、内容类型、每日次数并扫描病毒。
func (h *AssetHandler) UploadAsset(c *gin.Context) {
	log := middleware.LoggerFromContext(c)
	ctx := c.Request.Context()

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size <= 0 || file.Size > h.MaxBytes {
		Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	content, err := io.ReadAll(io.LimitReader(reader, h.MaxBytes+1))
	reader.Close()
	if err != nil {
		Internal(c, "failed to read file")
		return
	}
	if int64(len(content)) > h.MaxBytes {
		Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	contentType := http.DetectContentType(content)
	ext, ok := h.MIMEWhitelist[contentType]
	if !ok {
		Error(c, http.StatusUnsupportedMediaType, "unsupported file type")
		return
	}

	if h.quota != nil {
		allowed, err := h.quota.Take(ctx, c.ClientIP(), h.now())
		if err != nil {
			log.Warn("asset upload quota unavailable", slog.Any("error", err))
		} else if !allowed {
			Error(c, http.StatusTooManyRequests, "daily upload limit reached")
			return
		}
	}

	if h.Scanner != nil {
		if err := h.Scanner.Scan(ctx, bytes.NewReader(content)); err != nil {
			if errors.Is(err, errMaliciousFile) {
				log.Warn("malicious upload rejected", slog.String("filename", file.Filename))
				BadRequest(c, "malicious file detected")
				return
			}
			log.Error("scan file", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
	}

	id := h.IDs.Generate()
	asset := database.Asset{
		ID:          id.Int64(),
		ObjectKey:   storage.AssetKey(h.now(), id.String(), ext),
		ContentType: contentType,
		Size:        int64(len(content)),
	}
	if _, err := h.Storage.UploadFile(ctx, asset.ObjectKey, bytes.NewReader(content), asset.Size, contentType); err != nil {
		log.Error("upload file", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}
	if err := h.DB.WithContext(ctx).Create(&asset).Error; err != nil {
		log.Error("record asset", slog.Any("error", err))
		Internal(c, "failed to record asset")
		return
	}

	resp := newAssetResponse(asset)
	if url, err := h.Storage.GeneratePresignedURL(ctx, asset.ObjectKey, assetURLTTL); err == nil {
		resp.URL = url
	} else {
		log.Warn("generate asset url", slog.Any("error", err))
	}
	c.JSON(http.StatusCreated, resp)
}

// GET /v1/assets
// 按上传时间倒序列出素材。
func (h *AssetHandler) ListAssets(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "60"))
	if err != nil || limit <= 0 {
		limit = 60
	}
	if limit > 200 {
		limit = 200
	}

	var assets []database.Asset
	if err := h.DB.WithContext(c.Request.Context()).
		Order("created_at DESC").
		Limit(limit).
		Find(&assets).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list assets", slog.Any("error", err))
		Internal(c, "failed to list assets")
		return
	}

	items := make([]assetResponse, 0, len(assets))
	for _, a := range assets {
		items = append(items, newAssetResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GET /v1/assets/view?key=
// 返回素材的临时预签名 URL。
func (h *AssetHandler) GetAssetURL(c *gin.Context) {
	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}
	if !storage.IsAssetKey(objectKey) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.Storage.GeneratePresignedURL(c.Request.Context(), objectKey, assetURLTTL)
	if err != nil {
		middleware.LoggerFromContext(c).Error("generate presigned url", slog.Any("error", err))
		Internal(c, "failed to generate url")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

func newAssetResponse(a database.Asset) assetResponse {
	return assetResponse{
		ID:          snowflake.ID(a.ID).String(),
		ObjectKey:   a.ObjectKey,
		ContentType: a.ContentType,
		Size:        a.Size,
		CreatedAt:   a.CreatedAt,
	}
}
