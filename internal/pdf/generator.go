package pdf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"voucherDesk/internal/layout"
)

// CSS 像素与英寸的换算（96 DPI），用于 PagePrintToPDF 的纸张尺寸。
const pixelsPerInch = 96.0

const (
	defaultLoadTimeout  = 30 * time.Second
	readyMarkerSelector = "#print-ready"
	pageRootSelector    = "#page-root"
)

// Generator 使用 go-rod 在无头浏览器中渲染单据 HTML。
// 每次调用都启动独立的浏览器进程，调用结束即回收。
type Generator struct {
	logger  *slog.Logger
	timeout time.Duration
}

func NewGenerator(logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{logger: logger, timeout: defaultLoadTimeout}
}

// PDF 渲染 HTML 并导出与页面等大的 PDF。
func (g *Generator) PDF(ctx context.Context, htmlContent string, page layout.Dimensions) ([]byte, error) {
	var data []byte
	err := g.withPage(ctx, htmlContent, func(p *rod.Page) error {
		reader, err := p.PDF(&proto.PagePrintToPDF{
			PrintBackground:   true,
			PaperWidth:        float64Ptr(page.Width / pixelsPerInch),
			PaperHeight:       float64Ptr(page.Height / pixelsPerInch),
			MarginTop:         float64Ptr(0),
			MarginBottom:      float64Ptr(0),
			MarginLeft:        float64Ptr(0),
			MarginRight:       float64Ptr(0),
			PreferCSSPageSize: true,
		})
		if err != nil {
			return fmt.Errorf("export pdf: %w", err)
		}
		defer func() {
			_ = reader.Close()
		}()

		data, err = io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("read pdf bytes: %w", err)
		}
		return nil
	})
	return data, err
}

// Screenshot 截取页面根节点的 JPEG，用作模板缩略图。
func (g *Generator) Screenshot(ctx context.Context, htmlContent string, page layout.Dimensions, quality int) ([]byte, error) {
	var data []byte
	err := g.withPage(ctx, htmlContent, func(p *rod.Page) error {
		if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             int(page.Width),
			Height:            int(page.Height),
			DeviceScaleFactor: 1,
		}); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}

		if root, err := p.Timeout(5 * time.Second).Element(pageRootSelector); err == nil {
			if shot, shotErr := root.Screenshot(proto.PageCaptureScreenshotFormatJpeg, quality); shotErr == nil {
				data = shot
				return nil
			}
		}

		shot, err := p.Screenshot(true, &proto.PageCaptureScreenshot{
			Format:  proto.PageCaptureScreenshotFormatJpeg,
			Quality: intPtr(quality),
		})
		if err != nil {
			return fmt.Errorf("page screenshot: %w", err)
		}
		data = shot
		return nil
	})
	return data, err
}

func (g *Generator) withPage(ctx context.Context, htmlContent string, fn func(*rod.Page) error) error {
	launch := launcher.New().
		Headless(true).
		NoSandbox(true)

	if path, ok := launcher.LookPath(); ok {
		launch = launch.Bin(path)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		return fmt.Errorf("launch chromium: %w", err)
	}
	defer launch.Cleanup()

	browser := rod.New().ControlURL(browserURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	defer func() {
		_ = browser.Close()
	}()

	page, err := browser.Timeout(g.timeout).Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	defer func() {
		_ = page.Close()
	}()

	page = page.Timeout(g.timeout)
	if err := page.SetDocumentContent(htmlContent); err != nil {
		return fmt.Errorf("set document content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}

	g.logger.Debug("waiting for render signal", slog.String("selector", readyMarkerSelector))
	if _, err := page.Element(readyMarkerSelector); err != nil {
		return fmt.Errorf("wait render signal: %w", err)
	}

	// 等待字体加载，避免回退字体导致阿拉伯文排版偏移
	if _, err := page.Timeout(5 * time.Second).Eval(`() => {
	  if (document && document.fonts && document.fonts.ready) {
	    return Promise.race([
	      document.fonts.ready.then(() => true),
	      new Promise((resolve) => setTimeout(() => resolve(true), 3000))
	    ]);
	  }
	  return true;
	}`); err != nil {
		g.logger.Warn("document.fonts.ready wait failed, continue", slog.Any("error", err))
	}

	if err := (proto.EmulationSetEmulatedMedia{Media: "print"}).Call(page); err != nil {
		return fmt.Errorf("set emulated media to print: %w", err)
	}

	return fn(page)
}

func float64Ptr(value float64) *float64 {
	return &value
}

func intPtr(value int) *int {
	return &value
}
