package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sudooom.im.chat/internal/config"
)

// Uploader 对象存储边界
// 上传文件并返回可取回的引用 URL。消息核心只保存和展示这个 URL，
// 从不解析文件内容
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// HTTPUploader 基于 HTTP PUT 的对象存储客户端
type HTTPUploader struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPUploader 创建对象存储客户端
func NewHTTPUploader(cfg config.StorageConfig) *HTTPUploader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPUploader{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  slog.Default(),
	}
}

// Upload 上传文件，返回引用 URL
func (u *HTTPUploader) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	target := u.baseURL + "/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, r)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := u.client.Do(req)
	if err != nil {
		u.logger.Error("Upload failed", "name", name, "error", err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload rejected: %s", resp.Status)
	}

	return target, nil
}
