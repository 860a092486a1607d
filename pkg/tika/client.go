// Package tika 调用 Apache Tika 的 /rmeta 接口，作为本地 PDF 解析失败时的兜底。
package tika

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"smartdoc-go/internal/config"
)

const (
	contentKey = "X-TIKA:content"
	pagesKey   = "xmpTPg:NPages"
	typeKey    = "Content-Type"
)

// Result 是一次解析得到的正文与页数。Tika 未报告页数时 Pages 为 0。
type Result struct {
	Text        string
	Pages       int
	ContentType string
}

type Client struct {
	serverURL string
	maxBytes  int64
	http      *http.Client
}

func NewClient(cfg config.TikaConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	maxBytes := cfg.MaxTextBytes
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &Client{
		serverURL: strings.TrimRight(cfg.ServerURL, "/"),
		maxBytes:  maxBytes,
		http:      &http.Client{Timeout: timeout},
	}
}

// Parse 上传文件并读取第一个（顶层）元数据条目；嵌入附件的条目被忽略。
func (c *Client) Parse(ctx context.Context, body io.Reader, fileName string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/rmeta/text", body)
	if err != nil {
		return Result{}, fmt.Errorf("创建 Tika 请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType(fileName))
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(fileName)))

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var entries []map[string]interface{}
	if err := json.NewDecoder(io.LimitReader(resp.Body, c.maxBytes)).Decode(&entries); err != nil {
		return Result{}, fmt.Errorf("解析 Tika 响应失败: %w", err)
	}
	if len(entries) == 0 {
		return Result{}, errors.New("Tika 未返回任何内容")
	}
	top := entries[0]
	return Result{
		Text:        strings.TrimSpace(stringField(top, contentKey)),
		Pages:       intField(top, pagesKey),
		ContentType: stringField(top, typeKey),
	}, nil
}

// Tika 对多值元数据返回数组，取第一个值。
func stringField(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func intField(m map[string]interface{}, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(stringField(m, key)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func contentType(fileName string) string {
	if strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return "application/pdf"
	}
	return "application/octet-stream"
}
