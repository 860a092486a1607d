package pipeline

import (
	"bytes"
	"context"
	"strings"

	"smartdoc-go/pkg/log"
	"smartdoc-go/pkg/pdftext"
	"smartdoc-go/pkg/tika"
)

// Extraction 是文本提取的结果，Pages 为 0 表示页数未知。
type Extraction struct {
	Text  string
	Pages int
}

// Extractor 从原始文件内容中提取纯文本。
type Extractor interface {
	Extract(ctx context.Context, data []byte, fileName string) (Extraction, error)
}

// PDFExtractor 使用 ledongthuc/pdf 在进程内解析 PDF。
type PDFExtractor struct{}

func (PDFExtractor) Extract(_ context.Context, data []byte, _ string) (Extraction, error) {
	text, pages, err := pdftext.Extract(data)
	if err != nil {
		return Extraction{}, err
	}
	return Extraction{Text: text, Pages: pages}, nil
}

// TikaExtractor 调用 Apache Tika 服务提取文本。
type TikaExtractor struct {
	Client *tika.Client
}

func (t TikaExtractor) Extract(ctx context.Context, data []byte, fileName string) (Extraction, error) {
	res, err := t.Client.Parse(ctx, bytes.NewReader(data), fileName)
	if err != nil {
		return Extraction{}, err
	}
	return Extraction{Text: res.Text, Pages: res.Pages}, nil
}

// ChainExtractor 依次尝试各个提取器，返回第一个非空结果。
// 全部失败时返回最后一个错误；有提取器成功但文本为空时返回空结果。
type ChainExtractor []Extractor

func (c ChainExtractor) Extract(ctx context.Context, data []byte, fileName string) (Extraction, error) {
	var (
		best    Extraction
		lastErr error
		ok      bool
	)
	for _, e := range c {
		res, err := e.Extract(ctx, data, fileName)
		if err != nil {
			log.Warnf("[Extractor] %T 提取失败, file: %s, error: %v", e, fileName, err)
			lastErr = err
			continue
		}
		ok = true
		if strings.TrimSpace(res.Text) != "" {
			if res.Pages == 0 {
				res.Pages = best.Pages
			}
			return res, nil
		}
		if res.Pages > best.Pages {
			best.Pages = res.Pages
		}
	}
	if !ok && lastErr != nil {
		return Extraction{}, lastErr
	}
	return best, nil
}

// NewExtractor 构造默认提取链：先本地解析 PDF，配置了 Tika 时再用 Tika 兜底。
func NewExtractor(tikaClient *tika.Client) Extractor {
	chain := ChainExtractor{PDFExtractor{}}
	if tikaClient != nil {
		chain = append(chain, TikaExtractor{Client: tikaClient})
	}
	return chain
}
