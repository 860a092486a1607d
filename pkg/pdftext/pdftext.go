// Package pdftext 使用 ledongthuc/pdf 从 PDF 中提取纯文本。
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"smartdoc-go/pkg/log"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF 表示输入不是 PDF 文件。
var ErrNotPDF = errors.New("not a pdf document")

var magic = []byte("%PDF-")

// IsPDF 通过文件头判断是否为 PDF。
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

// Extract 逐页提取文本，以换行拼接后去除首尾空白，并返回页数。
// 单页解析失败只记录日志并跳过该页。
func Extract(data []byte) (text string, pages int, err error) {
	if !IsPDF(data) {
		return "", 0, ErrNotPDF
	}

	// ledongthuc/pdf 在遇到损坏的对象时可能 panic
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	pages = reader.NumPage()
	parts := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, perr := page.GetPlainText(nil)
		if perr != nil {
			log.Warnf("[PDFText] 第 %d 页提取失败: %v", i, perr)
			continue
		}
		parts = append(parts, pageText)
	}

	return strings.TrimSpace(strings.Join(parts, "\n")), pages, nil
}
