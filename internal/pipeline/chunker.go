package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	// MinChunkChars 去除首尾空白后不超过该长度的窗口被视为噪声丢弃。
	MinChunkChars = 50
)

// ErrInvalidChunking 表示 size/overlap 组合无法向前推进窗口。
var ErrInvalidChunking = errors.New("invalid chunking parameters")

// SplitText 以字符（rune）为单位做滑动窗口切分。
// 窗口起点为 0, step, 2*step ... 直到起点到达文本末尾，step = size - overlap。
// 返回切片的下标即为 chunk_index。
func SplitText(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunking, size, overlap)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		window := string(runes[start:end])
		if utf8.RuneCountInString(strings.TrimSpace(window)) <= MinChunkChars {
			continue
		}
		chunks = append(chunks, window)
	}
	return chunks, nil
}
