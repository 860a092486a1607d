package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// numberedText 生成长度为 n 的文本，每个位置的字符可区分，便于校验偏移。
func numberedText(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	return b.String()
}

func TestSplitText_InvalidParameters(t *testing.T) {
	cases := []struct {
		name          string
		size, overlap int
	}{
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
		{"zero size", 0, 0},
		{"negative overlap", 100, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := SplitText("some text", tc.size, tc.overlap)
			assert.ErrorIs(t, err, ErrInvalidChunking)
		})
	}
}

func TestSplitText_ShortTextBelowFloor(t *testing.T) {
	text := "Invoice #1002 for $500 due March 1"
	chunks, err := SplitText(text, DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitText_FloorBoundary(t *testing.T) {
	exactly50 := strings.Repeat("x", 50)
	chunks, err := SplitText("   "+exactly50+"   ", DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	assert.Empty(t, chunks, "50 trimmed characters is not enough")

	chunks, err = SplitText(exactly50+"y", DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestSplitText_WindowOffsets(t *testing.T) {
	text := numberedText(2500)
	chunks, err := SplitText(text, 1000, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	starts := []int{0, 800, 1600, 2400}
	for i, start := range starts {
		end := start + 1000
		if end > len(text) {
			end = len(text)
		}
		assert.Equal(t, text[start:end], chunks[i], "chunk %d", i)
	}
	assert.Len(t, chunks[3], 100)
}

func TestSplitText_DropsShortTail(t *testing.T) {
	// 起点 0 与 800；第二个窗口只有 30 个字符，被丢弃
	text := numberedText(830)
	chunks, err := SplitText(text, 1000, 200)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestSplitText_ShorterThanSizeCanYieldTwoChunks(t *testing.T) {
	// 900 < size，但起点 800 的尾窗口有 100 个字符，超过下限而被保留
	text := numberedText(900)
	chunks, err := SplitText(text, 1000, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, text, chunks[0])
	assert.Equal(t, text[800:], chunks[1])
}

func TestSplitText_Deterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 120)
	first, err := SplitText(text, 1000, 200)
	require.NoError(t, err)
	second, err := SplitText(text, 1000, 200)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSplitText_Coverage(t *testing.T) {
	text := numberedText(3333)
	chunks, err := SplitText(text, 1000, 200)
	require.NoError(t, err)

	covered := make([]bool, len(text))
	for i := range chunks {
		start := i * 800
		for j := start; j < start+len(chunks[i]); j++ {
			covered[j] = true
		}
	}
	for pos, ok := range covered {
		require.True(t, ok, "offset %d not covered", pos)
	}
}

func TestSplitText_CountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("文", 1200)
	chunks, err := SplitText(text, 1000, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1000, len([]rune(chunks[0])))
	assert.Equal(t, 400, len([]rune(chunks[1])))
}
