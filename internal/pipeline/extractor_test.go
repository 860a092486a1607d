package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"smartdoc-go/internal/config"
	"smartdoc-go/pkg/tika"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedExtractor Extraction

func (f fixedExtractor) Extract(context.Context, []byte, string) (Extraction, error) {
	return Extraction(f), nil
}

func TestChainExtractor_FallsBackToTika(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"xmpTPg:NPages":"4","X-TIKA:content":"scanned invoice text"}]`))
	}))
	defer srv.Close()

	chain := NewExtractor(tika.NewClient(config.TikaConfig{ServerURL: srv.URL}))
	res, err := chain.Extract(context.Background(), []byte("not a pdf"), "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "scanned invoice text", res.Text)
	assert.Equal(t, 4, res.Pages)
}

func TestChainExtractor_KeepsKnownPageCount(t *testing.T) {
	chain := ChainExtractor{
		fixedExtractor{Text: "  ", Pages: 2},
		fixedExtractor{Text: "from ocr"},
	}
	res, err := chain.Extract(context.Background(), nil, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "from ocr", res.Text)
	assert.Equal(t, 2, res.Pages)
}

func TestChainExtractor_EmptyButSuccessful(t *testing.T) {
	chain := ChainExtractor{textExtractor{err: errors.New("boom")}, fixedExtractor{Pages: 1}}
	res, err := chain.Extract(context.Background(), nil, "a.pdf")
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Equal(t, 1, res.Pages)
}

func TestChainExtractor_AllFail(t *testing.T) {
	last := errors.New("tika down")
	chain := ChainExtractor{textExtractor{err: errors.New("bad xref")}, textExtractor{err: last}}
	_, err := chain.Extract(context.Background(), nil, "a.pdf")
	assert.ErrorIs(t, err, last)
}

func TestNewExtractor_WithoutTika(t *testing.T) {
	chain, ok := NewExtractor(nil).(ChainExtractor)
	require.True(t, ok)
	assert.Len(t, chain, 1)
}
