package service

import (
	"context"
	"strings"
	"testing"

	"smartdoc-go/internal/config"
	"smartdoc-go/internal/model"
	"smartdoc-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRAG = config.RAGConfig{
	TopK:             3,
	GlobalTopK:       5,
	MaxQuestionChars: 500,
	ExcerptChars:     200,
}

const invoiceText = "Invoice #42 from Acme Corp. The total amount due is $500, payable by March 1 to the listed account."

type chatFixture struct {
	*fixture
	llm          *fakeLLM
	conversation repository.ConversationRepository
	svc          ChatService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	f := newFixture(t)
	_, rdb := newTestRedis(t)
	fl := &fakeLLM{reply: "The total due is $500."}
	conv := repository.NewConversationRepository(rdb)
	svc := NewChatService(
		NewSearchService(f.embedder, f.store, f.docs),
		NewAnswerService(fl, testLLMConfig()),
		f.docs,
		conv,
		testRAG,
	)
	return &chatFixture{fixture: f, llm: fl, conversation: conv, svc: svc}
}

func TestNormalizeQuestion(t *testing.T) {
	q, err := NormalizeQuestion("  what is due?  ", 500)
	require.NoError(t, err)
	assert.Equal(t, "what is due?", q)

	_, err = NormalizeQuestion(" \n\t ", 500)
	assert.ErrorIs(t, err, ErrMissingQuestion)

	_, err = NormalizeQuestion(strings.Repeat("a", 501), 500)
	assert.ErrorIs(t, err, ErrQuestionTooLong)

	_, err = NormalizeQuestion(strings.Repeat("问", 500), 500)
	assert.NoError(t, err)
}

func TestAsk_Answered(t *testing.T) {
	c := newChatFixture(t)
	doc := c.addDocument(t, 1, "invoice", invoiceText)

	resp, err := c.svc.Ask(context.Background(), &model.User{ID: 1}, doc.ID, "What is the invoice total?")
	require.NoError(t, err)

	assert.Equal(t, "The total due is $500.", resp.Answer)
	assert.Equal(t, "high", resp.Confidence)
	assert.Nil(t, resp.DocumentsSearched)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, 1, resp.Sources[0].Page)
	assert.Equal(t, invoiceText, resp.Sources[0].TextExcerpt)
	assert.InDelta(t, 1.0, resp.Sources[0].Relevance, 1e-9)
	assert.Zero(t, resp.Sources[0].DocumentID)

	history, err := c.svc.History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, doc.ID, history[0].DocumentID)
	assert.Equal(t, "What is the invoice total?", history[0].Question)
}

func TestAsk_ExcerptIsTruncated(t *testing.T) {
	c := newChatFixture(t)
	long := "invoice " + strings.Repeat("x", 400)
	doc := c.addDocument(t, 1, "long", long)

	resp, err := c.svc.Ask(context.Background(), &model.User{ID: 1}, doc.ID, "invoice?")
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, long[:200]+"...", resp.Sources[0].TextExcerpt)
}

func TestAsk_InsufficientContextSkipsLLM(t *testing.T) {
	c := newChatFixture(t)
	doc := c.addDocument(t, 1, "weather", strings.Repeat("weather report ", 10))

	resp, err := c.svc.Ask(context.Background(), &model.User{ID: 1}, doc.ID, "What is the invoice total?")
	require.NoError(t, err)

	assert.Equal(t, fallbackSingleAnswer, resp.Answer)
	assert.Equal(t, "low", resp.Confidence)
	assert.Equal(t, ReasonLowRelevance, resp.Reason)
	assert.NotNil(t, resp.Sources)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, 0, c.llm.calls)
}

func TestAsk_Errors(t *testing.T) {
	c := newChatFixture(t)
	ready := c.addDocument(t, 1, "ready", invoiceText)
	pending := c.addDocument(t, 1, "pending")
	ctx := context.Background()
	owner := &model.User{ID: 1}

	_, err := c.svc.Ask(ctx, owner, ready.ID, "   ")
	assert.ErrorIs(t, err, ErrMissingQuestion)

	_, err = c.svc.Ask(ctx, owner, ready.ID, strings.Repeat("a", 501))
	assert.ErrorIs(t, err, ErrQuestionTooLong)

	_, err = c.svc.Ask(ctx, owner, 9999, "invoice?")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	_, err = c.svc.Ask(ctx, &model.User{ID: 2}, ready.ID, "invoice?")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	_, err = c.svc.Ask(ctx, owner, pending.ID, "invoice?")
	assert.ErrorIs(t, err, ErrDocumentNotReady)

	c.embedder.err = errBoom
	_, err = c.svc.Ask(ctx, owner, ready.ID, "invoice?")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestAsk_SynthesisFailure(t *testing.T) {
	c := newChatFixture(t)
	doc := c.addDocument(t, 1, "invoice", invoiceText)
	c.llm.err = errBoom

	resp, err := c.svc.Ask(context.Background(), &model.User{ID: 1}, doc.ID, "invoice total?")
	require.ErrorIs(t, err, ErrSynthesisFailed)
	require.NotNil(t, resp)
	assert.Equal(t, "Error generating answer: boom", resp.Answer)
}

func TestAskGlobal(t *testing.T) {
	c := newChatFixture(t)
	a := c.addDocument(t, 1, "invoice-a", invoiceText)
	b := c.addDocument(t, 1, "invoice-b", "Invoice #43 from Beta LLC. The total amount due is $750 by April 1.")
	c.addDocument(t, 2, "foreign", invoiceText)
	c.addDocument(t, 1, "pending")

	resp, err := c.svc.AskGlobal(context.Background(), &model.User{ID: 1}, "Which invoice totals are due?")
	require.NoError(t, err)

	require.NotNil(t, resp.DocumentsSearched)
	assert.Equal(t, 2, *resp.DocumentsSearched)
	require.Len(t, resp.Sources, 2)
	got := map[uint]string{}
	for _, s := range resp.Sources {
		got[s.DocumentID] = s.DocumentTitle
	}
	assert.Equal(t, map[uint]string{a.ID: "invoice-a", b.ID: "invoice-b"}, got)
	assert.Contains(t, c.llm.messages[1].Content, "=== Document: invoice-a ===")
}

func TestAskGlobal_NoDocuments(t *testing.T) {
	c := newChatFixture(t)

	resp, err := c.svc.AskGlobal(context.Background(), &model.User{ID: 1}, "anything?")
	require.NoError(t, err)
	assert.Equal(t, fallbackGlobalAnswer, resp.Answer)
	assert.Equal(t, ReasonNoRelevantContent, resp.Reason)
	require.NotNil(t, resp.DocumentsSearched)
	assert.Equal(t, 0, *resp.DocumentsSearched)
}

func TestStreamGlobal(t *testing.T) {
	c := newChatFixture(t)
	c.addDocument(t, 1, "invoice", invoiceText)
	c.llm.stream = []string{"The total ", "is $500."}
	w := &recordingWriter{}

	resp, err := c.svc.StreamGlobal(context.Background(), &model.User{ID: 1}, "invoice total?", w)
	require.NoError(t, err)
	assert.Equal(t, []string{"The total ", "is $500."}, w.parts)
	assert.Equal(t, "The total is $500.", resp.Answer)

	history, err := c.svc.History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "The total is $500.", history[0].Answer)
}

func TestStreamGlobal_FallbackIsWritten(t *testing.T) {
	c := newChatFixture(t)
	w := &recordingWriter{}

	resp, err := c.svc.StreamGlobal(context.Background(), &model.User{ID: 1}, "invoice total?", w)
	require.NoError(t, err)
	assert.Equal(t, []string{fallbackGlobalAnswer}, w.parts)
	assert.Equal(t, "low", resp.Confidence)
}
