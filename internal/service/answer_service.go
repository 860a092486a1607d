package service

import (
	"context"
	"fmt"
	"strings"

	"smartdoc-go/internal/config"
	"smartdoc-go/internal/model"
	"smartdoc-go/pkg/llm"
	"smartdoc-go/pkg/log"
)

const singleDocumentPrompt = `You are a helpful AI assistant that answers questions based on provided document excerpts.

Rules:
- Answer ONLY based on the provided sources
- If the answer isn't in the sources, say so clearly
- Mention where information comes from conversationally (for example "page 2 says..."), never with bracketed citation markers
- Be concise (2-4 sentences) unless the question asks for detail
- Use natural language`

const multiDocumentPrompt = `You are a helpful AI assistant that answers questions using excerpts from several documents.

Rules:
- Answer ONLY based on the provided sources
- If the answer isn't in the sources, say so clearly
- Name the document that supports each claim, conversationally, never with bracketed citation markers
- When documents agree, say so; when they contradict each other, point out the disagreement and which document says what
- Be concise (2-4 sentences) unless the question asks for detail
- Use natural language`

const summaryPrompt = `You are a document analyst. Create a concise summary (3-4 sentences) of the document's main points.`

// AnswerService 根据检索到的分块调用 LLM 生成回答与摘要。
type AnswerService interface {
	AnswerSingle(ctx context.Context, question string, chunks []model.RetrievedChunk) (string, error)
	AnswerMulti(ctx context.Context, question string, chunks []model.RetrievedChunk) (string, error)
	StreamMulti(ctx context.Context, question string, chunks []model.RetrievedChunk, writer llm.MessageWriter) error
	Summarize(ctx context.Context, text string, wordCount int) string
}

type answerService struct {
	llmClient llm.Client
	answer    *llm.GenerationParams
	summary   *llm.GenerationParams
}

// NewAnswerService 创建一个新的 AnswerService 实例。
func NewAnswerService(llmClient llm.Client, cfg config.LLMConfig) AnswerService {
	return &answerService{
		llmClient: llmClient,
		answer:    llm.ParamsFrom(cfg.Answer),
		summary:   llm.ParamsFrom(cfg.Summary),
	}
}

// BuildContextBlock 每个分块一段：[Source i, Page p, Relevance r] + 文本，段之间以 --- 分隔。
func BuildContextBlock(chunks []model.RetrievedChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("[Source %d, Page %d, Relevance %.2f]\n%s\n", i+1, c.ChunkIndex+1, c.Similarity(), c.Text)
	}
	return strings.Join(parts, "\n---\n")
}

// BuildGroupedContext 按文档首次出现的顺序分组，每组以 === Document: 标题 === 开头。
// Source 编号在所有组之间连续。
func BuildGroupedContext(chunks []model.RetrievedChunk) string {
	type group struct {
		title string
		parts []string
	}
	var order []uint
	groups := make(map[uint]*group)
	for i, c := range chunks {
		g, ok := groups[c.DocumentID]
		if !ok {
			title := c.DocumentTitle
			if title == "" {
				title = fmt.Sprintf("Document %d", c.DocumentID)
			}
			g = &group{title: title}
			groups[c.DocumentID] = g
			order = append(order, c.DocumentID)
		}
		g.parts = append(g.parts, fmt.Sprintf("[Source %d, Page %d, Relevance %.2f]\n%s\n", i+1, c.ChunkIndex+1, c.Similarity(), c.Text))
	}

	var b strings.Builder
	for i, id := range order {
		if i > 0 {
			b.WriteString("\n")
		}
		g := groups[id]
		fmt.Fprintf(&b, "=== Document: %s ===\n", g.title)
		b.WriteString(strings.Join(g.parts, "\n---\n"))
	}
	return b.String()
}

func userPrompt(contextText, question string) string {
	return fmt.Sprintf("Document excerpts:\n%s\n\nQuestion: %s\n\nAnswer based on the excerpts above:", contextText, question)
}

func (s *answerService) AnswerSingle(ctx context.Context, question string, chunks []model.RetrievedChunk) (string, error) {
	return s.chat(ctx, singleDocumentPrompt, userPrompt(BuildContextBlock(chunks), question))
}

func (s *answerService) AnswerMulti(ctx context.Context, question string, chunks []model.RetrievedChunk) (string, error) {
	return s.chat(ctx, multiDocumentPrompt, userPrompt(BuildGroupedContext(chunks), question))
}

// chat 调用失败时返回可直接展示的错误文本，同时返回包装了 ErrSynthesisFailed 的错误。
func (s *answerService) chat(ctx context.Context, system, user string) (string, error) {
	answer, err := s.llmClient.Chat(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, s.answer)
	if err != nil {
		log.Errorf("[AnswerService] 生成回答失败: %v", err)
		return fmt.Sprintf("Error generating answer: %v", err), fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	return answer, nil
}

func (s *answerService) StreamMulti(ctx context.Context, question string, chunks []model.RetrievedChunk, writer llm.MessageWriter) error {
	err := s.llmClient.StreamChatMessages(ctx, []llm.Message{
		{Role: "system", Content: multiDocumentPrompt},
		{Role: "user", Content: userPrompt(BuildGroupedContext(chunks), question)},
	}, s.answer, writer)
	if err != nil {
		log.Errorf("[AnswerService] 流式生成回答失败: %v", err)
		return fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	return nil
}

// Summarize 总是返回文本；LLM 失败时退化为字数说明加失败原因。
func (s *answerService) Summarize(ctx context.Context, text string, wordCount int) string {
	user := fmt.Sprintf("Summarize this document (%d words):\n\n%s\n\nProvide a clear 3-4 sentence summary:", wordCount, text)
	summary, err := s.llmClient.Chat(ctx, []llm.Message{
		{Role: "system", Content: summaryPrompt},
		{Role: "user", Content: user},
	}, s.summary)
	if err != nil {
		log.Warnf("[AnswerService] 生成摘要失败: %v", err)
		return fmt.Sprintf("Document contains %d words. Analysis failed: %v", wordCount, err)
	}
	return summary
}
