// Package llm provides a client for OpenAI-compatible chat completion APIs.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"smartdoc-go/internal/config"
	"smartdoc-go/pkg/log"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// MessageWriter defines an interface for writing WebSocket messages.
// This allows both a standard websocket.Conn and an interceptor to be used.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client defines the interface for an LLM client. Implementations are safe for concurrent use.
type Client interface {
	// Chat 同步调用聊天接口并返回完整回复。
	Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
	// StreamChatMessages 以流式方式调用聊天接口，并将分块写入 writer。
	StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error
}

// ErrCircuitOpen is returned while the breaker rejects calls after repeated failures.
var ErrCircuitOpen = errors.New("llm circuit breaker is open")

type chatClient struct {
	cfg     config.LLMConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a chat client with a bounded timeout and a circuit breaker.
func NewClient(cfg config.LLMConfig) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	failures := cfg.Breaker.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "LLM",
		MaxRequests: 1,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("[LLMClient] 熔断器 %s 状态变化: %s -> %s", name, from, to)
		},
	})
	return &chatClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为，nil 字段不下发。
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// ParamsFrom 将配置转换为生成参数，零值视为未设置。
func ParamsFrom(c config.LLMGenerationConfig) *GenerationParams {
	var gp GenerationParams
	if c.Temperature != 0 {
		t := c.Temperature
		gp.Temperature = &t
	}
	if c.TopP != 0 {
		p := c.TopP
		gp.TopP = &p
	}
	if c.MaxTokens != 0 {
		m := c.MaxTokens
		gp.MaxTokens = &m
	}
	return &gp
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *chatClient) newRequest(ctx context.Context, messages []Message, gen *GenerationParams, stream bool) (*http.Request, error) {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   stream,
	}
	if gen != nil {
		reqBody.Temperature = gen.Temperature
		reqBody.TopP = gen.TopP
		reqBody.MaxTokens = gen.MaxTokens
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

// do 通过熔断器发起请求，非 200 响应计为失败。
func (c *chatClient) do(req *http.Request) (*http.Response, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to call chat api: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}
	return result.(*http.Response), nil
}

// Chat calls the chat completion endpoint without streaming.
func (c *chatClient) Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	ctx, span := otel.Tracer("smartdoc/llm").Start(ctx, "llm.chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.cfg.Model), attribute.Int("llm.messages", len(messages)))

	req, err := c.newRequest(ctx, messages, gen, false)
	if err != nil {
		return "", err
	}
	resp, err := c.do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat api returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// StreamChatMessages calls the chat completion endpoint with SSE streaming.
func (c *chatClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error {
	ctx, span := otel.Tracer("smartdoc/llm").Start(ctx, "llm.stream")
	defer span.End()

	req, err := c.newRequest(ctx, messages, gen, true)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read from stream: %w", err)
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		if data == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if err := writer.WriteMessage(websocket.TextMessage, []byte(chunk.Choices[0].Delta.Content)); err != nil {
				return fmt.Errorf("failed to write message to websocket: %w", err)
			}
		}
	}
	return nil
}
