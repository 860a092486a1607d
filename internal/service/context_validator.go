package service

import (
	"unicode/utf8"

	"smartdoc-go/internal/model"
)

const (
	minContextChars  = 50
	maxMeanDistance  = 0.6
	highConfidence   = 0.7
	mediumConfidence = 0.5
)

// 拒绝原因。
const (
	ReasonNoRelevantContent = "no relevant content"
	ReasonTooBrief          = "too brief"
	ReasonLowRelevance      = "low relevance"
)

// ContextVerdict 是上下文质量检查的结论。
type ContextVerdict struct {
	Accepted bool
	Reason   string
}

// ValidateContext 依次检查：无结果、文本总长不足 50 字符、平均距离大于 0.6。
// 第一个不满足的规则决定拒绝原因。
func ValidateContext(_ string, results []model.RetrievedChunk) ContextVerdict {
	if len(results) == 0 {
		return ContextVerdict{Reason: ReasonNoRelevantContent}
	}
	total := 0
	for _, r := range results {
		total += utf8.RuneCountInString(r.Text)
	}
	if total < minContextChars {
		return ContextVerdict{Reason: ReasonTooBrief}
	}
	if meanDistance(results) > maxMeanDistance {
		return ContextVerdict{Reason: ReasonLowRelevance}
	}
	return ContextVerdict{Accepted: true}
}

// Confidence 由平均相似度 mean(1 - distance) 推导。
func Confidence(results []model.RetrievedChunk) string {
	if len(results) == 0 {
		return "low"
	}
	sim := 1 - meanDistance(results)
	switch {
	case sim > highConfidence:
		return "high"
	case sim > mediumConfidence:
		return "medium"
	default:
		return "low"
	}
}

func meanDistance(results []model.RetrievedChunk) float64 {
	var sum float64
	for _, r := range results {
		sum += r.Distance
	}
	return sum / float64(len(results))
}
