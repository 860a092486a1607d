package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
)

// Analysis 是 documents.analysis_result 的标签联合：
// PendingAnalysis、ProcessingAnalysis、CompletedAnalysis、FailedAnalysis。
// 写库前必须经过 EncodeAnalysis 校验，保证下游读取的结构稳定。
type Analysis interface {
	Status() DocumentStatus
	validate() error
}

type PendingAnalysis struct{}

type ProcessingAnalysis struct{}

// CompletedAnalysis 摄取成功后的结果。PageCount 为 0 表示页数未知。
type CompletedAnalysis struct {
	Summary    string
	ChunkCount int
	CharCount  int
	WordCount  int
	PageCount  int
}

// FailedAnalysis 摄取失败的原因。
type FailedAnalysis struct {
	Error string
}

func (PendingAnalysis) Status() DocumentStatus    { return StatusPending }
func (ProcessingAnalysis) Status() DocumentStatus { return StatusProcessing }
func (CompletedAnalysis) Status() DocumentStatus  { return StatusCompleted }
func (FailedAnalysis) Status() DocumentStatus     { return StatusFailed }

func (PendingAnalysis) validate() error    { return nil }
func (ProcessingAnalysis) validate() error { return nil }

func (a CompletedAnalysis) validate() error {
	if a.ChunkCount < 0 || a.CharCount < 0 || a.WordCount < 0 || a.PageCount < 0 {
		return errors.New("completed analysis has negative counts")
	}
	if a.Summary == "" {
		return errors.New("completed analysis requires a summary")
	}
	return nil
}

func (a FailedAnalysis) validate() error {
	if a.Error == "" {
		return errors.New("failed analysis requires an error description")
	}
	return nil
}

type completedPayload struct {
	Insights   string `json:"insights"`
	Summary    string `json:"summary"`
	ChunkCount *int   `json:"chunk_count"`
	CharCount  *int   `json:"char_count"`
	WordCount  *int   `json:"word_count"`
	PageCount  *int   `json:"page_count,omitempty"`
}

type failedPayload struct {
	Error string `json:"error"`
}

// EncodeAnalysis 校验并序列化分析结果。
func EncodeAnalysis(a Analysis) (datatypes.JSON, error) {
	if a == nil {
		return nil, errors.New("nil analysis")
	}
	if err := a.validate(); err != nil {
		return nil, err
	}

	var payload interface{}
	switch v := a.(type) {
	case PendingAnalysis, ProcessingAnalysis:
		payload = struct{}{}
	case CompletedAnalysis:
		p := completedPayload{
			Insights:   v.Summary,
			Summary:    v.Summary,
			ChunkCount: &v.ChunkCount,
			CharCount:  &v.CharCount,
			WordCount:  &v.WordCount,
		}
		if v.PageCount > 0 {
			p.PageCount = &v.PageCount
		}
		payload = p
	case FailedAnalysis:
		payload = failedPayload{Error: v.Error}
	default:
		return nil, fmt.Errorf("unknown analysis variant %T", a)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// DecodeAnalysis 根据文档状态解析 analysis_result。
func DecodeAnalysis(status DocumentStatus, raw datatypes.JSON) (Analysis, error) {
	switch status {
	case StatusPending:
		return PendingAnalysis{}, nil
	case StatusProcessing:
		return ProcessingAnalysis{}, nil
	case StatusCompleted:
		var p completedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode completed analysis: %w", err)
		}
		if p.ChunkCount == nil || (p.CharCount == nil && p.WordCount == nil) {
			return nil, errors.New("completed analysis is missing counts")
		}
		a := CompletedAnalysis{Summary: p.Summary, ChunkCount: *p.ChunkCount}
		if a.Summary == "" {
			a.Summary = p.Insights
		}
		if p.CharCount != nil {
			a.CharCount = *p.CharCount
		}
		if p.WordCount != nil {
			a.WordCount = *p.WordCount
		}
		if p.PageCount != nil {
			a.PageCount = *p.PageCount
		}
		return a, a.validate()
	case StatusFailed:
		var p failedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode failed analysis: %w", err)
		}
		a := FailedAnalysis{Error: p.Error}
		return a, a.validate()
	default:
		return nil, fmt.Errorf("unknown document status %q", status)
	}
}
