package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"smartdoc-go/internal/model"
	"smartdoc-go/pkg/es"
	"smartdoc-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticIndex 使用 Elasticsearch dense_vector 的 kNN 检索。
type ElasticIndex struct {
	client       *elasticsearch.Client
	indexName    string
	modelVersion string

	mu    sync.Mutex
	ready bool
}

// NewElasticIndex 创建索引后端，索引本身在首次写入时按向量维度创建。
func NewElasticIndex(client *elasticsearch.Client, indexName, modelVersion string) *ElasticIndex {
	return &ElasticIndex{client: client, indexName: indexName, modelVersion: modelVersion}
}

func (e *ElasticIndex) ensureIndex(ctx context.Context, dims int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}
	if err := es.CreateIndexIfNotExists(ctx, e.client, e.indexName, dims); err != nil {
		return err
	}
	e.ready = true
	return nil
}

func vectorID(documentID uint, chunkIndex int) string {
	return fmt.Sprintf("%d_%d", documentID, chunkIndex)
}

// Put 通过 bulk 接口写入分块，写入后立即 refresh 以便检索可见。
func (e *ElasticIndex) Put(ctx context.Context, documentID, ownerID uint, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := e.ensureIndex(ctx, len(records[0].Vector)); err != nil {
		return err
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, r := range records {
		id := vectorID(documentID, r.ChunkIndex)
		meta := map[string]map[string]string{"index": {"_index": e.indexName, "_id": id}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		doc := model.EsChunk{
			VectorID:     id,
			DocumentID:   documentID,
			ChunkIndex:   r.ChunkIndex,
			OwnerID:      ownerID,
			TextContent:  r.Text,
			Vector:       r.Vector,
			ModelVersion: e.modelVersion,
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	res, err := esapi.BulkRequest{Body: &body, Refresh: "true"}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("bulk index chunks: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index chunks: %s", res.String())
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Error json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if parsed.Errors {
		for _, item := range parsed.Items {
			for _, v := range item {
				if len(v.Error) > 0 {
					log.Errorf("[ES] 分块写入失败, document_id: %d, error: %s", documentID, string(v.Error))
					return fmt.Errorf("bulk index chunks: %s", string(v.Error))
				}
			}
		}
	}
	return nil
}

// Delete 删除文档的全部分块，索引不存在视为成功。
func (e *ElasticIndex) Delete(ctx context.Context, documentID uint) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"document_id": documentID},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return err
	}
	refresh := true
	res, err := esapi.DeleteByQueryRequest{
		Index:   []string{e.indexName},
		Body:    bytes.NewReader(body),
		Refresh: &refresh,
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("delete chunks: %s", res.String())
	}
	return nil
}

func (f Filter) esClauses() []map[string]interface{} {
	var clauses []map[string]interface{}
	if f.OwnerID != 0 {
		clauses = append(clauses, map[string]interface{}{
			"term": map[string]interface{}{"owner_id": f.OwnerID},
		})
	}
	if len(f.DocumentIDs) > 0 {
		clauses = append(clauses, map[string]interface{}{
			"terms": map[string]interface{}{"document_id": f.DocumentIDs},
		})
	}
	return clauses
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64       `json:"_score"`
			Source model.EsChunk `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search 对非零查询向量做 kNN 检索；ES 的 cosine 得分为 (1+cos)/2，距离换算为 2-2*score。
// 零向量无法参与 cosine 计算，退化为按过滤条件取前 k 个分块，距离均为 1。
func (e *ElasticIndex) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	clauses := filter.esClauses()
	zero := IsZero(vector)

	var query map[string]interface{}
	if zero {
		q := map[string]interface{}{"match_all": map[string]interface{}{}}
		if len(clauses) > 0 {
			q = map[string]interface{}{"bool": map[string]interface{}{"filter": clauses}}
		}
		query = map[string]interface{}{
			"size":    k,
			"query":   q,
			"sort":    []interface{}{map[string]string{"chunk_index": "asc"}, map[string]string{"document_id": "asc"}},
			"_source": []string{"document_id", "chunk_index", "text_content"},
		}
	} else {
		knn := map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": max(k*10, 100),
		}
		if len(clauses) > 0 {
			knn["filter"] = clauses
		}
		query = map[string]interface{}{
			"size":    k,
			"knn":     knn,
			"_source": []string{"document_id", "chunk_index", "text_content"},
		}
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, errors.New("search chunks: " + res.String())
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		distance := 1.0
		if !zero {
			distance = 2 - 2*h.Score
			if distance < 0 {
				distance = 0
			}
		}
		hits = append(hits, Hit{
			DocumentID: h.Source.DocumentID,
			ChunkIndex: h.Source.ChunkIndex,
			Text:       h.Source.TextContent,
			Distance:   distance,
		})
	}
	SortHits(hits)
	return hits, nil
}
