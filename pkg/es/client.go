// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"smartdoc-go/internal/config"
	"smartdoc-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

// NewClient 根据配置创建 Elasticsearch 客户端。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return elasticsearch.NewClient(cfg)
}

// chunkMapping 分块索引的 mapping，向量维度由首次写入的 embedding 决定。
const chunkMapping = `{
	"mappings": {
		"properties": {
			"vector_id": { "type": "keyword" },
			"document_id": { "type": "long" },
			"chunk_index": { "type": "integer" },
			"owner_id": { "type": "long" },
			"text_content": { "type": "text" },
			"vector": {
				"type": "dense_vector",
				"dims": %d,
				"index": true,
				"similarity": "cosine"
			},
			"model_version": { "type": "keyword" }
		}
	}
}`

// CreateIndexIfNotExists 检查索引是否存在，如果不存在则按给定维度创建。
func CreateIndexIfNotExists(ctx context.Context, client *elasticsearch.Client, indexName string, dims int) error {
	res, err := client.Indices.Exists([]string{indexName}, client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("[ES] 检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = client.Indices.Create(
		indexName,
		client.Indices.Create.WithContext(ctx),
		client.Indices.Create.WithBody(strings.NewReader(fmt.Sprintf(chunkMapping, dims))),
	)
	if err != nil {
		log.Errorf("[ES] 创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		// 并发创建时另一方已成功
		if strings.Contains(res.String(), "resource_already_exists_exception") {
			return nil
		}
		log.Errorf("[ES] 创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("[ES] 索引 '%s' 创建成功, 向量维度: %d", indexName, dims)
	return nil
}
