// Package es 提供了 vectorstore.Store 的 Elasticsearch 实现。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"docuchat-go/internal/config"
	"docuchat-go/internal/vectorstore"
	"docuchat-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Store 基于 Elasticsearch dense_vector 索引实现向量存储。
type Store struct {
	client     *elasticsearch.Client
	index      string
	dimensions int
}

// New 创建 ES 客户端并确保索引存在。
func New(esCfg config.ElasticsearchConfig, dimensions int) (*Store, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Elasticsearch 客户端失败: %w", err)
	}

	s := &Store{client: client, index: esCfg.IndexName, dimensions: dimensions}
	if err := s.ensureIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureIndex 检查索引是否存在，不存在则按 cosine 相似度空间创建。
func (s *Store) ensureIndex() error {
	res, err := s.client.Indices.Exists([]string{s.index})
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", s.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 向量维度必须全库一致，维度混用的存储视为损坏
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"file_name":   { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, s.dimensions)

	res, err = s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", s.index, err)
	}
	if res.IsError() {
		return fmt.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.index, res.String())
	}
	log.Infof("索引 '%s' 创建成功 (dims=%d, similarity=cosine)", s.index, s.dimensions)
	return nil
}

// esDocument 是索引中的文档结构。
type esDocument struct {
	FileName    string    `json:"file_name"`
	ChunkIndex  int       `json:"chunk_index"`
	TextContent string    `json:"text_content"`
	Vector      []float32 `json:"vector"`
}

// Upsert 通过 _bulk 一次性写入整批记录，任何条目失败都视为整批失败，
// 由调用方整批重试。
func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, r := range records {
		if len(r.Vector) != s.dimensions {
			return &vectorstore.StoreError{
				Op:  "upsert",
				Err: fmt.Errorf("记录 %s 向量维度 %d 与索引维度 %d 不一致", r.ID, len(r.Vector), s.dimensions),
			}
		}
		meta := map[string]map[string]string{"index": {"_id": r.ID}}
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return &vectorstore.StoreError{Op: "upsert", Err: err}
		}
		docBytes, err := json.Marshal(esDocument{
			FileName:    r.FileName,
			ChunkIndex:  r.ChunkIndex,
			TextContent: r.Text,
			Vector:      r.Vector,
		})
		if err != nil {
			return &vectorstore.StoreError{Op: "upsert", Err: err}
		}
		buf.Write(metaBytes)
		buf.WriteByte('\n')
		buf.Write(docBytes)
		buf.WriteByte('\n')
	}

	req := esapi.BulkRequest{
		Index:   s.index,
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return &vectorstore.StoreError{Op: "upsert", Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return &vectorstore.StoreError{Op: "upsert", Err: errors.New(res.String())}
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return &vectorstore.StoreError{Op: "upsert", Err: fmt.Errorf("解析 bulk 响应失败: %w", err)}
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, r := range item {
				if r.Error != nil {
					return &vectorstore.StoreError{
						Op:  "upsert",
						Err: fmt.Errorf("文档 %s 写入失败: %s: %s", r.ID, r.Error.Type, r.Error.Reason),
					}
				}
			}
		}
		return &vectorstore.StoreError{Op: "upsert", Err: errors.New("bulk 写入存在失败条目")}
	}
	return nil
}

// Query 执行 kNN 检索并按相似度降序返回命中。
func (s *Store) Query(ctx context.Context, vector []float32, n int) ([]vectorstore.Result, error) {
	if n <= 0 {
		return nil, &vectorstore.StoreError{Op: "query", Err: fmt.Errorf("无效的 n: %d", n)}
	}

	var buf bytes.Buffer
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              n,
			"num_candidates": n * 10,
		},
		"size": n,
	}
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, &vectorstore.StoreError{Op: "query", Err: err}
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, &vectorstore.StoreError{Op: "query", Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, &vectorstore.StoreError{Op: "query", Err: errors.New(res.String())}
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source esDocument `json:"_source"`
				Score  float64    `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, &vectorstore.StoreError{Op: "query", Err: fmt.Errorf("解析检索响应失败: %w", err)}
	}

	results := make([]vectorstore.Result, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, vectorstore.Result{
			Text:       hit.Source.TextContent,
			Score:      hit.Score,
			FileName:   hit.Source.FileName,
			ChunkIndex: hit.Source.ChunkIndex,
		})
	}
	return results, nil
}

// DeleteStale 删除某文件序号 >= fromChunk 的孤儿分块。
func (s *Store) DeleteStale(ctx context.Context, fileName string, fromChunk int) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []map[string]interface{}{
					{"term": map[string]interface{}{"file_name": fileName}},
					{"range": map[string]interface{}{"chunk_index": map[string]interface{}{"gte": fromChunk}}},
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return &vectorstore.StoreError{Op: "delete_stale", Err: err}
	}

	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:   []string{s.index},
		Body:    &buf,
		Refresh: &refresh,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return &vectorstore.StoreError{Op: "delete_stale", Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return &vectorstore.StoreError{Op: "delete_stale", Err: errors.New(res.String())}
	}
	return nil
}

// Size 通过 _count 返回存活记录数。
func (s *Store) Size(ctx context.Context) (int, error) {
	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(s.index),
	)
	if err != nil {
		return 0, &vectorstore.StoreError{Op: "size", Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, &vectorstore.StoreError{Op: "size", Err: errors.New(res.String())}
	}

	var countResp struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&countResp); err != nil {
		return 0, &vectorstore.StoreError{Op: "size", Err: err}
	}
	return countResp.Count, nil
}
