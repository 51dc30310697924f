// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/xataio/mystream/internal/searchstore"
	elasticsearchstore "github.com/xataio/mystream/internal/searchstore/elasticsearch"
	opensearchstore "github.com/xataio/mystream/internal/searchstore/opensearch"
	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/sink"
	loglib "github.com/xataio/mystream/pkg/log"
)

// Store writes documents to a single Elasticsearch or OpenSearch index with
// external versioning.
type Store struct {
	logger    loglib.Logger
	client    searchstore.Client
	adapter   *adapter
	indexName string
	fields    map[string]searchstore.Type
}

type Config struct {
	OpenSearchURL    string
	ElasticsearchURL string
	IndexName        string
	// KeywordFields are mapped explicitly as keywords when the index is
	// created. Other row columns use dynamic mapping.
	KeywordFields []string
}

type Option func(*Store)

const (
	// OpenSearch/Elasticsearch have a limit of 512 bytes for the ID field. see here:
	// https://www.elastic.co/guide/en/elasticsearch/reference/7.10/mapping-id-field.html
	idFieldLengthLimit = 512

	DefaultIndexName = "t_user_es_space_cloud"
)

var DefaultKeywordFields = []string{"id", "username", "email", "phone"}

func NewStore(cfg Config, opts ...Option) (*Store, error) {
	var client searchstore.Client
	var err error
	switch {
	case cfg.OpenSearchURL != "" && cfg.ElasticsearchURL != "":
		return nil, fmt.Errorf("%w: only one store URL must be provided", cdc.ErrInvalidConfig)
	case cfg.OpenSearchURL == "" && cfg.ElasticsearchURL == "":
		return nil, fmt.Errorf("%w: a store URL must be provided", cdc.ErrInvalidConfig)
	case cfg.OpenSearchURL != "":
		client, err = opensearchstore.NewClient(cfg.OpenSearchURL)
	case cfg.ElasticsearchURL != "":
		client, err = elasticsearchstore.NewClient(cfg.ElasticsearchURL)
	}
	if err != nil {
		return nil, fmt.Errorf("create search store client: %w", err)
	}

	return NewStoreWithClient(client, cfg, opts...), nil
}

func NewStoreWithClient(client searchstore.Client, cfg Config, opts ...Option) *Store {
	indexName := cfg.IndexName
	if indexName == "" {
		indexName = DefaultIndexName
	}
	keywords := cfg.KeywordFields
	if len(keywords) == 0 {
		keywords = DefaultKeywordFields
	}

	fields := map[string]searchstore.Type{
		sink.SourceDBField: searchstore.KeywordType,
		sink.PositionField: searchstore.LongType,
	}
	for _, f := range keywords {
		fields[f] = searchstore.KeywordType
	}

	s := &Store{
		logger:    loglib.NewNoopLogger(),
		client:    client,
		adapter:   newAdapter(indexName),
		indexName: indexName,
		fields:    fields,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithLogger(l loglib.Logger) Option {
	return func(s *Store) {
		s.logger = loglib.NewLogger(l).WithFields(loglib.Fields{
			loglib.ModuleField: "sink_search_store",
		})
	}
}

func (s *Store) IndexName() string {
	return s.indexName
}

func (s *Store) EnsureIndex(ctx context.Context) error {
	exists, err := s.client.IndexExists(ctx, s.indexName)
	if err != nil {
		return mapError(err)
	}
	if exists {
		return nil
	}

	body, err := searchstore.IndexBody(s.client.GetMapper(), s.fields)
	if err != nil {
		return fmt.Errorf("building index mappings: %w", err)
	}

	if err := s.client.CreateIndex(ctx, s.indexName, body); err != nil {
		// another process created it in the meantime
		if errors.As(err, &searchstore.ErrResourceAlreadyExists{}) {
			return nil
		}
		return mapError(err)
	}

	s.logger.Info("index created", loglib.Fields{"index": s.indexName})
	return nil
}

func (s *Store) SendDocuments(ctx context.Context, docs []sink.Document) ([]sink.DocumentError, error) {
	items := make([]searchstore.BulkItem, 0, len(docs))
	sent := make(map[string]sink.Document, len(docs))
	docErrs := []sink.DocumentError{}
	for _, doc := range docs {
		if len(doc.ID) > idFieldLengthLimit {
			docErrs = append(docErrs, sink.DocumentError{
				Document: doc,
				Severity: sink.SeverityRejected,
				Error:    "ID is longer than 512 bytes",
			})
			continue
		}
		items = append(items, s.adapter.documentToBulkItem(doc))
		sent[itemKey(doc.ID, doc.Version, doc.Delete)] = doc
	}
	if len(items) == 0 {
		return docErrs, nil
	}

	failed, err := s.client.SendBulkRequest(ctx, items)
	if err != nil {
		return nil, mapError(err)
	}

	for _, item := range failed {
		docErr := s.adapter.bulkItemToDocumentError(item)
		if doc, found := sent[itemKey(docErr.Document.ID, docErr.Document.Version, docErr.Document.Delete)]; found {
			docErr.Document = doc
		}
		docErrs = append(docErrs, docErr)
	}
	return docErrs, nil
}

func itemKey(id string, version int64, delete bool) string {
	return fmt.Sprintf("%s/%d/%t", id, version, delete)
}

func mapError(err error) error {
	if errors.As(err, &searchstore.RetryableError{}) {
		return fmt.Errorf("%w: %w", cdc.ErrTransientConnection, err)
	}
	return err
}
