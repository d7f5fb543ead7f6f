// Package mirror copies ingested exception records into OpenSearch so they
// can be explored with OpenSearch Dashboards next to other telemetry. The
// relational store stays the source of truth.
package mirror

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
)

// Mirror indexes stored records somewhere else.
type Mirror interface {
	Index(ctx context.Context, rec *models.Record) error
}

// Nop discards every record.
type Nop struct{}

func (Nop) Index(context.Context, *models.Record) error { return nil }

type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPrefix   string
}

func DefaultConfig() Config {
	return Config{
		URL:         "https://localhost:9200",
		Username:    "admin",
		Password:    "admin",
		IndexPrefix: "exceptions",
	}
}

// OpenSearch writes one document per record into a daily index
// <prefix>-YYYY.MM.DD chosen by the record timestamp.
type OpenSearch struct {
	client *opensearch.Client
	prefix string
}

// NewOpenSearch connects and verifies the cluster answers.
func NewOpenSearch(cfg Config) (*OpenSearch, error) {
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = DefaultConfig().IndexPrefix
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // opt-in for self-signed dev clusters
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	return &OpenSearch{client: client, prefix: cfg.IndexPrefix}, nil
}

// IndexName returns the daily index rec is written to.
func (o *OpenSearch) IndexName(rec *models.Record) string {
	return o.prefix + "-" + rec.Time().UTC().Format("2006.01.02")
}

// document returns the indexed shape of rec: the record fields plus
// @timestamp, with additional data embedded as an object when it is valid
// JSON and left out otherwise.
func document(rec *models.Record) (map[string]any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	delete(doc, "additionalData")
	if raw := strings.TrimSpace(rec.AdditionalData); raw != "" && json.Valid([]byte(raw)) {
		doc["additionalData"] = json.RawMessage(raw)
	}
	doc["@timestamp"] = rec.Time().UTC().Format("2006-01-02T15:04:05.000Z")
	return doc, nil
}

// Index writes rec with its id as document id, so redelivered events
// overwrite the same document.
func (o *OpenSearch) Index(ctx context.Context, rec *models.Record) error {
	doc, err := document(rec)
	if err != nil {
		return fmt.Errorf("failed to build document for %s: %w", rec.ID, err)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
	}

	req := opensearchapi.IndexRequest{
		Index:      o.IndexName(rec),
		DocumentID: rec.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, o.client)
	if err != nil {
		return fmt.Errorf("failed to index record %s: %w", rec.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch rejected record %s: %s", rec.ID, res.Status())
	}
	return nil
}
