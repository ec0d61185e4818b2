package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/catalog"
	"github.com/ekaya-inc/ekaya-semantic/pkg/llm"
)

// fakeEnrichmentCatalog serves tables from memory and records every write.
type fakeEnrichmentCatalog struct {
	mu           sync.Mutex
	tables       []catalog.Table
	detailErr    map[string]error
	tagErr       error
	descriptions map[string]string
	columnDescs  map[string]string
	tags         map[string][]string
}

func newFakeEnrichmentCatalog(tables ...catalog.Table) *fakeEnrichmentCatalog {
	return &fakeEnrichmentCatalog{
		tables:       tables,
		detailErr:    map[string]error{},
		descriptions: map[string]string{},
		columnDescs:  map[string]string{},
		tags:         map[string][]string{},
	}
}

func (f *fakeEnrichmentCatalog) ListEntities(ctx context.Context, service string) ([]catalog.Table, error) {
	return f.tables, nil
}

func (f *fakeEnrichmentCatalog) GetEntityDetail(ctx context.Context, fqn string) (*catalog.Table, error) {
	if err := f.detailErr[fqn]; err != nil {
		return nil, err
	}
	for i := range f.tables {
		if f.tables[i].FQN() == fqn {
			t := f.tables[i]
			return &t, nil
		}
	}
	return nil, fmt.Errorf("table %s not found", fqn)
}

func (f *fakeEnrichmentCatalog) UpdateEntityDescription(ctx context.Context, tableID, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descriptions[tableID] = description
	return nil
}

func (f *fakeEnrichmentCatalog) UpdateColumnDescription(ctx context.Context, tableID string, colIndex int, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.columnDescs[fmt.Sprintf("%s/%d", tableID, colIndex)] = description
	return nil
}

func (f *fakeEnrichmentCatalog) AddColumnTag(ctx context.Context, tableID string, colIndex int, tagFQN string) error {
	if f.tagErr != nil {
		return f.tagErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s/%d", tableID, colIndex)
	f.tags[key] = append(f.tags[key], tagFQN)
	return nil
}

const customerEnrichmentReply = `{
  "table_description": "Customers who rent films.",
  "table_type": "DIMENSION",
  "pii_risk": "HIGH",
  "columns": {
    "customer_id": {"description": "Surrogate key.", "semantic_type": "ID", "pii_type": "NONE", "confidence": 0.99},
    "email": {"description": "Contact email.", "semantic_type": "TEXT", "pii_type": "email", "confidence": "0.9"},
    "active": {"description": "Whether the account can rent.", "semantic_type": "BOOLEAN", "pii_type": false}
  }
}`

func enrichmentTables() []catalog.Table {
	return []catalog.Table{
		{
			ID:                 "t-customer",
			Name:               "customer",
			FullyQualifiedName: "pagila.db.public.customer",
			Columns:            []catalog.Column{{Name: "customer_id"}, {Name: "email"}, {Name: "active"}},
		},
		{
			ID:                 "t-stats",
			Name:               "pg_stat_statements",
			FullyQualifiedName: "pagila.db.public.pg_stat_statements",
		},
	}
}

func newEnrichmentLLM(reply string) *llm.MockLLMClient {
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt string, systemMessage string, temperature float64, thinking bool) (*llm.GenerateResponseResult, error) {
		return &llm.GenerateResponseResult{Content: reply, PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140}, nil
	}
	return mock
}

func newTestEnrichment(cat EnrichmentCatalog, client llm.LLMClient, cfg MetadataEnrichmentConfig) MetadataEnrichmentService {
	pool := llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: 2}, zap.NewNop())
	return NewMetadataEnrichmentService(cat, client, pool, cfg, zap.NewNop())
}

func TestMetadataEnrichmentService_Run(t *testing.T) {
	cat := newFakeEnrichmentCatalog(enrichmentTables()...)
	mock := newEnrichmentLLM(customerEnrichmentReply)
	svc := newTestEnrichment(cat, mock, MetadataEnrichmentConfig{
		ServiceName: "pagila",
		SkipTables:  []string{"pg_stat_statements"},
	})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.TotalTables)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Successful)
	assert.Zero(t, summary.ErrorCount)
	assert.Equal(t, int64(100), summary.PromptTokens)
	assert.Equal(t, int64(40), summary.CompletionTokens)
	assert.Equal(t, "mock-model", summary.Model)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, EnrichmentTableResult{
		Table:          "pagila.db.public.customer",
		Status:         EnrichmentStatusSuccess,
		TableType:      "DIMENSION",
		PIIRisk:        "HIGH",
		ColumnsUpdated: 3,
		ColumnsTagged:  1,
	}, summary.Results[0])

	assert.Equal(t, "Customers who rent films.", cat.descriptions["t-customer"])
	assert.Equal(t, "Surrogate key.", cat.columnDescs["t-customer/0"])
	assert.Equal(t, "Contact email.", cat.columnDescs["t-customer/1"])
	assert.Equal(t, []string{"PII.EMAIL"}, cat.tags["t-customer/1"])
	assert.Equal(t, "Whether the account can rent.", cat.columnDescs["t-customer/2"])
	assert.Empty(t, cat.tags["t-customer/0"])
	assert.Empty(t, cat.tags["t-customer/2"])

	assert.Equal(t, 1, mock.Calls())
	assert.True(t, strings.HasPrefix(mock.LastPrompt, "Table: pagila.db.public.customer\n"))
	assert.Contains(t, mock.LastSystemMessage, "pii_type")
}

func TestMetadataEnrichmentService_DryRun(t *testing.T) {
	cat := newFakeEnrichmentCatalog(enrichmentTables()...)
	mock := newEnrichmentLLM(customerEnrichmentReply)
	svc := newTestEnrichment(cat, mock, MetadataEnrichmentConfig{ServiceName: "pagila", DryRun: true})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalTables)
	assert.Zero(t, summary.Successful)
	require.Len(t, summary.Results, 2)
	for _, r := range summary.Results {
		assert.Equal(t, EnrichmentStatusDryRun, r.Status)
	}
	assert.Zero(t, mock.Calls())
	assert.Empty(t, cat.descriptions)
	assert.Empty(t, cat.columnDescs)
}

func TestMetadataEnrichmentService_FailuresAreRecordedPerTable(t *testing.T) {
	tables := []catalog.Table{
		{ID: "t-a", Name: "a", Columns: []catalog.Column{{Name: "x"}}},
		{ID: "t-b", Name: "b", Columns: []catalog.Column{{Name: "x"}}},
		{ID: "t-c", Name: "c", Columns: []catalog.Column{{Name: "x"}}},
	}
	cat := newFakeEnrichmentCatalog(tables...)
	cat.detailErr["a"] = errors.New("catalog returned status 404")

	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt string, systemMessage string, temperature float64, thinking bool) (*llm.GenerateResponseResult, error) {
		if strings.HasPrefix(prompt, "Table: b\n") {
			return &llm.GenerateResponseResult{Content: "not json"}, nil
		}
		return &llm.GenerateResponseResult{Content: `{"table_description": "C.", "columns": {"x": {"description": "X."}}}`}, nil
	}
	svc := newTestEnrichment(cat, mock, MetadataEnrichmentConfig{ServiceName: "s"})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalTables)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 2, summary.ErrorCount)
	require.Len(t, summary.Errors, 2)
	assert.Equal(t, EnrichmentError{Table: "a", Error: "catalog returned status 404", Phase: EnrichmentPhaseFetch}, summary.Errors[0])
	assert.Equal(t, "b", summary.Errors[1].Table)
	assert.Equal(t, EnrichmentPhaseLLMCall, summary.Errors[1].Phase)
	assert.Equal(t, "C.", cat.descriptions["t-c"])
	assert.Equal(t, 2, mock.Calls())
}

func TestMetadataEnrichmentService_TagFailureDoesNotFailTable(t *testing.T) {
	cat := newFakeEnrichmentCatalog(enrichmentTables()[0])
	cat.tagErr = errors.New("tag PII.EMAIL does not exist")
	svc := newTestEnrichment(cat, newEnrichmentLLM(customerEnrichmentReply), MetadataEnrichmentConfig{ServiceName: "pagila"})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, EnrichmentStatusSuccess, summary.Results[0].Status)
	assert.Zero(t, summary.Results[0].ColumnsTagged)
	assert.Equal(t, 3, summary.Results[0].ColumnsUpdated)
}

func TestFilterSkippedTables(t *testing.T) {
	tables := []catalog.Table{{Name: "film"}, {Name: "pg_stat_statements"}, {Name: "film_tmp"}}

	kept := FilterSkippedTables(tables, []string{"pg_stat", "_tmp", ""})

	require.Len(t, kept, 1)
	assert.Equal(t, "film", kept[0].Name)
	assert.Len(t, FilterSkippedTables(tables, nil), 3)
}
