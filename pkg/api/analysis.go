package api

import (
	"context"
	"encoding/json"
	"math"
)

type InputType string

const (
	CSVInput       InputType = "csv"
	XLSXInput      InputType = "xlsx"
	ParquetInput   InputType = "parquet"
	DatabaseInput  InputType = "database"
	SnowflakeInput InputType = "snowflake"
)

func (t InputType) Valid() bool {
	switch t {
	case CSVInput, XLSXInput, ParquetInput, DatabaseInput, SnowflakeInput:
		return true
	}
	return false
}

// IsFile reports whether the input is read from object storage.
func (t InputType) IsFile() bool {
	return t == CSVInput || t == XLSXInput || t == ParquetInput
}

// DataSourceRequest selects the dataset for the schema, preview, rules,
// entity and ETL endpoints.
type DataSourceRequest struct {
	InputType  InputType `json:"input_type"`
	BucketName string    `json:"bucket_name,omitempty"`
	Key        string    `json:"key,omitempty"`
	DBHost     string    `json:"db_host,omitempty"`
	DBPort     int       `json:"db_port,omitempty"`
	DBUser     string    `json:"db_user,omitempty"`
	DBPassword string    `json:"db_password,omitempty"`
	DBName     string    `json:"db_name,omitempty"`
	Database   string    `json:"database,omitempty"`
	Schema     string    `json:"schema,omitempty"`
	TableName  string    `json:"table_name,omitempty"`
}

type ColumnSchema struct {
	Name        string  `json:"name"`
	DataType    string  `json:"data_type"`
	Nullable    bool    `json:"nullable"`
	NullPercent float64 `json:"null_percent,omitempty"`
	Unique      bool    `json:"unique,omitempty"`
	Sample      []any   `json:"sample,omitempty"`
}

type SchemaAnalysis struct {
	Columns  []ColumnSchema `json:"columns"`
	RowCount int64          `json:"row_count"`
	Summary  string         `json:"summary,omitempty"`
}

type Preview struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Total   int64            `json:"total,omitempty"`
}

type RelationshipRequest struct {
	Sources []DataSourceRequest `json:"sources"`
}

type Relationship struct {
	FromTable  string  `json:"from_table"`
	FromColumn string  `json:"from_column"`
	ToTable    string  `json:"to_table"`
	ToColumn   string  `json:"to_column"`
	Kind       string  `json:"kind"` // e.g. "one_to_many"
	Confidence float64 `json:"confidence,omitempty"`
}

type Relationships struct {
	Relationships []Relationship `json:"relationships"`
}

type DQRule struct {
	ID          string `json:"id"`
	Column      string `json:"column,omitempty"`
	RuleType    string `json:"rule_type"`
	Description string `json:"description"`
	Expression  string `json:"expression,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Enabled     bool   `json:"enabled"`
}

type DQRules struct {
	Rules []DQRule `json:"rules"`
}

// Enabled returns the rules the user kept switched on.
func (r DQRules) Enabled() []DQRule {
	var out []DQRule
	for _, rule := range r.Rules {
		if rule.Enabled {
			out = append(out, rule)
		}
	}
	return out
}

type DQValidationRequest struct {
	DataSourceRequest
	Rules []DQRule `json:"rules"`
}

type DQRuleResult struct {
	RuleID       string `json:"rule_id"`
	Passed       bool   `json:"passed"`
	FailedRows   int64  `json:"failed_rows,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type DQValidationResult struct {
	TotalRules  int            `json:"total_rules"`
	RulesPassed int            `json:"rules_passed"`
	RulesFailed int            `json:"rules_failed"`
	Results     []DQRuleResult `json:"results,omitempty"`
}

// Total is the number of rules the run covered. When the backend omits it,
// passed+failed is used.
func (r DQValidationResult) Total() int {
	if r.TotalRules > 0 {
		return r.TotalRules
	}
	return r.RulesPassed + r.RulesFailed
}

// SuccessRate is the whole-percent share of Total that passed.
func (r DQValidationResult) SuccessRate() int {
	total := r.Total()
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(r.RulesPassed) * 100 / float64(total)))
}

type DQFixRequest struct {
	DataSourceRequest
	Rules []DQRule `json:"rules"`
}

type DQFixResult struct {
	FixedRows int64  `json:"fixed_rows"`
	OutputKey string `json:"output_key,omitempty"`
	Message   string `json:"message,omitempty"`
}

type EntityRequest struct {
	DataSourceRequest
	Columns []string `json:"columns,omitempty"`
}

// EntityGroup is one proposed canonical name and the variants it replaces.
type EntityGroup struct {
	Column    string   `json:"column"`
	Canonical string   `json:"canonical"`
	Variants  []string `json:"variants"`
}

type EntityProposal struct {
	Entities []EntityGroup `json:"entities"`
}

type EntityChoice struct {
	Column    string   `json:"column"`
	Canonical string   `json:"canonical"`
	Variants  []string `json:"variants"`
	Apply     bool     `json:"apply"`
}

type ChooseApplyRequest struct {
	DataSourceRequest
	Choices []EntityChoice `json:"choices"`
}

type ApplyResult struct {
	UpdatedRows int64  `json:"updated_rows"`
	OutputKey   string `json:"output_key,omitempty"`
	Message     string `json:"message,omitempty"`
}

type BusinessLogicRequest struct {
	DataSourceRequest
	Rules []string `json:"rules"`
}

type BusinessLogicViolation struct {
	Rule    string `json:"rule"`
	Row     int64  `json:"row,omitempty"`
	Message string `json:"message"`
}

type BusinessLogicResult struct {
	Valid      bool                     `json:"valid"`
	Violations []BusinessLogicViolation `json:"violations,omitempty"`
	Message    string                   `json:"message,omitempty"`
}

type ETLRequest struct {
	DataSourceRequest
	Method            string          `json:"method"`
	DestinationBucket string          `json:"destination_bucket,omitempty"`
	DestinationFolder string          `json:"destination_folder,omitempty"`
	Params            json.RawMessage `json:"params,omitempty"`
}

type ETLResult struct {
	Status     string          `json:"status"`
	Message    string          `json:"message,omitempty"`
	OutputPath string          `json:"output_path,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// RunSchemaAnalysis calls POST /run-schema-analysis.
func (c *Client) RunSchemaAnalysis(ctx context.Context, req DataSourceRequest) (SchemaAnalysis, error) {
	var resp SchemaAnalysis
	err := c.post(ctx, "/run-schema-analysis", req, &resp)
	return resp, err
}

// PreviewData calls POST /previewdata.
func (c *Client) PreviewData(ctx context.Context, req DataSourceRequest) (Preview, error) {
	var resp Preview
	err := c.post(ctx, "/previewdata", req, &resp)
	return resp, err
}

// ViewRelationship calls POST /viewrelationship.
func (c *Client) ViewRelationship(ctx context.Context, req RelationshipRequest) (Relationships, error) {
	var resp Relationships
	err := c.post(ctx, "/viewrelationship", req, &resp)
	return resp, err
}

// GenerateDQRules calls POST /run-dq-rules-generation.
func (c *Client) GenerateDQRules(ctx context.Context, req DataSourceRequest) (DQRules, error) {
	var resp DQRules
	err := c.post(ctx, "/run-dq-rules-generation", req, &resp)
	return resp, err
}

// RunDQValidation calls POST /run_dq_validation.
func (c *Client) RunDQValidation(ctx context.Context, req DQValidationRequest) (DQValidationResult, error) {
	var resp DQValidationResult
	err := c.post(ctx, "/run_dq_validation", req, &resp)
	return resp, err
}

// RunDQFixing calls POST /run_dq_fixing.
func (c *Client) RunDQFixing(ctx context.Context, req DQFixRequest) (DQFixResult, error) {
	var resp DQFixResult
	err := c.post(ctx, "/run_dq_fixing", req, &resp)
	return resp, err
}

// ResolveEntities calls POST /resolve_entities.
func (c *Client) ResolveEntities(ctx context.Context, req EntityRequest) (EntityProposal, error) {
	var resp EntityProposal
	err := c.post(ctx, "/resolve_entities", req, &resp)
	return resp, err
}

// ChooseApply calls POST /chooseapply.
func (c *Client) ChooseApply(ctx context.Context, req ChooseApplyRequest) (ApplyResult, error) {
	var resp ApplyResult
	err := c.post(ctx, "/chooseapply", req, &resp)
	return resp, err
}

// InvokeBusinessLogic calls POST /invoke-bl.
func (c *Client) InvokeBusinessLogic(ctx context.Context, req BusinessLogicRequest) (BusinessLogicResult, error) {
	var resp BusinessLogicResult
	err := c.post(ctx, "/invoke-bl", req, &resp)
	return resp, err
}

// InvokeETL calls POST /invoke-etl.
func (c *Client) InvokeETL(ctx context.Context, req ETLRequest) (ETLResult, error) {
	var resp ETLResult
	err := c.post(ctx, "/invoke-etl", req, &resp)
	return resp, err
}
