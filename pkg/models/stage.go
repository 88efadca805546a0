package models

import (
	"fmt"
	"strings"
)

type StageType string

const (
	ExtractionStageType     StageType = "extraction"
	TransformationStageType StageType = "transformation"
	LoadingStageType        StageType = "loading"
	ValidationStageType     StageType = "validation"
	ProcessingStageType     StageType = "processing"
	ConnectionStageType     StageType = "connection"
	TransferStageType       StageType = "transfer"
	CollectionStageType     StageType = "collection"
)

var stageTypes = []StageType{
	ExtractionStageType,
	TransformationStageType,
	LoadingStageType,
	ValidationStageType,
	ProcessingStageType,
	ConnectionStageType,
	TransferStageType,
	CollectionStageType,
}

// StageTypes returns the closed vocabulary of stage types in catalog order.
func StageTypes() []StageType {
	out := make([]StageType, len(stageTypes))
	copy(out, stageTypes)
	return out
}

// ParseStageType accepts any casing of a known stage type.
func ParseStageType(s string) (StageType, error) {
	t := StageType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown stage type %q", s)
	}
	return t, nil
}

func (t StageType) Valid() bool {
	for _, known := range stageTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Icon is the presentation icon name used by list renderers.
func (t StageType) Icon() string {
	switch t {
	case ExtractionStageType:
		return "database"
	case TransformationStageType:
		return "shuffle"
	case LoadingStageType:
		return "upload"
	case ValidationStageType:
		return "check-circle"
	case ProcessingStageType:
		return "cpu"
	case ConnectionStageType:
		return "link"
	case TransferStageType:
		return "arrow-right-left"
	case CollectionStageType:
		return "layers"
	default:
		return "circle"
	}
}

// Color is the presentation color name used by list renderers.
func (t StageType) Color() string {
	switch t {
	case ExtractionStageType:
		return "blue"
	case TransformationStageType:
		return "purple"
	case LoadingStageType:
		return "green"
	case ValidationStageType:
		return "yellow"
	case ProcessingStageType:
		return "orange"
	case ConnectionStageType:
		return "cyan"
	case TransferStageType:
		return "indigo"
	case CollectionStageType:
		return "pink"
	default:
		return "gray"
	}
}

type StageStatus string

const (
	PendingStageStatus   StageStatus = "pending"
	RunningStageStatus   StageStatus = "running"
	CompletedStageStatus StageStatus = "completed"
	FailedStageStatus    StageStatus = "failed"
)

func (s StageStatus) Valid() bool {
	switch s {
	case PendingStageStatus, RunningStageStatus, CompletedStageStatus, FailedStageStatus:
		return true
	}
	return false
}

// Stage is one step of a job. A stage never exists outside its job.
type Stage struct {
	ID          string      `json:"id" yaml:"id"`                                       // e.g. "stage_1718000000000"
	Type        StageType   `json:"type" yaml:"type"`                                   // one of StageTypes()
	Name        string      `json:"name" yaml:"name"`                                   // e.g. "Schema Validation"
	Description string      `json:"description,omitempty" yaml:"description,omitempty"` // optional
	Status      StageStatus `json:"status" yaml:"status"`                               // "pending", "running", "completed", "failed"
}

// StageInput is what a user supplies when adding a stage from the catalog.
type StageInput struct {
	Type        StageType `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
}

// StagePatch carries an inline edit. Nil fields are left untouched.
type StagePatch struct {
	Name        *string      `json:"name,omitempty"`
	Description *string      `json:"description,omitempty"`
	Status      *StageStatus `json:"status,omitempty"`
}

// AvailableStep is one entry of the "add stage" catalog.
type AvailableStep struct {
	Type        StageType `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// AvailableSteps returns the catalog users pick new stages from.
func AvailableSteps() []AvailableStep {
	return []AvailableStep{
		{Type: ConnectionStageType, Name: "Source Connection", Description: "Connect to the source system"},
		{Type: ExtractionStageType, Name: "Data Extraction", Description: "Extract data from the source"},
		{Type: ValidationStageType, Name: "Schema Validation", Description: "Validate the data against its schema"},
		{Type: TransformationStageType, Name: "Data Transformation", Description: "Clean and reshape records"},
		{Type: ProcessingStageType, Name: "Business Logic", Description: "Apply business rules"},
		{Type: CollectionStageType, Name: "Data Collection", Description: "Collect records into batches"},
		{Type: TransferStageType, Name: "Data Transfer", Description: "Move data between systems"},
		{Type: LoadingStageType, Name: "Data Loading", Description: "Load data into the destination"},
	}
}
