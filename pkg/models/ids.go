package models

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces identifiers for newly created entities.
type IDGenerator interface {
	StageID() string
	JobID() string
	PipelineID() string
}

// ClockIDGenerator derives stage ids from the wall clock in milliseconds and
// bumps the value when two stages are created within the same millisecond,
// so ids stay unique and increasing for the life of the generator.
// Job and pipeline ids are random UUIDs.
type ClockIDGenerator struct {
	now  func() time.Time
	last int64
	mu   sync.Mutex
}

func NewIDGenerator() *ClockIDGenerator {
	return &ClockIDGenerator{now: time.Now}
}

func (g *ClockIDGenerator) StageID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.now().UnixMilli()
	if n <= g.last {
		n = g.last + 1
	}
	g.last = n
	return "stage_" + strconv.FormatInt(n, 10)
}

func (g *ClockIDGenerator) JobID() string {
	return uuid.NewString()
}

func (g *ClockIDGenerator) PipelineID() string {
	return uuid.NewString()
}

var defaultIDs = NewIDGenerator()

// DefaultIDs is the process-wide generator used when callers pass nil.
func DefaultIDs() IDGenerator {
	return defaultIDs
}
