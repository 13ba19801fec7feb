package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/livefetch/internal/livequery"
	"github.com/roach88/livefetch/internal/queryir"
)

// Scenario is one live query conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Discipline is "eager" (default) or "lazy".
	Discipline string `yaml:"discipline,omitempty"`

	// Entities maps entity kind to field name to type.
	Entities map[string]map[string]string `yaml:"entities"`

	// Declare is the query the component declares.
	Declare QueryDecl `yaml:"declare"`

	// Steps run in order. Each appends one trace line.
	Steps []Step `yaml:"steps"`
}

// QueryDecl is a query written in the CLI's condition and sort syntax.
type QueryDecl struct {
	Entity string   `yaml:"entity"`
	Where  []string `yaml:"where,omitempty"`
	Sort   []string `yaml:"sort,omitempty"`
}

// Spec parses the declaration.
func (d QueryDecl) Spec() (queryir.QuerySpec, error) {
	filter, err := queryir.ParseFilter(d.Where)
	if err != nil {
		return queryir.QuerySpec{}, err
	}
	keys, err := queryir.ParseSortKeys(d.Sort)
	if err != nil {
		return queryir.QuerySpec{}, err
	}
	return queryir.New(d.Entity, filter, keys...), nil
}

// Step is one scenario action.
type Step struct {
	Op string `yaml:"op"`

	// put, update, delete
	Entity string         `yaml:"entity,omitempty"`
	ID     string         `yaml:"id,omitempty"`
	Fields map[string]any `yaml:"fields,omitempty"`

	// render, switch, fail, recover, process
	Context string `yaml:"context,omitempty"`
	Token   string `yaml:"token,omitempty"`

	// sort, filter
	Sort  []string `yaml:"sort,omitempty"`
	Where []string `yaml:"where,omitempty"`

	// fail
	Error string `yaml:"error,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks the outcome of a step. Unset fields are not checked.
type Expect struct {
	Phase      string    `yaml:"phase,omitempty"`
	IDs        *[]string `yaml:"ids,omitempty"`
	Generation *int64    `yaml:"generation,omitempty"`
	Dirty      *bool     `yaml:"dirty,omitempty"`
	Error      string    `yaml:"error,omitempty"` // livequery error code
	Delivered  *int      `yaml:"delivered,omitempty"`
}

// Step ops.
const (
	OpPut     = "put"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpRender  = "render"
	OpRead    = "read"
	OpState   = "state"
	OpRefetch = "refetch"
	OpSort    = "sort"
	OpFilter  = "filter"
	OpRebuild = "rebuild"
	OpSwitch  = "switch"
	OpFail    = "fail"
	OpRecover = "recover"
	OpProcess = "process"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Discipline != "" {
		if _, ok := livequery.ParseDiscipline(s.Discipline); !ok {
			return fmt.Errorf("discipline must be eager or lazy, got %q", s.Discipline)
		}
	}
	if len(s.Entities) == 0 {
		return fmt.Errorf("entities map is required and must be non-empty")
	}
	if s.Declare.Entity == "" {
		return fmt.Errorf("declare.entity is required")
	}
	if _, err := s.Declare.Spec(); err != nil {
		return fmt.Errorf("declare: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Op {
	case OpPut:
		if step.Entity == "" || step.ID == "" {
			return fmt.Errorf("put requires entity and id")
		}
	case OpUpdate:
		if step.ID == "" || len(step.Fields) == 0 {
			return fmt.Errorf("update requires id and fields")
		}
	case OpDelete:
		if step.ID == "" {
			return fmt.Errorf("delete requires id")
		}
	case OpSort:
		if _, err := queryir.ParseSortKeys(step.Sort); err != nil {
			return err
		}
	case OpFilter:
		if _, err := queryir.ParseFilter(step.Where); err != nil {
			return err
		}
	case OpSwitch:
		if step.Context == "" {
			return fmt.Errorf("switch requires context")
		}
	case OpFail:
		if step.Error == "" {
			return fmt.Errorf("fail requires error")
		}
	case OpRender, OpRead, OpState, OpRefetch, OpRebuild, OpRecover, OpProcess:
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}
