package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines one conformance test: a graph to build and assertions
// over the normalized result.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Blocks lists the user blocks of the draft graph.
	Blocks []BlockStep `yaml:"blocks"`

	// Wires lists the user edges. Endpoints are "block.port".
	Wires []WireStep `yaml:"wires,omitempty"`

	// MaxIterations optionally overrides the driver's iteration cap.
	MaxIterations int `yaml:"max_iterations,omitempty"`

	// Assertions validate the final graph, facts, and diagnostics.
	Assertions []Assertion `yaml:"assertions"`
}

// BlockStep declares one user block.
type BlockStep struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`
}

// WireStep declares one user edge between "block.port" endpoints.
type WireStep struct {
	ID   string `yaml:"id"`
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Assertion validates one aspect of a run. Fields beyond Type are
// interpreted per assertion type.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// BlockType and Count serve block_count.
	BlockType string `yaml:"block_type,omitempty"`
	Count     int    `yaml:"count,omitempty"`

	// Port serves port_payload and port_cardinality, as
	// "block.port/in" or "block.port/out".
	Port string `yaml:"port,omitempty"`

	// Payload is the expected concrete payload for port_payload.
	Payload string `yaml:"payload,omitempty"`

	// Cardinality is the expected kind for port_cardinality: one or many.
	Cardinality string `yaml:"cardinality,omitempty"`

	// Obligation and State serve obligation_state.
	Obligation string `yaml:"obligation,omitempty"`
	State      string `yaml:"state,omitempty"`

	// SubKind serves diagnostic.
	SubKind string `yaml:"sub_kind,omitempty"`
}

// Assertion type constants.
const (
	AssertConverged       = "converged"
	AssertStrict          = "strict"
	AssertBlockCount      = "block_count"
	AssertPortPayload     = "port_payload"
	AssertPortCardinality = "port_cardinality"
	AssertObligationState = "obligation_state"
	AssertDiagnostic      = "diagnostic"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

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
	if len(s.Blocks) == 0 {
		return fmt.Errorf("blocks list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, b := range s.Blocks {
		if b.ID == "" {
			return fmt.Errorf("blocks[%d]: id is required", i)
		}
		if b.Type == "" {
			return fmt.Errorf("blocks[%d]: type is required", i)
		}
	}

	for i, w := range s.Wires {
		if w.ID == "" {
			return fmt.Errorf("wires[%d]: id is required", i)
		}
		if _, _, err := splitEndpoint(w.From); err != nil {
			return fmt.Errorf("wires[%d].from: %w", i, err)
		}
		if _, _, err := splitEndpoint(w.To); err != nil {
			return fmt.Errorf("wires[%d].to: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertConverged, AssertStrict:
		// no extra fields
	case AssertBlockCount:
		if a.BlockType == "" {
			return fmt.Errorf("assertions[%d]: block_type is required for block_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for block_count", index)
		}
	case AssertPortPayload:
		if a.Port == "" || a.Payload == "" {
			return fmt.Errorf("assertions[%d]: port and payload are required for port_payload", index)
		}
	case AssertPortCardinality:
		if a.Port == "" || a.Cardinality == "" {
			return fmt.Errorf("assertions[%d]: port and cardinality are required for port_cardinality", index)
		}
	case AssertObligationState:
		if a.Obligation == "" || a.State == "" {
			return fmt.Errorf("assertions[%d]: obligation and state are required for obligation_state", index)
		}
	case AssertDiagnostic:
		if a.SubKind == "" {
			return fmt.Errorf("assertions[%d]: sub_kind is required for diagnostic", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// splitEndpoint parses "block.port". The port name is the segment after
// the last dot, so block ids may themselves contain dots.
func splitEndpoint(s string) (block, port string, err error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("endpoint %q must be block.port", s)
	}
	return s[:i], s[i+1:], nil
}
