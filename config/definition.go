package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/go-kratos/stategraph"
	"github.com/go-kratos/stategraph/graph"
)

// MaxFileSize bounds definition files read by Load.
const MaxFileSize = 1 << 20

// ErrUnknownFormat is returned for files that are neither YAML nor HCL.
var ErrUnknownFormat = errors.New("config: unknown definition format")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Format names the syntax of a definition document.
type Format string

const (
	// FormatYAML is a YAML document.
	FormatYAML Format = "yaml"
	// FormatHCL is an HCL document.
	FormatHCL Format = "hcl"
)

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Definition is a declarative graph: the overall schema, the nodes with their
// schemas and handler kinds, and the edges between them. Schemas map field
// names to textual types such as "string" or "integer?".
// Without edges the nodes are chained in declaration order.
type Definition struct {
	Name    string            `yaml:"name" validate:"required"`
	Schema  map[string]string `yaml:"schema"`
	Options Options           `yaml:"options"`
	Nodes   []NodeDefinition  `yaml:"nodes" validate:"required,min=1,dive"`
	Edges   []EdgeDefinition  `yaml:"edges" validate:"dive"`
}

// Options mirrors the graph options that can be set declaratively.
type Options struct {
	OutputPolicy string `yaml:"output_policy" validate:"omitempty,oneof=reject drop allow"`
	Validate     bool   `yaml:"validate"`
	Prune        bool   `yaml:"prune"`
	FlowCheck    bool   `yaml:"flow_check"`
	NodeTimeout  string `yaml:"node_timeout"`
}

// NodeDefinition declares one node. Kind selects the handler factory in a Registry;
// With carries the kind-specific parameters.
type NodeDefinition struct {
	Name   string            `yaml:"name" validate:"required"`
	Kind   string            `yaml:"kind" validate:"required"`
	Input  map[string]string `yaml:"input"`
	Output map[string]string `yaml:"output"`
	With   map[string]any    `yaml:"with"`
}

// EdgeDefinition declares a directed edge. The sentinels are written as
// graph.Start ("__start__") and graph.End ("__end__").
type EdgeDefinition struct {
	From string `yaml:"from" validate:"required"`
	To   string `yaml:"to" validate:"required"`
}

// Load reads and parses the definition file at path; the format follows the extension.
func Load(path string) (*Definition, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("config: %s exceeds %d bytes", path, MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return parse(data, format, filepath.Base(path))
}

// Parse decodes and validates a definition document.
func Parse(data []byte, format Format) (*Definition, error) {
	return parse(data, format, "definition."+string(format))
}

func parse(data []byte, format Format, filename string) (*Definition, error) {
	var (
		def Definition
		err error
	)
	switch format {
	case FormatYAML:
		if err = yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", filename, err)
		}
	case FormatHCL:
		if def, err = decodeHCL(data, filename); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the structural constraints of the definition: required names
// and kinds, known output policies, parsable durations and unique node names.
func (d *Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("config: invalid definition: %w", err)
	}
	if d.Options.NodeTimeout != "" {
		if _, err := time.ParseDuration(d.Options.NodeTimeout); err != nil {
			return fmt.Errorf("config: invalid node_timeout: %w", err)
		}
	}
	seen := make(map[string]bool, len(d.Nodes))
	for _, node := range d.Nodes {
		if seen[node.Name] {
			return fmt.Errorf("config: %w", &stategraph.DuplicateNodeError{Name: node.Name})
		}
		seen[node.Name] = true
	}
	return nil
}

func (o Options) graphOptions() ([]graph.Option, error) {
	var opts []graph.Option
	switch o.OutputPolicy {
	case "", "reject":
	case "drop":
		opts = append(opts, graph.WithOutputPolicy(graph.OutputDrop))
	case "allow":
		opts = append(opts, graph.WithOutputPolicy(graph.OutputAllow))
	default:
		return nil, fmt.Errorf("config: unknown output policy %q", o.OutputPolicy)
	}
	if o.Validate {
		opts = append(opts, graph.WithValidation())
	}
	if o.Prune {
		opts = append(opts, graph.WithPruning())
	}
	if o.FlowCheck {
		opts = append(opts, graph.WithSchemaFlowCheck())
	}
	if o.NodeTimeout != "" {
		d, err := time.ParseDuration(o.NodeTimeout)
		if err != nil {
			return nil, fmt.Errorf("config: invalid node_timeout: %w", err)
		}
		opts = append(opts, graph.WithNodeTimeout(d))
	}
	return opts, nil
}
