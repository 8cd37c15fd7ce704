package config

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclFile is the top-level structure of an HCL definition:
//
//	name   = "pipeline"
//	schema = { a = "string", c = "string" }
//
//	node "node_1" {
//	  kind   = "copy"
//	  input  = { a = "string" }
//	  output = { b = "string" }
//	  with   = { b = "a" }
//	}
//
//	edge {
//	  from = "__start__"
//	  to   = "node_1"
//	}
type hclFile struct {
	Name    string            `hcl:"name,optional"`
	Schema  map[string]string `hcl:"schema,optional"`
	Options *hclOptions       `hcl:"options,block"`
	Nodes   []*hclNode        `hcl:"node,block"`
	Edges   []*hclEdge        `hcl:"edge,block"`
}

type hclOptions struct {
	OutputPolicy string `hcl:"output_policy,optional"`
	Validate     bool   `hcl:"validate,optional"`
	Prune        bool   `hcl:"prune,optional"`
	FlowCheck    bool   `hcl:"flow_check,optional"`
	NodeTimeout  string `hcl:"node_timeout,optional"`
}

type hclNode struct {
	Name   string            `hcl:"name,label"`
	Kind   string            `hcl:"kind"`
	Input  map[string]string `hcl:"input,optional"`
	Output map[string]string `hcl:"output,optional"`
	With   cty.Value         `hcl:"with,optional"`
}

type hclEdge struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

func decodeHCL(data []byte, filename string) (Definition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return Definition{}, fmt.Errorf("config: parse %s: %w", filename, diags)
	}
	var f hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &f); diags.HasErrors() {
		return Definition{}, fmt.Errorf("config: decode %s: %w", filename, diags)
	}

	def := Definition{
		Name:   f.Name,
		Schema: f.Schema,
	}
	if o := f.Options; o != nil {
		def.Options = Options{
			OutputPolicy: o.OutputPolicy,
			Validate:     o.Validate,
			Prune:        o.Prune,
			FlowCheck:    o.FlowCheck,
			NodeTimeout:  o.NodeTimeout,
		}
	}
	for _, n := range f.Nodes {
		with, err := ctyValueToInterface(n.With)
		if err != nil {
			return Definition{}, fmt.Errorf("config: node %s: with: %w", n.Name, err)
		}
		node := NodeDefinition{
			Name:   n.Name,
			Kind:   n.Kind,
			Input:  n.Input,
			Output: n.Output,
		}
		if with != nil {
			m, ok := with.(map[string]any)
			if !ok {
				return Definition{}, fmt.Errorf("config: node %s: with must be an object", n.Name)
			}
			node.With = m
		}
		def.Nodes = append(def.Nodes, node)
	}
	for _, e := range f.Edges {
		def.Edges = append(def.Edges, EdgeDefinition{From: e.From, To: e.To})
	}
	return def, nil
}

// ctyValueToInterface converts a cty.Value to plain Go values. Whole numbers
// become int so they satisfy integer fields the way YAML numbers do.
func ctyValueToInterface(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	if ty.IsPrimitiveType() {
		switch ty {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			bf := val.AsBigFloat()
			if bf.IsInt() {
				if i, acc := bf.Int64(); acc == big.Exact {
					return int(i), nil
				}
			}
			f, _ := bf.Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", ty.FriendlyName())
		}
	}
	if ty.IsObjectType() || ty.IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			elem, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = elem
		}
		return out, nil
	}
	if ty.IsTupleType() || ty.IsListType() || ty.IsSetType() {
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			elem, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type: %s", ty.FriendlyName())
}
