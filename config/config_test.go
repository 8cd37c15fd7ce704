package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-kratos/stategraph"
	"github.com/go-kratos/stategraph/graph"
)

func TestLoadYAML(t *testing.T) {
	def, err := Load(filepath.Join("testdata", "privatestate.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "privatestate", def.Name)
	require.Len(t, def.Nodes, 3)
	assert.Empty(t, def.Edges)
	assert.Equal(t, "set", def.Nodes[0].Kind)
	assert.Equal(t, map[string]any{"private_data": "set by node_1"}, def.Nodes[0].With)

	g, err := def.Build(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"node_1", "node_2", "node_3"}, g.Path())

	run := g.NewRun(stategraph.State{"a": "set at start"})
	final, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stategraph.State{"a": "set by node_3"}, final)
	assert.Equal(t, stategraph.State{"a": "set by node_3", "private_data": "set by node_1"}, run.Snapshot())
}

func TestLoadHCL(t *testing.T) {
	def, err := Load(filepath.Join("testdata", "privatestate.hcl"))
	require.NoError(t, err)
	assert.Equal(t, "privatestate", def.Name)
	assert.True(t, def.Options.Prune)
	assert.Equal(t, "5s", def.Options.NodeTimeout)
	require.Len(t, def.Edges, 4)
	assert.Equal(t, EdgeDefinition{From: graph.Start, To: "node_1"}, def.Edges[0])
	assert.Equal(t, map[string]any{"a": "set by node_3", "count": 3}, def.Nodes[2].With)

	g, err := def.Build(nil)
	require.NoError(t, err)

	run := g.NewRun(stategraph.State{"a": "set at start"})
	final, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stategraph.State{"a": "set by node_3"}, final)
	// Private fields are pruned once nothing downstream reads them.
	assert.Equal(t, stategraph.State{"a": "set by node_3"}, run.Snapshot())
}

func TestTemplateKind(t *testing.T) {
	def, err := Load(filepath.Join("testdata", "privatestate.hcl"))
	require.NoError(t, err)
	def.Nodes = def.Nodes[:2]
	def.Edges = nil
	def.Options = Options{}

	g, err := def.Build(nil)
	require.NoError(t, err)
	final, err := g.Run(context.Background(), stategraph.State{"a": "x"})
	require.NoError(t, err)
	assert.Equal(t, stategraph.State{"a": "x via node_2"}, final)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   string
	}{
		{"missing name", FormatYAML, "nodes: [{name: n, kind: set}]"},
		{"no nodes", FormatYAML, "name: g"},
		{"missing kind", FormatYAML, "name: g\nnodes: [{name: n}]"},
		{"bad policy", FormatYAML, "name: g\noptions: {output_policy: ignore}\nnodes: [{name: n, kind: set}]"},
		{"bad timeout", FormatYAML, "name: g\noptions: {node_timeout: soon}\nnodes: [{name: n, kind: set}]"},
		{"bad yaml", FormatYAML, "name: [g"},
		{"bad hcl", FormatHCL, "name = "},
		{"hcl missing kind", FormatHCL, "name = \"g\"\nnode \"n\" {}"},
		{"unknown format", Format("toml"), "name = 'g'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("name: g\nnodes: [{name: n, kind: set}, {name: n, kind: copy}]"), FormatYAML)
	assert.ErrorIs(t, err, stategraph.ErrDuplicateNode)
}

func TestLoadUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.toml")
	require.NoError(t, os.WriteFile(path, []byte("name = 'g'"), 0o600))
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestBuildErrors(t *testing.T) {
	t.Run("unknown kind", func(t *testing.T) {
		def := &Definition{Name: "g", Nodes: []NodeDefinition{{Name: "n", Kind: "llm"}}}
		_, err := def.Build(nil)
		assert.ErrorContains(t, err, `unknown kind "llm"`)
	})
	t.Run("bad field type", func(t *testing.T) {
		def := &Definition{Name: "g", Schema: map[string]string{"a": "decimal"}, Nodes: []NodeDefinition{{Name: "n", Kind: "set"}}}
		_, err := def.Build(nil)
		assert.ErrorIs(t, err, stategraph.ErrSchema)
	})
	t.Run("bad copy source", func(t *testing.T) {
		def := &Definition{Name: "g", Nodes: []NodeDefinition{{Name: "n", Kind: "copy", With: map[string]any{"b": 1}}}}
		_, err := def.Build(nil)
		assert.ErrorContains(t, err, "source must be a field name")
	})
	t.Run("graph validation", func(t *testing.T) {
		def := &Definition{
			Name:  "g",
			Nodes: []NodeDefinition{{Name: "n", Kind: "set"}},
			Edges: []EdgeDefinition{{From: graph.Start, To: "n"}, {From: "n", To: "missing"}},
		}
		_, err := def.Build(nil)
		var unknown *stategraph.UnknownNodeError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "missing", unknown.Name)
	})
	t.Run("flow check", func(t *testing.T) {
		def := &Definition{
			Name:    "g",
			Options: Options{FlowCheck: true},
			Nodes:   []NodeDefinition{{Name: "n", Kind: "set", Input: map[string]string{"never": "string"}}},
		}
		_, err := def.Build(nil)
		assert.ErrorIs(t, err, stategraph.ErrMissingField)
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{KindCopy, KindSet, KindTemplate}, r.Kinds())
	assert.Error(t, r.Register(KindSet, setFactory))
	assert.Error(t, r.Register("", setFactory))

	errRejected := errors.New("rejected")
	require.NoError(t, r.Register("fail", func(NodeDefinition) (graph.Handler, error) {
		return func(context.Context, stategraph.State) (stategraph.State, error) {
			return nil, errRejected
		}, nil
	}))
	def := &Definition{Name: "g", Nodes: []NodeDefinition{{Name: "n", Kind: "fail"}}}
	g, err := def.Build(r)
	require.NoError(t, err)
	_, err = g.Run(context.Background(), stategraph.State{})
	assert.ErrorIs(t, err, errRejected)
	var nodeErr *stategraph.NodeExecutionError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "n", nodeErr.Node)
}

func TestTemplateMissingKey(t *testing.T) {
	h, err := templateFactory(NodeDefinition{Name: "n", With: map[string]any{"out": "{{.absent}}"}})
	require.NoError(t, err)
	_, err = h(context.Background(), stategraph.State{})
	assert.Error(t, err)

	_, err = templateFactory(NodeDefinition{Name: "n", With: map[string]any{"out": "{{"}})
	assert.Error(t, err)
}
