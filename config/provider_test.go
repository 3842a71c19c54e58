package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/internal/mocks"
	"github.com/brettbedarf/mimic/memtree"
	"github.com/brettbedarf/mimic/trees"
)

func TestProvider_Defaults(t *testing.T) {
	t.Parallel()

	p := NewProvider(NewDefaultConfig())

	assert.Equal(t, DefaultNamespace, p.Namespace())
	assert.True(t, p.ValidateAccessKey(""), "all keys are accepted by default")
	assert.True(t, p.ValidateAccessKey("anything"))
	assert.True(t, p.AllowedHost("any.example.com:8080"))
}

func TestProvider_AccessKeyValidator(t *testing.T) {
	t.Parallel()

	p := NewProvider(NewDefaultConfig(), WithAccessKeyValidator(func(key string) bool { return key == "s3cret" }))

	assert.True(t, p.ValidateAccessKey("s3cret"))
	assert.False(t, p.ValidateAccessKey("guess"))
}

func TestProvider_AllowedHost(t *testing.T) {
	t.Parallel()

	cfg := NewDefaultConfig()
	cfg.AllowedUserContentHosts = []string{"usercontent.example.com", "localhost"}
	p := NewProvider(cfg)

	tests := []struct {
		host string
		want bool
	}{
		{"usercontent.example.com", true},
		{"USERCONTENT.example.com", true},
		{"usercontent.example.com:443", true},
		{"usercontent-dot-example.com", true},
		{"localhost:8080", true},
		{"evil.example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.AllowedHost(tt.host), "host %q", tt.host)
	}
}

func TestProvider_NewTree(t *testing.T) {
	t.Parallel()

	t.Run("registry", func(t *testing.T) {
		t.Parallel()
		trees.RegisterBuiltins(trees.MemoryTreeType)
		p := NewProvider(NewDefaultConfig())

		tree, err := p.NewTree("config-test-ns", "")
		require.NoError(t, err)
		assert.IsType(t, &memtree.Tree{}, tree)
	})

	t.Run("custom factory", func(t *testing.T) {
		t.Parallel()
		mockTree := &mocks.MockTree{}
		p := NewProvider(NewDefaultConfig(), WithTreeFactory(func(ns, key string) (mimic.Tree, error) {
			assert.Equal(t, "ns", ns)
			assert.Equal(t, "key", key)
			return mockTree, nil
		}))

		tree, err := p.NewTree("ns", "key")
		require.NoError(t, err)
		assert.Same(t, mockTree, tree)
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()
		cfg := NewDefaultConfig()
		cfg.TreeType = "nope"

		_, err := NewProvider(cfg).NewTree("ns", "")
		assert.Error(t, err)
	})
}

func TestProvider_JSONEncoder(t *testing.T) {
	t.Parallel()

	v := map[string]int{"a": 1}

	var compact bytes.Buffer
	require.NoError(t, NewProvider(NewDefaultConfig()).JSONEncoder(&compact).Encode(v))
	assert.Equal(t, "{\"a\":1}\n", compact.String())

	cfg := NewDefaultConfig()
	cfg.PrettyJSON = true
	var pretty bytes.Buffer
	require.NoError(t, NewProvider(cfg).JSONEncoder(&pretty).Encode(v))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", pretty.String())
}
