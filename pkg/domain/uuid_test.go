package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUUIDEmbedsKind(t *testing.T) {
	for kind := range kindNames {
		s := NewUUID(kind)
		require.True(t, IsCatalogUUID(s), "uuid %q for kind %s", s, kind)

		got, ok := KindOf(s)
		require.True(t, ok)
		assert.Equal(t, kind, got)
	}
}

func TestNewUUIDIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s := NewUUID(KindSample)
		require.False(t, seen[s], "duplicate uuid %q", s)
		seen[s] = true
	}
}

func TestIsCatalogUUID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"generated uuid", NewUUID(KindFile), true},
		{"mnemonic id", "HG00096", false},
		{"empty string", "", false},
		{"uuid without dashes", "2f4a8c1e9b3d4e5fa6b7c8d9e0f1a2b3", false},
		{"too short", "2f4a8c1e-9b3d", false},
		{"uuid shaped but not hex", "zzzzzzzz-zzzz-4zzz-azzz-zzzzzzzzzzzz", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCatalogUUID(tt.input))
		})
	}
}

func TestKindOfRejectsForeignUUID(t *testing.T) {
	// A parseable uuid whose kind nibble maps to no known kind.
	_, ok := KindOf("00000000-0000-4f00-8000-000000000000")
	assert.False(t, ok)
}
