package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/kgeval/pkg/errors"
)

func mustVocab(t *testing.T, names ...string) *Vocabulary {
	t.Helper()
	v, err := NewVocabulary(names)
	require.NoError(t, err)
	return v
}

func TestLoadVocabulary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		errCode errors.ErrorCode
	}{
		{
			name:  "tab separated",
			input: "alice\t0\nbob\t1\ncarol\t2\n",
			want:  []string{"alice", "bob", "carol"},
		},
		{
			name:  "count header and unordered ids",
			input: "3\ncarol\t2\nalice\t0\nbob\t1\n",
			want:  []string{"alice", "bob", "carol"},
		},
		{
			name:  "names with spaces",
			input: "new york\t1\nparis\t0\n",
			want:  []string{"paris", "new york"},
		},
		{
			name:  "whitespace separated with blank lines",
			input: "a 0\n\nb 1\r\n",
			want:  []string{"a", "b"},
		},
		{
			name:    "gap in ids",
			input:   "a\t0\nb\t2\n",
			errCode: errors.ErrCodeDatasetMalformed,
		},
		{
			name:    "duplicate id",
			input:   "a\t0\nb\t0\n",
			errCode: errors.ErrCodeDatasetMalformed,
		},
		{
			name:    "duplicate name",
			input:   "a\t0\na\t1\n",
			errCode: errors.ErrCodeDatasetMalformed,
		},
		{
			name:    "bad id",
			input:   "a\tx\n",
			errCode: errors.ErrCodeDatasetMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := LoadVocabulary(strings.NewReader(tt.input))
			if tt.errCode != "" {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, tt.errCode), err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Names())
			for id, name := range tt.want {
				got, ok := v.ID(name)
				assert.True(t, ok)
				assert.Equal(t, id, got)
				back, ok := v.Name(id)
				assert.True(t, ok)
				assert.Equal(t, name, back)
			}
		})
	}
}

func TestVocabulary_Resolve(t *testing.T) {
	v := mustVocab(t, "a", "b", "7")

	id, ok := v.Resolve("b")
	assert.True(t, ok)
	assert.Equal(t, 1, id)

	// names win over literal ids
	id, ok = v.Resolve("7")
	assert.True(t, ok)
	assert.Equal(t, 2, id)

	id, ok = v.Resolve("0")
	assert.True(t, ok)
	assert.Equal(t, 0, id)

	_, ok = v.Resolve("3")
	assert.False(t, ok)
	_, ok = v.Name(-1)
	assert.False(t, ok)
}

func TestLoadTriples(t *testing.T) {
	ents := mustVocab(t, "x", "y", "z")
	rels := mustVocab(t, "likes", "knows")

	triples, err := LoadTriples(strings.NewReader("x\tlikes\ty\nz knows x\n1\t0\t2\n"), ents, rels)
	require.NoError(t, err)
	assert.Equal(t, []Triple{{0, 0, 1}, {2, 1, 0}, {1, 0, 2}}, triples)

	_, err = LoadTriples(strings.NewReader("x\thates\ty\n"), ents, rels)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownName))

	_, err = LoadTriples(strings.NewReader("x\tlikes\n"), ents, rels)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatasetMalformed))
}

func TestLoadLabeledTriples(t *testing.T) {
	ents := mustVocab(t, "x", "y")
	rels := mustVocab(t, "likes")

	got, err := LoadLabeledTriples(strings.NewReader("x\tlikes\ty\t1\ny\tlikes\tx\t-1\nx\tlikes\tx\t+1\n"), ents, rels)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Positive, got[0].Label)
	assert.Equal(t, Negative, got[1].Label)
	assert.Equal(t, Positive, got[2].Label)
	assert.Equal(t, Triple{Head: 1, Relation: 0, Tail: 0}, got[1].Triple)

	_, err = LoadLabeledTriples(strings.NewReader("x\tlikes\ty\t0\n"), ents, rels)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatasetMalformed))
	assert.Contains(t, err.Error(), "line 1")
}

func TestNeighborIndex(t *testing.T) {
	idx := BuildNeighborIndex([]Triple{{0, 1, 2}, {0, 0, 1}, {2, 1, 0}, {9, 0, 0}}, 3)

	assert.Equal(t, []Pair{{1, 2}, {0, 1}}, idx.Pairs(0))
	assert.Empty(t, idx.Pairs(1))
	assert.Nil(t, idx.Pairs(7))
	assert.Equal(t, 2, idx.Degree(0))
	assert.Equal(t, 3, idx.EdgeCount())

	// callers may append without corrupting the index
	p := idx.Pairs(0)
	p = append(p, Pair{Relation: 2, Entity: 0})
	assert.Len(t, p, 3)
	assert.Len(t, idx.Pairs(0), 2)
}

func TestLabel_String(t *testing.T) {
	assert.Equal(t, "positive", Positive.String())
	assert.Equal(t, "negative", Negative.String())
}
