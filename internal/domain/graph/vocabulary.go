// Package graph holds the knowledge-graph data model used during validation:
// entity and relation vocabularies, training edges, the per-entity neighbor
// index and the labeled test triples.
package graph

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/turtacn/kgeval/pkg/errors"
)

// Vocabulary is a bijection between names and the dense ids [0, Len()).
type Vocabulary struct {
	byName map[string]int
	names  []string
}

// NewVocabulary builds a Vocabulary where names[i] has id i.
func NewVocabulary(names []string) (*Vocabulary, error) {
	v := &Vocabulary{byName: make(map[string]int, len(names)), names: make([]string, len(names))}
	for id, name := range names {
		if _, dup := v.byName[name]; dup {
			return nil, errors.New(errors.ErrCodeDatasetMalformed, "duplicate vocabulary name").WithDetail(name)
		}
		v.byName[name] = id
		v.names[id] = name
	}
	return v, nil
}

// ID returns the id of name.
func (v *Vocabulary) ID(name string) (int, bool) {
	id, ok := v.byName[name]
	return id, ok
}

// Name returns the name of id.
func (v *Vocabulary) Name(id int) (string, bool) {
	if id < 0 || id >= len(v.names) {
		return "", false
	}
	return v.names[id], true
}

// Len is the number of entries.
func (v *Vocabulary) Len() int { return len(v.names) }

// Names returns all names in id order.
func (v *Vocabulary) Names() []string {
	out := make([]string, len(v.names))
	copy(out, v.names)
	return out
}

// Resolve maps a token to an id: first as a name, then as a literal id.
func (v *Vocabulary) Resolve(token string) (int, bool) {
	if id, ok := v.byName[token]; ok {
		return id, true
	}
	id, err := strconv.Atoi(token)
	if err != nil || id < 0 || id >= len(v.names) {
		return 0, false
	}
	return id, true
}

// LoadVocabulary parses "name<TAB>id" lines.  A leading line holding a single
// integer (the entry count some exporters write) is skipped.  Ids must cover
// [0, N) exactly once.
func LoadVocabulary(r io.Reader) (*Vocabulary, error) {
	entries := make(map[int]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, idText, ok := splitNameID(line)
		if !ok {
			if lineNo == 1 {
				if _, err := strconv.Atoi(strings.TrimSpace(line)); err == nil {
					continue
				}
			}
			return nil, errors.New(errors.ErrCodeDatasetMalformed, "vocabulary line must be name and id").
				WithDetailf("line %d: %q", lineNo, line)
		}
		id, err := strconv.Atoi(idText)
		if err != nil || id < 0 {
			return nil, errors.New(errors.ErrCodeDatasetMalformed, "vocabulary id is not a non-negative integer").
				WithDetailf("line %d: %q", lineNo, line)
		}
		if prev, dup := entries[id]; dup {
			return nil, errors.New(errors.ErrCodeDatasetMalformed, "vocabulary id assigned twice").
				WithDetailf("id %d: %q and %q", id, prev, name)
		}
		entries[id] = name
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatasetMalformed, "read vocabulary")
	}

	names := make([]string, len(entries))
	for id, name := range entries {
		if id >= len(names) {
			return nil, errors.New(errors.ErrCodeDatasetMalformed, "vocabulary ids are not contiguous").
				WithDetailf("id %d with %d entries", id, len(entries))
		}
		names[id] = name
	}
	return NewVocabulary(names)
}

// splitNameID splits on the last tab so names may contain spaces; lines
// without a tab fall back to whitespace fields.
func splitNameID(line string) (name, id string, ok bool) {
	if i := strings.LastIndexByte(line, '\t'); i > 0 {
		return line[:i], strings.TrimSpace(line[i+1:]), true
	}
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}
