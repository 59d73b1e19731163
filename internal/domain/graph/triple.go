package graph

import (
	"bufio"
	"io"
	"strings"

	"github.com/turtacn/kgeval/pkg/errors"
)

// Label marks a test triple as a fact or a corrupted non-fact.
type Label int

const (
	Negative Label = -1
	Positive Label = 1
)

func (l Label) String() string {
	if l == Positive {
		return "positive"
	}
	return "negative"
}

// ParseLabel accepts "1", "+1" and "-1".
func ParseLabel(s string) (Label, error) {
	switch strings.TrimSpace(s) {
	case "1", "+1":
		return Positive, nil
	case "-1":
		return Negative, nil
	}
	return 0, errors.New(errors.ErrCodeDatasetMalformed, "label must be 1 or -1").WithDetail(s)
}

// Triple is a training edge.
type Triple struct {
	Head     int
	Relation int
	Tail     int
}

// LabeledTriple is a test example.
type LabeledTriple struct {
	Triple
	Label Label
}

// Dataset bundles everything one validation run reads.
type Dataset struct {
	Entities  *Vocabulary
	Relations *Vocabulary
	Neighbors NeighborSource
	Tests     []LabeledTriple
}

// LoadTriples parses "head relation tail" lines.  Tokens are resolved by name
// first and as literal ids otherwise.
func LoadTriples(r io.Reader, entities, relations *Vocabulary) ([]Triple, error) {
	var out []Triple
	err := scanFields(r, 3, func(lineNo int, f []string) error {
		t, err := resolveTriple(lineNo, f, entities, relations)
		if err != nil {
			return err
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

// LoadLabeledTriples parses "head relation tail label" lines.
func LoadLabeledTriples(r io.Reader, entities, relations *Vocabulary) ([]LabeledTriple, error) {
	var out []LabeledTriple
	err := scanFields(r, 4, func(lineNo int, f []string) error {
		t, err := resolveTriple(lineNo, f, entities, relations)
		if err != nil {
			return err
		}
		label, err := ParseLabel(f[3])
		if err != nil {
			return errors.Wrap(err, errors.CodeUnknown, "parse label").WithDetailf("line %d", lineNo)
		}
		out = append(out, LabeledTriple{Triple: t, Label: label})
		return nil
	})
	return out, err
}

func resolveTriple(lineNo int, f []string, entities, relations *Vocabulary) (Triple, error) {
	h, ok := entities.Resolve(f[0])
	if !ok {
		return Triple{}, errors.New(errors.ErrCodeUnknownName, "unknown head entity").WithDetailf("line %d: %q", lineNo, f[0])
	}
	r, ok := relations.Resolve(f[1])
	if !ok {
		return Triple{}, errors.New(errors.ErrCodeUnknownName, "unknown relation").WithDetailf("line %d: %q", lineNo, f[1])
	}
	t, ok := entities.Resolve(f[2])
	if !ok {
		return Triple{}, errors.New(errors.ErrCodeUnknownName, "unknown tail entity").WithDetailf("line %d: %q", lineNo, f[2])
	}
	return Triple{Head: h, Relation: r, Tail: t}, nil
}

// scanFields feeds every non-blank line to fn as exactly want fields.  Tab
// separation is preferred; plain whitespace is accepted when the line has no
// tabs.
func scanFields(r io.Reader, want int, fn func(lineNo int, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		var fields []string
		if strings.ContainsRune(line, '\t') {
			fields = strings.Split(line, "\t")
			for i := range fields {
				fields[i] = strings.TrimSpace(fields[i])
			}
		} else {
			fields = strings.Fields(line)
		}
		if len(fields) != want {
			return errors.New(errors.ErrCodeDatasetMalformed, "unexpected field count").
				WithDetailf("line %d: want %d fields, got %d", lineNo, want, len(fields))
		}
		if err := fn(lineNo, fields); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatasetMalformed, "read triples")
	}
	return nil
}
