// Package reqparse parses textual descriptions of synapse driver allocation
// requests on a single PADI bus, as in
//
//	label=5 shapes=12,8c
//
// where a trailing c requests a contiguous shape.
//
package reqparse

import (
	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/electronicvisions/grenade-sub004/padibus"
	"github.com/pkg/errors"
)

// Parse parses a single request description.
//
func Parse(input string) (padibus.AllocationRequest, error) {
	var (
		r                padibus.AllocationRequest
		hasLabel, hasShp bool
	)
	l := newLexer(input)
	i := l.lex()
	for i.Type != EOF {
		if i.Type != Ident {
			return r, parseError(input, i.Pos, "expected key, got "+i.String())
		}
		key := i
		if i = l.lex(); i.Type != Equal {
			return r, parseError(input, i.Pos, "expected '=' after "+key.String())
		}
		switch key.Value.(string) {
		case "label":
			if hasLabel {
				return r, parseError(input, key.Pos, "duplicate label")
			}
			hasLabel = true
			if i = l.lex(); i.Type != Int {
				return r, parseError(input, i.Pos, "expected integer label, got "+i.String())
			}
			if v := i.Value.(int); v >= coord.LabelSize {
				return r, parseError(input, i.Pos, "label out of range")
			}
			r.Label = coord.Label(i.Value.(int))
			i = l.lex()
		case "shapes":
			if hasShp {
				return r, parseError(input, key.Pos, "duplicate shapes")
			}
			hasShp = true
			for {
				i = l.lex()
				s, err := shape(input, i)
				if err != nil {
					return r, err
				}
				r.Shapes = append(r.Shapes, s)
				if i = l.lex(); i.Type != Comma {
					break
				}
			}
		default:
			return r, parseError(input, key.Pos, "unknown key "+key.String())
		}
	}
	if !hasLabel {
		return r, parseError(input, len(input), "missing label")
	}
	if !hasShp {
		return r, parseError(input, len(input), "missing shapes")
	}
	return r, nil
}

func shape(input string, i Item) (padibus.Shape, error) {
	switch i.Type {
	case Int:
		return padibus.Shape{Size: i.Value.(int)}, nil
	case ContiguousInt:
		return padibus.Shape{Size: i.Value.(int), Contiguous: true}, nil
	}
	return padibus.Shape{}, parseError(input, i.Pos, "expected shape size, got "+i.String())
}

// ParseAll parses several request descriptions.
//
func ParseAll(inputs []string) ([]padibus.AllocationRequest, error) {
	reqs := make([]padibus.AllocationRequest, len(inputs))
	for k, in := range inputs {
		r, err := Parse(in)
		if err != nil {
			return nil, errors.Wrapf(err, "request %d", k)
		}
		reqs[k] = r
	}
	return reqs, nil
}

func parseError(in string, pos int, msg string) error {
	return errors.Errorf("in %q at pos %d: %s", in, pos+1, msg)
}
