package schema

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/value"
)

// associationKinds lists the association blocks in the order they are
// compiled.
var associationKinds = []record.AssociationKind{record.HasMany, record.HasSortedSet, record.BelongsTo}

// CompileClass parses a CUE value into a record.Class. The class name is
// the last label of the value's path:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`class: Example: { ... }`)
//	c, err := CompileClass(v.LookupPath(cue.ParsePath("class.Example")))
func CompileClass(v cue.Value) (*record.Class, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	c := &record.Class{}
	if labels := v.Path().Selectors(); len(labels) > 0 {
		c.Name = labels[len(labels)-1].String()
	}
	if c.Name == "" {
		return nil, &CompileError{Field: "class", Message: "class needs a name", Pos: v.Pos()}
	}

	var err error
	if c.Key, err = optionalString(v, "key"); err != nil {
		return nil, err
	}
	if c.Attributes, err = parseAttributes(v); err != nil {
		return nil, err
	}
	if err := parseIndexed(v, c); err != nil {
		return nil, err
	}
	if c.Score, err = optionalString(v, "score"); err != nil {
		return nil, err
	}
	if c.Score != "" {
		if _, ok := c.Attribute(c.Score); !ok {
			return nil, &CompileError{
				Field:   "score",
				Message: fmt.Sprintf("score attribute %q is not declared", c.Score),
				Pos:     v.LookupPath(cue.ParsePath("score")).Pos(),
			}
		}
	}

	for _, kind := range associationKinds {
		assocs, err := parseAssociations(v, kind)
		if err != nil {
			return nil, err
		}
		c.Associations = append(c.Associations, assocs...)
	}

	if err := c.Validate(); err != nil {
		return nil, &CompileError{Field: "class", Message: err.Error(), Pos: v.Pos()}
	}
	return c, nil
}

// parseAttributes reads the attributes struct, keeping declaration order.
func parseAttributes(v cue.Value) ([]record.Attribute, error) {
	attrsVal := v.LookupPath(cue.ParsePath("attributes"))
	if !attrsVal.Exists() {
		return nil, nil
	}

	iter, err := attrsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var attrs []record.Attribute
	for iter.Next() {
		name := iter.Selector().Unquoted()
		typeName, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   "attributes." + name,
				Message: "attribute type must be a string",
				Pos:     iter.Value().Pos(),
			}
		}
		t := value.Type(typeName)
		if !value.IsValidType(t) {
			return nil, &CompileError{
				Field:   "attributes." + name,
				Message: fmt.Sprintf("unknown type %q (want one of %v)", typeName, value.ValidTypes),
				Pos:     iter.Value().Pos(),
			}
		}
		attrs = append(attrs, record.Attribute{Name: name, Type: t})
	}
	return attrs, nil
}

// parseIndexed marks the attributes listed in indexed. Attributes of
// non-indexable types are rejected.
func parseIndexed(v cue.Value, c *record.Class) error {
	indexedVal := v.LookupPath(cue.ParsePath("indexed"))
	if !indexedVal.Exists() {
		return nil
	}

	iter, err := indexedVal.List()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name, err := iter.Value().String()
		if err != nil {
			return formatCUEError(err)
		}
		i := attributeIndex(c, name)
		if i < 0 {
			return &CompileError{
				Field:   "indexed",
				Message: fmt.Sprintf("attribute %q is not declared", name),
				Pos:     iter.Value().Pos(),
			}
		}
		if !value.IndexableType(c.Attributes[i].Type) {
			return &CompileError{
				Field:   "indexed",
				Message: fmt.Sprintf("attribute %q has type %s, only string, symbol and bool are indexable", name, c.Attributes[i].Type),
				Pos:     iter.Value().Pos(),
			}
		}
		c.Attributes[i].Indexed = true
	}
	return nil
}

func attributeIndex(c *record.Class, name string) int {
	for i, a := range c.Attributes {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// parseAssociations reads one association block, e.g. has_many.
func parseAssociations(v cue.Value, kind record.AssociationKind) ([]record.Association, error) {
	blockVal := v.LookupPath(cue.ParsePath(string(kind)))
	if !blockVal.Exists() {
		return nil, nil
	}

	iter, err := blockVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []record.Association
	for iter.Next() {
		name := iter.Selector().Unquoted()
		assocVal := iter.Value()
		field := string(kind) + "." + name

		target, err := optionalString(assocVal, "class")
		if err != nil {
			return nil, err
		}
		if target == "" {
			return nil, &CompileError{Field: field, Message: "association class is required", Pos: assocVal.Pos()}
		}
		inverse, err := optionalString(assocVal, "inverse")
		if err != nil {
			return nil, err
		}

		dependent := false
		if depVal := assocVal.LookupPath(cue.ParsePath("dependent")); depVal.Exists() {
			if dependent, err = depVal.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}

		out = append(out, record.Association{
			Name:      name,
			Kind:      kind,
			Class:     target,
			Inverse:   inverse,
			Dependent: dependent,
		})
	}
	return out, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: path, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, nil
}
