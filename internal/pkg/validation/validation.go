// Package validation runs per-field business rules against an input and
// aggregates the failures into a single *domain.ErrorGroup.
//
// Rules run sequentially in field declaration order, then in rule order,
// so the aggregated errors are deterministic.
package validation

import (
	"context"
	"errors"

	"github.com/simp-lee/hive/internal/domain"
)

// Field is what a rule sees when it runs.
type Field struct {
	Name      string
	Value     any
	Principal domain.Principal
	Input     Input
	Path      []any
}

// Rule checks one field. It returns nil, an input *domain.AppError, or a
// *domain.ErrorGroup of input errors. Any other error aborts validation.
type Rule interface {
	Check(ctx context.Context, f Field) error
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(ctx context.Context, f Field) error

// Check implements Rule.
func (fn RuleFunc) Check(ctx context.Context, f Field) error {
	return fn(ctx, f)
}

// Binding attaches an ordered list of rules to a field name.
type Binding struct {
	Name  string
	Rules []Rule
}

// On binds rules to the named field.
func On(name string, rules ...Rule) Binding {
	return Binding{Name: name, Rules: rules}
}

// Schema is the ordered rule registration of an input type. Build it once
// and share it between instances.
type Schema []Binding

// Input is validated by Validate.
type Input interface {
	// Rules returns the field bindings in declaration order.
	Rules() Schema
	// AsMap returns the plain-data projection of the input keyed by the
	// field names used in Rules.
	AsMap() map[string]any
}

// MapInput validates a plain map, such as decoded GraphQL arguments.
type MapInput struct {
	Values map[string]any
	Schema Schema
}

// Rules implements Input.
func (m MapInput) Rules() Schema { return m.Schema }

// AsMap implements Input.
func (m MapInput) AsMap() map[string]any { return m.Values }

type options struct {
	principal domain.Principal
	basePath  []any
}

// Option configures Validate.
type Option func(*options)

// WithPrincipal sets the acting principal passed to rules.
func WithPrincipal(p domain.Principal) Option {
	return func(o *options) {
		if p != nil {
			o.principal = p
		}
	}
}

// WithBasePath prefixes every field path.
func WithBasePath(path ...any) Option {
	return func(o *options) {
		o.basePath = append([]any(nil), path...)
	}
}

// Validate runs every rule of in. It returns nil when all pass, a
// *domain.ErrorGroup when any rule reported input errors, or the first
// non-input error a rule returned.
func Validate(ctx context.Context, in Input, opts ...Option) error {
	if in == nil {
		return nil
	}
	schema := in.Rules()
	if len(schema) == 0 {
		return nil
	}

	o := options{principal: domain.Anonymous}
	for _, opt := range opts {
		opt(&o)
	}

	values := in.AsMap()
	var collected []*domain.AppError
	for _, b := range schema {
		f := Field{
			Name:      b.Name,
			Value:     values[b.Name],
			Principal: o.principal,
			Input:     in,
			Path:      appendPath(o.basePath, b.Name),
		}
		for _, rule := range b.Rules {
			err := rule.Check(ctx, f)
			if err == nil {
				continue
			}
			flat, err := flatten(err, f.Path)
			if err != nil {
				return err
			}
			collected = append(collected, flat...)
		}
	}

	if len(collected) == 0 {
		return nil
	}
	return domain.NewErrorGroup(collected...)
}

// flatten turns a rule failure into input errors. Errors without a path are
// located at the field.
func flatten(err error, path []any) ([]*domain.AppError, error) {
	var g *domain.ErrorGroup
	if errors.As(err, &g) {
		out := make([]*domain.AppError, 0, len(g.Errors))
		for _, m := range g.Errors {
			if m == nil {
				continue
			}
			if m.Kind != domain.KindInput {
				return nil, m
			}
			out = append(out, locate(m, path))
		}
		return out, nil
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) && appErr.Kind == domain.KindInput {
		return []*domain.AppError{locate(appErr, path)}, nil
	}
	return nil, err
}

func locate(e *domain.AppError, path []any) *domain.AppError {
	if len(e.Path) > 0 {
		return e
	}
	return e.WithPath(path...)
}

func appendPath(base []any, segs ...any) []any {
	out := make([]any, 0, len(base)+len(segs))
	out = append(out, base...)
	return append(out, segs...)
}
