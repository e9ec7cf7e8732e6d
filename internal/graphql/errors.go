package graphql

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"

	"github.com/graphql-go/graphql/gqlerrors"

	"github.com/simp-lee/hive/internal/domain"
	"github.com/simp-lee/hive/internal/pkg"
)

// CodeGraphQL marks syntax and validation errors raised by the executor.
const CodeGraphQL = "graphql_error"

// ErrorField is one entry of the "fields" extension of input errors.
type ErrorField struct {
	Path    []any  `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// causeOf returns the error a resolver returned, or nil when the executor
// raised fe itself.
func causeOf(fe gqlerrors.FormattedError) error {
	err := fe.OriginalError()
	for err != nil {
		var located *gqlerrors.Error
		if !errors.As(err, &located) {
			return err
		}
		err = located.OriginalError
	}
	return nil
}

// formatErrors attaches domain codes to executor errors. Groups become one
// error per member and unknown errors are logged and masked.
func formatErrors(ctx context.Context, log *slog.Logger, errs []gqlerrors.FormattedError) []gqlerrors.FormattedError {
	if len(errs) == 0 {
		return errs
	}
	out := make([]gqlerrors.FormattedError, 0, len(errs))
	for _, fe := range errs {
		cause := causeOf(fe)
		if cause == nil {
			fe.Extensions = map[string]any{"code": CodeGraphQL, "message": fe.Message}
			out = append(out, fe)
			continue
		}

		var g *domain.ErrorGroup
		if errors.As(cause, &g) {
			for _, m := range g.Errors {
				out = append(out, gqlerrors.FormattedError{
					Message:   m.Message,
					Locations: fe.Locations,
					Path:      fe.Path,
					Extensions: map[string]any{
						"code":    m.Code,
						"message": m.Message,
						"path":    m.Path,
						"fields":  []ErrorField{fieldOf(m)},
					},
				})
			}
			continue
		}

		var appErr *domain.AppError
		if !errors.As(cause, &appErr) || appErr.Kind == domain.KindUnexpected {
			logUnexpected(ctx, log, cause, fe.Path)
			fe.Message = domain.MessageInternal
			fe.Extensions = map[string]any{"code": pkg.CodeUnexpected, "message": domain.MessageInternal}
			out = append(out, fe)
			continue
		}

		fe.Message = appErr.Message
		fe.Extensions = map[string]any{"code": appErr.Code, "message": appErr.Message}
		if appErr.Kind == domain.KindInput {
			fe.Extensions["fields"] = []ErrorField{fieldOf(appErr)}
		}
		out = append(out, fe)
	}
	return out
}

func fieldOf(e *domain.AppError) ErrorField {
	path := e.Path
	if path == nil {
		path = []any{}
	}
	return ErrorField{Path: path, Message: e.Message, Code: e.Code}
}

func logUnexpected(ctx context.Context, log *slog.Logger, err error, path []any) {
	stack := domain.StackOf(err)
	if stack == nil {
		stack = debug.Stack()
	}
	p := domain.PrincipalFrom(ctx)
	log.ErrorContext(ctx, "unexpected error",
		"error", err,
		"user_id", p.PrincipalID(),
		"authenticated", p.IsAuthenticated(),
		"graphql_path", path,
		"stack", string(stack),
	)
}
