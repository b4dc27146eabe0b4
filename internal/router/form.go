package router

import (
	"context"
)

// Form is a two-phase handler: Parse turns the captures of a call into
// fields, then Handle acts on them. Parse returning nil fields without an
// error is a format failure with no reply.
type Form[F any] interface {
	Parse(ctx context.Context, call *Call) (*F, error)
	Handle(ctx context.Context, call *Call, fields *F) (Result, error)
}

type formHandler[F any] struct {
	name string
	form Form[F]
}

// FormHandler adapts form into a Handler labelled name.
func FormHandler[F any](name string, form Form[F]) Handler {
	return &formHandler[F]{name: name, form: form}
}

func (h *formHandler[F]) Name() string { return h.name }

func (h *formHandler[F]) Handle(ctx context.Context, call *Call) (Result, error) {
	fields, err := h.form.Parse(ctx, call)
	if err != nil {
		return Result{}, err
	}
	if fields == nil {
		return FormatFailure(), nil
	}
	return h.form.Handle(ctx, call, fields)
}
