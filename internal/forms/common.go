package forms

import (
	"context"
	"strings"

	"github.com/memohai/smsrouter/internal/pico"
	"github.com/memohai/smsrouter/internal/router"
)

// Echo replies with the text following the keyword.
type Echo struct{}

func (Echo) Handle(_ context.Context, call *router.Call) (router.Result, error) {
	return router.Reply(strings.TrimSpace(call.Capture("text"))), nil
}

// Ping answers with a fixed reply; useful to test a channel end to end.
type Ping struct{}

func (Ping) Handle(context.Context, *router.Call) (router.Result, error) {
	return router.Reply("pong"), nil
}

// NotUnderstood rejects whatever it matched.
type NotUnderstood struct{}

func (NotUnderstood) Handle(_ context.Context, call *router.Call) (router.Result, error) {
	text := strings.TrimSpace(call.Capture("text"))
	if text == "" {
		text = "(empty)"
	}
	return router.Result{}, router.FormatErrorf("We did not understand your message: %s.", text)
}

// MustRegister stops routing for connections without a user. It consumes
// no text, so registered users fall through to later routes.
type MustRegister struct{}

func (MustRegister) Handle(ctx context.Context, call *router.Call) (router.Result, error) {
	user, err := call.User(ctx)
	if err != nil {
		return router.Result{}, err
	}
	if user == nil {
		return router.Stop("Please register first by sending: +register <your name>."), nil
	}
	return router.Ok(), nil
}

type inputFields struct {
	Text string
}

type inputForm struct {
	parse pico.ParseFunc[string]
}

// InputHandler acknowledges free-form input.
var InputHandler = router.FormHandler[inputFields]("Input", inputForm{
	parse: pico.Wrap("text", pico.Parser[string](pico.Remaining)),
})

func (f inputForm) Parse(_ context.Context, call *router.Call) (*inputFields, error) {
	text, ok, err := f.parse(call.Captures)
	if err != nil || !ok {
		return nil, err
	}
	return &inputFields{Text: text}, nil
}

func (inputForm) Handle(_ context.Context, _ *router.Call, fields *inputFields) (router.Result, error) {
	if strings.TrimSpace(fields.Text) == "" {
		return router.Reply("We received an empty message. If this was a mistake, please try again."), nil
	}
	return router.Reply("We have received your input. Thank you."), nil
}
