package forms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/memohai/smsrouter/internal/pico"
	"github.com/memohai/smsrouter/internal/router"
	"github.com/memohai/smsrouter/internal/store"
)

// RegisterFields is the parsed registration request. At most one field is set.
type RegisterFields struct {
	Name  string
	Ident string
}

var identStrip = strings.NewReplacer(" ", "", "-", "", "+", "", "(", "", ")", "")

var hashIdent = pico.Try(pico.Parser[[]rune](func(s *pico.State) ([]rune, error) {
	if _, err := pico.Hash(s); err != nil {
		return nil, err
	}
	if _, err := pico.Commit(s); err != nil {
		return nil, err
	}
	return pico.Many1(pico.Parser[rune](pico.AnyToken))(s)
}))

var phoneNumber = pico.Try(pico.Many1(pico.OneOf("0123456789 -+()")))

// registerParser reads "<name>", "#<ident>" or a phone number. Trailing
// text after a recognised value is ignored.
func registerParser(s *pico.State) (RegisterFields, error) {
	var fields RegisterFields
	ident, err := pico.Optional(pico.Choice(hashIdent, phoneNumber), nil)(s)
	if err != nil {
		return fields, err
	}
	if ident != nil {
		fields.Ident = identStrip.Replace(string(ident))
	} else {
		name, err := pico.Optional(pico.Try(pico.Parser[string](pico.Name)), "")(s)
		if err != nil {
			return fields, err
		}
		fields.Name = name
	}
	if _, err := pico.Whitespace(s); err != nil {
		return fields, err
	}
	if !s.AtEnd() && fields == (RegisterFields{}) {
		return fields, router.FormatErrorf("We did not understand: %s.", s.Remaining())
	}
	return fields, nil
}

type registerForm struct {
	parse pico.ParseFunc[RegisterFields]
}

// RegisterHandler registers a user by name, updates the name, or links the
// message connection to the user owning another connection.
var RegisterHandler = router.FormHandler[RegisterFields]("Register", registerForm{
	parse: pico.Wrap("text", pico.Parser[RegisterFields](registerParser)),
})

func title(name string) string {
	return cases.Title(language.Und).String(name)
}

func (f registerForm) Parse(_ context.Context, call *router.Call) (*RegisterFields, error) {
	fields, ok, err := f.parse(call.Captures)
	if err != nil || !ok {
		return nil, err
	}
	return &fields, nil
}

func (registerForm) Handle(ctx context.Context, call *router.Call, fields *RegisterFields) (router.Result, error) {
	st := call.Store()
	if fields.Ident != "" {
		conn, err := st.FindConnectionByIdent(ctx, fields.Ident)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return router.Result{}, err
		case conn.UserID != nil:
			if err := st.LinkConnection(ctx, call.Message.URI, *conn.UserID); err != nil {
				return router.Result{}, err
			}
			return router.Reply("Thank you for your registration."), nil
		}
		return router.Reply(fmt.Sprintf(
			"Registration failed! We did not find an existing reporter identified by: %s.", fields.Ident)), nil
	}

	user, err := call.User(ctx)
	if err != nil {
		return router.Result{}, err
	}

	if fields.Name != "" {
		if user == nil {
			created, err := st.CreateUser(ctx, fields.Name)
			if err != nil {
				return router.Result{}, err
			}
			if err := st.LinkConnection(ctx, call.Message.URI, created.ID); err != nil {
				return router.Result{}, err
			}
			return router.Reply(fmt.Sprintf("Welcome, %s. You have been registered.", title(fields.Name))), nil
		}
		if err := st.UpdateUserName(ctx, user.ID, fields.Name); err != nil {
			return router.Result{}, err
		}
		return router.Reply(fmt.Sprintf("Thank you, %s. You have updated your information.", title(fields.Name))), nil
	}

	if user != nil {
		return router.Reply(fmt.Sprintf("Hello, %s. You have already registered.", title(user.Name))), nil
	}
	return router.Reply("Please provide your name to register."), nil
}
