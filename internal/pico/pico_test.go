package pico

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		parser  Parser[string]
		input   string
		want    string
		noMatch bool
	}{
		{"letters and digits", Identifier(), "abc123", "abc123", false},
		{"requires a digit", Identifier(), "abc", "", true},
		{"must start with letter", Identifier(), "1abc", "", true},
		{"underscore allowed", Identifier(), "a_1", "a_1", false},
		{"requirement lifted", Identifier(WithMustContain("")), "abc", "abc", false},
		{"stops at space", Identifier(), "ab12 cd", "ab12", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := Run(tt.parser, tt.input)
			if tt.noMatch {
				assert.ErrorIs(t, err, ErrNoMatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIdentifiersAndIDs(t *testing.T) {
	got, _, err := Run(Identifiers(), "abc123 def456")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc123", "def456"}, got)

	got, _, err = Run(Identifiers(), "abc123, def456,ghi789")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc123", "def456", "ghi789"}, got)

	got, _, err = Run(IDs(), "12ab65")
	require.NoError(t, err)
	assert.Equal(t, []string{"12ab65"}, got)

	got, rest, err := Run(Identifiers(), "hello")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, "hello", rest)
}

func TestSeparator(t *testing.T) {
	for _, input := range []string{", ", " ,", ","} {
		got, rest, err := Run(Separator(), input)
		require.NoError(t, err)
		assert.Equal(t, ',', got)
		assert.Empty(t, rest)
	}
	got, _, err := Run(Separator(Dot), " . ")
	require.NoError(t, err)
	assert.Equal(t, '.', got)
}

func TestFloating(t *testing.T) {
	tests := map[string]string{
		"123":   "123",
		"123.0": "123.0",
		"123,0": "123.0",
		".123":  ".123",
		"123.":  "123.",
		"abc":   "",
	}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			got, _, err := Run(Floating, input)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"John", "John"},
		{"John Smith", "John Smith"},
		{"John, Smith", "John"},
		{"John Smith ", "John Smith"},
		{"Jean   Luc", "Jean Luc"},
		{"Åse Ødegård", "Åse Ødegård"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, _, err := Run(Name, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, _, err := Run(Name, "123")
	assert.ErrorIs(t, err, ErrNoMatch)
	_, _, err = Run(Name, "\n")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestTimedelta(t *testing.T) {
	day := 24 * time.Hour
	tests := map[string]time.Duration{
		"7 days":   7 * day,
		"7 DayS":   7 * day,
		"7d":       7 * day,
		"1w":       7 * day,
		"3 wks":    21 * day,
		"2m":       60 * day,
		"6 months": 180 * day,
		"2 mo":     60 * day,
		"1 year":   365 * day,
		"2 yrs":    730 * day,
		"2yrs":     730 * day,
		"106751d":  106751 * day,
	}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			got, _, err := Run(Timedelta, input)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, _, err := Run(Timedelta, "days")
	assert.ErrorIs(t, err, ErrNoMatch)
	_, _, err = Run(Timedelta, "7 fortnights")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestTimedeltaOutOfRange(t *testing.T) {
	for _, input := range []string{"106752d", "200000d", "20000w", "1000000y", "99999999999999999999d"} {
		t.Run(input, func(t *testing.T) {
			got, _, err := Run(Timedelta, input)
			assert.ErrorIs(t, err, ErrNoMatch)
			assert.Zero(t, got)
		})
	}
}

func TestDate(t *testing.T) {
	want := time.Date(1999, time.December, 31, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		input   string
		formats []string
	}{
		{"12/31/1999", nil},
		{"December 31, 1999", CommonDateFormats},
		{"december 31 1999", CommonDateFormats},
		{"12/31/99", CommonDateFormats},
		{"1999-12-31", CommonDateFormats},
		{"31 Dec 1999", CommonDateFormats},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, _, err := Run(Date(tt.formats...), tt.input)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}
}

func TestDateRejects(t *testing.T) {
	_, _, err := Run(Date(), "02/30/2001")
	assert.ErrorIs(t, err, ErrNoMatch)

	_, _, err = Run(Date(), "yesterday")
	assert.ErrorIs(t, err, ErrNoMatch)

	_, _, err = Run(Date("%Y-%m-%d", "%m/%d/%Y"), "12/31/99")
	assert.ErrorIs(t, err, ErrNoMatch)

	_, _, err = Run(Date("%H:%M"), "10:30")
	require.Error(t, err)
	assert.False(t, IsNoMatch(err))
}

func TestOneOfStrings(t *testing.T) {
	p := OneOfStrings("abc", "def")
	for _, input := range []string{"abc", "def", "ABC"} {
		got, _, err := Run(p, input)
		require.NoError(t, err)
		assert.Equal(t, input, got)
	}
	_, _, err := Run(p, "xyz")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestTags(t *testing.T) {
	got, _, err := Run(Tags, "abc, def")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "def"}, got)

	got, _, err = Run(Tags, "#abc #def")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "def"}, got)

	tag, _, err := Run(Tag, "#malaria")
	require.NoError(t, err)
	assert.Equal(t, "malaria", tag)
}

func TestChoiceBacktracks(t *testing.T) {
	p := Choice(CaselessString("regional"), CaselessString("register"))
	got, rest, err := Run(p, "Register me")
	require.NoError(t, err)
	assert.Equal(t, "Register", got)
	assert.Equal(t, " me", rest)
}

func TestCommitStopsAlternatives(t *testing.T) {
	var hashIdent Parser[string] = func(s *State) (string, error) {
		if _, err := Hash(s); err != nil {
			return "", err
		}
		if _, err := Commit(s); err != nil {
			return "", err
		}
		return String(Many1(AnyToken))(s)
	}
	p := Choice(hashIdent, Map(Parser[string](Remaining), func(r string) string { return "fallback:" + r }))

	got, _, err := Run(p, "#abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	got, _, err = Run(p, "abc")
	require.NoError(t, err)
	assert.Equal(t, "fallback:abc", got)

	_, _, err = Run(p, "#")
	assert.ErrorIs(t, err, ErrCommitted)
	assert.True(t, IsNoMatch(err))
}

func TestManyAndNOf(t *testing.T) {
	got, rest, err := Run(Many(Digit), "12a")
	require.NoError(t, err)
	assert.Equal(t, []rune("12"), got)
	assert.Equal(t, "a", rest)

	_, _, err = Run(Many1(Digit), "a")
	assert.ErrorIs(t, err, ErrNoMatch)

	_, _, err = Run(NOf(Digit, 4), "123")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestPeekDoesNotConsume(t *testing.T) {
	s := NewState("x")
	r, err := Peek(s)
	require.NoError(t, err)
	assert.Equal(t, 'x', r)
	assert.Equal(t, 0, s.Pos())

	r, err = Peek(NewState(""))
	require.NoError(t, err)
	assert.Zero(t, r)
}

func TestParseJoinsRunes(t *testing.T) {
	got, err := Parse(Many1(NotComma), "abc,def")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func TestWrap(t *testing.T) {
	parse := Wrap("text", Parser[string](Name))

	got, ok, err := parse(map[string]string{"text": "Jane Doe"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Jane Doe", got)

	_, ok, err = parse(map[string]string{"text": "1234"})
	require.NoError(t, err)
	assert.False(t, ok)

	var seen string
	wrapped := Wrap("text", Parser[string](func(s *State) (string, error) {
		seen = s.Remaining()
		return seen, nil
	}))
	_, ok, err = wrapped(map[string]string{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "\n", seen)

	committed := Wrap("text", Parser[string](func(s *State) (string, error) {
		_, _ = Commit(s)
		return Try(CaselessString("zzz"))(s)
	}))
	_, ok, err = committed(map[string]string{"text": "abc"})
	require.NoError(t, err)
	assert.False(t, ok)

	boom := errors.New("boom")
	failing := Wrap("text", Parser[string](func(*State) (string, error) { return "", boom }))
	_, _, err = failing(map[string]string{"text": "x"})
	assert.ErrorIs(t, err, boom)
}
