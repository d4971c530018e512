package command

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/keshon/aegistrate/pkg/cmd"
)

// MaxOptionDuration caps Duration options.
const MaxOptionDuration = 28 * 24 * time.Hour

// ErrDurationTooLong is returned by ParseDuration for values above
// MaxOptionDuration.
var ErrDurationTooLong = errors.New("duration exceeds 28 days")

var ErrInvalidArguments = errors.New("invalid arguments")

// OptionType is the value type of a command option.
type OptionType uint8

const (
	OptionString OptionType = iota + 1
	OptionInteger
	OptionBoolean
	OptionUser
	// OptionDuration is a string such as "30m", "1h30m", "2d" or "1w".
	OptionDuration
	// OptionDate is an ISO-8601 calendar date, "2006-01-02".
	OptionDate
)

func (t OptionType) Valid() bool { return t >= OptionString && t <= OptionDate }

func (t OptionType) String() string {
	switch t {
	case OptionString:
		return "string"
	case OptionInteger:
		return "integer"
	case OptionBoolean:
		return "boolean"
	case OptionUser:
		return "user"
	case OptionDuration:
		return "duration"
	case OptionDate:
		return "date"
	}
	return "unknown"
}

// Choice is a fixed value an option may take.
type Choice struct {
	Name  string
	Value string
}

// Option describes one command parameter.
type Option struct {
	Name        string
	Description string
	Type        OptionType
	Required    bool
	Choices     []Choice
}

// InvalidOptionError says which option failed validation and why.
type InvalidOptionError struct {
	Option string
	Reason string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("option %q: %s", e.Option, e.Reason)
}

func (e *InvalidOptionError) Unwrap() error { return ErrInvalidArguments }

// Validate checks args against the descriptor's options. Unknown args are
// rejected so a stale platform definition cannot smuggle values in.
func (d Descriptor) Validate(args cmd.Args) error {
	declared := make(map[string]Option, len(d.Options))
	for _, o := range d.Options {
		declared[o.Name] = o
		if o.Required && !args.Has(o.Name) {
			return &InvalidOptionError{Option: o.Name, Reason: "is required"}
		}
	}
	for name := range args {
		o, ok := declared[name]
		if !ok {
			return &InvalidOptionError{Option: name, Reason: "is not an option of /" + d.Name}
		}
		if err := o.check(args); err != nil {
			return err
		}
	}
	return nil
}

func (o Option) check(args cmd.Args) error {
	fail := func(format string, a ...any) error {
		return &InvalidOptionError{Option: o.Name, Reason: fmt.Sprintf(format, a...)}
	}

	switch o.Type {
	case OptionString:
		s, ok := args.String(o.Name)
		if !ok {
			return fail("must be text")
		}
		if len(o.Choices) > 0 && !o.hasChoice(s) {
			return fail("must be one of %s", o.choiceList())
		}
	case OptionInteger:
		n, ok := args.Int(o.Name)
		if !ok {
			return fail("must be a whole number")
		}
		if len(o.Choices) > 0 && !o.hasChoice(strconv.FormatInt(n, 10)) {
			return fail("must be one of %s", o.choiceList())
		}
	case OptionBoolean:
		if _, ok := args.Bool(o.Name); !ok {
			return fail("must be true or false")
		}
	case OptionUser:
		u, ok := args.User(o.Name)
		if !ok {
			return fail("must be a user")
		}
		if !u.Member {
			return fail("user %s is not a member of this server", u.ID)
		}
	case OptionDuration:
		s, ok := args.String(o.Name)
		if !ok {
			return fail("must be a duration such as 30m or 2d")
		}
		d, err := ParseDuration(s)
		if errors.Is(err, ErrDurationTooLong) {
			return fail("%q is longer than 28 days", s)
		}
		if err != nil {
			return fail("%q is not a duration", s)
		}
		if d <= 0 {
			return fail("%q must be longer than zero", s)
		}
	case OptionDate:
		s, ok := args.String(o.Name)
		if !ok {
			return fail("must be a date")
		}
		if _, err := time.Parse(time.DateOnly, s); err != nil {
			return fail("%q is not an ISO-8601 date (YYYY-MM-DD)", s)
		}
	}
	return nil
}

func (o Option) hasChoice(v string) bool {
	for _, c := range o.Choices {
		if c.Value == v {
			return true
		}
	}
	return false
}

func (o Option) choiceList() string {
	vals := make([]string, len(o.Choices))
	for i, c := range o.Choices {
		vals[i] = c.Value
	}
	return strings.Join(vals, ", ")
}

var durationPart = regexp.MustCompile(`(\d+)(w|d|h|m|s)`)

// ParseDuration parses durations like "90s", "1h30m", "2d" or "1w2d".
// Units: w(eeks), d(ays), h(ours), m(inutes), s(econds). Totals above
// MaxOptionDuration fail with ErrDurationTooLong.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.ToLower(strings.ReplaceAll(s, " ", ""))
	if s == "" {
		return 0, errors.New("empty duration")
	}
	matches := durationPart.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	var total time.Duration
	pos := 0
	for _, m := range matches {
		if m[0] != pos {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		n, err := strconv.ParseInt(s[m[2]:m[3]], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		var unit time.Duration
		switch s[m[4]:m[5]] {
		case "w":
			unit = 7 * 24 * time.Hour
		case "d":
			unit = 24 * time.Hour
		case "h":
			unit = time.Hour
		case "m":
			unit = time.Minute
		case "s":
			unit = time.Second
		}
		if n > int64((MaxOptionDuration-total)/unit) {
			return 0, fmt.Errorf("%q: %w", s, ErrDurationTooLong)
		}
		total += time.Duration(n) * unit
		pos = m[1]
	}
	if pos != len(s) {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return total, nil
}
