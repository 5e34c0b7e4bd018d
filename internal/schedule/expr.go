package schedule

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// ErrInvalidSchedule is returned for expressions outside the supported
// "@every N minutes|hours|days" form, including intervals too long for a
// time.Duration.
var ErrInvalidSchedule = errors.New("invalid schedule expression")

// The count and the unit are separated by whitespace on both sides.
type exprAST struct {
	Every *everyAST `"@" "every" Whitespace @@`
}

type everyAST struct {
	Value int    `@Int Whitespace`
	Unit  string `@Ident`
}

var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "At", Pattern: `@`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z]+`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
})

var exprParser = participle.MustBuild[exprAST](
	participle.Lexer(exprLexer),
)

var units = map[string]time.Duration{
	"minute":  time.Minute,
	"minutes": time.Minute,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
}

// Schedule is a parsed fixed-interval schedule.
type Schedule struct {
	Every time.Duration
	Count int
	Unit  string
}

// Parse validates expr and returns its interval. N must be positive.
func Parse(expr string) (Schedule, error) {
	ast, err := exprParser.ParseString("", strings.TrimSpace(expr))
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, expr, err)
	}
	unit := strings.ToLower(ast.Every.Unit)
	d, ok := units[unit]
	if !ok {
		return Schedule{}, fmt.Errorf("%w: %q: unknown unit %q", ErrInvalidSchedule, expr, ast.Every.Unit)
	}
	if ast.Every.Value <= 0 {
		return Schedule{}, fmt.Errorf("%w: %q: interval must be positive", ErrInvalidSchedule, expr)
	}
	if int64(ast.Every.Value) > math.MaxInt64/int64(d) {
		return Schedule{}, fmt.Errorf("%w: %q: interval too long", ErrInvalidSchedule, expr)
	}
	return Schedule{
		Every: time.Duration(ast.Every.Value) * d,
		Count: ast.Every.Value,
		Unit:  strings.TrimSuffix(unit, "s"),
	}, nil
}

// Next returns the first run time after from.
func (s Schedule) Next(from time.Time) time.Time {
	return from.Add(s.Every)
}

// String renders the canonical expression, e.g. "@every 15 minutes".
func (s Schedule) String() string {
	unit := s.Unit
	if s.Count != 1 {
		unit += "s"
	}
	return fmt.Sprintf("@every %d %s", s.Count, unit)
}
