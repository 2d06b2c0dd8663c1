package plugin

import (
	"regexp"

	"github.com/pkg/errors"
)

// Outcome is the classification of a block of device output.
type Outcome int

const (
	OutcomeAmbiguous Outcome = iota
	OutcomeSuccess
	OutcomeInvalid
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeError:
		return "error"
	default:
		return "ambiguous"
	}
}

// Default patterns used when a caller does not supply its own.
const (
	DefaultInvalidPattern = `([Ii]nvalid)`
	DefaultErrorPattern   = `[Ee][Rr][Rr][Oo][Rr]|[Ff]ail|\%|utility is occupied`
)

// Patterns are the regular expressions used to classify command output.
// An empty Invalid or Error pattern selects the default, an empty Success pattern matches any output.
type Patterns struct {
	Success string
	Invalid string
	Error   string
}

// DefaultPatterns delivers Patterns with the default invalid and error expressions and the supplied success expression.
func DefaultPatterns(success string) Patterns {
	return Patterns{Success: success, Invalid: DefaultInvalidPattern, Error: DefaultErrorPattern}
}

// Matcher holds compiled Patterns.
type Matcher struct {
	success *regexp.Regexp
	invalid *regexp.Regexp
	failure *regexp.Regexp
	// anySuccess is set when no success pattern was supplied.
	anySuccess bool
}

// Compile compiles the patterns so that '.' also matches line breaks.
func (p Patterns) Compile() (*Matcher, error) {
	if p.Invalid == "" {
		p.Invalid = DefaultInvalidPattern
	}
	if p.Error == "" {
		p.Error = DefaultErrorPattern
	}
	m := &Matcher{anySuccess: p.Success == ""}
	var err error
	if m.success, err = compileDotAll(p.Success); err != nil {
		return nil, errors.Wrap(err, "invalid success pattern")
	}
	if m.invalid, err = compileDotAll(p.Invalid); err != nil {
		return nil, errors.Wrap(err, "invalid invalid-command pattern")
	}
	if m.failure, err = compileDotAll(p.Error); err != nil {
		return nil, errors.Wrap(err, "invalid error pattern")
	}
	return m, nil
}

func compileDotAll(expr string) (*regexp.Regexp, error) {
	return regexp.Compile("(?s)" + expr)
}

// Classify applies the patterns to output.
func (m *Matcher) Classify(output string) Outcome {
	return Classify(output, m.success, m.invalid, m.failure)
}

// ClassifyPartial applies the patterns to output that ended without completing, e.g. when a read timed out.
// Such output is only a success if an explicit success pattern matched it.
func (m *Matcher) ClassifyPartial(output string) Outcome {
	outcome := m.Classify(output)
	if outcome == OutcomeSuccess && m.anySuccess {
		return OutcomeAmbiguous
	}
	return outcome
}

// Terminal delivers an expression matching output that any of the patterns would classify.
// It is used to decide when a response is complete.
func (m *Matcher) Terminal() string {
	return "(?:" + m.invalid.String() + ")|(?:" + m.failure.String() + ")|(?:" + m.success.String() + ")"
}

// Result maps the classification of output onto the text returned by a command or the error raised for it.
func (m *Matcher) Result(op, target, output string) (string, error) {
	return OutcomeResult(m.Classify(output), op, target, output)
}

// OutcomeResult maps outcome onto the text returned by a command or the error raised for it.
// Failures carry the sanitised output.
func OutcomeResult(outcome Outcome, op, target, output string) (string, error) {
	var kind Kind
	switch outcome {
	case OutcomeSuccess:
		return output, nil
	case OutcomeInvalid:
		kind = KindInvalidCommand
	case OutcomeError:
		kind = KindCommandError
	default:
		kind = KindAmbiguousOutput
	}
	e := NewError(kind, op, target, nil)
	e.Output = SanitizeOutput(output)
	return output, e
}

// Classify decides the outcome of output. A nil pattern never matches.
// The invalid pattern takes precedence over the error pattern, which takes precedence over the success pattern.
// Output matching none of them is ambiguous and must be treated as a failure.
func Classify(output string, success, invalid, failure *regexp.Regexp) Outcome {
	switch {
	case invalid != nil && invalid.MatchString(output):
		return OutcomeInvalid
	case failure != nil && failure.MatchString(output):
		return OutcomeError
	case success != nil && success.MatchString(output):
		return OutcomeSuccess
	default:
		return OutcomeAmbiguous
	}
}
