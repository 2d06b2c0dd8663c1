package plugin

import (
	"regexp"
	"testing"

	assert "github.com/stretchr/testify/require"
)

func TestClassifyPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		patterns Patterns
		want     Outcome
	}{
		{"success", "Junos: 18.1R1", Patterns{Success: "Junos:"}, OutcomeSuccess},
		{"invalid wins over error", "error: invalid command", Patterns{Success: "Junos:"}, OutcomeInvalid},
		{"error wins over success", "Junos: commit failed", Patterns{Success: "Junos:"}, OutcomeError},
		{"percent is an error", "% Unknown command", Patterns{Success: "#"}, OutcomeError},
		{"utility is occupied", "the utility is occupied", Patterns{Success: "ok"}, OutcomeError},
		{"ambiguous", "nothing recognisable", Patterns{Success: "Junos:"}, OutcomeAmbiguous},
		{"empty success matches anything", "nothing recognisable", Patterns{}, OutcomeSuccess},
		{"custom invalid", "syntax rejected", Patterns{Success: "ok", Invalid: "rejected"}, OutcomeInvalid},
		{"dot matches newline", "begin\nend", Patterns{Success: "begin.end"}, OutcomeSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.patterns.Compile()
			assert.NoError(t, err)
			assert.Equal(t, tt.want, m.Classify(tt.output))
		})
	}
}

func TestClassifyNilPatterns(t *testing.T) {
	assert.Equal(t, OutcomeAmbiguous, Classify("anything", nil, nil, nil))
	assert.Equal(t, OutcomeSuccess, Classify("anything", regexp.MustCompile("any"), nil, nil))
	assert.Equal(t, OutcomeError, Classify("anything", regexp.MustCompile("any"), nil, regexp.MustCompile("thing")))
}

func TestMatcherResult(t *testing.T) {
	m, err := DefaultPatterns("Junos:").Compile()
	assert.NoError(t, err)

	out, err := m.Result("show version", "10.0.0.1", "Junos: 18.1R1")
	assert.NoError(t, err)
	assert.Equal(t, "Junos: 18.1R1", out)

	_, err = m.Result("show bogus", "10.0.0.1", "syntax error, invalid input")
	assert.True(t, IsKind(err, KindInvalidCommand))

	_, err = m.Result("show chassis", "10.0.0.1", "error: communication failure")
	assert.True(t, IsKind(err, KindCommandError))

	_, err = m.Result("show chassis", "10.0.0.1", "something else: 50%")
	assert.True(t, IsKind(err, KindCommandError))

	out, err = m.Result("show chassis", "10.0.0.1", "no match here")
	assert.True(t, IsKind(err, KindAmbiguousOutput))
	assert.Equal(t, "no match here", out)

	var pe *Error
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, "no match here", pe.Output)
	assert.Equal(t, "10.0.0.1", pe.Target)
}

func TestMatcherClassifyPartial(t *testing.T) {
	anything, err := Patterns{}.Compile()
	assert.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, anything.Classify(""))
	assert.Equal(t, OutcomeAmbiguous, anything.ClassifyPartial(""))
	assert.Equal(t, OutcomeAmbiguous, anything.ClassifyPartial("Proceed with reload? "))
	assert.Equal(t, OutcomeError, anything.ClassifyPartial("% Reload failed"))

	explicit, err := DefaultPatterns("confirm").Compile()
	assert.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, explicit.ClassifyPartial("Proceed with reload? [confirm]"))

	_, err = OutcomeResult(OutcomeAmbiguous, "reload", "sw1", "Proceed with reload? ")
	assert.True(t, IsKind(err, KindAmbiguousOutput))
	var pe *Error
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, "Proceed with reload ", pe.Output)
}

func TestPatternsCompileErrors(t *testing.T) {
	_, err := Patterns{Success: "("}.Compile()
	assert.Contains(t, err.Error(), "invalid success pattern")
	_, err = Patterns{Invalid: "("}.Compile()
	assert.Contains(t, err.Error(), "invalid invalid-command pattern")
	_, err = Patterns{Error: "("}.Compile()
	assert.Contains(t, err.Error(), "invalid error pattern")
}

func TestMatcherTerminal(t *testing.T) {
	m, err := DefaultPatterns(`[>#]\s*$`).Compile()
	assert.NoError(t, err)
	terminal := regexp.MustCompile(m.Terminal())

	assert.True(t, terminal.MatchString("show version\nJunos: 18.1R1\nrouter> "))
	assert.True(t, terminal.MatchString("Invalid input detected"))
	assert.True(t, terminal.MatchString("% Ambiguous command"))
	assert.False(t, terminal.MatchString("still receiving output\n"))
}

func TestSanitizeOutput(t *testing.T) {
	assert.Equal(t, "Erro configuracao invalida", SanitizeOutput("Erro: configuração inválida%"))
	assert.Equal(t, "line one\r\nline (two)_-.", SanitizeOutput("line one\r\nline (two)_-.<>"))
	assert.Empty(t, SanitizeOutput("%$#@!"))
}
