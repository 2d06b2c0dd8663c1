package testutil

import (
	"bufio"
	"fmt"
	"strings"
	"sync"
	"time"

	assert "github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// DefaultPrompt is the prompt emitted by a Shell that does not define one.
const DefaultPrompt = "ABC> "

// Shell is an SSHHandler that emulates a device cli.
// Commands found in Responses are answered with the scripted text, anything else is echoed back as "GOT:<command>".
// Every response is followed by the current prompt, unless the command is listed in Hang.
type Shell struct {
	// Prompt that should be emitted.
	Prompt string
	// Scripted responses, keyed by command.
	Responses map[string]string
	// Commands that are answered without a trailing prompt.
	Hang map[string]bool
	// If set, the prompt is written separately, this long after the response.
	PromptDelay time.Duration
	// If not empty, "enable" asks for a password and switches to EnablePrompt when it matches.
	EnableSecret string
	EnablePrompt string
	// Signals that the shell should close immediately.
	Fail bool

	mu    sync.Mutex
	lines []string
}

// Lines delivers the commands received so far, without line terminators.
func (s *Shell) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *Shell) record(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *Shell) Handle(t assert.TestingT, ch ssh.Channel) {
	if s.Fail {
		return
	}
	chReader := bufio.NewReader(ch)
	chWriter := bufio.NewWriter(ch)
	prompt := s.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	write := func(text string) bool {
		if _, err := chWriter.WriteString(text); err != nil {
			return false
		}
		return chWriter.Flush() == nil
	}

	if !write(prompt) {
		return
	}
	awaitingSecret := false
	for {
		input, err := chReader.ReadString('\n')
		if err != nil {
			return
		}
		line := strings.TrimRight(input, "\r\n")
		s.record(line)

		switch {
		case awaitingSecret:
			awaitingSecret = false
			if line == s.EnableSecret {
				prompt = s.EnablePrompt
			} else {
				write("% Access denied\n")
			}
			write(prompt)
		case line == "enable" && s.EnableSecret != "":
			awaitingSecret = true
			write("\nPassword: ")
		case line == "close":
			return
		default:
			resp, ok := s.Responses[line]
			if !ok {
				resp = fmt.Sprintf("GOT:%s\n", line)
			}
			if s.Hang[line] {
				write(resp)
				continue
			}
			if s.PromptDelay > 0 {
				if !write(resp) {
					return
				}
				time.Sleep(s.PromptDelay)
				resp = ""
			}
			if !write(resp + prompt) {
				return
			}
		}
	}
}

// NewShellServer delivers a test SSH server whose sessions are all serviced by shell.
func NewShellServer(t assert.TestingT, shell *Shell) *SSHServer {
	return NewSSHServerHandler(t, TestUserName, TestPassword,
		func(t assert.TestingT) SSHHandler {
			return shell
		},
		RequestTypes([]string{"pty-req", "shell"}))
}
