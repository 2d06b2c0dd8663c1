package cli

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
)

var (
	// ErrSessionClosed is returned by Send once the session has been closed.
	ErrSessionClosed = errors.New("cli session closed")
	// ErrResponseTimeout is returned by Send when the response did not complete within the response timeout.
	// The partial response read so far is returned alongside it.
	ErrResponseTimeout = errors.New("timed out waiting for response")
)

// Session defines the API exposed by an interactive cli session.
type Session interface {
	// Send writes the supplied value to the server and returns the response.
	// The behaviour can be modified by opts - see SendOption variants below.
	Send(value string, opts ...SendOption) (string, error)
	// Prompt delivers the current cli prompt, if known.
	Prompt() string
	io.Closer
}

// SendOption implements options for configuring Send behaviour.
type SendOption func(*SendConfig)

// WaitFor defines a regex matching the last line of the response.
// Defaults to the current prompt.
func WaitFor(sentinel string) SendOption {
	return func(c *SendConfig) {
		c.responseSentinel = sentinel
	}
}

// Expect defines a regex that completes the response when it matches anywhere in the text received so far.
// Reading then runs on to the prompt, or until the session read timeout passes without input, so that a trailing
// prompt is not left for the next Send. The whole of the received text is returned.
func Expect(sentinel string) SendOption {
	return func(c *SendConfig) {
		c.expectSentinel = sentinel
	}
}

// NoNewline suppresses the newline that is by default appended to the Send string.
func NoNewline() SendOption {
	return func(c *SendConfig) {
		c.suppressNewline = true
	}
}

// ResetPrompt resets the current session prompt to the last unterminated line of response.
func ResetPrompt() SendOption {
	return func(c *SendConfig) {
		c.resetPrompt = true
	}
}

// NoWait indicates the Send should not wait for a response.
func NoWait() SendOption {
	return func(c *SendConfig) {
		c.noResponse = true
	}
}

// SendConfig defines properties controlling Send behaviour.
type SendConfig struct {
	suppressNewline  bool
	resetPrompt      bool
	noResponse       bool
	responseSentinel string
	expectSentinel   string
}

type SessionImpl struct {
	cfg   *SessionConfig
	tport Transport
	// promptPattern defines the regex used to determine the end of a response.
	promptPattern *regexp.Regexp
	prompt        string
	// Used to queue the inputs received from the server.
	inputs chan []byte
	done   chan struct{}
	// Serialises Send calls.
	mu     sync.Mutex
	closed atomic.Bool
}

// NewCliSession establishes a client connection to a cli session running on the server associated with the supplied
// transport.
func NewCliSession(ctx context.Context, tport Transport, cfg *SessionConfig) (s *SessionImpl, err error) {
	resolvedConfig := *cfg
	_ = mergo.Merge(&resolvedConfig, DefaultConfig)

	var pattern *regexp.Regexp
	if resolvedConfig.pattern != "" {
		pattern, err = regexp.Compile(resolvedConfig.pattern)
		if err != nil {
			return nil, errors.Wrap(err, "invalid prompt pattern")
		}
	}

	sess := &SessionImpl{cfg: &resolvedConfig, tport: tport, inputs: make(chan []byte), done: make(chan struct{}), promptPattern: pattern}

	sess.launchReader()

	if resolvedConfig.autoDetect {
		err = sess.capturePrompt()
	} else if pattern != nil {
		// Swallow the initial prompt, remembering its text.
		_, err = sess.readUntil(func(b []byte) (string, bool) {
			_, last := splitLastLine(b)
			if pattern.Match(last) {
				sess.prompt = string(last)
				return "", true
			}
			return "", false
		})
	}
	if err != nil {
		_ = sess.Close()
		return nil, errors.Wrap(err, "failed to capture cli prompt")
	}

	for _, cmd := range sess.cfg.initCmds {
		_, err = sess.Send(cmd)
		if err != nil {
			_ = sess.Close()
			return nil, errors.Wrap(err, "failed to execute initial command "+cmd)
		}
	}

	return sess, nil
}

// Captures the cli prompt.
// We keep reading until a read times out.
// Then we use the content after the last line break.
func (s *SessionImpl) capturePrompt() error {
	b, err := s.readUntilTimeout()
	if err != nil {
		return err
	}
	_, last := splitLastLine(b)
	s.prompt = string(last)
	s.promptPattern = regexp.MustCompile(regexp.QuoteMeta(s.prompt))
	return nil
}

// Keep reading input from the server, until a read times out.
func (s *SessionImpl) readUntilTimeout() ([]byte, error) {
	output := new(bytes.Buffer)
	for {
		select {
		case rd := <-s.inputs:
			if rd == nil {
				return nil, io.EOF
			}
			_, _ = output.Write(rd)
		case <-time.After(s.cfg.readTimeout):
			return output.Bytes(), nil
		}
	}
}

func (s *SessionImpl) Prompt() string {
	return s.prompt
}

func (s *SessionImpl) Send(output string, opts ...SendOption) (string, error) {
	if s.closed.Load() {
		return "", ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	config := &SendConfig{}
	for _, opt := range opts {
		opt(config)
	}

	if !config.noResponse && s.promptPattern == nil && config.responseSentinel == "" && config.expectSentinel == "" {
		return "", errors.New("need to specify WaitFor if cli prompt is not defined")
	}

	var sentinel, expect *regexp.Regexp
	var err error
	if config.responseSentinel != "" {
		sentinel, err = regexp.Compile(config.responseSentinel)
		if err != nil {
			return "", errors.Wrap(err, "invalid WaitFor value")
		}
	}
	if config.expectSentinel != "" {
		expect, err = regexp.Compile(config.expectSentinel)
		if err != nil {
			return "", errors.Wrap(err, "invalid Expect value")
		}
	}

	if len(output) > 0 {
		s.discardPending()
		if !config.suppressNewline {
			output += "\n"
		}
		_, err = s.tport.Write([]byte(output))
		if err != nil {
			return "", errors.Wrap(err, "failed to send command")
		}
	}

	if config.noResponse {
		return "", nil
	}

	if config.resetPrompt {
		return "", s.capturePrompt()
	}

	if expect != nil {
		return s.readExpect(expect)
	}

	// Capture any input up to but not including the prompt.
	if sentinel == nil {
		sentinel = s.promptPattern
	}
	return s.readUntil(func(b []byte) (string, bool) {
		body, last := splitLastLine(b)
		return body, sentinel.Match(last)
	})
}

// Close releases the transport. It is safe to call more than once.
func (s *SessionImpl) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)
	return s.tport.Close()
}

// readUntil reads until match reports completion and returns the text it selected.
// When a response timeout is configured, the text read so far is returned with ErrResponseTimeout.
func (s *SessionImpl) readUntil(match func(b []byte) (string, bool)) (string, error) {
	var timeout <-chan time.Time
	if s.cfg.responseTimeout > 0 {
		timer := time.NewTimer(s.cfg.responseTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	output := new(bytes.Buffer)
	for {
		select {
		case b := <-s.inputs:
			if b == nil {
				return "", io.EOF
			}
			output.Write(b)
			if text, ok := match(output.Bytes()); ok {
				return text, nil
			}
		case <-timeout:
			return output.String(), ErrResponseTimeout
		}
	}
}

// readExpect reads until expect matches, then settles on the prompt.
func (s *SessionImpl) readExpect(expect *regexp.Regexp) (string, error) {
	text, err := s.readUntil(func(b []byte) (string, bool) {
		return string(b), expect.Match(b)
	})
	if err != nil || s.atPrompt([]byte(text)) {
		return text, err
	}

	output := bytes.NewBufferString(text)
	quiet := time.NewTimer(s.cfg.readTimeout)
	defer quiet.Stop()
	for {
		select {
		case b := <-s.inputs:
			if b == nil {
				return output.String(), nil
			}
			output.Write(b)
			if s.atPrompt(output.Bytes()) {
				return output.String(), nil
			}
			quiet.Reset(s.cfg.readTimeout)
		case <-quiet.C:
			return output.String(), nil
		}
	}
}

func (s *SessionImpl) atPrompt(b []byte) bool {
	if s.promptPattern == nil {
		return false
	}
	_, last := splitLastLine(b)
	return s.promptPattern.Match(last)
}

// discardPending drops input that arrived after the previous response completed.
func (s *SessionImpl) discardPending() {
	for {
		select {
		case b := <-s.inputs:
			if b == nil {
				return
			}
		default:
			return
		}
	}
}

// splitLastLine separates the unterminated last line from the text preceding it.
// The body excludes the final line terminator, but is otherwise returned as received.
func splitLastLine(b []byte) (body string, last []byte) {
	i := bytes.LastIndexAny(b, "\r\n")
	if i < 0 {
		return "", b
	}
	end := i
	if b[i] == '\n' && i > 0 && b[i-1] == '\r' {
		end = i - 1
	}
	return string(b[:end]), b[i+1:]
}

func (s *SessionImpl) launchReader() {
	go func() {
		defer close(s.inputs)
		for {
			const bufLength = 10000
			stdoutBuf := make([]byte, bufLength)
			byteCount, err := s.tport.Read(stdoutBuf)
			if byteCount > 0 {
				select {
				case s.inputs <- stdoutBuf[:byteCount]:
				case <-s.done:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
}
