package testutil

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"sync"

	assert "github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

const netconfBase10 = "urn:ietf:params:netconf:base:1.0"

var endOfMessage = []byte("]]>]]>")

// NetconfDevice is an SSHHandler that emulates the netconf subsystem of a device, using end-of-message framing.
type NetconfDevice struct {
	// Capabilities advertised in the server hello, base 1.0 if empty.
	Capabilities []string
	// HandleRequest answers each rpc. A nil reply drops the session without answering.
	// If HandleRequest is not set every request is answered with <ok/>.
	HandleRequest func(req *RPCRequestMessage) *RPCReplyMessage

	mu         sync.Mutex
	operations []string
}

// RPCRequestMessage represents an rpc received from the client, where the element type of the operation is unknown.
type RPCRequestMessage struct {
	XMLName   xml.Name
	MessageID string     `xml:"message-id,attr"`
	Request   RPCRequest `xml:",any"`
}

// RPCRequest describes the operation carried by an rpc.
type RPCRequest struct {
	XMLName xml.Name
	Body    string `xml:",innerxml"`
}

// RPCReplyMessage is the rpc-reply sent to the client.
// Data is written verbatim, <ok/> is sent when the reply has neither errors nor data.
type RPCReplyMessage struct {
	XMLName   xml.Name   `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 rpc-reply"`
	MessageID string     `xml:"message-id,attr"`
	Errors    []RPCError `xml:"rpc-error,omitempty"`
	Data      string     `xml:",innerxml"`
}

// RPCError describes an rpc-error element.
type RPCError struct {
	Type     string `xml:"error-type,omitempty"`
	Tag      string `xml:"error-tag,omitempty"`
	Severity string `xml:"error-severity"`
	Path     string `xml:"error-path,omitempty"`
	Message  string `xml:"error-message"`
}

type helloMessage struct {
	XMLName      xml.Name `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 hello"`
	Capabilities []string `xml:"capabilities>capability"`
	SessionID    uint64   `xml:"session-id,omitempty"`
}

// Operations delivers the names of the operations received so far.
func (d *NetconfDevice) Operations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.operations...)
}

func (d *NetconfDevice) record(op string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.operations = append(d.operations, op)
}

func (d *NetconfDevice) Handle(t assert.TestingT, ch ssh.Channel) {
	caps := d.Capabilities
	if len(caps) == 0 {
		caps = []string{netconfBase10}
	}
	if !send(ch, &helloMessage{Capabilities: caps, SessionID: 1}) {
		return
	}

	scanner := bufio.NewScanner(ch)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	scanner.Split(splitMessages)

	// The client hello carries nothing the device needs.
	if !scanner.Scan() {
		return
	}
	for scanner.Scan() {
		req := &RPCRequestMessage{}
		if err := xml.Unmarshal(scanner.Bytes(), req); err != nil {
			continue
		}
		d.record(req.Request.XMLName.Local)

		reply := &RPCReplyMessage{}
		if d.HandleRequest != nil {
			reply = d.HandleRequest(req)
		}
		if reply == nil {
			return
		}
		if len(reply.Errors) == 0 && reply.Data == "" {
			reply.Data = "<ok/>"
		}
		reply.MessageID = req.MessageID
		if !send(ch, reply) {
			return
		}
	}
}

// send writes a message followed by the end-of-message delimiter.
func send(ch ssh.Channel, msg interface{}) bool {
	b, err := xml.Marshal(msg)
	if err != nil {
		return false
	}
	_, err = ch.Write(append([]byte(xml.Header), append(b, endOfMessage...)...))
	return err == nil
}

func splitMessages(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.Index(data, endOfMessage); i >= 0 {
		return i + len(endOfMessage), data[:i], nil
	}
	return 0, nil, nil
}

// ErrorReply delivers a reply carrying a single rpc-error of severity error.
func ErrorReply(tag, message string) *RPCReplyMessage {
	return &RPCReplyMessage{Errors: []RPCError{{Type: "application", Tag: tag, Severity: "error", Message: message}}}
}

// DataReply delivers a reply whose content is body.
func DataReply(body string) *RPCReplyMessage {
	return &RPCReplyMessage{Data: body}
}

// NewNetconfServer delivers a test SSH server whose netconf subsystem sessions are all serviced by device.
func NewNetconfServer(t assert.TestingT, device *NetconfDevice) *SSHServer {
	return NewSSHServerHandler(t, TestUserName, TestPassword,
		func(t assert.TestingT) SSHHandler {
			return device
		},
		RequestTypes([]string{"subsystem"}))
}
