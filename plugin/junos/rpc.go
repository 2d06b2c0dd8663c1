package junos

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/pkg/errors"
)

// Load formats accepted by LoadConfigurationReq.
const (
	FormatSet  = "set"
	FormatText = "text"
)

// LoadConfigurationReq loads a payload into the candidate configuration.
type LoadConfigurationReq struct {
	XMLName xml.Name `xml:"load-configuration"`
	Action  string   `xml:"action,attr,omitempty"`
	Format  string   `xml:"format,attr,omitempty"`
	Set     string   `xml:"configuration-set,omitempty"`
	Text    string   `xml:"configuration-text,omitempty"`
}

// CommitConfigurationReq commits, or with Check only validates, the candidate configuration.
type CommitConfigurationReq struct {
	XMLName xml.Name  `xml:"commit-configuration"`
	Check   *struct{} `xml:"check,omitempty"`
	Log     string    `xml:"log,omitempty"`
}

// CommandReq executes an operational cli command.
type CommandReq struct {
	XMLName xml.Name `xml:"command"`
	Format  string   `xml:"format,attr,omitempty"`
	Command string   `xml:",chardata"`
}

func createLoadRequest(format, payload string) (*LoadConfigurationReq, error) {
	switch format {
	case "", FormatSet:
		return &LoadConfigurationReq{Action: "set", Format: "text", Set: payload}, nil
	case FormatText:
		return &LoadConfigurationReq{Action: "merge", Format: "text", Text: payload}, nil
	default:
		return nil, errors.Errorf("unsupported load format %q", format)
	}
}

func createCommitCheckRequest() *CommitConfigurationReq {
	return &CommitConfigurationReq{Check: &struct{}{}}
}

func createCommandRequest(command string) *CommandReq {
	return &CommandReq{Format: "text", Command: command}
}

func marshal(req interface{}) (string, error) {
	b, err := xml.Marshal(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal request")
	}
	return string(b), nil
}

// replyError delivers the errors reported in an rpc reply, ignoring warnings.
func replyError(reply *etree.Document) error {
	var msgs []string
	for _, e := range reply.FindElements("//rpc-error") {
		severity := strings.TrimSpace(childText(e, "error-severity"))
		if severity == "warning" {
			continue
		}
		msg := strings.TrimSpace(childText(e, "error-message"))
		if path := strings.TrimSpace(childText(e, "error-path")); path != "" {
			msg += " (" + path + ")"
		}
		msgs = append(msgs, msg)
	}
	if el := reply.FindElement("//load-error-count"); el != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(el.Text())); err == nil && n > 0 && len(msgs) == 0 {
			msgs = append(msgs, el.Text()+" load errors")
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(msgs, "; "))
}

func childText(e *etree.Element, tag string) string {
	if c := e.SelectElement(tag); c != nil {
		return c.Text()
	}
	return ""
}

// parseReply reads a raw rpc reply.
func parseReply(raw string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "]]>]]>"))); err != nil {
		return nil, errors.Wrap(err, "malformed rpc reply")
	}
	return doc, nil
}

// commandOutput delivers the text output of a command reply.
func commandOutput(reply *etree.Document) string {
	if el := reply.FindElement("//output"); el != nil {
		return el.Text()
	}
	if root := reply.Root(); root != nil {
		var b strings.Builder
		for _, el := range root.ChildElements() {
			b.WriteString(el.Text())
		}
		return b.String()
	}
	return ""
}
