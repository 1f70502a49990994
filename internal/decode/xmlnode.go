// Package decode turns raw SWIM payloads into typed partial updates. Each
// message family (SFDPS en-route flights, SMES surface reports, TAIS terminal
// tracks, TDES tower events) has its own decoder; all of them match XML
// elements by local name only, since the feeds disagree about namespace
// prefixes and sometimes omit them entirely.
package decode

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// ErrEmptyPayload is returned for zero-length or whitespace-only payloads.
var ErrEmptyPayload = errors.New("decode: empty payload")

// Attr is a single XML attribute with its namespace stripped.
type Attr struct {
	Name  string
	Value string
}

// Node is one element of the parsed document. Only local names are kept.
type Node struct {
	Name     string
	Attrs    []Attr
	Children []*Node
	Text     string
}

// Parse builds a Node tree from the payload. Character data is accumulated
// per element with surrounding whitespace trimmed.
func Parse(payload string) (*Node, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, ErrEmptyPayload
	}

	dec := xml.NewDecoder(strings.NewReader(payload))
	// Feeds occasionally declare charsets we don't care about; the payloads
	// are handed to us as already-decoded strings.
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var root *Node
	var stack []*Node

	for {
		tok, err := dec.Token()
		if err != nil {
			if root != nil && len(stack) == 0 {
				return root, nil
			}
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			for _, a := range t.Attr {
				// Drop xmlns declarations entirely; keep everything else,
				// including xsi:nil, under its local name.
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				n.Attrs = append(n.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("decode: multiple root elements")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.New("decode: unbalanced end element")
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return root, nil
			}

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
}

// Attr returns the value of the named attribute and whether it was present.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrValue returns the named attribute's value or "".
func (n *Node) AttrValue(name string) string {
	v, _ := n.Attr(name)
	return v
}

// IsNil reports whether the element carries xsi:nil="true".
func (n *Node) IsNil() bool {
	return n.AttrValue("nil") == "true"
}

// Child returns the first direct child with the given local name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildN returns all direct children with the given local name.
func (n *Node) ChildN(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Path walks a chain of child names and returns the terminal node or nil.
func (n *Node) Path(names ...string) *Node {
	cur := n
	for _, name := range names {
		if cur = cur.Child(name); cur == nil {
			return nil
		}
	}
	return cur
}

// TrimText returns the element text with surrounding whitespace removed.
func (n *Node) TrimText() string {
	return strings.TrimSpace(n.Text)
}

// ChildText returns the trimmed text of the first child with the given name,
// or "" when the child is absent.
func (n *Node) ChildText(name string) string {
	if c := n.Child(name); c != nil {
		return c.TrimText()
	}
	return ""
}

// PathText returns the trimmed text at the end of a child-name chain.
func (n *Node) PathText(names ...string) string {
	if c := n.Path(names...); c != nil {
		return c.TrimText()
	}
	return ""
}
