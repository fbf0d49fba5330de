// Package prosemirror reads ProseMirror (Tiptap) JSON documents and maps
// their flat plain text onto ProseMirror positions.
package prosemirror

import (
	"encoding/json"
	"fmt"
)

// Node is a node in the ProseMirror document tree.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is a text mark (formatting).
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

var (
	inlineLeaves = map[string]bool{
		"hardBreak": true,
		"image":     true,
		"mention":   true,
		"emoji":     true,
	}
	blockLeaves = map[string]bool{
		"horizontalRule": true,
	}
	textblocks = map[string]bool{
		"paragraph": true,
		"heading":   true,
		"codeBlock": true,
	}
)

// Parse decodes a ProseMirror JSON document. The root must be a doc node.
func Parse(raw []byte) (Node, error) {
	var doc Node
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Node{}, fmt.Errorf("parse document: %w", err)
	}
	if doc.Type != "doc" {
		return Node{}, fmt.Errorf("parse document: root node is %q, want \"doc\"", doc.Type)
	}
	return doc, nil
}

// Paragraphs builds a doc with one paragraph per entry. Empty entries become
// empty paragraphs.
func Paragraphs(lines ...string) Node {
	doc := Node{Type: "doc", Content: make([]Node, 0, len(lines))}
	for _, line := range lines {
		p := Node{Type: "paragraph"}
		if line != "" {
			p.Content = []Node{{Type: "text", Text: line}}
		}
		doc.Content = append(doc.Content, p)
	}
	return doc
}

func (n Node) isText() bool {
	return n.Type == "text"
}

func (n Node) isInline() bool {
	return n.isText() || inlineLeaves[n.Type]
}

func (n Node) isLeaf() bool {
	return n.isText() || inlineLeaves[n.Type] || blockLeaves[n.Type]
}

func (n Node) isTextblock() bool {
	if textblocks[n.Type] {
		return true
	}
	return len(n.Content) > 0 && n.Content[0].isInline()
}
