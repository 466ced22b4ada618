package jira

import "strings"

// adfFrame is one entry of the explicit walk stack. A closing frame is
// pushed for block nodes that need a trailing newline once their children
// have been emitted.
type adfFrame struct {
	node    *ADFNode
	closing bool
}

// ExtractText flattens an ADF tree into markdown-ish text.
//
// Text nodes emit their content, wrapped as [text](href) when they carry a
// link mark. inlineCard and blockCard emit their URL, hardBreak a newline,
// emoji its glyph (or short name). Paragraphs and headings end with a newline
// unless the last emitted token is already blank. The walk uses an explicit
// stack so document depth is bounded by memory, not goroutine stack size.
func ExtractText(doc *ADFNode) string {
	if doc == nil {
		return ""
	}

	var parts []string
	stack := []adfFrame{{node: doc}}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := frame.node

		if frame.closing {
			if n := len(parts); n > 0 && strings.TrimSpace(parts[n-1]) != "" {
				parts = append(parts, "\n")
			}
			continue
		}

		switch node.Type {
		case "text":
			parts = append(parts, renderTextNode(node))
			continue
		case "inlineCard", "blockCard":
			if u := attrString(node.Attrs, "url"); u != "" {
				parts = append(parts, u)
			}
			continue
		case "hardBreak":
			parts = append(parts, "\n")
			continue
		case "emoji":
			if glyph := attrString(node.Attrs, "text"); glyph != "" {
				parts = append(parts, glyph)
			} else if name := attrString(node.Attrs, "shortName"); name != "" {
				parts = append(parts, name)
			}
			continue
		case "paragraph", "heading":
			stack = append(stack, adfFrame{node: node, closing: true})
		}

		for i := len(node.Content) - 1; i >= 0; i-- {
			stack = append(stack, adfFrame{node: &node.Content[i]})
		}
	}

	return strings.TrimSpace(strings.Join(parts, ""))
}

func renderTextNode(node *ADFNode) string {
	for _, mark := range node.Marks {
		if mark.Type != "link" {
			continue
		}
		if href := attrString(mark.Attrs, "href"); href != "" {
			return "[" + node.Text + "](" + href + ")"
		}
	}
	return node.Text
}

func attrString(attrs map[string]interface{}, key string) string {
	if attrs == nil {
		return ""
	}
	s, _ := attrs[key].(string)
	return s
}
