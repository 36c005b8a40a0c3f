package cdpengine

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// absoluteXPath builds the position-indexed path from the document root to n,
// such as /html/body/div[2]/a. It is how a mirrored node is translated back
// into something the browser can locate: the mirror and the live DOM share
// structure, so the same path addresses the same element on both sides.
func absoluteXPath(n *html.Node) (string, error) {
	if n == nil {
		return "", fmt.Errorf("cannot address nil node")
	}
	if n.Type == html.DocumentNode {
		return "/", nil
	}
	if n.Type != html.ElementNode {
		return "", fmt.Errorf("cannot address node of type %d", n.Type)
	}

	var segments []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		segments = append(segments, segment(cur))
	}

	var sb strings.Builder
	for i := len(segments) - 1; i >= 0; i-- {
		sb.WriteByte('/')
		sb.WriteString(segments[i])
	}
	return sb.String(), nil
}

// segment renders one path step, adding a positional predicate only when the
// element has same-tag siblings.
func segment(n *html.Node) string {
	tag := strings.ToLower(n.Data)
	index := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && strings.EqualFold(sib.Data, n.Data) {
			index++
		}
	}
	only := index == 1
	for sib := n.NextSibling; only && sib != nil; sib = sib.NextSibling {
		if sib.Type == html.ElementNode && strings.EqualFold(sib.Data, n.Data) {
			only = false
		}
	}
	if only {
		return tag
	}
	return fmt.Sprintf("%s[%d]", tag, index)
}
