package htmldom

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// submitForm serializes the form's successful controls and performs the
// submission, returning the resulting document.
func (e *Engine) submitForm(ctx context.Context, form *html.Node) (*html.Node, error) {
	action := htmlquery.SelectAttr(form, "action")
	target, err := e.resolveURL(action)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve form action '%s': %w", action, err)
	}
	if target == nil {
		return nil, fmt.Errorf("form has no action and no page is loaded")
	}

	method := strings.ToUpper(htmlquery.SelectAttr(form, "method"))
	if method == "" {
		method = http.MethodGet
	}

	formData, err := serializeForm(form)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize form: %w", err)
	}

	e.logger.Info("Submitting form",
		zap.String("method", method), zap.String("action", target.String()))

	var req *http.Request
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target.String(),
			strings.NewReader(formData.Encode()))
		if err != nil {
			return nil, fmt.Errorf("failed to create form request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		query := target.Query()
		for key, values := range formData {
			query[key] = values
		}
		target.RawQuery = query.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create form request: %w", err)
		}
	}
	e.prepareRequestHeaders(req)

	return e.executeRequest(ctx, req)
}

// serializeForm collects the form's successful controls into url.Values,
// following the standard rules: unnamed and disabled controls are skipped,
// checkboxes and radios count only when checked, submit-style inputs never
// count, a select contributes its selected option or falls back to the
// first one.
func serializeForm(form *html.Node) (url.Values, error) {
	data := url.Values{}
	controls, err := htmlquery.QueryAll(form, ".//input | .//textarea | .//select")
	if err != nil {
		return nil, err
	}
	for _, control := range controls {
		name := htmlquery.SelectAttr(control, "name")
		if name == "" {
			continue
		}
		if _, disabled := getAttr(control, "disabled"); disabled {
			continue
		}

		switch strings.ToLower(control.Data) {
		case "input":
			inputType := strings.ToLower(htmlquery.SelectAttr(control, "type"))
			switch inputType {
			case "checkbox", "radio":
				if _, checked := getAttr(control, "checked"); !checked {
					continue
				}
				value := htmlquery.SelectAttr(control, "value")
				if value == "" {
					value = "on"
				}
				data.Add(name, value)
			case "submit", "reset", "button", "image", "file":
				continue
			default:
				data.Add(name, htmlquery.SelectAttr(control, "value"))
			}
		case "textarea":
			data.Add(name, htmlquery.InnerText(control))
		case "select":
			if value, ok := selectedValue(control); ok {
				data.Add(name, value)
			}
		}
	}
	return data, nil
}

// selectedValue picks the select's submitted value: the first option marked
// selected, else the first option at all.
func selectedValue(sel *html.Node) (string, bool) {
	options, err := htmlquery.QueryAll(sel, ".//option")
	if err != nil || len(options) == 0 {
		return "", false
	}
	chosen := options[0]
	for _, option := range options {
		if _, selected := getAttr(option, "selected"); selected {
			chosen = option
			break
		}
	}
	if value, ok := getAttr(chosen, "value"); ok {
		return value, true
	}
	return strings.TrimSpace(htmlquery.InnerText(chosen)), true
}

// selectOption marks the option matching value as selected, by value
// attribute first and visible text second, clearing any previous choice.
func selectOption(sel *html.Node, value string) error {
	options, err := htmlquery.QueryAll(sel, ".//option")
	if err != nil {
		return err
	}
	var match *html.Node
	for _, option := range options {
		if htmlquery.SelectAttr(option, "value") == value {
			match = option
			break
		}
	}
	if match == nil {
		for _, option := range options {
			if strings.TrimSpace(htmlquery.InnerText(option)) == value {
				match = option
				break
			}
		}
	}
	if match == nil {
		return fmt.Errorf("no option with value '%s'", value)
	}
	for _, option := range options {
		removeAttr(option, "selected")
	}
	setAttr(match, "selected", "selected")
	return nil
}

// enclosingForm finds the form a control belongs to, through ancestry or the
// form attribute indirection.
func enclosingForm(control *html.Node) *html.Node {
	for n := control.Parent; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && strings.ToLower(n.Data) == "form" {
			return n
		}
	}
	if formID := htmlquery.SelectAttr(control, "form"); formID != "" {
		root := control
		for root.Parent != nil {
			root = root.Parent
		}
		form, err := htmlquery.Query(root, "//form[@id="+xpathString(formID)+"]")
		if err == nil {
			return form
		}
	}
	return nil
}

// isSubmitControl reports whether a click on element triggers form
// submission: buttons default to submit, inputs must say so.
func isSubmitControl(element *html.Node) bool {
	controlType := strings.ToLower(htmlquery.SelectAttr(element, "type"))
	switch strings.ToLower(element.Data) {
	case "button":
		return controlType == "" || controlType == "submit"
	case "input":
		return controlType == "submit"
	}
	return false
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func removeAttr(n *html.Node, key string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// replaceText swaps a node's children for a single text node.
func replaceText(n *html.Node, text string) {
	for child := n.FirstChild; child != nil; {
		next := child.NextSibling
		n.RemoveChild(child)
		child = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}
