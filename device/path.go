package device

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/c360/streamagent/errors"
)

// stepPattern matches one path step: a node test and an optional
// [@attr="value"] predicate.
var stepPattern = regexp.MustCompile(`^([A-Za-z_*][\w*-]*)(?:\[@(\w+)\s*=\s*["']([^"']*)["']\])?$`)

type pathStep struct {
	test  string
	attr  string
	value string
}

// node is a uniform view over devices, components and data items.
type node struct {
	element  string // Device, Component type, or DataItem
	attrs    map[string]string
	item     *DataItem
	children []*node
}

// Select resolves a path expression against d and returns the matching data
// items in schema order. Steps are separated by "/" or "//" and always match
// descendants. A step names an element (Device, DataItem, a component type
// such as Controller, or *) and may carry one [@attr="value"] predicate on
// id, name, type, subType or category. Alternatives are joined with "|".
// Selecting a component selects every data item beneath it.
func Select(d *Device, expr string) ([]*DataItem, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return d.Items(), nil
	}

	root := deviceNode(d)
	selected := make(map[*DataItem]bool)
	for _, alt := range strings.Split(expr, "|") {
		steps, err := parsePath(alt)
		if err != nil {
			return nil, errors.InvalidRequest("invalid path %q: %v", expr, err)
		}

		current := []*node{{children: []*node{root}}}
		for _, step := range steps {
			var next []*node
			seen := make(map[*node]bool)
			for _, n := range current {
				for _, m := range descendants(n) {
					if !seen[m] && step.matches(m) {
						seen[m] = true
						next = append(next, m)
					}
				}
			}
			current = next
		}

		for _, n := range current {
			collectItems(n, selected)
		}
	}

	out := make([]*DataItem, 0, len(selected))
	for _, item := range d.Items() {
		if selected[item] {
			out = append(out, item)
		}
	}
	return out, nil
}

func parsePath(expr string) ([]pathStep, error) {
	var steps []pathStep
	for _, raw := range strings.Split(strings.TrimSpace(expr), "/") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		m := stepPattern.FindStringSubmatch(raw)
		if m == nil {
			return nil, fmt.Errorf("bad step %q", raw)
		}
		steps = append(steps, pathStep{test: m[1], attr: m[2], value: m[3]})
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	return steps, nil
}

func (s pathStep) matches(n *node) bool {
	if s.test != "*" && !strings.EqualFold(s.test, n.element) {
		return false
	}
	if s.attr == "" {
		return true
	}
	return n.attrs[strings.ToLower(s.attr)] == s.value
}

func descendants(n *node) []*node {
	var out []*node
	var walk func(*node)
	walk = func(p *node) {
		for _, c := range p.children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(n)
	return out
}

func collectItems(n *node, into map[*DataItem]bool) {
	if n.item != nil {
		into[n.item] = true
	}
	for _, c := range n.children {
		collectItems(c, into)
	}
}

func deviceNode(d *Device) *node {
	n := &node{
		element: "Device",
		attrs:   map[string]string{"id": d.ID, "name": d.Name, "uuid": d.UUID},
	}
	n.children = append(n.children, itemNodes(d.DataItems)...)
	n.children = append(n.children, componentNodes(d.Components)...)
	return n
}

func componentNodes(comps []*Component) []*node {
	out := make([]*node, 0, len(comps))
	for _, c := range comps {
		n := &node{
			element: c.Type,
			attrs:   map[string]string{"id": c.ID, "name": c.Name, "type": c.Type},
		}
		n.children = append(n.children, itemNodes(c.DataItems)...)
		n.children = append(n.children, componentNodes(c.Components)...)
		out = append(out, n)
	}
	return out
}

func itemNodes(items []*DataItem) []*node {
	out := make([]*node, 0, len(items))
	for _, item := range items {
		out = append(out, &node{
			element: "DataItem",
			item:    item,
			attrs: map[string]string{
				"id":       item.ID,
				"name":     item.Name,
				"type":     item.Type,
				"subtype":  item.SubType,
				"category": item.Category.String(),
			},
		})
	}
	return out
}
