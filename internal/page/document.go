// Package page binds HTML documents to the visibility reconciler. Regions are
// declared in markup:
//
//	<div class="protected-content">…</div>              any signed-in user
//	<div data-required-role="admin">…</div>             role gate
//	<div data-required-permission="read:x">…</div>      permission gate
//	<p data-protected-content="true"></p>               receives fetched content
package page

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"portfolio-backend/internal/authz"
	"portfolio-backend/internal/visibility"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	ProtectedClass          = "protected-content"
	RequiredRoleAttr        = "data-required-role"
	RequiredPermissionAttr  = "data-required-permission"
	ProtectedContentAttr    = "data-protected-content"
	defaultProtectedMessage = "Loading protected content..."
)

// Document is a parsed HTML page whose protected regions can be reconciled.
type Document struct {
	mu   sync.Mutex
	root *html.Node
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &Document{root: root}, nil
}

// Bindings scans the document for protected regions. A region carrying a
// permission attribute is gated on it; otherwise a role attribute; otherwise
// the protected class gates on sign-in.
func (d *Document) Bindings() []visibility.Binding {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []visibility.Binding
	walk(d.root, func(n *html.Node) {
		if rule, ok := ruleFor(n); ok {
			out = append(out, visibility.Binding{Region: &region{doc: d, node: n}, Rule: rule})
		}
	})
	return out
}

// FillProtectedContent sets the text of every content target and returns how
// many were filled.
func (d *Document) FillProtectedContent(content string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	filled := 0
	walk(d.root, func(n *html.Node) {
		if n.Type == html.ElementNode && attr(n, ProtectedContentAttr) == "true" {
			setText(n, content)
			filled++
		}
	})
	return filled
}

// RegionOptions narrows a dynamically added region.
type RegionOptions struct {
	RequiredRole       string
	RequiredPermission string
}

// AddProtectedContent appends a hidden protected content region under the
// element with id parentID. The caller reconciles afterwards to reveal it.
func (d *Document) AddProtectedContent(parentID, content string, opts RegionOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	parent := findByID(d.root, parentID)
	if parent == nil {
		return fmt.Errorf("element %q not found", parentID)
	}
	if content == "" {
		content = defaultProtectedMessage
	}

	n := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "class", Val: ProtectedClass},
			{Key: ProtectedContentAttr, Val: "true"},
		},
	}
	if opts.RequiredRole != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: RequiredRoleAttr, Val: opts.RequiredRole})
	}
	if opts.RequiredPermission != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: RequiredPermissionAttr, Val: opts.RequiredPermission})
	}
	setDisplay(n, false)
	n.AppendChild(&html.Node{Type: html.TextNode, Data: content})
	parent.AppendChild(n)
	return nil
}

// Remove detaches the element with the given id.
func (d *Document) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := findByID(d.root, id)
	if n == nil || n.Parent == nil {
		return false
	}
	n.Parent.RemoveChild(n)
	return true
}

// Render writes the document.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

func ruleFor(n *html.Node) (authz.Rule, bool) {
	if n.Type != html.ElementNode {
		return authz.Rule{}, false
	}
	if p, ok := lookup(n, RequiredPermissionAttr); ok && p != "" {
		return authz.Permission(p), true
	}
	if r, ok := lookup(n, RequiredRoleAttr); ok && r != "" {
		return authz.Role(r), true
	}
	if hasClass(n, ProtectedClass) {
		return authz.Auth(), true
	}
	return authz.Rule{}, false
}

// region is a single element bound to the reconciler.
type region struct {
	doc  *Document
	node *html.Node
}

// Attached walks up to the document root.
func (r *region) Attached() bool {
	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()

	for n := r.node; n != nil; n = n.Parent {
		if n == r.doc.root {
			return true
		}
	}
	return false
}

func (r *region) SetVisible(visible bool) {
	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()
	setDisplay(r.node, visible)
}

// setDisplay rewrites the display declaration of the style attribute and
// leaves other declarations untouched.
func setDisplay(n *html.Node, visible bool) {
	var decls []string
	for _, d := range strings.Split(attr(n, "style"), ";") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if k, _, ok := strings.Cut(d, ":"); ok && strings.EqualFold(strings.TrimSpace(k), "display") {
			continue
		}
		decls = append(decls, d)
	}
	if visible {
		decls = append(decls, "display: block")
	} else {
		decls = append(decls, "display: none")
	}
	setAttr(n, "style", strings.Join(decls, "; "))
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) {
		if found == nil && n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
		}
	})
	return found
}

func lookup(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := lookup(n, key)
	return v
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}
