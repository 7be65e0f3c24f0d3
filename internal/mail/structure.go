package mail

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
)

// Part is one node of a message's MIME structure: either a multipart
// container (with children) or a leaf carrying actual content. Leaf paths
// follow IMAP section numbering ("1", "1.2", ...).
type Part struct {
	Type     string // media type, e.g. "text", "multipart", "image"
	Subtype  string // media subtype, e.g. "plain", "html", "mixed"
	Encoding string // content transfer encoding, e.g. "base64"
	Path     []int
	Children []*Part
}

// IsMultipart reports whether the part is a container.
func (p *Part) IsMultipart() bool {
	return p.Type == "multipart"
}

// IsText reports whether the part carries the given text subtype.
func (p *Part) IsText(subtype string) bool {
	return p.Type == "text" && p.Subtype == subtype
}

// PathString returns the dot-separated IMAP section path, e.g. "1.2".
func (p *Part) PathString() string {
	segments := make([]string, len(p.Path))
	for i, n := range p.Path {
		segments[i] = strconv.Itoa(n)
	}
	return strings.Join(segments, ".")
}

// buildPartTree converts an IMAP body structure into a typed part tree.
// Sibling order is declaration order; a non-multipart root gets section
// path "1" per IMAP numbering.
func buildPartTree(bs *imap.BodyStructure, path []int) *Part {
	part := &Part{
		Type:     strings.ToLower(bs.MIMEType),
		Subtype:  strings.ToLower(bs.MIMESubType),
		Encoding: strings.ToLower(bs.Encoding),
		Path:     path,
	}

	if part.IsMultipart() {
		for i, child := range bs.Parts {
			childPath := make([]int, len(path), len(path)+1)
			copy(childPath, path)
			childPath = append(childPath, i+1)
			part.Children = append(part.Children, buildPartTree(child, childPath))
		}
		return part
	}

	if len(part.Path) == 0 {
		part.Path = []int{1}
	}

	return part
}

// Leaves returns the non-multipart parts of the tree in depth-first order,
// siblings in declaration order.
func (p *Part) Leaves() []*Part {
	if !p.IsMultipart() {
		return []*Part{p}
	}

	var leaves []*Part
	for _, child := range p.Children {
		leaves = append(leaves, child.Leaves()...)
	}
	return leaves
}

// SelectBestPart picks the leaf to extract facts from: text/plain first,
// then text/html, then the first leaf as last resort. Returns nil when the
// tree has no leaves at all.
func SelectBestPart(root *Part) *Part {
	leaves := root.Leaves()
	if len(leaves) == 0 {
		return nil
	}

	for _, leaf := range leaves {
		if leaf.IsText("plain") {
			return leaf
		}
	}
	for _, leaf := range leaves {
		if leaf.IsText("html") {
			return leaf
		}
	}

	return leaves[0]
}

// parsePartPath parses a dot-separated section path like "1.2".
func parsePartPath(path string) ([]int, error) {
	if path == "" {
		return nil, fmt.Errorf("empty part path")
	}

	segments := strings.Split(path, ".")
	parsed := make([]int, len(segments))
	for i, segment := range segments {
		n, err := strconv.Atoi(segment)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid part path %q", path)
		}
		parsed[i] = n
	}

	return parsed, nil
}
