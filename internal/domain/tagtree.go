package domain

import "slices"

// TagNode is a tag with its direct children attached, for nested
// presentation of an owner's forest.
type TagNode struct {
	Tag
	Children []*TagNode `json:"children"`
}

// BuildTagTree projects a flat owner-scoped tag list into a nested forest.
// Pure function: no store access, safe to recompute on every read. Roots
// are tags with no parent; siblings are ordered by name then id so repeated
// calls over the same input return structurally identical trees. A tag whose
// parent id is not present in the input is treated as a root.
func BuildTagTree(tags []*Tag) []*TagNode {
	if len(tags) == 0 {
		return []*TagNode{}
	}

	nodes := make(map[string]*TagNode, len(tags))
	for _, t := range tags {
		nodes[t.ID] = &TagNode{Tag: *t, Children: []*TagNode{}}
	}

	var roots []*TagNode
	for _, t := range tags {
		node := nodes[t.ID]
		if t.ParentID == "" {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[t.ParentID]
		if !ok {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	sortSiblings(roots)
	for _, node := range nodes {
		sortSiblings(node.Children)
	}

	if roots == nil {
		roots = []*TagNode{}
	}
	return roots
}

func sortSiblings(nodes []*TagNode) {
	slices.SortFunc(nodes, func(a, b *TagNode) int {
		if a.Name != b.Name {
			if a.Name < b.Name {
				return -1
			}
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
