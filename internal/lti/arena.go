package lti

import (
	"errors"
	"fmt"
	"sort"

	"github.com/charlesng35/coursehub/internal/models"
)

var (
	// ErrUnknownTool is returned when an id does not name a tool held by the arena.
	ErrUnknownTool = errors.New("lti: unknown tool")
	// ErrCycle is returned when a link would make a tool its own ancestor.
	ErrCycle = errors.New("lti: tool hierarchy cycle")
	// ErrDuplicateTool is returned when adding a tool whose id is already present.
	ErrDuplicateTool = errors.New("lti: tool already present")
)

// Node is one tool of a hierarchy with its children in ascending id order.
type Node struct {
	Tool     models.LTITool
	Children []Node
}

// Arena holds tool configurations addressed by id. Parent links are kept as ids on
// each tool and a child index is maintained next to them, so tools never point at
// each other. An Arena is not safe for concurrent use.
type Arena struct {
	tools    map[uint]*models.LTITool
	children map[uint][]uint
}

// NewArena builds an arena from tools, indexing children by ParentID. Tools whose
// parent is not among tools are treated as roots.
func NewArena(tools ...models.LTITool) (*Arena, error) {
	a := &Arena{
		tools:    make(map[uint]*models.LTITool, len(tools)),
		children: make(map[uint][]uint),
	}
	for _, tool := range tools {
		if err := a.Add(tool); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Add stores a copy of tool and indexes it under its parent.
func (a *Arena) Add(tool models.LTITool) error {
	if tool.ID == 0 {
		return fmt.Errorf("%w: id 0", ErrUnknownTool)
	}
	if _, exists := a.tools[tool.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateTool, tool.ID)
	}

	stored := detach(tool)
	a.tools[tool.ID] = &stored
	if stored.ParentID != nil {
		a.index(*stored.ParentID, stored.ID)
	}
	return nil
}

// Len reports the number of tools held.
func (a *Arena) Len() int { return len(a.tools) }

// Get returns a copy of the tool with the given id.
func (a *Arena) Get(id uint) (models.LTITool, bool) {
	tool, ok := a.tools[id]
	if !ok {
		return models.LTITool{}, false
	}
	return *tool, true
}

// Link makes parentID the parent of childID and performs the one-time copy of the
// parent's credentials and privacy onto the child.
func (a *Arena) Link(childID, parentID uint) error {
	child, ok := a.tools[childID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTool, childID)
	}
	parent, ok := a.tools[parentID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTool, parentID)
	}
	if a.isAncestorOrSelf(childID, parentID) {
		return fmt.Errorf("%w: %d under %d", ErrCycle, childID, parentID)
	}

	if child.ParentID != nil {
		a.unindex(*child.ParentID, childID)
	}
	snapshot := *parent
	child.SetParent(&snapshot)
	child.Parent = nil
	a.index(parentID, childID)
	return nil
}

// Unlink detaches childID from its parent. The copied credentials stay on the child.
func (a *Arena) Unlink(childID uint) error {
	child, ok := a.tools[childID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTool, childID)
	}
	if child.ParentID != nil {
		a.unindex(*child.ParentID, childID)
	}
	child.SetParent(nil)
	return nil
}

// Remove deletes a tool and detaches its direct children. It returns the ids of the
// detached children.
func (a *Arena) Remove(id uint) ([]uint, error) {
	tool, ok := a.tools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTool, id)
	}
	if tool.ParentID != nil {
		a.unindex(*tool.ParentID, id)
	}

	orphans := a.children[id]
	delete(a.children, id)
	for _, childID := range orphans {
		if child, ok := a.tools[childID]; ok {
			child.SetParent(nil)
		}
	}
	delete(a.tools, id)
	return append([]uint(nil), orphans...), nil
}

// Children returns the direct children of id in ascending id order.
func (a *Arena) Children(id uint) []models.LTITool {
	ids := a.children[id]
	out := make([]models.LTITool, 0, len(ids))
	for _, childID := range ids {
		if child, ok := a.tools[childID]; ok {
			out = append(out, *child)
		}
	}
	return out
}

// Roots returns tools without a parent held by the arena, in ascending id order.
func (a *Arena) Roots() []models.LTITool {
	var out []models.LTITool
	for _, tool := range a.tools {
		if tool.ParentID == nil {
			out = append(out, *tool)
			continue
		}
		if _, ok := a.tools[*tool.ParentID]; !ok {
			out = append(out, *tool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Descendants returns every tool below id, depth first with siblings in id order.
func (a *Arena) Descendants(id uint) []models.LTITool {
	var out []models.LTITool
	var walk func(uint)
	walk = func(current uint) {
		for _, childID := range a.children[current] {
			if child, ok := a.tools[childID]; ok {
				out = append(out, *child)
				walk(childID)
			}
		}
	}
	walk(id)
	return out
}

// Tree returns the hierarchy below every root.
func (a *Arena) Tree() []Node {
	roots := a.Roots()
	nodes := make([]Node, 0, len(roots))
	for _, root := range roots {
		nodes = append(nodes, a.subtree(root))
	}
	return nodes
}

func (a *Arena) subtree(tool models.LTITool) Node {
	node := Node{Tool: tool}
	for _, child := range a.Children(tool.ID) {
		node.Children = append(node.Children, a.subtree(child))
	}
	return node
}

// isAncestorOrSelf reports whether candidate is start or one of start's ancestors.
func (a *Arena) isAncestorOrSelf(candidate, start uint) bool {
	seen := make(map[uint]struct{})
	for current := start; ; {
		if current == candidate {
			return true
		}
		if _, loop := seen[current]; loop {
			return true
		}
		seen[current] = struct{}{}

		tool, ok := a.tools[current]
		if !ok || tool.ParentID == nil {
			return false
		}
		current = *tool.ParentID
	}
}

func (a *Arena) index(parentID, childID uint) {
	ids := a.children[parentID]
	pos := sort.Search(len(ids), func(i int) bool { return ids[i] >= childID })
	if pos < len(ids) && ids[pos] == childID {
		return
	}
	ids = append(ids, 0)
	copy(ids[pos+1:], ids[pos:])
	ids[pos] = childID
	a.children[parentID] = ids
}

func (a *Arena) unindex(parentID, childID uint) {
	ids := a.children[parentID]
	for i, id := range ids {
		if id == childID {
			a.children[parentID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(a.children[parentID]) == 0 {
		delete(a.children, parentID)
	}
}

func detach(tool models.LTITool) models.LTITool {
	tool.Parent = nil
	tool.Children = nil
	tool.Course = nil
	tool.GradebookEval = nil
	return tool
}
