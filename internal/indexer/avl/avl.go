// Package avl provides a height-balanced ordered index from numeric keys to
// document IDs. It backs the numeric where-filters of a search.
package avl

type node struct {
	key    float64
	ids    []string
	left   *node
	right  *node
	height int
}

// Tree maps float64 keys to the documents holding that value. The zero value
// is an empty tree ready to use. A Tree is not safe for concurrent mutation.
type Tree struct {
	root *node
	keys int
}

// Entry is one key and its documents, used by snapshots.
type Entry struct {
	Key    float64  `json:"k"`
	DocIDs []string `json:"d"`
}

// Len returns the number of distinct keys.
func (t *Tree) Len() int {
	return t.keys
}

// Insert adds docID under key. A document already present under key is not
// added twice.
func (t *Tree) Insert(key float64, docID string) {
	t.root = t.insert(t.root, key, docID)
}

// Find returns the documents stored under exactly key.
func (t *Tree) Find(key float64) []string {
	n := t.root
	for n != nil {
		switch {
		case key < n.key:
			n = n.left
		case key > n.key:
			n = n.right
		default:
			return clone(n.ids)
		}
	}
	return nil
}

// Contains reports whether key has at least one document.
func (t *Tree) Contains(key float64) bool {
	return len(t.Find(key)) > 0
}

// RemoveDocument detaches docID from key, deleting the key when it has no
// documents left. It reports whether the document was found.
func (t *Tree) RemoveDocument(key float64, docID string) bool {
	n := t.root
	for n != nil && n.key != key {
		if key < n.key {
			n = n.left
		} else {
			n = n.right
		}
	}
	if n == nil {
		return false
	}
	for i, id := range n.ids {
		if id != docID {
			continue
		}
		n.ids = append(n.ids[:i], n.ids[i+1:]...)
		if len(n.ids) == 0 {
			t.root = t.remove(t.root, key)
			t.keys--
		}
		return true
	}
	return false
}

// Range returns the documents whose key lies in [min, max], in key order.
func (t *Tree) Range(min, max float64) []string {
	var out []string
	var visit func(n *node)
	visit = func(n *node) {
		if n == nil {
			return
		}
		if n.key > min {
			visit(n.left)
		}
		if n.key >= min && n.key <= max {
			out = append(out, n.ids...)
		}
		if n.key < max {
			visit(n.right)
		}
	}
	visit(t.root)
	return out
}

// GreaterThan returns the documents whose key is above key, or equal to it
// when inclusive is set, in key order.
func (t *Tree) GreaterThan(key float64, inclusive bool) []string {
	var out []string
	var visit func(n *node)
	visit = func(n *node) {
		if n == nil {
			return
		}
		if n.key > key {
			visit(n.left)
		}
		if n.key > key || (inclusive && n.key == key) {
			out = append(out, n.ids...)
		}
		visit(n.right)
	}
	visit(t.root)
	return out
}

// LessThan returns the documents whose key is below key, or equal to it when
// inclusive is set, in key order.
func (t *Tree) LessThan(key float64, inclusive bool) []string {
	var out []string
	var visit func(n *node)
	visit = func(n *node) {
		if n == nil {
			return
		}
		visit(n.left)
		if n.key < key || (inclusive && n.key == key) {
			out = append(out, n.ids...)
		}
		if n.key < key {
			visit(n.right)
		}
	}
	visit(t.root)
	return out
}

// Entries lists every key in ascending order.
func (t *Tree) Entries() []Entry {
	entries := make([]Entry, 0, t.keys)
	var visit func(n *node)
	visit = func(n *node) {
		if n == nil {
			return
		}
		visit(n.left)
		entries = append(entries, Entry{Key: n.key, DocIDs: clone(n.ids)})
		visit(n.right)
	}
	visit(t.root)
	return entries
}

// FromEntries rebuilds a tree from the output of Entries.
func FromEntries(entries []Entry) *Tree {
	t := &Tree{}
	for _, e := range entries {
		for _, id := range e.DocIDs {
			t.Insert(e.Key, id)
		}
	}
	return t
}

func (t *Tree) insert(n *node, key float64, docID string) *node {
	if n == nil {
		t.keys++
		return &node{key: key, ids: []string{docID}}
	}
	switch {
	case key < n.key:
		n.left = t.insert(n.left, key, docID)
	case key > n.key:
		n.right = t.insert(n.right, key, docID)
	default:
		for _, id := range n.ids {
			if id == docID {
				return n
			}
		}
		n.ids = append(n.ids, docID)
		return n
	}
	return rebalance(n)
}

func (t *Tree) remove(n *node, key float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case key < n.key:
		n.left = t.remove(n.left, key)
	case key > n.key:
		n.right = t.remove(n.right, key)
	default:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		succ := n.right
		for succ.left != nil {
			succ = succ.left
		}
		n.key, n.ids = succ.key, succ.ids
		n.right = t.remove(n.right, succ.key)
	}
	return rebalance(n)
}

func rebalance(n *node) *node {
	update(n)
	switch bf := balance(n); {
	case bf > 1:
		if balance(n.left) < 0 {
			n.left = rotateLeft(n.left)
		}
		return rotateRight(n)
	case bf < -1:
		if balance(n.right) > 0 {
			n.right = rotateRight(n.right)
		}
		return rotateLeft(n)
	}
	return n
}

func height(n *node) int {
	if n == nil {
		return -1
	}
	return n.height
}

func balance(n *node) int {
	return height(n.left) - height(n.right)
}

func update(n *node) {
	n.height = max(height(n.left), height(n.right)) + 1
}

func rotateLeft(n *node) *node {
	r := n.right
	n.right = r.left
	r.left = n
	update(n)
	update(r)
	return r
}

func rotateRight(n *node) *node {
	l := n.left
	n.left = l.right
	l.right = n
	update(n)
	update(l)
	return l
}

func clone(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
