// Package radix implements the compressed prefix tree used to index the
// tokens of one string property. Every terminal node carries the set of
// document IDs containing its word.
//
// Nodes live in an arena slice and refer to their parent by index, so a node
// can rebuild its word and be pruned without owning references in both
// directions. Freed slots are recycled by later inserts.
//
// A Tree is not safe for concurrent mutation; readers may share it while no
// writer is active.
package radix

import (
	"sort"
	"unicode/utf8"
)

const (
	rootIndex = 0
	noParent  = -1
)

type node struct {
	label    string
	word     string
	children map[rune]int
	parent   int
	end      bool
	docs     []string
	docSet   map[string]struct{}
	live     bool
}

// Tree is a compressed trie over words. The zero value is not usable; call
// New.
type Tree struct {
	nodes []node
	free  []int
	words int
}

// FindParams controls a lookup.
type FindParams struct {
	Term      string
	Exact     bool
	Tolerance int
}

// Entry is one indexed word and the documents that contain it.
type Entry struct {
	Word   string   `json:"w"`
	DocIDs []string `json:"d"`
}

func New() *Tree {
	t := &Tree{}
	t.nodes = append(t.nodes, node{
		children: make(map[rune]int),
		parent:   noParent,
		live:     true,
	})
	return t
}

// Len returns the number of distinct words currently indexed.
func (t *Tree) Len() int {
	return t.words
}

// Insert records that docID contains word.
func (t *Tree) Insert(word, docID string) {
	if word == "" {
		return
	}
	rest := word
	cur := rootIndex
	for rest != "" {
		first, _ := utf8.DecodeRuneInString(rest)
		childIdx, ok := t.nodes[cur].children[first]
		if !ok {
			leaf := t.newNode(cur, rest)
			t.nodes[cur].children[first] = leaf
			t.markWord(leaf, docID)
			return
		}

		label := t.nodes[childIdx].label
		lcp := commonPrefixLen(label, rest)
		switch {
		case lcp == len(label) && lcp == len(rest):
			t.markWord(childIdx, docID)
			return

		case lcp == len(rest):
			// The input ends inside the edge label: it becomes the new parent
			// of the old node, which keeps the rest of its label.
			mid := t.newNode(cur, rest)
			t.reattach(childIdx, mid, label[lcp:])
			t.nodes[cur].children[first] = mid
			t.markWord(mid, docID)
			return

		case lcp < len(label):
			mid := t.newNode(cur, label[:lcp])
			t.reattach(childIdx, mid, label[lcp:])
			t.nodes[cur].children[first] = mid
			tail := rest[lcp:]
			leaf := t.newNode(mid, tail)
			r, _ := utf8.DecodeRuneInString(tail)
			t.nodes[mid].children[r] = leaf
			t.markWord(leaf, docID)
			return

		default:
			rest = rest[lcp:]
			cur = childIdx
		}
	}
}

// Contains reports whether word is indexed for at least one document.
func (t *Tree) Contains(word string) bool {
	idx, ok := t.lookup(word)
	return ok && t.nodes[idx].end
}

// Find returns the matching words and, for each, its de-duplicated document
// IDs in insertion order.
//
// With Exact only the word equal to Term matches. With a positive Tolerance a
// word matches when its edit distance to Term is at most Tolerance; if the
// descent diverges from Term, the deepest node aligned with it becomes the
// root of that fuzzy enumeration. Otherwise every word prefixed by Term
// matches.
func (t *Tree) Find(p FindParams) map[string][]string {
	out := make(map[string][]string)
	cur := rootIndex
	rest := p.Term
	for rest != "" {
		first, _ := utf8.DecodeRuneInString(rest)
		childIdx, ok := t.nodes[cur].children[first]
		if !ok {
			if p.Tolerance > 0 {
				break
			}
			return out
		}
		label := t.nodes[childIdx].label
		lcp := commonPrefixLen(label, rest)
		if lcp != len(label) && lcp != len(rest) {
			if p.Tolerance > 0 {
				break
			}
			return out
		}
		cur = childIdx
		if lcp == len(rest) {
			break
		}
		rest = rest[lcp:]
	}

	t.walk(cur, func(idx int) {
		n := &t.nodes[idx]
		if !n.end || len(n.docs) == 0 {
			return
		}
		switch {
		case p.Exact:
			if n.word != p.Term {
				return
			}
		case p.Tolerance > 0:
			if abs(utf8.RuneCountInString(n.word)-utf8.RuneCountInString(p.Term)) > p.Tolerance {
				return
			}
			if _, ok := BoundedLevenshtein(p.Term, n.word, p.Tolerance); !ok {
				return
			}
		}
		ids := make([]string, len(n.docs))
		copy(ids, n.docs)
		out[n.word] = ids
	})
	return out
}

// RemoveDocument detaches docID from word. Once a word has no documents left
// its node is pruned. It reports whether anything was removed; unknown words
// and documents are ignored.
func (t *Tree) RemoveDocument(word, docID string) bool {
	idx, ok := t.lookup(word)
	if !ok || !t.nodes[idx].end {
		return false
	}
	n := &t.nodes[idx]
	if _, present := n.docSet[docID]; !present {
		return false
	}
	delete(n.docSet, docID)
	for i, id := range n.docs {
		if id == docID {
			n.docs = append(n.docs[:i], n.docs[i+1:]...)
			break
		}
	}
	if len(n.docs) == 0 {
		t.unmark(idx)
	}
	return true
}

// RemoveWord drops word and all of its documents.
func (t *Tree) RemoveWord(word string) bool {
	idx, ok := t.lookup(word)
	if !ok || !t.nodes[idx].end {
		return false
	}
	t.unmark(idx)
	return true
}

// Entries lists every indexed word in lexical order.
func (t *Tree) Entries() []Entry {
	entries := make([]Entry, 0, t.words)
	t.walk(rootIndex, func(idx int) {
		n := &t.nodes[idx]
		if !n.end {
			return
		}
		ids := make([]string, len(n.docs))
		copy(ids, n.docs)
		entries = append(entries, Entry{Word: n.word, DocIDs: ids})
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Word < entries[j].Word
	})
	return entries
}

// FromEntries rebuilds a tree from the output of Entries.
func FromEntries(entries []Entry) *Tree {
	t := New()
	for _, e := range entries {
		for _, id := range e.DocIDs {
			t.Insert(e.Word, id)
		}
	}
	return t
}

// lookup descends along whole edge labels and returns the node whose word is
// exactly word.
func (t *Tree) lookup(word string) (int, bool) {
	if word == "" {
		return 0, false
	}
	cur := rootIndex
	rest := word
	for rest != "" {
		first, _ := utf8.DecodeRuneInString(rest)
		childIdx, ok := t.nodes[cur].children[first]
		if !ok {
			return 0, false
		}
		label := t.nodes[childIdx].label
		if len(rest) < len(label) || rest[:len(label)] != label {
			return 0, false
		}
		rest = rest[len(label):]
		cur = childIdx
	}
	return cur, true
}

// walk visits every node under start, start included, using an explicit
// stack.
func (t *Tree) walk(start int, visit func(idx int)) {
	stack := []int{start}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(idx)
		for _, child := range t.nodes[idx].children {
			stack = append(stack, child)
		}
	}
}

func (t *Tree) newNode(parent int, label string) int {
	n := node{
		label:    label,
		word:     t.nodes[parent].word + label,
		children: make(map[rune]int),
		parent:   parent,
		live:     true,
	}
	if k := len(t.free); k > 0 {
		idx := t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[idx] = n
		return idx
	}
	t.nodes = append(t.nodes, n)
	return len(t.nodes) - 1
}

// reattach moves idx under parent with a shortened label. The node's word is
// unchanged because parent's word plus label still spells it.
func (t *Tree) reattach(idx, parent int, label string) {
	n := &t.nodes[idx]
	n.label = label
	n.parent = parent
	r, _ := utf8.DecodeRuneInString(label)
	t.nodes[parent].children[r] = idx
}

func (t *Tree) markWord(idx int, docID string) {
	n := &t.nodes[idx]
	if !n.end {
		n.end = true
		t.words++
	}
	if n.docSet == nil {
		n.docSet = make(map[string]struct{})
	}
	if _, dup := n.docSet[docID]; dup {
		return
	}
	n.docSet[docID] = struct{}{}
	n.docs = append(n.docs, docID)
}

// unmark clears the terminal flag of idx and restores compression around it.
func (t *Tree) unmark(idx int) {
	n := &t.nodes[idx]
	n.end = false
	n.docs = nil
	n.docSet = nil
	t.words--

	switch len(n.children) {
	case 0:
		parent := n.parent
		t.detach(idx)
		if parent != rootIndex && !t.nodes[parent].end && len(t.nodes[parent].children) == 1 {
			t.mergeWithChild(parent)
		}
	case 1:
		t.mergeWithChild(idx)
	}
}

// detach removes a childless node from its parent and frees its slot.
func (t *Tree) detach(idx int) {
	n := &t.nodes[idx]
	if n.parent == noParent {
		panic("radix: detaching the root node")
	}
	r, _ := utf8.DecodeRuneInString(n.label)
	delete(t.nodes[n.parent].children, r)
	t.release(idx)
}

// mergeWithChild folds a non-terminal node with a single child into that
// child, keeping every edge compressed.
func (t *Tree) mergeWithChild(idx int) {
	n := &t.nodes[idx]
	if n.end || len(n.children) != 1 {
		panic("radix: merging a node that is terminal or branching")
	}
	var childIdx int
	for _, c := range n.children {
		childIdx = c
	}
	child := &t.nodes[childIdx]
	child.label = n.label + child.label
	child.parent = n.parent
	r, _ := utf8.DecodeRuneInString(n.label)
	t.nodes[n.parent].children[r] = childIdx
	t.release(idx)
}

func (t *Tree) release(idx int) {
	t.nodes[idx] = node{parent: noParent}
	t.free = append(t.free, idx)
}

// commonPrefixLen returns the byte length of the longest common prefix of a
// and b that ends on a rune boundary.
func commonPrefixLen(a, b string) int {
	n := min(len(a), len(b))
	i := 0
	for i < n {
		ra, size := utf8.DecodeRuneInString(a[i:])
		rb, _ := utf8.DecodeRuneInString(b[i:])
		if ra != rb {
			break
		}
		i += size
	}
	return i
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
