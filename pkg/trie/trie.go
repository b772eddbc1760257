// Package trie implements the address membership index: a case-insensitive
// prefix trie mapping address strings to sets of watcher ids. Nodes live in an
// arena and reference each other by index, so pruning never leaves dangling
// references and removed slots can be reused.
package trie

type node struct {
	char     byte
	parent   int32
	children []int32
	ids      []int64
}

// Trie is not safe for concurrent use; callers serialize access.
type Trie struct {
	nodes []node
	free  []int32
}

const rootIdx int32 = 0

func New() *Trie {
	return &Trie{nodes: []node{{parent: -1}}}
}

func fold(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// walk descends as far as the trie matches addr, returning the deepest node
// and the number of characters consumed.
func (t *Trie) walk(addr string) (int32, int) {
	cur := rootIdx
	i := 0
	for i < len(addr) {
		c := fold(addr[i])
		next := int32(-1)
		for _, ch := range t.nodes[cur].children {
			if t.nodes[ch].char == c {
				next = ch
				break
			}
		}
		if next < 0 {
			break
		}
		cur = next
		i++
	}
	return cur, i
}

func (t *Trie) alloc(char byte, parent int32) int32 {
	var idx int32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
		t.nodes[idx] = node{char: char, parent: parent}
	} else {
		idx = int32(len(t.nodes))
		t.nodes = append(t.nodes, node{char: char, parent: parent})
	}
	t.nodes[parent].children = append(t.nodes[parent].children, idx)
	return idx
}

// Add registers id for addr. Adding the same (addr, id) pair twice is a no-op.
func (t *Trie) Add(addr string, id int64) {
	cur, i := t.walk(addr)
	for ; i < len(addr); i++ {
		cur = t.alloc(fold(addr[i]), cur)
	}
	for _, existing := range t.nodes[cur].ids {
		if existing == id {
			return
		}
	}
	t.nodes[cur].ids = append(t.nodes[cur].ids, id)
}

// Get returns the watcher ids registered for addr, nil when none. Lookup is
// case-insensitive. The returned slice is shared; callers must not mutate it.
func (t *Trie) Get(addr string) []int64 {
	cur, i := t.walk(addr)
	if i != len(addr) {
		return nil
	}
	return t.nodes[cur].ids
}

// Remove unregisters id for addr. When the last id on a node is removed,
// childless nodes are pruned back toward the root and their slots recycled.
func (t *Trie) Remove(addr string, id int64) {
	cur, i := t.walk(addr)
	if i != len(addr) {
		return
	}
	ids := t.nodes[cur].ids
	at := -1
	for k, existing := range ids {
		if existing == id {
			at = k
			break
		}
	}
	if at < 0 {
		return
	}
	if len(ids) > 1 {
		t.nodes[cur].ids = append(ids[:at], ids[at+1:]...)
		return
	}
	t.nodes[cur].ids = nil
	t.prune(cur)
}

func (t *Trie) prune(cur int32) {
	for cur != rootIdx {
		n := &t.nodes[cur]
		if len(n.children) > 0 || len(n.ids) > 0 {
			return
		}
		parent := n.parent
		siblings := t.nodes[parent].children
		for k, ch := range siblings {
			if ch == cur {
				t.nodes[parent].children = append(siblings[:k], siblings[k+1:]...)
				break
			}
		}
		t.nodes[cur] = node{parent: -1}
		t.free = append(t.free, cur)
		cur = parent
	}
}
