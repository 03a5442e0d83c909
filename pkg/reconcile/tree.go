package reconcile

import (
	"sort"
	"strings"
	"sync"
)

// Category is a top-level branch of the resource tree.
type Category string

const (
	CategoryServices     Category = "services"
	CategoryDrbd         Category = "drbd"
	CategoryVMs          Category = "vms"
	CategoryBlockDevices Category = "block-devices"
)

// Insert places a new child at Index of its category after the batch's
// removals were applied.
type Insert struct {
	Key   string
	Index int
}

// Batch is one set of mutations of a category, published to observers at
// once.
type Batch struct {
	Category Category
	Removed  []string
	Added    []Insert
	Updated  []string
}

// Empty reports whether the batch changes nothing.
func (b Batch) Empty() bool {
	return len(b.Removed) == 0 && len(b.Added) == 0 && len(b.Updated) == 0
}

// Tree keeps the ordered children of every category and fans batches out
// to observers.
type Tree struct {
	mu        sync.Mutex
	children  map[Category][]string
	observers []func(Batch)
}

func NewTree() *Tree {
	return &Tree{children: map[Category][]string{}}
}

// Subscribe registers fn for every non-empty batch. fn runs on the
// reconciling goroutine and must not block.
func (t *Tree) Subscribe(fn func(Batch)) {
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

// Children returns the ordered keys of a category.
func (t *Tree) Children(c Category) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.children[c]...)
}

// Apply performs the batch, fills in insert positions and notifies
// observers. Keys are ordered case-insensitively.
func (t *Tree) Apply(b Batch) Batch {
	if b.Empty() {
		return b
	}
	t.mu.Lock()
	kids := t.children[b.Category]
	for _, key := range b.Removed {
		if i, ok := find(kids, key); ok {
			kids = append(kids[:i], kids[i+1:]...)
		}
	}
	sort.Slice(b.Added, func(i, j int) bool { return lessFold(b.Added[i].Key, b.Added[j].Key) })
	for n := range b.Added {
		key := b.Added[n].Key
		i, ok := find(kids, key)
		if !ok {
			kids = append(kids, "")
			copy(kids[i+1:], kids[i:])
			kids[i] = key
		}
		b.Added[n].Index = i
	}
	t.children[b.Category] = kids
	observers := append([]func(Batch){}, t.observers...)
	t.mu.Unlock()

	for _, fn := range observers {
		fn(b)
	}
	return b
}

func find(kids []string, key string) (int, bool) {
	i := sort.Search(len(kids), func(i int) bool { return !lessFold(kids[i], key) })
	return i, i < len(kids) && kids[i] == key
}

func lessFold(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}
