package vm

// ---------------------------------------------------------------------------
// StringPool: interned, reference-counted text
// ---------------------------------------------------------------------------

// FNV-1a 32-bit parameters.
const (
	fnvOffset32 uint32 = 2166136261
	fnvPrime32  uint32 = 16777619
)

// Hash returns the FNV-1a 32-bit hash of s.
func Hash(s string) uint32 {
	h := fnvOffset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime32
	}
	return h
}

// poolEntry is the single canonical copy of an interned string.
type poolEntry struct {
	hash uint32
	text string
	refs int
}

// StringPool deduplicates text by hash and content and keeps a reference
// count per entry. An entry is removed as soon as its last handle is
// released. A pool belongs to one pipeline run and is not safe for
// concurrent use.
type StringPool struct {
	buckets map[uint32][]*poolEntry
	count   int
}

// PoolString is a counted handle to a pool entry.
type PoolString struct {
	pool  *StringPool
	entry *poolEntry
	dead  bool
}

// NewStringPool creates an empty pool.
func NewStringPool() *StringPool {
	return &StringPool{buckets: make(map[uint32][]*poolEntry)}
}

// Intern returns a handle to the canonical copy of text, creating the entry
// on first use.
func (p *StringPool) Intern(text string) *PoolString {
	h := Hash(text)
	for _, e := range p.buckets[h] {
		if e.text == text {
			e.refs++
			return &PoolString{pool: p, entry: e}
		}
	}
	e := &poolEntry{hash: h, text: string([]byte(text)), refs: 1}
	p.buckets[h] = append(p.buckets[h], e)
	p.count++
	return &PoolString{pool: p, entry: e}
}

// Concat interns the concatenation of a and b.
func (p *StringPool) Concat(a, b string) *PoolString {
	buf := make([]byte, 0, len(a)+len(b))
	buf = append(buf, a...)
	buf = append(buf, b...)
	return p.Intern(string(buf))
}

// Len returns the number of live entries.
func (p *StringPool) Len() int {
	return p.count
}

// Refs returns the reference count of text, or 0 if it is not interned.
func (p *StringPool) Refs(text string) int {
	for _, e := range p.buckets[Hash(text)] {
		if e.text == text {
			return e.refs
		}
	}
	return 0
}

// Contains reports whether text currently has a live entry.
func (p *StringPool) Contains(text string) bool {
	return p.Refs(text) > 0
}

func (p *StringPool) remove(e *poolEntry) {
	bucket := p.buckets[e.hash]
	for i, other := range bucket {
		if other == e {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(p.buckets, e.hash)
	} else {
		p.buckets[e.hash] = bucket
	}
	p.count--
}

// String returns the pooled text. A released handle reads as "".
func (s *PoolString) String() string {
	if s == nil || s.dead {
		return ""
	}
	return s.entry.text
}

// Hash returns the FNV-1a hash of the pooled text.
func (s *PoolString) Hash() uint32 {
	if s == nil {
		return fnvOffset32
	}
	return s.entry.hash
}

// Retain adds a reference and returns a new handle to the same entry.
func (s *PoolString) Retain() *PoolString {
	if s == nil || s.dead {
		return nil
	}
	s.entry.refs++
	return &PoolString{pool: s.pool, entry: s.entry}
}

// Release drops this handle's reference. The entry leaves the pool when
// its count reaches zero. Releasing twice is a no-op.
func (s *PoolString) Release() {
	if s == nil || s.dead {
		return
	}
	s.dead = true
	s.entry.refs--
	if s.entry.refs == 0 {
		s.pool.remove(s.entry)
	}
}
