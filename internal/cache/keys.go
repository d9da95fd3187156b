// Package cache holds client-side read results and decides which of them a mutation
// makes stale.
package cache

import "fmt"

// MutationKind is the kind of write a client performed.
type MutationKind int

const (
	Created MutationKind = iota + 1
	Replaced
	Deleted
)

func (k MutationKind) String() string {
	switch k {
	case Created:
		return "created"
	case Replaced:
		return "replaced"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("MutationKind(%d)", int(k))
	}
}

// Mutation describes a successful write against one document.
type Mutation struct {
	Kind MutationKind
	ID   string
}

// Key identifies one cached read. The set of variants is closed: only ListKey, DetailKey
// and ContentKey implement it, and each must state which mutations make it stale.
type Key interface {
	fmt.Stringer
	affectedBy(m Mutation) bool
}

// ListKey caches one page of the document listing.
type ListKey struct {
	Limit  int
	Offset int
}

func (k ListKey) String() string { return fmt.Sprintf("list(limit=%d,offset=%d)", k.Limit, k.Offset) }

// Every mutation can shift page boundaries or change a row shown in a page.
func (ListKey) affectedBy(Mutation) bool { return true }

// DetailKey caches one document's metadata.
type DetailKey struct {
	ID string
}

func (k DetailKey) String() string { return "detail(" + k.ID + ")" }

func (k DetailKey) affectedBy(m Mutation) bool {
	return m.Kind != Created && m.ID == k.ID
}

// ContentKey caches one content window. Limit < 0 means "to the end".
type ContentKey struct {
	ID     string
	Offset int
	Limit  int
}

func (k ContentKey) String() string {
	return fmt.Sprintf("content(%s,offset=%d,limit=%d)", k.ID, k.Offset, k.Limit)
}

func (k ContentKey) affectedBy(m Mutation) bool {
	return m.Kind != Created && m.ID == k.ID
}
