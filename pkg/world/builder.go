package world

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

type Builder struct {
	ID   uuid.UUID
	Name string
}

func NewBuilder(id uuid.UUID, name string) Builder {
	return Builder{ID: id, Name: name}
}

// String encodes the builder as "uuid,name", the format used in worlds.yml.
func (b Builder) String() string {
	return b.ID.String() + "," + b.Name
}

func ParseBuilder(s string) (Builder, error) {
	id, name, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return Builder{}, fmt.Errorf("malformed builder %q", s)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Builder{}, fmt.Errorf("malformed builder id %q: %w", id, err)
	}
	return Builder{ID: parsed, Name: name}, nil
}

// Builders is the ordered set of identities allowed to modify a world while
// builder restriction is enabled. The creator is tracked separately and never
// stored as a member.
type Builders struct {
	creator *Builder
	order   []uuid.UUID
	byID    map[uuid.UUID]Builder
}

func NewBuilders(creator *Builder, members []Builder) *Builders {
	b := &Builders{byID: make(map[uuid.UUID]Builder, len(members))}
	if creator != nil {
		c := *creator
		b.creator = &c
	}
	for _, m := range members {
		b.Add(m)
	}
	return b
}

func (b *Builders) Creator() (Builder, bool) {
	if !b.HasCreator() {
		return Builder{}, false
	}
	return *b.creator, true
}

func (b *Builders) SetCreator(creator *Builder) {
	if creator == nil {
		b.creator = nil
		return
	}
	c := *creator
	b.creator = &c
	b.Remove(c.ID)
}

// HasCreator reports false for legacy records whose creator was stored as "-".
func (b *Builders) HasCreator() bool {
	return b.creator != nil && b.creator.Name != "-"
}

func (b *Builders) IsCreator(id uuid.UUID) bool {
	return b.HasCreator() && b.creator.ID == id
}

func (b *Builders) Contains(id uuid.UUID) bool {
	_, ok := b.byID[id]
	return ok
}

func (b *Builders) Get(id uuid.UUID) (Builder, bool) {
	m, ok := b.byID[id]
	return m, ok
}

// Add appends the builder and reports whether the set changed. Adding an
// existing member or the creator is a no-op.
func (b *Builders) Add(m Builder) bool {
	if b.IsCreator(m.ID) || b.Contains(m.ID) {
		return false
	}
	b.byID[m.ID] = m
	b.order = append(b.order, m.ID)
	return true
}

func (b *Builders) Remove(id uuid.UUID) bool {
	if !b.Contains(id) {
		return false
	}
	delete(b.byID, id)
	b.order = slices.DeleteFunc(b.order, func(o uuid.UUID) bool { return o == id })
	return true
}

func (b *Builders) All() []Builder {
	out := make([]Builder, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.byID[id])
	}
	return out
}

func (b *Builders) Names() []string {
	names := make([]string, 0, len(b.order))
	for _, id := range b.order {
		names = append(names, b.byID[id].Name)
	}
	return names
}

func (b *Builders) Len() int { return len(b.order) }

// Rename updates the stored display name of a member or the creator, used
// when the identity resolver reports a changed name.
func (b *Builders) Rename(id uuid.UUID, name string) {
	if b.creator != nil && b.creator.ID == id {
		b.creator.Name = name
	}
	if m, ok := b.byID[id]; ok {
		m.Name = name
		b.byID[id] = m
	}
}
