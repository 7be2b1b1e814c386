package schema

import (
	"fmt"

	"github.com/kvdoc/isardb/internal/object"
	"github.com/kvdoc/isardb/isarerr"
)

// CurrentVersion is the schema document version this build of the engine
// writes and expects to read. Bumping it is a breaking change; VersionError
// is raised for a mismatch on open.
const CurrentVersion = 1

// Registry assigns and tracks the stable numeric ids (collection ids, link
// ids) that make the on-disk layout independent of registration order
// across process restarts.
type Registry struct {
	nextCollectionID uint16
	nextLinkID       uint64
}

// NewRegistry creates a Registry seeded from the highest ids already
// present in a previously persisted schema (starting at 1 if there is none),
// so freshly registered collections and links never collide with existing
// on-disk ones.
func NewRegistry(existing []*Collection) *Registry {
	r := &Registry{nextCollectionID: 1, nextLinkID: 1}
	for _, c := range existing {
		if c.ID >= r.nextCollectionID {
			r.nextCollectionID = c.ID + 1
		}
		for _, l := range c.Links {
			if l.LinkID >= r.nextLinkID {
				r.nextLinkID = l.LinkID + 1
			}
			if l.BacklinkID >= r.nextLinkID {
				r.nextLinkID = l.BacklinkID + 1
			}
		}
	}
	return r
}

// Compile produces the runtime Collection for a caller-supplied
// CollectionDef, reusing the collection id and every existing link's id
// from prior (possibly nil, for a brand-new collection), and assigning
// fresh ids for anything new. It re-derives property offsets from
// def.Properties in their given order and returns an error when any
// property of prior now has a different offset or type. object.Compile
// lays properties out in groups (Byte; Int and Float; Long and Double;
// then every dynamic type), so appending a property of the last group
// present keeps every earlier offset, while appending one of an earlier
// group can move the offsets of the later groups and is rejected.
func (r *Registry) Compile(prior *Collection, def CollectionDef) (*Collection, error) {
	if len(def.Properties) == 0 {
		return nil, isarerr.New(isarerr.IllegalArgument, "schema: collection %q has no properties", def.Name)
	}

	props, staticSize := object.Compile(def.Properties)

	if prior != nil {
		if err := verifyOffsetCompatibility(prior, props); err != nil {
			return nil, err
		}
	}

	id := uint16(0)
	if prior != nil {
		id = prior.ID
	} else {
		id = r.nextCollectionID
		r.nextCollectionID++
	}

	links := make([]LinkDef, len(def.Links))
	for i, l := range def.Links {
		links[i] = l
		if prior != nil {
			if existing, ok := prior.Link(l.Name); ok {
				links[i].LinkID = existing.LinkID
				links[i].BacklinkID = existing.BacklinkID
				continue
			}
		}
		links[i].LinkID = r.nextLinkID
		r.nextLinkID++
		links[i].BacklinkID = r.nextLinkID
		r.nextLinkID++
	}

	return &Collection{
		Name:       def.Name,
		ID:         id,
		Version:    CurrentVersion,
		Properties: props,
		StaticSize: staticSize,
		Indexes:    def.Indexes,
		Links:      links,
	}, nil
}

// verifyOffsetCompatibility ensures every property that existed in the
// prior schema still resolves to the same offset and type in the newly
// compiled one, which is the concrete meaning of "additive only" schema
// evolution: renaming, retyping, or reordering an existing property would
// silently corrupt every object already on disk.
func verifyOffsetCompatibility(prior *Collection, recompiled []object.Property) error {
	byName := make(map[string]object.Property, len(recompiled))
	for _, p := range recompiled {
		byName[p.Name] = p
	}
	for _, old := range prior.Properties {
		neu, ok := byName[old.Name]
		if !ok {
			return isarerr.New(isarerr.IllegalArgument,
				"schema: property %q was removed from collection %q; only additive schema changes are supported", old.Name, prior.Name)
		}
		if neu.Type != old.Type {
			return isarerr.New(isarerr.IllegalArgument,
				"schema: property %q changed type from %s to %s in collection %q", old.Name, old.Type, neu.Type, prior.Name)
		}
		if neu.Offset != old.Offset {
			return isarerr.New(isarerr.IllegalArgument,
				"schema: property %q moved from offset %d to %d in collection %q; reorder only by appending new properties", old.Name, old.Offset, neu.Offset, prior.Name)
		}
	}
	return nil
}

// Validate checks with object.Verify that buf is a well-formed object for
// c's properties and the given static size.
func Validate(c *Collection, buf []byte, staticSize int) error {
	return object.Verify(c.Properties, staticSize, buf)
}

// String is a debug-friendly summary of c.
func (c *Collection) String() string {
	return fmt.Sprintf("Collection{name=%s id=%d props=%d indexes=%d links=%d}",
		c.Name, c.ID, len(c.Properties), len(c.Indexes), len(c.Links))
}
