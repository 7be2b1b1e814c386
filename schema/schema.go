// Package schema defines the compiled, persisted description of a
// collection: its properties, secondary indexes, and outgoing links.
package schema

import (
	"bytes"
	"encoding/gob"

	"github.com/kvdoc/isardb/internal/object"
	"github.com/kvdoc/isardb/isarerr"
)

// Version is the schema document format this build of the engine writes
// and expects to read back. Open raises VersionError when a persisted
// collection's Version differs, rather than attempting an upgrade: §3
// scopes schema evolution to additive property/index registration only,
// decided at compile time, not a migration facility.
const Version uint32 = 1

// IndexMode selects how one component of an index key is derived from a
// property's value.
type IndexMode uint8

const (
	// ModeValue uses the value itself (order-preserving encoding).
	ModeValue IndexMode = iota
	// ModeHash uses a stable 64-bit hash of the value or, for list
	// properties, the whole list's content.
	ModeHash
	// ModeHashElements is only meaningful as the first component of a
	// multi-entry index over a list property: it hashes each element
	// individually and emits one key per element.
	ModeHashElements
)

func (m IndexMode) String() string {
	switch m {
	case ModeValue:
		return "Value"
	case ModeHash:
		return "Hash"
	case ModeHashElements:
		return "HashElements"
	default:
		return "Unknown"
	}
}

// IndexComponent is one (property, mode, case-sensitivity) tuple of an
// index definition.
type IndexComponent struct {
	Property      string
	Mode          IndexMode
	CaseSensitive bool
}

// IndexDef is a non-empty ordered sequence of components plus a
// uniqueness flag.
type IndexDef struct {
	Name       string
	Components []IndexComponent
	Unique     bool
}

// IsMultiEntry reports whether the index is multi-entry: its first
// property is a list type and its mode expands per-element rather than
// hashing or encoding the list as a single value.
func (d IndexDef) IsMultiEntry(props []object.Property) bool {
	if len(d.Components) == 0 {
		return false
	}
	first := d.Components[0]
	if first.Mode == ModeHash {
		return false
	}
	p, ok := findProperty(props, first.Property)
	return ok && p.Type.IsList()
}

// LinkDef describes a directed edge type between two collections. LinkID
// and BacklinkID are stable 64-bit ids assigned at registration, analogous
// to a collection's 16-bit id, and are embedded in every edge's KV key.
type LinkDef struct {
	Name             string
	BacklinkName     string
	LinkID           uint64
	BacklinkID       uint64
	SourceCollection string
	TargetCollection string
}

// Collection is the compiled, registered schema of one collection: its
// stable id, its property layout (with offsets already assigned by
// object.Compile), its secondary indexes, and its outgoing link
// definitions.
type Collection struct {
	Name       string
	ID         uint16
	Version    uint32
	Properties []object.Property
	StaticSize int
	Indexes    []IndexDef
	Links      []LinkDef
}

// Property looks up a compiled property by name.
func (c *Collection) Property(name string) (object.Property, bool) {
	return findProperty(c.Properties, name)
}

// Index looks up an index definition by name.
func (c *Collection) Index(name string) (IndexDef, bool) {
	for _, ix := range c.Indexes {
		if ix.Name == name {
			return ix, true
		}
	}
	return IndexDef{}, false
}

// Link looks up an outgoing link definition by name.
func (c *Collection) Link(name string) (LinkDef, bool) {
	for _, l := range c.Links {
		if l.Name == name {
			return l, true
		}
	}
	return LinkDef{}, false
}

func findProperty(props []object.Property, name string) (object.Property, bool) {
	for _, p := range props {
		if p.Name == name {
			return p, true
		}
	}
	return object.Property{}, false
}

// CollectionDef is the uncompiled, caller-supplied schema for one
// collection, as passed to Open. Compile assigns property offsets and a
// collection id.
type CollectionDef struct {
	Name       string
	Properties []object.Property // Offset is ignored on input
	Indexes    []IndexDef
	Links      []LinkDef
}

// Compile assigns stable 16-bit collection ids (in declaration order,
// starting at 1) and stable 64-bit link/backlink ids (a shared,
// monotonically increasing counter across every collection's outgoing
// links, so no two edges in the whole instance ever collide), then runs
// object.Compile over each collection's property list to assign byte
// offsets. Collection names must be non-empty and unique.
func Compile(defs []CollectionDef) ([]*Collection, error) {
	seen := make(map[string]bool, len(defs))
	out := make([]*Collection, len(defs))
	var nextLinkID uint64 = 1

	for i, def := range defs {
		if def.Name == "" {
			return nil, isarerr.New(isarerr.IllegalArgument, "schema: collection %d has an empty name", i)
		}
		if seen[def.Name] {
			return nil, isarerr.New(isarerr.IllegalArgument, "schema: duplicate collection name %q", def.Name)
		}
		seen[def.Name] = true

		props, staticSize := object.Compile(def.Properties)

		links := make([]LinkDef, len(def.Links))
		for j, l := range def.Links {
			l.LinkID = nextLinkID
			nextLinkID++
			l.BacklinkID = nextLinkID
			nextLinkID++
			links[j] = l
		}

		out[i] = &Collection{
			Name:       def.Name,
			ID:         uint16(i + 1),
			Version:    Version,
			Properties: props,
			StaticSize: staticSize,
			Indexes:    def.Indexes,
			Links:      links,
		}
	}
	return out, nil
}

// Encode serialises a compiled Collection as a schema document: the
// "info" sub-database's persisted value, gob-encoded per the AMBIENT
// STACK's choice of a versioned internal blob nothing outside this process
// ever reads.
func Encode(c *Collection) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return nil, isarerr.Wrap(isarerr.DbError, err, "schema: encode collection %q", c.Name)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode and checks the document's Version against the
// engine's compiled Version, raising VersionError on mismatch per §7.
func Decode(b []byte) (*Collection, error) {
	var c Collection
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&c); err != nil {
		return nil, isarerr.Wrap(isarerr.DbError, err, "schema: decode collection document")
	}
	if c.Version != Version {
		return nil, isarerr.New(isarerr.VersionError, "schema: collection %q has version %d, engine expects %d", c.Name, c.Version, Version)
	}
	return &c, nil
}
