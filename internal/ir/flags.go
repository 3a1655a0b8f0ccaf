package ir

import (
	"fmt"
	"strings"
)

// AttributeFlags is the bit vector carried by every attribute definition.
type AttributeFlags uint32

const (
	// AttrRequired attributes must have a value on every instance.
	AttrRequired AttributeFlags = 1 << iota
	// AttrReadOnly attributes cannot be modified after creation.
	AttrReadOnly
	// AttrDescriptive attributes are used for display only.
	AttrDescriptive
	// AttrBuiltin attributes are fixed columns of every resource and are
	// never persisted through the generic attribute machinery.
	AttrBuiltin
	// AttrIndexable attributes may be indexed by the backend.
	AttrIndexable
	// AttrSynthetic attributes are computed at access time and must never
	// appear in filter or order clauses.
	AttrSynthetic
	// AttrUniqueInClass is reserved.
	AttrUniqueInClass
	// AttrUniqueInTree is reserved.
	AttrUniqueInTree
)

var attributeFlagNames = []struct {
	flag AttributeFlags
	name string
}{
	{AttrRequired, "REQUIRED"},
	{AttrReadOnly, "READONLY"},
	{AttrDescriptive, "DESCRIPTIVE"},
	{AttrBuiltin, "BUILTIN"},
	{AttrIndexable, "INDEXABLE"},
	{AttrSynthetic, "SYNTHETIC"},
	{AttrUniqueInClass, "UNIQUE_IN_CLASS"},
	{AttrUniqueInTree, "UNIQUE_IN_TREE"},
}

// Has reports whether all bits of f2 are set in f.
func (f AttributeFlags) Has(f2 AttributeFlags) bool {
	return f&f2 == f2
}

// Names returns the symbolic names of the set bits, in declaration order.
func (f AttributeFlags) Names() []string {
	var names []string
	for _, fn := range attributeFlagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

func (f AttributeFlags) String() string {
	return strings.Join(f.Names(), "|")
}

// ParseAttributeFlags converts symbolic names (case-insensitive) to a flag vector.
func ParseAttributeFlags(names []string) (AttributeFlags, error) {
	var f AttributeFlags
outer:
	for _, n := range names {
		for _, fn := range attributeFlagNames {
			if strings.EqualFold(fn.name, strings.TrimSpace(n)) {
				f |= fn.flag
				continue outer
			}
		}
		return 0, fmt.Errorf("unknown attribute flag %q", n)
	}
	return f, nil
}

// ClassFlags is the bit vector carried by every resource class.
type ClassFlags uint32

const (
	// ClassAbstract classes cannot have direct instances.
	ClassAbstract ClassFlags = 1 << iota
	// ClassFinal classes may not gain subclasses.
	ClassFinal
	// ClassBuiltin classes are created by the system.
	ClassBuiltin
)

var classFlagNames = []struct {
	flag ClassFlags
	name string
}{
	{ClassAbstract, "ABSTRACT"},
	{ClassFinal, "FINAL"},
	{ClassBuiltin, "BUILTIN"},
}

// Has reports whether all bits of f2 are set in f.
func (f ClassFlags) Has(f2 ClassFlags) bool {
	return f&f2 == f2
}

// Names returns the symbolic names of the set bits.
func (f ClassFlags) Names() []string {
	var names []string
	for _, fn := range classFlagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

func (f ClassFlags) String() string {
	return strings.Join(f.Names(), "|")
}

// ParseClassFlags converts symbolic names (case-insensitive) to a flag vector.
func ParseClassFlags(names []string) (ClassFlags, error) {
	var f ClassFlags
outer:
	for _, n := range names {
		for _, fn := range classFlagNames {
			if strings.EqualFold(fn.name, strings.TrimSpace(n)) {
				f |= fn.flag
				continue outer
			}
		}
		return 0, fmt.Errorf("unknown class flag %q", n)
	}
	return f, nil
}
