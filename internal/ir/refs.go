package ir

import "strconv"

// ClassID identifies a resource class. Zero means unassigned.
type ClassID int64

// AttrClassID identifies an attribute class (attribute type).
type AttrClassID int64

// AttrID identifies an attribute definition.
type AttrID int64

// ResourceID identifies a resource instance.
type ResourceID int64

func (id ClassID) String() string     { return strconv.FormatInt(int64(id), 10) }
func (id AttrClassID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id AttrID) String() string      { return strconv.FormatInt(int64(id), 10) }
func (id ResourceID) String() string  { return strconv.FormatInt(int64(id), 10) }
