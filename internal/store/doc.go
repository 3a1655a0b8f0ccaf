// Package store provides SQLite-backed persistence for coral.
//
// The store holds two things:
//   - the persisted schema (attribute classes, resource classes, attribute
//     definitions, inheritance edges, permissions), exposed to the resource
//     class graph as a schema.Backend
//   - resource instances and their attribute values, exposed through
//     Resources
//
// # Value Storage
//
// Every resource has one coral_resource row holding its builtin attributes.
// Attributes declared by a generic class are stored one row per
// (resource, attribute) in coral_generic_resource, pointing at a row of the
// attribute type's value table (coral_attribute_<type>). Attributes declared
// by a tabular class are columns of that class's own table, one row per
// resource of the class or any subclass.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - case_sensitive_like=ON: LIKE matches case; ILIKE folds both sides
package store
