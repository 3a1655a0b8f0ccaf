package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainSchema prefixes every schema fingerprint. The version suffix
// allows the record encoding to change later.
const DomainSchema = "coral/schema/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes a content hash of a schema snapshot. Two snapshots
// holding the same records produce the same fingerprint whatever order the
// backend returned them in, since record lists are encoded keyed by id.
func Fingerprint(s *SchemaSnapshot) (string, error) {
	if s == nil {
		return "", fmt.Errorf("Fingerprint: nil snapshot")
	}

	canonical, err := MarshalCanonical(snapshotTree(s))
	if err != nil {
		return "", fmt.Errorf("Fingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSchema, canonical), nil
}

func snapshotTree(s *SchemaSnapshot) map[string]any {
	attrClasses := map[string]any{}
	for _, r := range s.AttributeClasses {
		attrClasses[fmt.Sprint(r.ID)] = map[string]any{
			"name":        r.Name,
			"native_type": r.NativeType,
			"handler":     r.Handler,
			"db_table":    r.DBTable,
		}
	}

	classes := map[string]any{}
	for _, r := range s.ResourceClasses {
		classes[fmt.Sprint(r.ID)] = map[string]any{
			"name":        r.Name,
			"native_type": r.NativeType,
			"handler":     r.Handler,
			"db_table":    r.DBTable,
			"flags":       stringList(r.Flags.Names()),
		}
	}

	attrs := map[string]any{}
	for _, r := range s.Attributes {
		attrs[fmt.Sprint(r.ID)] = map[string]any{
			"name":   r.Name,
			"type":   int64(r.TypeID),
			"class":  int64(r.ClassID),
			"domain": r.Domain,
			"flags":  stringList(r.Flags.Names()),
		}
	}

	// edges and permissions have no id of their own
	edges := map[string]any{}
	for _, r := range s.Inheritance {
		edges[fmt.Sprintf("%d>%d", r.Parent, r.Child)] = true
	}
	perms := map[string]any{}
	for _, r := range s.Permissions {
		perms[fmt.Sprintf("%d:%s", r.ClassID, r.Permission)] = true
	}

	return map[string]any{
		"attribute_classes": attrClasses,
		"resource_classes":  classes,
		"attributes":        attrs,
		"inheritance":       edges,
		"permissions":       perms,
	}
}

func stringList(names []string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}
