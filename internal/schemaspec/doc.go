// Package schemaspec reads resource class schemas written in CUE and
// applies them to a schema graph.
//
// A schema file declares attribute types and resource classes:
//
//	attribute_class: label: {
//		native:  "string"
//		handler: "string"
//	}
//
//	class: article: {
//		flags:   ["FINAL"]
//		parents: ["document"]
//		attributes: {
//			title: {type: "string", flags: ["REQUIRED"], default: "untitled"}
//			pages: {type: "integer", domain: "1..1000"}
//		}
//		permissions: ["read"]
//	}
//
// Compile turns the CUE value into a Spec, Validate checks it without
// touching a graph, Order sorts classes so parents come first and Apply
// creates whatever the graph does not have yet.
package schemaspec
