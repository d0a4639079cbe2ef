// Package schema compiles CUE class declarations into a record.Registry.
//
// A schema directory holds one CUE package. Every field of the top-level
// "class" struct declares one record class:
//
//	class: Example: {
//		key: "example"
//		attributes: { name: "string", active: "bool", rank: "int" }
//		indexed: ["name", "active"]
//		score: "rank"
//		has_many: children: { class: "Child", inverse: "example", dependent: true }
//	}
//
// Associations are declared under has_many, has_sorted_set and belongs_to.
// A belongs_to association adds its "<name>_id" attribute implicitly.
package schema
