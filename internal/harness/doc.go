// Package harness runs conformance scenarios against every backend family.
//
// A scenario names a CUE schema directory, seeds records and association
// links, and declares chain queries with their expected ids or counts:
//
//	name: clubs
//	description: active members and their children
//	schema: ../schema
//	records:
//	  - {class: Example, id: "1", attrs: {name: Jane, active: true, rank: 1}}
//	links:
//	  - {owner: Example/1, association: children, ids: ["10"]}
//	queries:
//	  - name: active
//	    class: Example
//	    steps:
//	      - {attrs: {active: true}}
//	    expect: {ids: ["1"]}
//
// Run seeds a fresh store per backend, resolves every query on each, checks
// the expectations and cross-checks that the backends agree. Ids compare
// as sets unless the query sorts or the expectation sets ordered.
//
// Golden files pin the SQL the series backend synthesizes:
//
//	go test ./internal/harness -update
package harness
