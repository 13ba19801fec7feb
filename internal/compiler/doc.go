// Package compiler turns CUE declarations into entity schemas and named
// query defaults.
//
// Declarations look like:
//
//	entity: Item: fields: {
//		timestamp: int
//		title:     string
//		done:      bool
//	}
//
//	query: recent: {
//		entity: "Item"
//		where: [{field: "done", value: false}, "timestamp>=10"]
//		sort: ["timestamp:desc", "title"]
//	}
//
// Field types are string, int and bool. Floats are rejected. A where
// element is either a condition string or a {field, op, value} struct with
// op defaulting to "=". Sort elements are "field[:asc|desc]" strings or
// {field, dir} structs.
package compiler
