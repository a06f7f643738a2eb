// Package binding maps abstract roles such as "target" or "gender" to the
// concrete column names of a dataset.
//
// Resolution tries an explicit context mapping, then a literal column, then
// the synonym table, then the lower-cased name. A role that cannot be bound
// resolves to Missing.
package binding
