// Package alias is a name-resolving, type-checked front end over a shared
// key-value table.
//
// A Store lets application code write and read typed values under
// canonical table paths or under aliases of them, and lets each name track
// on its own whether the value changed since that name last read it.
//
//	store := alias.New(table.NewMemory())
//	store.WriteDouble("motors/m1/voltage", 12.0)
//	store.RegisterAlias("motors/m1/voltage", "m1v")
//
//	v := store.ReadDouble("m1v", 0) // 12.0
//	store.HasChanged("m1v")         // false, m1v just read
//	store.HasChanged("motors/m1/voltage") // true
//
// # Names
//
// An alias points at exactly one canonical path. It can not equal its
// target, shadow a path already present in the table, or be registered
// twice. Removing a canonical path removes all its aliases.
//
// # Channels
//
// The first write or read of a canonical path binds it to the value type
// used, and every later access must use the same type. For record types
// the record name and field layout must also match. A mismatched access is
// rejected and reported. It never converts, and the bound value is left
// untouched. Integer reads saturate to the int32 range.
//
// # Staleness
//
// A write marks the canonical path and each of its aliases dirty. A read
// marks only the name it was made through. HasChanged reports whether the
// value changed after that name's mark, so independent consumers of the
// same value can each react once per change.
//
// # Diagnostics
//
// Failures never panic. Writes and alias operations return an error and
// reads return the caller's default, and in every case a Diagnostic is
// handed to the Store's Reporter. The reporter runs after the Store has
// released its lock and may call back into the Store.
//
// # Records
//
// Record types are written with the generic WriteStruct, ReadStruct,
// WriteStructArray and ReadStructArray functions. Their layout comes from
// structs.Serializable or from the Store's structs.Registry.
package alias
