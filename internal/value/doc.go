// Package value provides the typed attribute values stored on records.
//
// Value is a sealed interface using the marker method pattern. Only types in
// this package implement it, which lets backends switch exhaustively:
//
//	switch v := attr.(type) {
//	case value.String:
//	case value.Bool:
//	...
//	}
//
// # String Form
//
// Every value has a string form (Encode) and can be decoded back from it given
// its declared Type (Parse). Hash-shaped set store rows and CLI flags use this
// form, so the round trip must be lossless for every type.
//
// # Normalization
//
// Strings and symbols are NFC-normalized on construction. Two backends that
// compare text byte-for-byte (escaped index tokens in the set store, column
// values in the series store) then agree on canonically equivalent input.
//
// # Indexability
//
// Only String, Symbol and Bool values are indexable. Every other kind is
// silently excluded from secondary indexes; see Indexable.
package value
