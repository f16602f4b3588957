/*
Package recordkv maps Go struct types onto an ordered key-value store
(Bolt, Pebble, or an in-memory store for tests).

We implement:

1. Record types, defined once per Go struct with an ordered list of key
fields (the “key spec”).

2. Key and value codecs derived from the record type.

3. A typed store adapter with put, get, delete and iteration.

4. Write batches, submitted to the underlying store atomically.

# Technical Details

**Key spec.**
Declared via TypeBuilder.Key or a KeyFields method on the record type. Every
name must be an exported field. The order is part of the byte layout:
reordering the key spec makes previously stored keys unreadable, and we cannot
detect that.

**Typed keys.**
EncodedKey[R] and EncodedValue[R] carry the record type as a type parameter
only. Passing a key of one record type to a store of another one does not
compile. KeyFromBytes is the explicit way around that.

## Binary encoding

**Key encoding (default)**.
A msgpack array of the key field values, in key spec order. A single-field
key is the bare msgpack value of that field, without the array header.
Byte order of these keys has nothing to do with the logical order of the
field values.

**Key encoding (ordered)**.
Selected with TypeBuilder.OrderedKeys. Keys are encoded using a _tuple
encoding_: the components, then the lengths of all components but the last
(reverse uvarints), then the number of components (reverse uvarint).
Integers are 8-byte big-endian (signed ones with the sign bit flipped),
so keys with fixed-width leading components sort logically.

**Value**: msgpack of the record struct (or JSON), decoded strictly:
unknown fields and trailing bytes are errors.
*/
package recordkv
