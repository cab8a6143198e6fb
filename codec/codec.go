// Package codec provides pluggable value (de)serialization for strata's
// shared region. The encoded bytes are what lives in L2; L1 holds the
// decoded (and optionally serializer-transformed) value.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
