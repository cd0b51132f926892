package mvcc

// Key pairs a Blob with its precomputed content hash. A Key owns exactly one
// reference to its Blob; Dispose releases that reference.
type Key struct {
	blob *Blob
	hash uint32
}

// NewKey adopts the caller's reference to blob (it does not take an
// additional one) and caches blob's hash.
func NewKey(blob *Blob) *Key {
	return &Key{blob: blob, hash: Hash(blob)}
}

// Hash returns the key's cached hash.
func (k *Key) Hash() uint32 {
	return k.hash
}

// Blob returns the key's underlying blob without taking a new reference.
func (k *Key) Blob() *Blob {
	return k.blob
}

// Dispose releases k's blob reference. k must not be used afterward.
func (k *Key) Dispose() {
	k.blob.Unref()
}

// keyEqual reports whether two keys are equal: their hashes must match and
// their blobs must compare equal.
func keyEqual(a, b *Key) bool {
	if a.hash != b.hash {
		return false
	}
	return Equal(a.blob, b.blob)
}
