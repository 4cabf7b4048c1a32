// Package contenthash implements the Dropbox content hash.
//
// The input is split into 4 MiB blocks, each block is hashed with SHA-256,
// and the digest is the SHA-256 of the concatenated block hashes. Dropbox
// reports it hex encoded in the content_hash field of file metadata.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

const (
	// Size is the length, in bytes, of a content hash digest.
	Size = sha256.Size

	// BlockSize is the Dropbox block size the input is split into.
	BlockSize = 4 * 1024 * 1024
)

// digest is the running state: the hash of the current block plus the
// digests of every finished block (32 bytes per 4 MiB of input).
type digest struct {
	block   hash.Hash
	inBlock int
	blocks  []byte
}

// New returns a new hash.Hash computing the Dropbox content hash.
func New() hash.Hash {
	return &digest{block: sha256.New()}
}

// Write absorbs more data into the running hash.
// It always returns len(p), nil.
func (d *digest) Write(p []byte) (int, error) {
	n := len(p)

	for len(p) > 0 {
		take := min(len(p), BlockSize-d.inBlock)

		d.block.Write(p[:take])
		d.inBlock += take
		p = p[take:]

		if d.inBlock == BlockSize {
			d.blocks = d.block.Sum(d.blocks)
			d.block.Reset()
			d.inBlock = 0
		}
	}

	return n, nil
}

// Sum appends the current hash to b and returns the resulting slice.
// It does not change the underlying hash state.
func (d *digest) Sum(b []byte) []byte {
	overall := sha256.New()
	overall.Write(d.blocks)

	if d.inBlock > 0 {
		overall.Write(d.block.Sum(nil))
	}

	return overall.Sum(b)
}

// Reset resets the hash to its initial state.
func (d *digest) Reset() {
	d.block.Reset()
	d.inBlock = 0
	d.blocks = d.blocks[:0]
}

// Size returns the number of bytes Sum will return.
func (d *digest) Size() int {
	return Size
}

// BlockSize returns the hash's underlying block size.
func (d *digest) BlockSize() int {
	return BlockSize
}

// Sum returns the hex encoded content hash of data.
func Sum(data []byte) string {
	h := New()
	h.Write(data)

	return hex.EncodeToString(h.Sum(nil))
}
