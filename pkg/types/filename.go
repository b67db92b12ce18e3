package types

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Leading byte of a decoded Filename, distinguishing small files (whose
// payload is raw bytes) from large files (whose payload is an index blob
// listing child small-file names).
const (
	FilenameSmall byte = 'T'
	FilenameLarge byte = 'L'
)

const filenameRawLen = 18

// Filename is the decoded form of the 18-byte opaque identifier clients
// see as a base64-URL string: a leading byte, the block id and file id it
// resolves to, and a suffix hash used for lightweight validation.
type Filename struct {
	Leading    byte
	BlockID    uint32
	FileID     uint64
	SuffixHash uint32
}

// IsLarge reports whether this name addresses a large-file index blob
// rather than a small file's raw bytes.
func (f Filename) IsLarge() bool {
	return f.Leading == FilenameLarge
}

// Encode renders f as the fixed-length base64-URL string clients pass
// back on every subsequent operation.
func (f Filename) Encode() string {
	buf := make([]byte, filenameRawLen)
	buf[0] = f.Leading
	binary.BigEndian.PutUint32(buf[1:5], f.BlockID)
	binary.BigEndian.PutUint64(buf[5:13], f.FileID)
	binary.BigEndian.PutUint32(buf[13:17], f.SuffixHash)
	buf[17] = trailer(buf[:17])
	return base64.URLEncoding.EncodeToString(buf)
}

// DecodeFilename parses a string produced by Filename.Encode, rejecting
// malformed input and trailer mismatches.
func DecodeFilename(s string) (Filename, error) {
	buf, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return Filename{}, fmt.Errorf("decode filename: %w", err)
	}
	if len(buf) != filenameRawLen {
		return Filename{}, fmt.Errorf("decode filename: want %d raw bytes, got %d", filenameRawLen, len(buf))
	}
	if buf[17] != trailer(buf[:17]) {
		return Filename{}, fmt.Errorf("decode filename: trailer mismatch")
	}
	leading := buf[0]
	if leading != FilenameSmall && leading != FilenameLarge {
		return Filename{}, fmt.Errorf("decode filename: unknown leading byte %q", leading)
	}
	return Filename{
		Leading:    leading,
		BlockID:    binary.BigEndian.Uint32(buf[1:5]),
		FileID:     binary.BigEndian.Uint64(buf[5:13]),
		SuffixHash: binary.BigEndian.Uint32(buf[13:17]),
	}, nil
}

// trailer is a cheap parity byte over the first 17 encoded bytes, catching
// truncation or bit flips before the name ever reaches a block lookup.
func trailer(b []byte) byte {
	var c byte
	for _, x := range b {
		c ^= x
	}
	return c
}
