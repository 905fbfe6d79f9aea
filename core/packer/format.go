package packer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/tristendillon/locus/core/codec"
)

// Magic opens every bundle file.
var Magic = []byte("LCSB")

const headerSize = 4 + 1 + 8

var ErrNotBundle = errors.New("not a bundle file")

// BundleFile is the decoded content of one bundle.
type BundleFile struct {
	Name         string        `cbor:"1,keyasint"`
	Assets       []PackedAsset `cbor:"2,keyasint"`
	Dependencies []string      `cbor:"3,keyasint"`
}

type PackedAsset struct {
	// Address is the addressable name, or the asset path for implicit assets.
	Address string `cbor:"1,keyasint"`
	Path    string `cbor:"2,keyasint"`
	GUID    string `cbor:"3,keyasint"`
	Data    []byte `cbor:"4,keyasint"`
}

// Asset finds a packed asset by address or path.
func (b *BundleFile) Asset(name string) (PackedAsset, bool) {
	for _, a := range b.Assets {
		if a.Address == name || a.Path == name {
			return a, true
		}
	}
	return PackedAsset{}, false
}

// Encode serializes b and returns the file bytes and the content hash of
// the uncompressed payload.
func Encode(b *BundleFile, c Compression) ([]byte, string, error) {
	payload, err := codec.Marshal(b)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode bundle %s: %w", b.Name, err)
	}
	body, used, err := compress(payload, c)
	if err != nil {
		return nil, "", fmt.Errorf("failed to compress bundle %s: %w", b.Name, err)
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + len(body))
	buf.Write(Magic)
	buf.WriteByte(byte(used))
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(len(payload)))
	buf.Write(size[:])
	buf.Write(body)
	return buf.Bytes(), payloadHash(payload), nil
}

// Decode parses bundle file bytes and returns the bundle with its hash.
func Decode(data []byte) (*BundleFile, string, error) {
	if len(data) < headerSize || !bytes.Equal(data[:4], Magic) {
		return nil, "", ErrNotBundle
	}
	c := Compression(data[4])
	size := binary.LittleEndian.Uint64(data[5:headerSize])
	payload, err := decompress(data[headerSize:], c, int(size))
	if err != nil {
		return nil, "", err
	}

	var b BundleFile
	if err := codec.Unmarshal(payload, &b); err != nil {
		return nil, "", fmt.Errorf("failed to decode bundle payload: %w", err)
	}
	return &b, payloadHash(payload), nil
}

// HeaderCompression reports the codec recorded in a bundle header.
func HeaderCompression(data []byte) (Compression, error) {
	if len(data) < headerSize || !bytes.Equal(data[:4], Magic) {
		return 0, ErrNotBundle
	}
	return Compression(data[4]), nil
}

func payloadHash(payload []byte) string {
	sum := blake3.Sum256(payload)
	return fmt.Sprintf("%x", sum[:16])
}
