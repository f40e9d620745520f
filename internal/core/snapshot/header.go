package snapshot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zeusync/versionize/pkg/encoding"
	"github.com/zeusync/versionize/pkg/version"
)

var (
	ErrBadMagic          = errors.New("not a snapshot")
	ErrChecksumMismatch  = errors.New("snapshot checksum mismatch")
	ErrTrailingData      = errors.New("trailing data after snapshot body")
	ErrTypeMismatch      = errors.New("snapshot holds a different type")
	ErrUnsupportedFormat = errors.New("unsupported snapshot format version")
	ErrBodyTooLarge      = errors.New("snapshot body too large")
	ErrUnknownCompress   = errors.New("unknown compression")
	ErrNoVersionMap      = errors.New("umbrella snapshot needs a version map")
	ErrUnknownDigest     = errors.New("unknown digest")
)

const (
	magic         uint32 = 0x564e5350 // "VNSP"
	formatVersion uint16 = 1

	flagChecksum uint8 = 1 << 0
	flagBlake3   uint8 = 1 << 1

	maxTypeName = 1 << 10
)

// Compression selects how the snapshot body is compressed.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses the String form of a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompress, s)
	}
}

// Digest selects the checksum trailer algorithm.
type Digest uint8

const (
	// DigestXXH64 writes an 8 byte xxhash64 trailer.
	DigestXXH64 Digest = iota
	// DigestBlake3 writes a 32 byte BLAKE3 trailer.
	DigestBlake3
)

func (d Digest) String() string {
	switch d {
	case DigestXXH64:
		return "xxh64"
	case DigestBlake3:
		return "blake3"
	default:
		return fmt.Sprintf("digest(%d)", uint8(d))
	}
}

// ParseDigest parses the String form of a Digest.
func ParseDigest(s string) (Digest, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xxh64", "xxhash":
		return DigestXXH64, nil
	case "blake3":
		return DigestBlake3, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDigest, s)
	}
}

func (d Digest) size() int {
	if d == DigestBlake3 {
		return 32
	}
	return 8
}

// Mode tells how Header.Version is to be read.
type Mode uint8

const (
	// ModeFixed: every type was written at Header.Version.
	ModeFixed Mode = iota + 1
	// ModeUmbrella: Header.Version is an umbrella version of a version
	// map, resolved per type.
	ModeUmbrella
)

func (m Mode) String() string {
	switch m {
	case ModeFixed:
		return "fixed"
	case ModeUmbrella:
		return "umbrella"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Header precedes every snapshot body. It is always written with the
// binary codec.
type Header struct {
	FormatVersion uint16
	Codec         encoding.Format
	Compression   Compression
	Checksum      bool
	Digest        Digest
	Mode          Mode
	Version       version.Version
	Type          string
	// ID is random per saved snapshot.
	ID uuid.UUID
	// Fingerprint of the descriptor the body was written with.
	Fingerprint uint64
	// RawSize is the body size before compression.
	RawSize  uint64
	BodySize uint64
}

func (h *Header) write(w encoding.Writer) error {
	var flags uint8
	if h.Checksum {
		flags |= flagChecksum
	}
	if h.Digest == DigestBlake3 {
		flags |= flagBlake3
	}
	if err := w.WriteUint32(magic); err != nil {
		return err
	}
	if err := w.WriteUint16(h.FormatVersion); err != nil {
		return err
	}
	for _, b := range [...]uint8{flags, uint8(h.Codec), uint8(h.Compression), uint8(h.Mode)} {
		if err := w.WriteUint8(b); err != nil {
			return err
		}
	}
	if err := w.WriteUint16(uint16(h.Version)); err != nil {
		return err
	}
	if err := w.WriteString(h.Type); err != nil {
		return err
	}
	if err := w.WriteBytes(h.ID[:]); err != nil {
		return err
	}
	for _, n := range [...]uint64{h.Fingerprint, h.RawSize, h.BodySize} {
		if err := w.WriteUint64(n); err != nil {
			return err
		}
	}
	return nil
}

func (h *Header) read(r *encoding.BinaryReader) error {
	m, err := r.ReadUint32()
	if err != nil {
		return err
	}
	if m != magic {
		return fmt.Errorf("%w: magic %#x", ErrBadMagic, m)
	}
	if h.FormatVersion, err = r.ReadUint16(); err != nil {
		return err
	}
	if h.FormatVersion != formatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedFormat, h.FormatVersion)
	}

	var b [4]uint8
	for i := range b {
		if b[i], err = r.ReadUint8(); err != nil {
			return err
		}
	}
	h.Checksum = b[0]&flagChecksum != 0
	if b[0]&flagBlake3 != 0 {
		h.Digest = DigestBlake3
	}
	h.Codec = encoding.Format(b[1])
	h.Compression = Compression(b[2])
	h.Mode = Mode(b[3])

	v, err := r.ReadUint16()
	if err != nil {
		return err
	}
	h.Version = version.Version(v)

	limit := r.MaxLen
	r.MaxLen = maxTypeName
	h.Type, err = r.ReadString()
	if err != nil {
		r.MaxLen = limit
		return err
	}
	id, err := r.ReadBytes()
	r.MaxLen = limit
	if err != nil {
		return err
	}
	if h.ID, err = uuid.FromBytes(id); err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}
	if h.Fingerprint, err = r.ReadUint64(); err != nil {
		return err
	}
	if h.RawSize, err = r.ReadUint64(); err != nil {
		return err
	}
	if h.BodySize, err = r.ReadUint64(); err != nil {
		return err
	}
	return h.validate()
}

func (h *Header) validate() error {
	switch h.Codec {
	case encoding.FormatBinary, encoding.FormatCBOR:
	default:
		return fmt.Errorf("%w: %s", encoding.ErrUnknownFormat, h.Codec)
	}
	if h.Compression > CompressionLZ4 {
		return fmt.Errorf("%w: %s", ErrUnknownCompress, h.Compression)
	}
	if h.Mode != ModeFixed && h.Mode != ModeUmbrella {
		return fmt.Errorf("%w: unknown mode %d", ErrUnsupportedFormat, h.Mode)
	}
	return nil
}
