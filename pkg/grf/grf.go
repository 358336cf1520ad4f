// Package grf reads Ragnarok Online GRF 0x200 archives.
package grf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-skel/pkg/encoding"
)

// Archive format errors.
var (
	ErrInvalidMagic       = errors.New("invalid GRF magic")
	ErrUnsupportedVersion = errors.New("unsupported GRF version")
	ErrEncrypted          = errors.New("encrypted GRF entries are not supported")
)

const (
	headerSize = 46
	magic      = "Master of Magic"
	version200 = 0x200
)

// Entry flags.
const (
	FlagFile        = 0x01
	FlagMixCrypt    = 0x02
	FlagHeaderCrypt = 0x04
)

// Header contains GRF file header information.
type Header struct {
	Magic         [16]byte
	EncryptionKey [14]byte
	TableOffset   uint32
	Seed          uint32
	FileCount     uint32
	Version       uint32
}

// Entry is a file stored in the archive.
type Entry struct {
	Name             string
	CompressedSize   uint32
	AlignedSize      uint32
	UncompressedSize uint32
	Flags            uint8
	Offset           uint32
}

// Archive is an opened GRF archive. Reads are safe for concurrent use.
type Archive struct {
	r       io.ReaderAt
	closer  io.Closer
	header  Header
	entries map[string]*Entry
}

// Open opens a GRF archive file.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	a, err := NewArchive(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	a.closer = f
	return a, nil
}

// NewArchive reads the header and file table from r.
func NewArchive(r io.ReaderAt) (*Archive, error) {
	a := &Archive{
		r:       r,
		entries: make(map[string]*Entry),
	}
	if err := a.readHeader(); err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	if err := a.readFileTable(); err != nil {
		return nil, errors.Wrap(err, "reading file table")
	}
	return a, nil
}

// Close closes the underlying file, if the archive owns one.
func (a *Archive) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

func (a *Archive) readHeader() error {
	buf := make([]byte, headerSize)
	if _, err := a.r.ReadAt(buf, 0); err != nil {
		return err
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &a.header); err != nil {
		return err
	}
	if !bytes.HasPrefix(a.header.Magic[:], []byte(magic)) {
		return ErrInvalidMagic
	}
	if a.header.Version != version200 {
		return errors.Wrapf(ErrUnsupportedVersion, "0x%x", a.header.Version)
	}
	return nil
}

func (a *Archive) readFileTable() error {
	offset := int64(a.header.TableOffset) + headerSize

	var sizes [8]byte
	if _, err := a.r.ReadAt(sizes[:], offset); err != nil {
		return err
	}
	compressedSize := binary.LittleEndian.Uint32(sizes[0:])
	uncompressedSize := binary.LittleEndian.Uint32(sizes[4:])

	compressed := make([]byte, compressedSize)
	if _, err := a.r.ReadAt(compressed, offset+8); err != nil {
		return errors.Wrap(err, "table data")
	}
	table, err := inflate(compressed, uncompressedSize)
	if err != nil {
		return errors.Wrap(err, "inflating table")
	}

	count := int(a.header.FileCount) - int(a.header.Seed) - 7
	pos := 0
	for i := 0; i < count; i++ {
		end := bytes.IndexByte(table[pos:], 0)
		if end < 0 {
			return io.ErrUnexpectedEOF
		}
		name := encoding.EUCKRToUTF8(table[pos : pos+end])
		pos += end + 1

		if pos+17 > len(table) {
			return io.ErrUnexpectedEOF
		}
		e := &Entry{
			Name:             normalizePath(name),
			CompressedSize:   binary.LittleEndian.Uint32(table[pos:]),
			AlignedSize:      binary.LittleEndian.Uint32(table[pos+4:]),
			UncompressedSize: binary.LittleEndian.Uint32(table[pos+8:]),
			Flags:            table[pos+12],
			Offset:           binary.LittleEndian.Uint32(table[pos+13:]),
		}
		pos += 17

		if e.Flags&FlagFile != 0 {
			a.entries[e.Name] = e
		}
	}
	return nil
}

// List returns all file paths in the archive, sorted.
func (a *Archive) List() []string {
	out := make([]string, 0, len(a.entries))
	for name := range a.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of files in the archive.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Contains checks if a file exists. Lookups ignore case and accept either
// slash direction.
func (a *Archive) Contains(path string) bool {
	_, ok := a.entries[normalizePath(path)]
	return ok
}

// Stat returns the entry for path.
func (a *Archive) Stat(path string) (*Entry, bool) {
	e, ok := a.entries[normalizePath(path)]
	return e, ok
}

// Read returns the contents of a file. Missing files wrap fs.ErrNotExist.
func (a *Archive) Read(path string) ([]byte, error) {
	e, ok := a.entries[normalizePath(path)]
	if !ok {
		return nil, errors.Wrapf(fs.ErrNotExist, "grf: %s", path)
	}
	if e.Flags&(FlagMixCrypt|FlagHeaderCrypt) != 0 {
		return nil, errors.Wrap(ErrEncrypted, e.Name)
	}

	data := make([]byte, e.AlignedSize)
	if _, err := a.r.ReadAt(data, int64(e.Offset)+headerSize); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(err, "reading %s", e.Name)
	}

	if e.CompressedSize == e.UncompressedSize {
		return data[:e.UncompressedSize], nil
	}
	out, err := inflate(data[:e.CompressedSize], e.UncompressedSize)
	if err != nil {
		return nil, errors.Wrapf(err, "inflating %s", e.Name)
	}
	return out, nil
}

func inflate(data []byte, size uint32) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizePath(path string) string {
	return strings.ToLower(encoding.NormalizePath(path))
}
