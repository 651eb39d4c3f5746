package zip

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
)

// Scanner enumerates the entries of an existing archive and reads their
// payloads back out. It never mutates the underlying stream.
type Scanner struct {
	stream  ReadStream
	entries []dirEntry
}

// OpenForRead loads the directory of an existing archive. An empty stream
// is a valid, zero-entry archive.
func OpenForRead(stream ReadStream) (*Scanner, error) {
	entries, _, err := loadCentralDirectory(stream)
	if err != nil {
		return nil, err
	}
	return &Scanner{stream: stream, entries: entries}, nil
}

// List returns every entry name in directory order.
func (s *Scanner) List() ([]string, error) {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return names, nil
}

func (s *Scanner) find(name string) (dirEntry, bool) {
	for _, e := range s.entries {
		if e.name == name {
			return e, true
		}
	}
	return dirEntry{}, false
}

// EntryInfo is the directory metadata for one entry, cached from its CDE so
// callers can inspect sizes without reading or decompressing the payload.
type EntryInfo struct {
	Name             string
	Method           uint16
	CompressedSize   uint32
	UncompressedSize uint32
}

// Stat returns the cached directory metadata for name. Unlike Read, it
// never touches the payload.
func (s *Scanner) Stat(name string) (EntryInfo, error) {
	entry, ok := s.find(name)
	if !ok {
		return EntryInfo{}, newEntryNotFound(name)
	}
	return EntryInfo{
		Name:             entry.name,
		Method:           entry.method,
		CompressedSize:   entry.compressedSize,
		UncompressedSize: entry.uncompressedSize,
	}, nil
}

// Read decompresses and returns the payload stored under name.
func (s *Scanner) Read(name string) ([]byte, error) {
	entry, ok := s.find(name)
	if !ok {
		return nil, newEntryNotFound(name)
	}

	payload, err := s.readPayload(entry)
	if err != nil {
		return nil, err
	}

	if crc32.ChecksumIEEE(payload) != entry.crc32 {
		return nil, newChecksumMismatch(name)
	}
	return payload, nil
}

// readPayload decodes the compression method from the entry's local header
// and takes the compressed size from the entry's central directory record;
// the local header's size fields are not read.
func (s *Scanner) readPayload(entry dirEntry) ([]byte, error) {
	if _, err := s.stream.Seek(int64(entry.localHeaderOffset), io.SeekStart); err != nil {
		return nil, newIOErr("Read", err)
	}

	header := make([]byte, localHeaderFixedSize)
	if _, err := io.ReadFull(s.stream, header); err != nil {
		return nil, newMalformed("Read", "local file header is truncated")
	}
	if !bytes.Equal(header[0:4], localFileSig[:]) {
		return nil, newMalformed("Read", "local header offset does not point at a local file header")
	}

	method := binary.LittleEndian.Uint16(header[8:10])
	if method != methodStore && method != methodDeflate {
		return nil, newUnsupported("Read", "unsupported compression method")
	}

	nameLen := binary.LittleEndian.Uint16(header[26:28])
	extraLen := binary.LittleEndian.Uint16(header[28:30])

	if _, err := s.stream.Seek(int64(nameLen)+int64(extraLen), io.SeekCurrent); err != nil {
		return nil, newIOErr("Read", err)
	}

	compressed := make([]byte, entry.compressedSize)
	if _, err := io.ReadFull(s.stream, compressed); err != nil {
		return nil, newMalformed("Read", "payload is truncated")
	}

	if method == methodStore {
		return compressed, nil
	}

	reader := flate.NewReader(bytes.NewReader(compressed))
	defer reader.Close()
	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, newMalformed("Read", "could not inflate payload: "+err.Error())
	}
	return payload, nil
}
