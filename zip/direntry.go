package zip

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Stream is the minimal seekable, writable byte stream the Appender needs.
// afero.File satisfies it directly, as does *os.File.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker
}

// ReadStream is the minimal seekable byte stream the Scanner needs.
type ReadStream interface {
	io.Reader
	io.Seeker
}

// dirEntry is one central directory entry. raw holds the exact bytes read
// from (or synthesized for) the archive -- header | name | extra | comment
// -- and is re-emitted verbatim on every subsequent Append, so attributes of
// pre-existing entries that this engine doesn't otherwise understand
// (timestamps, flags, extra fields set by another writer) survive untouched.
// The remaining fields are decoded once, purely to serve List/Read without
// re-parsing raw on every call.
type dirEntry struct {
	raw               []byte
	name              string
	method            uint16
	crc32             uint32
	compressedSize    uint32
	uncompressedSize  uint32
	localHeaderOffset uint32
}

// loadCentralDirectory locates the EOCD in stream and decodes every CDE it
// points to, returning them in directory order along with the CD's current
// offset. An empty stream yields zero entries and a zero offset, matching
// the "open a brand-new archive" case.
func loadCentralDirectory(stream ReadStream) ([]dirEntry, int64, error) {
	size, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, newIOErr("OpenForRead", err)
	}
	if size == 0 {
		return nil, 0, nil
	}

	eocdPos, eocd, err := findEOCD(stream, size)
	if err != nil {
		return nil, 0, err
	}

	totalEntries := binary.LittleEndian.Uint16(eocd[10:12])
	cdSize := binary.LittleEndian.Uint32(eocd[12:16])
	cdOffset := binary.LittleEndian.Uint32(eocd[16:20])

	if totalEntries == zip64Entries || cdSize == zip64Marker || cdOffset == zip64Marker {
		return nil, 0, newUnsupported("OpenForRead", "zip64 extensions are not supported")
	}

	if int64(cdOffset)+int64(cdSize) > eocdPos {
		return nil, 0, newMalformed("OpenForRead", "central directory offset/size is inconsistent with EOCD position")
	}

	if _, err := stream.Seek(int64(cdOffset), io.SeekStart); err != nil {
		return nil, 0, newIOErr("OpenForRead", err)
	}

	entries := make([]dirEntry, 0, totalEntries)
	for i := uint16(0); i < totalEntries; i++ {
		entry, err := readCentralDirEntry(stream)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}

	return entries, int64(cdOffset), nil
}

// findEOCD reads the final min(eocdSearchWindow, size) bytes of stream and
// returns the absolute offset and 22-byte fixed record of the last EOCD
// signature found in that window.
func findEOCD(stream ReadStream, size int64) (int64, []byte, error) {
	window := int64(eocdSearchWindow)
	if window > size {
		window = size
	}

	tailStart := size - window
	if _, err := stream.Seek(tailStart, io.SeekStart); err != nil {
		return 0, nil, newIOErr("OpenForRead", err)
	}
	tail := make([]byte, window)
	if _, err := io.ReadFull(stream, tail); err != nil {
		return 0, nil, newIOErr("OpenForRead", err)
	}

	idx := bytes.LastIndex(tail, eocdSig[:])
	if idx == -1 {
		return 0, nil, newMalformed("OpenForRead", "could not find end of central directory signature")
	}
	if idx+eocdFixedSize > len(tail) {
		return 0, nil, newMalformed("OpenForRead", "end of central directory record is truncated")
	}

	return tailStart + int64(idx), tail[idx : idx+eocdFixedSize], nil
}

// readCentralDirEntry reads one CDE at the stream's current position,
// advancing past it, and returns both the decoded fields and the opaque
// blob for verbatim re-emission.
func readCentralDirEntry(stream ReadStream) (dirEntry, error) {
	header := make([]byte, cdeFixedSize)
	if _, err := io.ReadFull(stream, header); err != nil {
		return dirEntry{}, newMalformed("OpenForRead", "central directory entry is truncated")
	}
	if !bytes.Equal(header[0:4], centralDirSig[:]) {
		return dirEntry{}, newMalformed("OpenForRead", "missing central directory file header signature")
	}

	flags := binary.LittleEndian.Uint16(header[8:10])
	method := binary.LittleEndian.Uint16(header[10:12])
	crc := binary.LittleEndian.Uint32(header[16:20])
	compressedSize := binary.LittleEndian.Uint32(header[20:24])
	uncompressedSize := binary.LittleEndian.Uint32(header[24:28])
	nameLen := binary.LittleEndian.Uint16(header[28:30])
	extraLen := binary.LittleEndian.Uint16(header[30:32])
	commentLen := binary.LittleEndian.Uint16(header[32:34])
	localOffset := binary.LittleEndian.Uint32(header[42:46])

	if localOffset == zip64Marker || compressedSize == zip64Marker || uncompressedSize == zip64Marker {
		return dirEntry{}, newUnsupported("OpenForRead", "zip64 extensions are not supported")
	}
	if flags&flagEncrypted != 0 {
		return dirEntry{}, newUnsupported("OpenForRead", "encrypted entries are not supported")
	}

	rest := make([]byte, int(nameLen)+int(extraLen)+int(commentLen))
	if _, err := io.ReadFull(stream, rest); err != nil {
		return dirEntry{}, newMalformed("OpenForRead", "central directory entry name/extra/comment is truncated")
	}

	raw := make([]byte, 0, len(header)+len(rest))
	raw = append(raw, header...)
	raw = append(raw, rest...)

	return dirEntry{
		raw:               raw,
		name:              string(rest[:nameLen]),
		method:            method,
		crc32:             crc,
		compressedSize:    compressedSize,
		uncompressedSize:  uncompressedSize,
		localHeaderOffset: localOffset,
	}, nil
}
