package zip

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
)

type appenderState int

const (
	stateOpen appenderState = iota
	statePoisoned
	stateClosed
)

// Appender adds entries to an archive one at a time, rewriting only the
// central directory and EOCD trailer on each call -- payloads already
// written are never touched again. An Appender that hits an I/O error is
// Poisoned and rejects all further Append calls (Close still releases the
// stream); the caller must not reuse
// the stream for another Appender without first truncating it back to a
// known-good offset.
type Appender struct {
	stream   Stream
	entries  []dirEntry
	cdOffset int64
	state    appenderState
}

// OpenForAppend loads the directory of an existing archive (or starts a
// fresh, zero-entry one if stream is empty) and returns an Appender
// positioned to grow it.
func OpenForAppend(stream Stream) (*Appender, error) {
	entries, cdOffset, err := loadCentralDirectory(stream)
	if err != nil {
		if archiveErr, ok := err.(*ArchiveError); ok {
			archiveErr.Op = "OpenForAppend"
		}
		return nil, err
	}
	return &Appender{stream: stream, entries: entries, cdOffset: cdOffset, state: stateOpen}, nil
}

// Append compresses data with raw DEFLATE and writes it as a new entry,
// then re-emits the central directory and EOCD so the archive is valid
// again before Append returns.
func (a *Appender) Append(name string, data []byte) error {
	switch a.state {
	case statePoisoned:
		return newArchiveErr(KindIO, "Append", errPoisoned)
	case stateClosed:
		return newArchiveErr(KindIO, "Append", errClosed)
	}

	if len(a.entries) >= maxEntries {
		return newLimitExceeded("Append", "archive already holds the maximum number of entries (65535)")
	}

	encodedName := []byte(name)
	if len(encodedName) > 0xFFFF {
		return newLimitExceeded("Append", "filename exceeds the 16-bit length field")
	}
	if uint64(len(data)) > maxUint32 {
		return newLimitExceeded("Append", "uncompressed size exceeds the 32-bit length field")
	}

	compressed, err := deflateRaw(data)
	if err != nil {
		a.state = statePoisoned
		return newIOErr("Append", err)
	}
	if uint64(len(compressed)) > maxUint32 {
		return newLimitExceeded("Append", "compressed size exceeds the 32-bit length field")
	}
	crc := crc32.ChecksumIEEE(data)

	if err := a.seek(a.cdOffset); err != nil {
		return err
	}
	localOffset, err := a.position()
	if err != nil {
		return err
	}

	if err := a.write("Append", buildLocalHeader(encodedName, crc, uint32(len(compressed)), uint32(len(data)))); err != nil {
		return err
	}
	if err := a.write("Append", compressed); err != nil {
		return err
	}

	cde := buildCDE(encodedName, crc, uint32(len(compressed)), uint32(len(data)), uint32(localOffset))
	a.entries = append(a.entries, dirEntry{
		raw:               cde,
		name:              name,
		method:            methodDeflate,
		crc32:             crc,
		compressedSize:    uint32(len(compressed)),
		uncompressedSize:  uint32(len(data)),
		localHeaderOffset: uint32(localOffset),
	})

	cdOffset, err := a.position()
	if err != nil {
		return err
	}
	for _, e := range a.entries {
		if err := a.write("Append", e.raw); err != nil {
			return err
		}
	}

	eocdPos, err := a.position()
	if err != nil {
		return err
	}
	cdSize := uint32(eocdPos - cdOffset)
	if err := a.write("Append", buildEOCD(uint16(len(a.entries)), cdSize, uint32(cdOffset))); err != nil {
		return err
	}

	a.cdOffset = cdOffset
	return nil
}

// Close flushes (when the stream supports it) and closes the underlying
// stream. It is safe to call more than once.
func (a *Appender) Close() error {
	if a.state == stateClosed {
		return nil
	}
	a.state = stateClosed

	var flushErr, closeErr error
	if f, ok := a.stream.(interface{ Sync() error }); ok {
		flushErr = f.Sync()
	}
	if c, ok := a.stream.(io.Closer); ok {
		closeErr = c.Close()
	}
	if flushErr != nil {
		return newIOErr("Close", flushErr)
	}
	if closeErr != nil {
		return newIOErr("Close", closeErr)
	}
	return nil
}

func (a *Appender) seek(offset int64) error {
	if _, err := a.stream.Seek(offset, io.SeekStart); err != nil {
		a.state = statePoisoned
		return newIOErr("Append", err)
	}
	return nil
}

func (a *Appender) position() (int64, error) {
	pos, err := a.stream.Seek(0, io.SeekCurrent)
	if err != nil {
		a.state = statePoisoned
		return 0, newIOErr("Append", err)
	}
	return pos, nil
}

func (a *Appender) write(op string, b []byte) error {
	if _, err := a.stream.Write(b); err != nil {
		a.state = statePoisoned
		return newIOErr(op, err)
	}
	return nil
}

// deflateRaw runs payload through raw DEFLATE (no zlib or gzip wrapper) at
// the strongest compression level.
func deflateRaw(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildLocalHeader(name []byte, crc, compressedSize, uncompressedSize uint32) []byte {
	buf := make([]byte, 0, localHeaderFixedSize+len(name))
	buf = append(buf, localFileSig[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, versionNeeded)
	buf = binary.LittleEndian.AppendUint16(buf, flagUTF8)
	buf = binary.LittleEndian.AppendUint16(buf, methodDeflate)
	buf = binary.LittleEndian.AppendUint16(buf, 0) // mod time
	buf = binary.LittleEndian.AppendUint16(buf, 0) // mod date
	buf = binary.LittleEndian.AppendUint32(buf, crc)
	buf = binary.LittleEndian.AppendUint32(buf, compressedSize)
	buf = binary.LittleEndian.AppendUint32(buf, uncompressedSize)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(name)))
	buf = binary.LittleEndian.AppendUint16(buf, 0) // extra field length
	buf = append(buf, name...)
	return buf
}

func buildCDE(name []byte, crc, compressedSize, uncompressedSize, localOffset uint32) []byte {
	buf := make([]byte, 0, cdeFixedSize+len(name))
	buf = append(buf, centralDirSig[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, versionMadeBy)
	buf = binary.LittleEndian.AppendUint16(buf, versionNeeded)
	buf = binary.LittleEndian.AppendUint16(buf, flagUTF8)
	buf = binary.LittleEndian.AppendUint16(buf, methodDeflate)
	buf = binary.LittleEndian.AppendUint16(buf, 0) // mod time
	buf = binary.LittleEndian.AppendUint16(buf, 0) // mod date
	buf = binary.LittleEndian.AppendUint32(buf, crc)
	buf = binary.LittleEndian.AppendUint32(buf, compressedSize)
	buf = binary.LittleEndian.AppendUint32(buf, uncompressedSize)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(name)))
	buf = binary.LittleEndian.AppendUint16(buf, 0) // extra field length
	buf = binary.LittleEndian.AppendUint16(buf, 0) // comment length
	buf = binary.LittleEndian.AppendUint16(buf, 0) // disk number start
	buf = binary.LittleEndian.AppendUint16(buf, 0) // internal attributes
	buf = binary.LittleEndian.AppendUint32(buf, 0) // external attributes
	buf = binary.LittleEndian.AppendUint32(buf, localOffset)
	buf = append(buf, name...)
	return buf
}

func buildEOCD(numEntries uint16, cdSize, cdOffset uint32) []byte {
	buf := make([]byte, 0, eocdFixedSize)
	buf = append(buf, eocdSig[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, 0) // disk number
	buf = binary.LittleEndian.AppendUint16(buf, 0) // disk with central directory
	buf = binary.LittleEndian.AppendUint16(buf, numEntries)
	buf = binary.LittleEndian.AppendUint16(buf, numEntries)
	buf = binary.LittleEndian.AppendUint32(buf, cdSize)
	buf = binary.LittleEndian.AppendUint32(buf, cdOffset)
	buf = binary.LittleEndian.AppendUint16(buf, 0) // comment length
	return buf
}
