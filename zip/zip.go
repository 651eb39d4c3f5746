// Package zip implements an incremental ZIP-container engine: a
// DirectoryScanner that recovers the directory of an existing archive, and
// an Appender that streams new entries into it without rewriting prior
// payloads.
//
// The engine does not interpret archive contents. Callers hand it
// (filename, bytes) pairs and read back named blobs; deciding what to
// write and when is a caller concern.
package zip

const (
	versionNeeded = 20
	versionMadeBy = 20

	// flagUTF8 is general-purpose bit 11: filename and comment fields are
	// UTF-8. It is the only flag this engine ever sets.
	flagUTF8 = 0x0800

	// flagEncrypted is general-purpose bit 0.
	flagEncrypted = 0x0001

	methodStore   = 0
	methodDeflate = 8

	localHeaderFixedSize = 30
	cdeFixedSize         = 46
	eocdFixedSize        = 22

	// eocdSearchWindow bounds the tail scan for the end-of-central-directory
	// signature. Archives this engine writes never carry a comment, so the
	// signature always falls in the last 22 bytes; the wider window allows
	// reading archives written by other tools with short comments.
	eocdSearchWindow = 1024

	maxEntries   = 65535
	maxUint32    = 1<<32 - 1
	zip64Marker  = 0xFFFFFFFF
	zip64Entries = 0xFFFF
)

var (
	localFileSig  = [4]byte{0x50, 0x4b, 0x03, 0x04}
	centralDirSig = [4]byte{0x50, 0x4b, 0x01, 0x02}
	eocdSig       = [4]byte{0x50, 0x4b, 0x05, 0x06}
)
