package zip

import (
	stdzip "archive/zip"
	"bytes"
	"errors"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// writeReferenceArchive builds a zip file using the standard library's own
// writer, independent of this package, so the tests below exercise
// interop rather than just round-tripping against ourselves.
func writeReferenceArchive(t *testing.T, fs afero.Fs, name string, files map[string][]byte) {
	t.Helper()
	f, err := fs.Create(name)
	require.NoError(t, err)
	defer f.Close()

	w := stdzip.NewWriter(f)
	for _, n := range orderedKeys(files) {
		header := &stdzip.FileHeader{Name: n, Method: stdzip.Deflate, Modified: time.Date(2021, 5, 1, 12, 30, 0, 0, time.UTC)}
		entryWriter, err := w.CreateHeader(header)
		require.NoError(t, err)
		_, err = entryWriter.Write(files[n])
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

// orderedKeys exists purely so fixture construction above is deterministic;
// production code never needs it since dirEntry order is insertion order.
func orderedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func readWithStdlib(t *testing.T, fs afero.Fs, name string) *stdzip.Reader {
	t.Helper()
	f, err := fs.Open(name)
	require.NoError(t, err)
	info, err := f.Stat()
	require.NoError(t, err)
	data := make([]byte, info.Size())
	_, err = f.ReadAt(data, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	r, err := stdzip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return r
}

func readEntry(t *testing.T, r *stdzip.Reader, name string) []byte {
	t.Helper()
	for _, f := range r.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			return data
		}
	}
	t.Fatalf("entry %q not found", name)
	return nil
}

func TestAppend_EmptyArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	name := "fresh.zip"

	appender, err := OpenForAppendFs(fs, name)
	require.NoError(t, err)
	require.NoError(t, appender.Append("initial.txt", []byte("initial content")))
	require.NoError(t, appender.Close())

	r := readWithStdlib(t, fs, name)
	require.Len(t, r.File, 1)
	require.Equal(t, []byte("initial content"), readEntry(t, r, "initial.txt"))
}

func TestAppend_ToExistingArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	name := "existing.zip"
	writeReferenceArchive(t, fs, name, map[string][]byte{"initial.txt": []byte("initial content")})

	appender, err := OpenForAppendFs(fs, name)
	require.NoError(t, err)
	require.NoError(t, appender.Append("new.txt", []byte("new content")))
	require.NoError(t, appender.Close())

	r := readWithStdlib(t, fs, name)
	require.Len(t, r.File, 2)
	require.Equal(t, []byte("initial content"), readEntry(t, r, "initial.txt"))
	require.Equal(t, []byte("new content"), readEntry(t, r, "new.txt"))
}

func TestAppend_MultipleEntriesInOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	name := "multi.zip"
	writeReferenceArchive(t, fs, name, map[string][]byte{"initial.txt": []byte("initial content")})

	appender, err := OpenForAppendFs(fs, name)
	require.NoError(t, err)
	for i, pair := range []struct {
		name string
		data string
	}{
		{"file1.txt", "content1"},
		{"file2.txt", "content2"},
		{"file3.txt", "content3"},
	} {
		require.NoErrorf(t, appender.Append(pair.name, []byte(pair.data)), "entry %d", i)
	}
	require.NoError(t, appender.Close())

	r := readWithStdlib(t, fs, name)
	require.Len(t, r.File, 4)
	require.Equal(t, []string{"initial.txt", "file1.txt", "file2.txt", "file3.txt"}, fileNames(r))
	require.Equal(t, []byte("content1"), readEntry(t, r, "file1.txt"))
	require.Equal(t, []byte("content2"), readEntry(t, r, "file2.txt"))
	require.Equal(t, []byte("content3"), readEntry(t, r, "file3.txt"))
}

func fileNames(r *stdzip.Reader) []string {
	names := make([]string, len(r.File))
	for i, f := range r.File {
		names[i] = f.Name
	}
	return names
}

func TestAppend_LargePayload(t *testing.T) {
	fs := afero.NewMemMapFs()
	name := "large.zip"
	appender, err := OpenForAppendFs(fs, name)
	require.NoError(t, err)

	large := bytes.Repeat([]byte("Large content\n"), 1000)
	require.NoError(t, appender.Append("large.txt", large))
	require.NoError(t, appender.Close())

	r := readWithStdlib(t, fs, name)
	require.Equal(t, large, readEntry(t, r, "large.txt"))
}

func TestAppend_UnicodeFilename(t *testing.T) {
	fs := afero.NewMemMapFs()
	name := "unicode.zip"
	appender, err := OpenForAppendFs(fs, name)
	require.NoError(t, err)

	require.NoError(t, appender.Append("файл.txt", []byte("unicode content")))
	require.NoError(t, appender.Close())

	r := readWithStdlib(t, fs, name)
	require.Equal(t, []string{"файл.txt"}, fileNames(r))
	require.Equal(t, []byte("unicode content"), readEntry(t, r, "файл.txt"))
}

func TestAppend_EmptyPayload(t *testing.T) {
	fs := afero.NewMemMapFs()
	name := "empty.zip"
	appender, err := OpenForAppendFs(fs, name)
	require.NoError(t, err)

	require.NoError(t, appender.Append("empty.txt", []byte{}))
	require.NoError(t, appender.Close())

	r := readWithStdlib(t, fs, name)
	require.Len(t, r.File, 1)
	require.Empty(t, readEntry(t, r, "empty.txt"))
}

func TestAppend_MonotonicValidityAfterEachCall(t *testing.T) {
	fs := afero.NewMemMapFs()
	name := "monotonic.zip"
	appender, err := OpenForAppendFs(fs, name)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, appender.Append(string(rune('a'+i))+".txt", []byte{byte(i)}))
		// The archive must be independently valid after every single call,
		// not just once Close has been invoked.
		r := readWithStdlib(t, fs, name)
		require.Len(t, r.File, i+1)
	}
	require.NoError(t, appender.Close())
}

func TestAppend_PreservesPreexistingEntryAttributes(t *testing.T) {
	fs := afero.NewMemMapFs()
	name := "preserve.zip"
	writeReferenceArchive(t, fs, name, map[string][]byte{"kept.txt": []byte("unchanged")})

	before := readWithStdlib(t, fs, name)
	beforeHeader := before.File[0].FileHeader

	appender, err := OpenForAppendFs(fs, name)
	require.NoError(t, err)
	require.NoError(t, appender.Append("added.txt", []byte("added")))
	require.NoError(t, appender.Close())

	after := readWithStdlib(t, fs, name)
	require.Equal(t, beforeHeader.Method, after.File[0].Method)
	require.Equal(t, beforeHeader.Modified.Unix(), after.File[0].Modified.Unix())
	require.Equal(t, []byte("unchanged"), readEntry(t, after, "kept.txt"))
}

func TestAppend_RejectsAfterClose(t *testing.T) {
	fs := afero.NewMemMapFs()
	name := "closed.zip"
	appender, err := OpenForAppendFs(fs, name)
	require.NoError(t, err)
	require.NoError(t, appender.Close())

	// A closed appender must reject further Append calls rather than
	// silently reopening or retrying against a released stream.
	err = appender.Append("too-late.txt", []byte("data"))
	require.Error(t, err)

	err = appender.Append("also-too-late.txt", []byte("data"))
	require.Error(t, err)
}

func TestAppend_PoisonedAfterIOFailureRejectsFurtherAppends(t *testing.T) {
	fs := afero.NewMemMapFs()
	name := "poison.zip"
	appender, err := OpenForAppendFs(fs, name)
	require.NoError(t, err)
	require.NoError(t, appender.Append("first.txt", []byte("data")))

	// Force the next stream operation to fail by closing the underlying
	// stream out from under the appender without going through
	// Appender.Close.
	require.NoError(t, appender.stream.(interface{ Close() error }).Close())

	err = appender.Append("second.txt", []byte("more data"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrIO))

	// Poisoned state sticks: a further call must not attempt to write
	// again, even if it would otherwise have succeeded.
	err = appender.Append("third.txt", []byte("data"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrIO))
}

func TestAppend_RejectsArchiveLimitBreach(t *testing.T) {
	fs := afero.NewMemMapFs()
	name := "limit.zip"
	appender, err := OpenForAppendFs(fs, name)
	require.NoError(t, err)

	longName := make([]byte, 0x10000)
	for i := range longName {
		longName[i] = 'a'
	}
	err = appender.Append(string(longName), []byte("x"))
	require.Error(t, err)
	var archiveErr *ArchiveError
	require.ErrorAs(t, err, &archiveErr)
	require.Equal(t, KindArchiveLimitExceeded, archiveErr.Kind)
}
