/*
 * fl.go, part of gsd
 *
 * Copyright 2016 The gsd developers
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

//Package fl implements the gsd chunked file container: an append-only
//sequence of frames, each frame holding named, typed, shaped arrays
//(chunks). Frames are immutable once committed with EndFrame. The
//chunk index is rebuilt by scanning the record stream on Open; a
//trailing run of chunk records with no end-of-frame marker belongs to
//an uncommitted frame and is discarded.
package fl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

var magic = [8]byte{'G', 'S', 'D', 'C', 'H', 'N', 'K', 0}

const containerVersion uint32 = 1

const (
	recChunk    byte = 1
	recEndFrame byte = 2
)

type chunkLoc struct {
	dtype  Dtype
	rows   int
	cols   int
	off    int64
	stored int
}

// File is a handle on one gsd container. A handle opened in mode "r" only
// reads; mode "w" reads committed frames and appends new ones. Handles are
// not safe for concurrent use; callers must serialize access.
type File struct {
	f           *os.File
	filename    string
	application string
	schema      string
	version     [2]uint32
	level       int
	enc         *zstd.Encoder
	dec         *zstd.Decoder
	writable    bool
	open        bool
	appendOff   int64
	frames      []map[string]chunkLoc
	staged      map[string]chunkLoc
}

// Create initializes a new container at path, overwriting whatever is
// there. The application tag, schema name and schema version are fixed for
// the life of the file. An optional zstd compression level (1-22) turns on
// compression of chunk payloads; 0 or absent means raw storage.
func Create(path, application, schema string, version [2]uint32, level ...int) error {
	lv := 0
	if len(level) > 0 {
		lv = level[0]
	}
	if lv < 0 || lv > 22 {
		return &Error{message: fmt.Sprintf("invalid zstd level %d", lv), filename: path, critical: true}
	}
	f, err := os.Create(path)
	if err != nil {
		return &Error{message: err.Error(), filename: path, deco: []string{"Create"}, critical: true}
	}
	defer f.Close()
	buf := make([]byte, 0, 64)
	buf = append(buf, magic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, containerVersion)
	buf = append(buf, byte(lv))
	buf = appendString(buf, application)
	buf = appendString(buf, schema)
	buf = binary.LittleEndian.AppendUint32(buf, version[0])
	buf = binary.LittleEndian.AppendUint32(buf, version[1])
	if _, err := f.Write(buf); err != nil {
		return &Error{message: err.Error(), filename: path, deco: []string{"Create"}, critical: true}
	}
	return nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Open opens an existing container. Mode "r" is read-only; mode "w" allows
// appending frames as well. The whole record stream is scanned to rebuild
// the per-frame chunk index.
func Open(path, mode string) (*File, error) {
	if mode != "r" && mode != "w" {
		return nil, &Error{message: "mode must be \"r\" or \"w\": " + mode, filename: path, critical: true}
	}
	flags := os.O_RDONLY
	if mode == "w" {
		flags = os.O_RDWR
	}
	osf, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, &Error{message: err.Error(), filename: path, deco: []string{"Open"}, critical: true}
	}
	F := &File{f: osf, filename: path, writable: mode == "w", open: true}
	cr := &countingReader{r: osf}
	br := bufio.NewReader(cr)
	pos := func() int64 { return cr.n - int64(br.Buffered()) }
	if err := F.readHeader(br); err != nil {
		osf.Close()
		return nil, err
	}
	if F.level > 0 {
		F.dec, err = zstd.NewReader(nil)
		if err == nil && F.writable {
			F.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(F.level)))
		}
		if err != nil {
			osf.Close()
			return nil, &Error{message: err.Error(), filename: path, deco: []string{"Open"}, critical: true}
		}
	}
	if err := F.scan(br, pos); err != nil {
		osf.Close()
		return nil, err
	}
	F.staged = make(map[string]chunkLoc)
	if F.writable {
		// drop any uncommitted tail so stale bytes can never resurface
		// as records on a later scan
		if err := osf.Truncate(F.appendOff); err != nil {
			osf.Close()
			return nil, &Error{message: err.Error(), filename: path, deco: []string{"Open"}, critical: true}
		}
		if _, err := osf.Seek(F.appendOff, io.SeekStart); err != nil {
			osf.Close()
			return nil, &Error{message: err.Error(), filename: path, deco: []string{"Open"}, critical: true}
		}
	}
	return F, nil
}

func (F *File) readHeader(br *bufio.Reader) error {
	bad := func(why string) error {
		return &Error{message: why, filename: F.filename, deco: []string{"readHeader"}, critical: true}
	}
	var m [8]byte
	if _, err := io.ReadFull(br, m[:]); err != nil {
		return bad("can't read magic: " + err.Error())
	}
	if m != magic {
		return bad("wrong magic number, not a gsd file")
	}
	var v [4]byte
	if _, err := io.ReadFull(br, v[:]); err != nil {
		return bad("can't read container version: " + err.Error())
	}
	if cv := binary.LittleEndian.Uint32(v[:]); cv != containerVersion {
		return bad(fmt.Sprintf("unsupported container version %d", cv))
	}
	lv, err := br.ReadByte()
	if err != nil {
		return bad("can't read compression level: " + err.Error())
	}
	F.level = int(lv)
	if F.application, err = readString(br); err != nil {
		return bad("can't read application tag: " + err.Error())
	}
	if F.schema, err = readString(br); err != nil {
		return bad("can't read schema name: " + err.Error())
	}
	var sv [8]byte
	if _, err := io.ReadFull(br, sv[:]); err != nil {
		return bad("can't read schema version: " + err.Error())
	}
	F.version[0] = binary.LittleEndian.Uint32(sv[:4])
	F.version[1] = binary.LittleEndian.Uint32(sv[4:])
	return nil
}

func readString(br *bufio.Reader) (string, error) {
	var l [2]byte
	if _, err := io.ReadFull(br, l[:]); err != nil {
		return "", err
	}
	b := make([]byte, binary.LittleEndian.Uint16(l[:]))
	if _, err := io.ReadFull(br, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// scan walks the record stream after the header, building the committed
// frame index and leaving appendOff just past the last end-of-frame marker.
// Anything after that point is an uncommitted frame and will be overwritten
// by the next append.
func (F *File) scan(br *bufio.Reader, pos func() int64) error {
	staged := make(map[string]chunkLoc)
	last := pos()
	for {
		tag, err := br.ReadByte()
		if err != nil {
			break
		}
		if tag == recEndFrame {
			F.frames = append(F.frames, staged)
			staged = make(map[string]chunkLoc)
			last = pos()
			continue
		}
		if tag != recChunk {
			return &Error{message: fmt.Sprintf("corrupt record tag %d at offset %d", tag, pos()-1),
				filename: F.filename, deco: []string{"scan"}, critical: true}
		}
		var hdr [2]byte
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			break
		}
		name := make([]byte, binary.LittleEndian.Uint16(hdr[:]))
		if _, err := io.ReadFull(br, name); err != nil {
			break
		}
		var fix [13]byte
		if _, err := io.ReadFull(br, fix[:]); err != nil {
			break
		}
		loc := chunkLoc{
			dtype:  Dtype(fix[0]),
			rows:   int(binary.LittleEndian.Uint32(fix[1:5])),
			cols:   int(binary.LittleEndian.Uint32(fix[5:9])),
			stored: int(binary.LittleEndian.Uint32(fix[9:13])),
		}
		loc.off = pos()
		if _, err := br.Discard(loc.stored); err != nil {
			break
		}
		staged[string(name)] = loc
	}
	F.appendOff = last
	return nil
}

// Name returns the path the handle was opened with.
func (F *File) Name() string { return F.filename }

// Application returns the tag of the program that created the file.
func (F *File) Application() string { return F.application }

// Schema returns the schema name declared in the file header.
func (F *File) Schema() string { return F.schema }

// SchemaVersion returns the schema version pair declared in the file header.
func (F *File) SchemaVersion() [2]uint32 { return F.version }

// NFrames returns the number of committed frames.
func (F *File) NFrames() int { return len(F.frames) }

// WriteChunk stages a chunk for the current, not yet committed frame. The
// data is on disk after this call but is not part of the trajectory until
// EndFrame commits it.
func (F *File) WriteChunk(name string, c *Chunk) error {
	if !F.open || !F.writable {
		return &Error{message: FileUnWritable, filename: F.filename, deco: []string{"WriteChunk"}, critical: true}
	}
	payload := c.data
	if F.level > 0 {
		payload = F.enc.EncodeAll(c.data, make([]byte, 0, len(c.data)))
	}
	rec := make([]byte, 0, 16+len(name)+len(payload))
	rec = append(rec, recChunk)
	rec = appendString(rec, name)
	rec = append(rec, byte(c.dtype))
	rec = binary.LittleEndian.AppendUint32(rec, uint32(c.rows))
	rec = binary.LittleEndian.AppendUint32(rec, uint32(c.cols))
	rec = binary.LittleEndian.AppendUint32(rec, uint32(len(payload)))
	off := F.appendOff + int64(len(rec))
	rec = append(rec, payload...)
	if _, err := F.f.Write(rec); err != nil {
		return &Error{message: err.Error(), filename: F.filename, deco: []string{"WriteChunk"}, critical: true}
	}
	F.staged[name] = chunkLoc{dtype: c.dtype, rows: c.rows, cols: c.cols, off: off, stored: len(payload)}
	F.appendOff += int64(len(rec))
	return nil
}

// EndFrame commits the currently staged chunks as one new immutable frame.
func (F *File) EndFrame() error {
	if !F.open || !F.writable {
		return &Error{message: FileUnWritable, filename: F.filename, deco: []string{"EndFrame"}, critical: true}
	}
	if _, err := F.f.Write([]byte{recEndFrame}); err != nil {
		return &Error{message: err.Error(), filename: F.filename, deco: []string{"EndFrame"}, critical: true}
	}
	F.appendOff++
	F.frames = append(F.frames, F.staged)
	F.staged = make(map[string]chunkLoc)
	return nil
}

// ChunkExists reports whether the named chunk was committed in the given
// frame.
func (F *File) ChunkExists(frame int, name string) bool {
	if frame < 0 || frame >= len(F.frames) {
		return false
	}
	_, ok := F.frames[frame][name]
	return ok
}

// ReadChunk reads one committed chunk. It fails if the chunk is absent;
// use ChunkExists to probe first.
func (F *File) ReadChunk(frame int, name string) (*Chunk, error) {
	if !F.open {
		return nil, &Error{message: FileUnReadable, filename: F.filename, deco: []string{"ReadChunk"}, critical: true}
	}
	if frame < 0 || frame >= len(F.frames) {
		return nil, &Error{message: fmt.Sprintf("no frame %d in file with %d frames", frame, len(F.frames)),
			filename: F.filename, deco: []string{"ReadChunk"}, critical: true}
	}
	loc, ok := F.frames[frame][name]
	if !ok {
		return nil, &Error{message: fmt.Sprintf("no chunk %q in frame %d", name, frame),
			filename: F.filename, deco: []string{"ReadChunk"}, critical: true}
	}
	stored := make([]byte, loc.stored)
	if _, err := F.f.ReadAt(stored, loc.off); err != nil {
		return nil, &Error{message: err.Error(), filename: F.filename, deco: []string{"ReadChunk"}, critical: true}
	}
	data := stored
	if F.level > 0 {
		var err error
		data, err = F.dec.DecodeAll(stored, nil)
		if err != nil {
			return nil, &Error{message: err.Error(), filename: F.filename, deco: []string{"ReadChunk"}, critical: true}
		}
	}
	if want := loc.rows * loc.cols * loc.dtype.Size(); len(data) != want {
		return nil, &Error{message: fmt.Sprintf("chunk %q in frame %d holds %d bytes, want %d", name, frame, len(data), want),
			filename: F.filename, deco: []string{"ReadChunk"}, critical: true}
	}
	return &Chunk{dtype: loc.dtype, rows: loc.rows, cols: loc.cols, data: data}, nil
}

// Close releases the handle. It can not be used after this call.
func (F *File) Close() error {
	if !F.open {
		return nil
	}
	F.open = false
	F.writable = false
	if F.enc != nil {
		F.enc.Close()
	}
	if F.dec != nil {
		F.dec.Close()
	}
	if err := F.f.Close(); err != nil {
		return &Error{message: err.Error(), filename: F.filename, deco: []string{"Close"}, critical: true}
	}
	return nil
}

//Errors

// Error is the general structure for gsd container errors. It fulfills the
// gsd.Error and gsd.TrajError interfaces.
type Error struct {
	message  string
	filename string
	deco     []string
	critical bool
}

func (err *Error) Error() string {
	return fmt.Sprintf("gsd file %s error: %s", err.filename, err.message)
}

// Decorate adds new information to the error
func (err *Error) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

// FileName returns the file to which the failing handle was associated
func (err *Error) FileName() string { return err.filename }

// Format returns the format of the file (always "gsd") associated to the error
func (err *Error) Format() string { return "gsd" }

// Critical returns true if the error is critical, false otherwise
func (err *Error) Critical() bool { return err.critical }

const (
	FileUnWritable = "File not open for writing"
	FileUnReadable = "File not open"
)
