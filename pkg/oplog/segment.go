package oplog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"hash/crc32"
	"io"
	"os"

	"github.com/xushiwei/tfs/pkg/tfserr"
	"github.com/xushiwei/tfs/pkg/types"
)

// entryFrame is the on-disk shape of one oplog record: a 4-byte little
// endian length prefix, the gob-encoded types.OplogEntry, and a trailing
// 4-byte CRC32 over the encoded payload.
func encodeEntry(e types.OplogEntry) ([]byte, error) {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(e); err != nil {
		return nil, tfserr.Wrap(tfserr.KindIoError, "oplog.encodeEntry", err)
	}
	body := payload.Bytes()

	frame := make([]byte, 4+len(body)+4)
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(body)))
	copy(frame[4:], body)
	binary.LittleEndian.PutUint32(frame[4+len(body):], crc32.ChecksumIEEE(body))
	return frame, nil
}

// readEntry reads one framed record from r. It returns io.EOF when r is
// exhausted at a frame boundary.
func readEntry(r *bufio.Reader) (types.OplogEntry, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return types.OplogEntry{}, err
	}
	size := binary.LittleEndian.Uint32(lenBuf[:])

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return types.OplogEntry{}, tfserr.Wrap(tfserr.KindIoError, "oplog.readEntry", err)
	}

	var crcBuf [4]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return types.OplogEntry{}, tfserr.Wrap(tfserr.KindIoError, "oplog.readEntry", err)
	}
	if binary.LittleEndian.Uint32(crcBuf[:]) != crc32.ChecksumIEEE(body) {
		return types.OplogEntry{}, tfserr.New(tfserr.KindCrcError, "oplog.readEntry", "entry CRC mismatch")
	}

	var e types.OplogEntry
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&e); err != nil {
		return types.OplogEntry{}, tfserr.Wrap(tfserr.KindIoError, "oplog.readEntry", err)
	}
	return e, nil
}

// readSegment reads every well-formed entry from path. A trailing
// partial frame (a crash mid-append) is treated as the durable end of
// the segment and silently ignored, matching the original queue's
// torn-write tolerance.
func readSegment(path string) ([]types.OplogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, tfserr.Wrap(tfserr.KindIoError, "oplog.readSegment", err)
	}
	defer f.Close()

	var entries []types.OplogEntry
	r := bufio.NewReader(f)
	for {
		e, err := readEntry(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		entries = append(entries, e)
	}
	return entries, nil
}
