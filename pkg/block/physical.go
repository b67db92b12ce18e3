package block

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"github.com/xushiwei/tfs/pkg/tfserr"
	"github.com/xushiwei/tfs/pkg/types"
)

// headerSize is BlockPrefix (3 uint32) plus BlockInfo (2 uint32 + 2 int64
// + 2 int32 + 1 uint64), serialized field-by-field with no padding.
const headerSize = 3*4 + (4 + 4 + 8 + 8 + 4 + 8 + 4)

// onDiskFileHeader is the fixed-size record header written immediately
// before a file's raw bytes in a physical block's payload area.
type onDiskFileHeader struct {
	FileID     uint64
	Size       int32
	Offset     int32
	Status     uint8
	Crc        uint32
	CreateTime int64 // unix nanos
	ModifyTime int64
}

const fileHeaderSize = 8 + 4 + 4 + 1 + 4 + 8 + 8

// physicalBlock is one file on disk: either a main block or an extension
// of some logical block's chain.
type physicalBlock struct {
	path        string
	file        *os.File
	capacity    int64
	prefix      types.BlockPrefix
	info        types.BlockInfo
	writeOffset int64 // next free byte offset within the payload area
}

func payloadStart() int64 { return headerSize }

// createPhysicalBlock preallocates a new physical block file of the given
// capacity and writes its initial header.
func createPhysicalBlock(path string, prefix types.BlockPrefix, capacity int64) (*physicalBlock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, tfserr.Wrap(tfserr.KindAlreadyExists, "block.createPhysicalBlock", err)
		}
		return nil, tfserr.Wrap(tfserr.KindIoError, "block.createPhysicalBlock", err)
	}
	if err := f.Truncate(capacity); err != nil {
		f.Close()
		return nil, tfserr.Wrap(tfserr.KindIoError, "block.createPhysicalBlock", err)
	}

	pb := &physicalBlock{
		path:     path,
		file:     f,
		capacity: capacity,
		prefix:   prefix,
		info: types.BlockInfo{
			Version: types.BlockVersionMagic,
		},
		writeOffset: payloadStart(),
	}
	if err := pb.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return pb, nil
}

// openPhysicalBlock opens and reads the header of an existing physical
// block file, then scans its payload to recover the write cursor.
func openPhysicalBlock(path string, capacity int64) (*physicalBlock, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, tfserr.Wrap(tfserr.KindIoError, "block.openPhysicalBlock", err)
	}

	pb := &physicalBlock{path: path, file: f, capacity: capacity}
	if err := pb.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if err := pb.recoverWriteOffset(); err != nil {
		f.Close()
		return nil, err
	}
	return pb, nil
}

func (pb *physicalBlock) writeHeader() error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, &pb.prefix); err != nil {
		return fmt.Errorf("encode block prefix: %w", err)
	}
	if err := binary.Write(buf, binary.BigEndian, &pb.info); err != nil {
		return fmt.Errorf("encode block info: %w", err)
	}
	if _, err := pb.file.WriteAt(buf.Bytes(), 0); err != nil {
		return tfserr.Wrap(tfserr.KindIoError, "block.writeHeader", err)
	}
	return nil
}

func (pb *physicalBlock) readHeader() error {
	buf := make([]byte, headerSize)
	if _, err := pb.file.ReadAt(buf, 0); err != nil {
		return tfserr.Wrap(tfserr.KindIoError, "block.readHeader", err)
	}
	r := bytes.NewReader(buf)
	if err := binary.Read(r, binary.BigEndian, &pb.prefix); err != nil {
		return fmt.Errorf("decode block prefix: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &pb.info); err != nil {
		return fmt.Errorf("decode block info: %w", err)
	}
	return nil
}

// recoverWriteOffset walks the payload area reading record headers until
// it hits unwritten space, used when reopening a block whose write
// cursor was not otherwise persisted.
func (pb *physicalBlock) recoverWriteOffset() error {
	offset := payloadStart()
	for offset+fileHeaderSize <= pb.capacity {
		hdr := make([]byte, fileHeaderSize)
		if _, err := pb.file.ReadAt(hdr, offset); err != nil {
			return tfserr.Wrap(tfserr.KindIoError, "block.recoverWriteOffset", err)
		}
		var fh onDiskFileHeader
		if err := binary.Read(bytes.NewReader(hdr), binary.BigEndian, &fh); err != nil {
			return fmt.Errorf("decode record header: %w", err)
		}
		if fh.FileID == 0 {
			break
		}
		offset += fileHeaderSize + int64(fh.Size)
	}
	pb.writeOffset = offset
	return nil
}

func (pb *physicalBlock) remainingCapacity() int64 {
	return pb.capacity - pb.writeOffset
}

// appendRecord writes a file header followed by data at the current
// write cursor, returning the absolute byte offset the header was
// written at.
func (pb *physicalBlock) appendRecord(fh types.FileHeader, data []byte) (int64, error) {
	need := int64(fileHeaderSize + len(data))
	if pb.remainingCapacity() < need {
		return 0, tfserr.New(tfserr.KindCapacityExhausted, "block.appendRecord", "no contiguous room in physical block")
	}

	onDisk := onDiskFileHeader{
		FileID:     fh.FileID,
		Size:       fh.Size,
		Offset:     fh.Offset,
		Status:     uint8(fh.Status),
		Crc:        fh.Crc,
		CreateTime: fh.CreateTime.UnixNano(),
		ModifyTime: fh.ModifyTime.UnixNano(),
	}

	buf := new(bytes.Buffer)
	buf.Grow(int(need))
	if err := binary.Write(buf, binary.BigEndian, &onDisk); err != nil {
		return 0, fmt.Errorf("encode record header: %w", err)
	}
	buf.Write(data)

	offset := pb.writeOffset
	if _, err := pb.file.WriteAt(buf.Bytes(), offset); err != nil {
		return 0, tfserr.Wrap(tfserr.KindIoError, "block.appendRecord", err)
	}
	pb.writeOffset += need
	return offset, nil
}

// readRecord reads the header and full payload for the record at offset.
func (pb *physicalBlock) readRecord(offset int64) (types.FileHeader, []byte, error) {
	hdrBuf := make([]byte, fileHeaderSize)
	if _, err := pb.file.ReadAt(hdrBuf, offset); err != nil {
		return types.FileHeader{}, nil, tfserr.Wrap(tfserr.KindIoError, "block.readRecord", err)
	}
	var onDisk onDiskFileHeader
	if err := binary.Read(bytes.NewReader(hdrBuf), binary.BigEndian, &onDisk); err != nil {
		return types.FileHeader{}, nil, fmt.Errorf("decode record header: %w", err)
	}

	data := make([]byte, onDisk.Size)
	if _, err := pb.file.ReadAt(data, offset+fileHeaderSize); err != nil {
		return types.FileHeader{}, nil, tfserr.Wrap(tfserr.KindIoError, "block.readRecord", err)
	}

	fh := types.FileHeader{
		FileID:     onDisk.FileID,
		Size:       onDisk.Size,
		Offset:     onDisk.Offset,
		Status:     types.FileinfoFlag(onDisk.Status),
		Crc:        onDisk.Crc,
		CreateTime: time.Unix(0, onDisk.CreateTime),
		ModifyTime: time.Unix(0, onDisk.ModifyTime),
	}
	return fh, data, nil
}

// patchStatus rewrites only the status byte of the record header at
// offset, used by unlink so a status flip never touches the payload.
func (pb *physicalBlock) patchStatus(offset int64, status types.FileinfoFlag, modifyTime time.Time) error {
	statusOff := offset + 8 + 4 + 4 // past FileID, Size, Offset
	if _, err := pb.file.WriteAt([]byte{uint8(status)}, statusOff); err != nil {
		return tfserr.Wrap(tfserr.KindIoError, "block.patchStatus", err)
	}
	mtOff := statusOff + 1 + 4 + 8 // past Status, Crc, CreateTime
	var mt [8]byte
	binary.BigEndian.PutUint64(mt[:], uint64(modifyTime.UnixNano()))
	if _, err := pb.file.WriteAt(mt[:], mtOff); err != nil {
		return tfserr.Wrap(tfserr.KindIoError, "block.patchStatus", err)
	}
	return nil
}

func (pb *physicalBlock) close() error {
	return pb.file.Close()
}

func crc32Of(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
