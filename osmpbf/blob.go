package osmpbf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/ulikunitz/xz/lzma"
)

// Limits from the PBF format description: a sane reader rejects frames
// larger than these before allocating for them.
const (
	maxBlobHeaderSize = 64 * 1024
	maxBlobSize       = 32 * 1024 * 1024
)

// blobReader reads one length-prefixed frame at a time from a byte stream
// and returns the decompressed payload. It has no state beyond the stream
// position and borrows the reader from its owner.
type blobReader struct {
	r      io.Reader
	lenBuf [4]byte
}

func newBlobReader(r io.Reader) *blobReader {
	return &blobReader{r: r}
}

// readBlob reads the next frame, verifies its declared type and returns
// the decompressed payload. It returns io.EOF only on a clean end of
// stream at a frame boundary; a truncated read anywhere else is a
// FormatError.
func (b *blobReader) readBlob(expectedType string) ([]byte, error) {
	if _, err := io.ReadFull(b.r, b.lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, formatErrorf("truncated BlobHeader length prefix")
		}
		return nil, err
	}

	headerLen := binary.BigEndian.Uint32(b.lenBuf[:])
	if headerLen > maxBlobHeaderSize {
		return nil, formatErrorf("BlobHeader of %d bytes exceeds the %d byte limit", headerLen, maxBlobHeaderSize)
	}

	headerData, err := b.readExactly(int(headerLen), "BlobHeader")
	if err != nil {
		return nil, err
	}
	header, err := parseBlobHeader(headerData)
	if err != nil {
		return nil, &FormatError{Msg: "malformed BlobHeader", Err: err}
	}
	if header.Type != expectedType {
		return nil, formatErrorf("expected a BlobHeader of type %q, but got %q", expectedType, header.Type)
	}
	if header.Datasize < 0 || header.Datasize > maxBlobSize {
		return nil, formatErrorf("Blob of %d bytes exceeds the %d byte limit", header.Datasize, maxBlobSize)
	}

	blobData, err := b.readExactly(int(header.Datasize), "Blob")
	if err != nil {
		return nil, err
	}
	blob, err := parseBlob(blobData)
	if err != nil {
		return nil, &FormatError{Msg: "malformed Blob", Err: err}
	}

	return decompressBlob(blob)
}

func (b *blobReader) readExactly(n int, what string) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(b.r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, formatErrorf("truncated %s: wanted %d bytes", what, n)
		}
		return nil, err
	}
	return buf, nil
}

// decompressBlob returns the blob's payload from whichever compression
// field is set. A blob carrying none of the supported fields is a
// FormatError rather than an empty payload.
func decompressBlob(b *blob) ([]byte, error) {
	switch {
	case b.hasRaw:
		return b.Raw, nil

	case b.hasZlib:
		zr, err := zlib.NewReader(bytes.NewReader(b.ZlibData))
		if err != nil {
			return nil, &FormatError{Msg: "corrupt zlib payload", Err: err}
		}
		defer zr.Close()
		return readAllSized(zr, int(b.RawSize))

	case b.hasLzma:
		lr, err := lzma.NewReader(bytes.NewReader(b.LzmaData))
		if err != nil {
			return nil, &FormatError{Msg: "corrupt lzma payload", Err: err}
		}
		return readAllSized(lr, int(b.RawSize))

	default:
		return nil, formatErrorf("blob is empty or uses an unsupported compression")
	}
}

// readAllSized drains r, preallocating for the blob's declared raw size
// when it carries one.
func readAllSized(r io.Reader, sizeHint int) ([]byte, error) {
	if sizeHint <= 0 || sizeHint > maxBlobSize {
		sizeHint = 4 * 1024
	}
	buf := bytes.NewBuffer(make([]byte, 0, sizeHint))
	if _, err := buf.ReadFrom(r); err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &FormatError{Msg: "corrupt compressed payload", Err: err}
	}
	return buf.Bytes(), nil
}
