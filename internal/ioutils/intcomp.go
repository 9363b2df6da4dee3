package ioutils

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/ronanh/intcomp"
)

// CompressAndWriteUints32 compresses a slice of uint32 and writes it to w.
// It returns the input buffer (possibly extended) for future use.
func CompressAndWriteUints32(w io.Writer, input []uint32, buffer []uint32) ([]uint32, error) {
	buffer = buffer[:0]
	buffer = intcomp.CompressUint32(input, buffer)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(buffer))); err != nil {
		return buffer, err
	}
	return buffer, binary.Write(w, binary.LittleEndian, buffer)
}

// ReadAndDecompressUints32 reads a compressed slice of uint32 from the start of in
// and decompresses it. It returns the scratch buffer (possibly extended), the number
// of bytes read and the decompressed slice.
func ReadAndDecompressUints32(in []byte, buffer []uint32) ([]uint32, int, []uint32, error) {
	if len(in) < 8 {
		return buffer, 0, nil, errors.New("invalid compressed uint32 section")
	}
	length := binary.LittleEndian.Uint64(in[:8])
	in = in[8:]
	if uint64(len(in)) < 4*length {
		return buffer, 8, nil, errors.New("invalid compressed uint32 section")
	}
	buffer = buffer[:0]
	for i := uint64(0); i < length; i++ {
		buffer = append(buffer, binary.LittleEndian.Uint32(in[4*i:4*i+4]))
	}
	return buffer, 8 + 4*int(length), intcomp.UncompressUint32(buffer, nil), nil
}
