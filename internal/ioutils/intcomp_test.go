package ioutils

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestCompressRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	properties.Property("decompress(compress(ids)) == ids", prop.ForAll(
		func(input []uint32) bool {
			var buf bytes.Buffer
			if _, err := CompressAndWriteUints32(&buf, input, nil); err != nil {
				return false
			}
			_, n, out, err := ReadAndDecompressUints32(buf.Bytes(), nil)
			if err != nil || n != buf.Len() {
				return false
			}
			if len(out) != len(input) {
				return false
			}
			for i := range input {
				if out[i] != input[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt32()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestDecompressRejectsTruncated(t *testing.T) {
	assert := require.New(t)

	var buf bytes.Buffer
	_, err := CompressAndWriteUints32(&buf, []uint32{1, 2, 3, 100, 200}, nil)
	assert.NoError(err)

	_, _, _, err = ReadAndDecompressUints32(buf.Bytes()[:4], nil)
	assert.Error(err)

	_, _, _, err = ReadAndDecompressUints32(buf.Bytes()[:buf.Len()-4], nil)
	assert.Error(err)
}
