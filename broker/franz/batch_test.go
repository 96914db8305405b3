package franz

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"testing"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appendVarint appends a zigzag-encoded signed varint.
func appendVarint(buf []byte, v int64) []byte {
	uv := uint64((v << 1) ^ (v >> 63))
	for uv >= 0x80 {
		buf = append(buf, byte(uv)|0x80)
		uv >>= 7
	}
	return append(buf, byte(uv))
}

// encodeRecord builds one v2 record with the given offset delta, key, and value.
func encodeRecord(offsetDelta int64, key, value []byte) []byte {
	var body []byte
	body = append(body, 0) // attributes
	body = appendVarint(body, 0) // timestampDelta
	body = appendVarint(body, offsetDelta)
	if key == nil {
		body = appendVarint(body, -1)
	} else {
		body = appendVarint(body, int64(len(key)))
		body = append(body, key...)
	}
	if value == nil {
		body = appendVarint(body, -1)
	} else {
		body = appendVarint(body, int64(len(value)))
		body = append(body, value...)
	}
	body = appendVarint(body, 0) // headerCount

	var rec []byte
	rec = appendVarint(rec, int64(len(body)))
	return append(rec, body...)
}

// encodeBatch builds a v2 record batch around pre-encoded records.
func encodeBatch(baseOffset int64, attributes int16, recordCount int32, records []byte) []byte {
	buf := make([]byte, batchHeaderLen)
	binary.BigEndian.PutUint64(buf[0:8], uint64(baseOffset))
	buf[16] = 2 // magic
	binary.BigEndian.PutUint16(buf[21:23], uint16(attributes))
	binary.BigEndian.PutUint64(buf[43:51], ^uint64(0)) // producerId -1
	binary.BigEndian.PutUint32(buf[57:61], uint32(recordCount))
	buf = append(buf, records...)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(buf)-12)) // batchLength
	return buf
}

func TestDecodeBatches_Uncompressed(t *testing.T) {
	records := append(
		encodeRecord(0, []byte("k0"), []byte("v0")),
		encodeRecord(1, nil, []byte("v1"))...,
	)
	batch := encodeBatch(10, 0, 2, records)

	msgs, err := decodeBatches(batch, "events", 3, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, int64(10), msgs[0].Offset)
	assert.Equal(t, []byte("k0"), msgs[0].Key)
	assert.Equal(t, []byte("v0"), msgs[0].Value)
	assert.Equal(t, "events", msgs[0].Topic)
	assert.Equal(t, int32(3), msgs[0].Partition)

	assert.Equal(t, int64(11), msgs[1].Offset)
	assert.Nil(t, msgs[1].Key)
}

func TestDecodeBatches_DropsRecordsBelowCursor(t *testing.T) {
	records := append(
		encodeRecord(0, nil, []byte("old")),
		encodeRecord(1, nil, []byte("new"))...,
	)
	batch := encodeBatch(5, 0, 2, records)

	msgs, err := decodeBatches(batch, "events", 0, 6)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(6), msgs[0].Offset)
	assert.Equal(t, []byte("new"), msgs[0].Value)
}

func TestDecodeBatches_Gzip(t *testing.T) {
	records := encodeRecord(0, []byte("k"), []byte("compressed-value"))

	var compressed bytes.Buffer
	w := gzip.NewWriter(&compressed)
	_, err := w.Write(records)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	batch := encodeBatch(0, compressionGzip, 1, compressed.Bytes())

	msgs, err := decodeBatches(batch, "events", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("compressed-value"), msgs[0].Value)
}

func TestDecodeBatches_Snappy(t *testing.T) {
	records := encodeRecord(0, nil, []byte("snappy-value"))
	batch := encodeBatch(7, compressionSnappy, 1, snappy.Encode(nil, records))

	msgs, err := decodeBatches(batch, "events", 1, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(7), msgs[0].Offset)
	assert.Equal(t, []byte("snappy-value"), msgs[0].Value)
}

func TestDecodeBatches_MultipleBatches(t *testing.T) {
	first := encodeBatch(0, 0, 1, encodeRecord(0, nil, []byte("a")))
	second := encodeBatch(1, 0, 1, encodeRecord(0, nil, []byte("b")))

	msgs, err := decodeBatches(append(first, second...), "events", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(0), msgs[0].Offset)
	assert.Equal(t, int64(1), msgs[1].Offset)
}

func TestDecodeBatches_TruncatedTrailingBatch(t *testing.T) {
	full := encodeBatch(0, 0, 1, encodeRecord(0, nil, []byte("whole")))
	truncated := encodeBatch(1, 0, 1, encodeRecord(0, nil, []byte("partial")))

	data := append(full, truncated[:len(truncated)-5]...)
	msgs, err := decodeBatches(data, "events", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1, "the partial trailing batch must be ignored")
	assert.Equal(t, []byte("whole"), msgs[0].Value)
}

func TestDecodeBatches_SkipsControlBatch(t *testing.T) {
	control := encodeBatch(0, isControlBit, 1, encodeRecord(0, nil, []byte("abort-marker")))
	data := append(control, encodeBatch(1, 0, 1, encodeRecord(0, nil, []byte("data")))...)

	msgs, err := decodeBatches(data, "events", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("data"), msgs[0].Value)
}

func TestDecodeBatch_BadMagic(t *testing.T) {
	batch := encodeBatch(0, 0, 1, encodeRecord(0, nil, []byte("x")))
	batch[16] = 1

	_, err := decodeBatches(batch, "events", 0, 0)
	assert.Error(t, err)
}

func TestReadVarint(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 63, -64, 300, -300, 1 << 20} {
		buf := appendVarint(nil, v)
		got, n := readVarint(buf)
		assert.Equal(t, v, got)
		assert.Equal(t, len(buf), n)
	}

	// Malformed: continuation bit on every byte.
	_, n := readVarint([]byte{0x80, 0x80})
	assert.Equal(t, 0, n)
}
