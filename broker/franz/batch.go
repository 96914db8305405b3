package franz

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/covey-io/covey/broker"
)

// Kafka compression types (bits 0-2 of the batch attributes).
const (
	compressionNone   = 0
	compressionGzip   = 1
	compressionSnappy = 2
	compressionLz4    = 3
	compressionZstd   = 4
)

// isControlBit marks transaction control batches (bit 5 of attributes).
const isControlBit = 0x20

// batchHeaderLen is the fixed v2 record batch header size:
// baseOffset(8) batchLength(4) partitionLeaderEpoch(4) magic(1) crc(4)
// attributes(2) lastOffsetDelta(4) firstTimestamp(8) maxTimestamp(8)
// producerId(8) producerEpoch(2) firstSequence(4) recordCount(4).
const batchHeaderLen = 61

// decodeBatches walks the concatenated record batches of a fetch response
// partition, dropping records below the cursor offset. A truncated trailing
// batch (the broker may cut at max_bytes) ends the walk cleanly.
func decodeBatches(data []byte, topic string, partition int32, cursor int64) ([]broker.Message, error) {
	var msgs []broker.Message
	pos := 0
	for pos+12 <= len(data) {
		batchLen := int(binary.BigEndian.Uint32(data[pos+8 : pos+12]))
		total := 12 + batchLen
		if batchLen <= 0 || pos+total > len(data) {
			break
		}
		batch := data[pos : pos+total]
		pos += total

		decoded, err := decodeBatch(batch, topic, partition, cursor)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, decoded...)
	}
	return msgs, nil
}

// decodeBatch parses one v2 record batch, decompressing as needed.
func decodeBatch(batch []byte, topic string, partition int32, cursor int64) ([]broker.Message, error) {
	if len(batch) < batchHeaderLen {
		return nil, errors.New("record batch too small")
	}

	baseOffset := int64(binary.BigEndian.Uint64(batch[0:8]))
	magic := batch[16]
	if magic != 2 {
		return nil, fmt.Errorf("unsupported record batch magic %d", magic)
	}
	attributes := int16(binary.BigEndian.Uint16(batch[21:23]))
	recordCount := int32(binary.BigEndian.Uint32(batch[57:61]))

	if attributes&isControlBit != 0 {
		return nil, nil
	}
	if recordCount <= 0 {
		return nil, nil
	}

	recordsData := batch[batchHeaderLen:]
	if compression := int(attributes & 0x07); compression != compressionNone {
		decompressed, err := decompressRecords(recordsData, compression)
		if err != nil {
			return nil, fmt.Errorf("decompressing records: %w", err)
		}
		recordsData = decompressed
	}

	msgs := make([]broker.Message, 0, recordCount)
	pos := 0
	for i := int32(0); i < recordCount; i++ {
		if pos >= len(recordsData) {
			return nil, fmt.Errorf("unexpected end of records at index %d", i)
		}
		msg, n, err := parseRecord(recordsData[pos:], topic, partition, baseOffset)
		if err != nil {
			return nil, fmt.Errorf("parsing record %d: %w", i, err)
		}
		pos += n
		if msg.Offset < cursor {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// decompressRecords decompresses the records section of a batch.
func decompressRecords(data []byte, compressionType int) ([]byte, error) {
	switch compressionType {
	case compressionGzip:
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)

	case compressionSnappy:
		return snappy.Decode(nil, data)

	case compressionLz4:
		reader := lz4.NewReader(bytes.NewReader(data))
		return io.ReadAll(reader)

	case compressionZstd:
		decoder, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer decoder.Close()
		return io.ReadAll(decoder)

	default:
		return nil, fmt.Errorf("unsupported compression type: %d", compressionType)
	}
}

// parseRecord parses a single v2 record:
// length(varint) attributes(1) timestampDelta(varint) offsetDelta(varint)
// keyLen(varint) key valueLen(varint) value headerCount(varint) headers.
// Headers are skipped; the record's absolute offset is baseOffset+offsetDelta.
func parseRecord(data []byte, topic string, partition int32, baseOffset int64) (broker.Message, int, error) {
	pos := 0

	recordLen, n := readVarint(data[pos:])
	if n <= 0 {
		return broker.Message{}, 0, errors.New("failed to read record length")
	}
	pos += n
	if recordLen < 0 || pos+int(recordLen) > len(data) {
		return broker.Message{}, 0, errors.New("record truncated")
	}
	end := pos + int(recordLen)

	// attributes byte, unused
	if pos >= end {
		return broker.Message{}, 0, errors.New("unexpected end of record at attributes")
	}
	pos++

	// timestampDelta
	if _, n = readVarint(data[pos:]); n <= 0 {
		return broker.Message{}, 0, errors.New("failed to read timestamp delta")
	}
	pos += n

	offsetDelta, n := readVarint(data[pos:])
	if n <= 0 {
		return broker.Message{}, 0, errors.New("failed to read offset delta")
	}
	pos += n

	keyLen, n := readVarint(data[pos:])
	if n <= 0 {
		return broker.Message{}, 0, errors.New("failed to read key length")
	}
	pos += n
	var key []byte
	if keyLen >= 0 {
		if pos+int(keyLen) > end {
			return broker.Message{}, 0, errors.New("key truncated")
		}
		key = append([]byte(nil), data[pos:pos+int(keyLen)]...)
		pos += int(keyLen)
	}

	valueLen, n := readVarint(data[pos:])
	if n <= 0 {
		return broker.Message{}, 0, errors.New("failed to read value length")
	}
	pos += n
	var value []byte
	if valueLen >= 0 {
		if pos+int(valueLen) > end {
			return broker.Message{}, 0, errors.New("value truncated")
		}
		value = append([]byte(nil), data[pos:pos+int(valueLen)]...)
		pos += int(valueLen)
	}

	msg := broker.Message{
		Topic:     topic,
		Partition: partition,
		Offset:    baseOffset + offsetDelta,
		Key:       key,
		Value:     value,
	}
	return msg, end, nil
}

// readVarint reads a zigzag-encoded signed varint, returning the value and
// the number of bytes consumed (0 on malformed input).
func readVarint(data []byte) (int64, int) {
	var uv uint64
	var shift uint
	var bytesRead int

	for i := 0; i < len(data) && i < 10; i++ {
		b := data[i]
		uv |= uint64(b&0x7F) << shift
		bytesRead++
		if b&0x80 == 0 {
			// zigzag decode
			return int64((uv >> 1) ^ -(uv & 1)), bytesRead
		}
		shift += 7
	}
	return 0, 0
}
