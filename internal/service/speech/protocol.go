package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// ProtocolVersion 二进制帧协议版本
const ProtocolVersion = 0b0001

// MessageType 帧类型
type MessageType uint8

const (
	FullClientRequest  MessageType = 0b0001
	AudioOnlyRequest   MessageType = 0b0010
	FullServerResponse MessageType = 0b1001
	ErrorMessage       MessageType = 0b1111
)

// MessageFlags 描述 header 之后是否携带序号以及是否为最后一包
type MessageFlags uint8

const (
	NoSequenceNumber       MessageFlags = 0b0000
	PositiveSequenceNumber MessageFlags = 0b0001
	LastPacketNoSequence   MessageFlags = 0b0010
	NegativeSequenceNumber MessageFlags = 0b0011
)

type SerializationMethod uint8

const (
	NoSerialization   SerializationMethod = 0b0000
	JSONSerialization SerializationMethod = 0b0001
)

type CompressionMethod uint8

const (
	NoCompression   CompressionMethod = 0b0000
	GzipCompression CompressionMethod = 0b0001
)

// Header 4 字节帧头
type Header struct {
	MessageType         MessageType
	MessageFlags        MessageFlags
	SerializationMethod SerializationMethod
	CompressionMethod   CompressionMethod
}

// Frame 一个完整的二进制帧
type Frame struct {
	Header    Header
	Sequence  int32
	ErrorCode uint32
	Payload   []byte
}

func (h Header) encode() []byte {
	return []byte{
		ProtocolVersion<<4 | 0b0001, // 头长度为 1 个 4 字节单元
		uint8(h.MessageType)<<4 | uint8(h.MessageFlags),
		uint8(h.SerializationMethod)<<4 | uint8(h.CompressionMethod),
		0x00,
	}
}

func (f *Frame) hasSequence() bool {
	switch f.Header.MessageFlags {
	case PositiveSequenceNumber, NegativeSequenceNumber:
		return true
	default:
		return false
	}
}

// IsLast 判断是否为最后一包
func (f *Frame) IsLast() bool {
	switch f.Header.MessageFlags {
	case LastPacketNoSequence, NegativeSequenceNumber:
		return true
	default:
		return false
	}
}

// EncodeFrame 序列化帧；payload 按 header 声明的方式压缩。
func EncodeFrame(f *Frame) ([]byte, error) {
	payload := f.Payload
	if f.Header.CompressionMethod == GzipCompression {
		var err error
		if payload, err = gzipBytes(payload); err != nil {
			return nil, err
		}
	}

	buf := bytes.NewBuffer(make([]byte, 0, 12+len(payload)))
	buf.Write(f.Header.encode())
	if f.hasSequence() {
		_ = binary.Write(buf, binary.BigEndian, f.Sequence)
	}
	if f.Header.MessageType == ErrorMessage {
		_ = binary.Write(buf, binary.BigEndian, f.ErrorCode)
	}
	_ = binary.Write(buf, binary.BigEndian, uint32(len(payload)))
	buf.Write(payload)
	return buf.Bytes(), nil
}

// DecodeFrame 解析一帧，并解压 payload。
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	if version := data[0] >> 4; version != ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", version)
	}

	headerSize := int(data[0]&0x0F) * 4
	if headerSize < 4 || len(data) < headerSize {
		return nil, fmt.Errorf("invalid header size: %d", headerSize)
	}

	f := &Frame{Header: Header{
		MessageType:         MessageType(data[1] >> 4),
		MessageFlags:        MessageFlags(data[1] & 0x0F),
		SerializationMethod: SerializationMethod(data[2] >> 4),
		CompressionMethod:   CompressionMethod(data[2] & 0x0F),
	}}

	r := bytes.NewReader(data[headerSize:])
	if f.hasSequence() {
		if err := binary.Read(r, binary.BigEndian, &f.Sequence); err != nil {
			return nil, fmt.Errorf("read sequence: %w", err)
		}
	}
	if f.Header.MessageType == ErrorMessage {
		if err := binary.Read(r, binary.BigEndian, &f.ErrorCode); err != nil {
			return nil, fmt.Errorf("read error code: %w", err)
		}
	}

	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return nil, fmt.Errorf("read payload size: %w", err)
	}
	if int64(size) > int64(r.Len()) {
		return nil, fmt.Errorf("payload truncated: want %d bytes, have %d", size, r.Len())
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if f.Header.CompressionMethod == GzipCompression && len(payload) > 0 {
		var err error
		if payload, err = gunzipBytes(payload); err != nil {
			return nil, err
		}
	}
	f.Payload = payload
	return f, nil
}

// newConfigFrame 构造携带识别参数的首帧
func newConfigFrame(payload []byte) *Frame {
	return &Frame{
		Header: Header{
			MessageType:         FullClientRequest,
			MessageFlags:        NoSequenceNumber,
			SerializationMethod: JSONSerialization,
			CompressionMethod:   GzipCompression,
		},
		Payload: payload,
	}
}

// newAudioFrame 构造音频帧；最后一包的序号取负。
func newAudioFrame(chunk []byte, sequence int32, last bool) *Frame {
	flags := PositiveSequenceNumber
	if last {
		flags = NegativeSequenceNumber
		sequence = -sequence
	}
	return &Frame{
		Header: Header{
			MessageType:         AudioOnlyRequest,
			MessageFlags:        flags,
			SerializationMethod: NoSerialization,
			CompressionMethod:   GzipCompression,
		},
		Sequence: sequence,
		Payload:  chunk,
	}
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader creation failed: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read failed: %w", err)
	}
	return out, nil
}
