package p2p

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/pkg/errors"
)

// MaxMessageSize 单帧上限
const MaxMessageSize = 10 * 1024 * 1024

// writeFrame 写入 [4字节长度][数据]
func writeFrame(stream network.Stream, data []byte) error {
	if len(data) > MaxMessageSize {
		return errors.Errorf("message size %d exceeds maximum %d", len(data), MaxMessageSize)
	}
	lengthBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lengthBuf, uint32(len(data)))
	if _, err := stream.Write(lengthBuf); err != nil {
		return errors.Wrap(err, "failed to write frame length")
	}
	if _, err := stream.Write(data); err != nil {
		return errors.Wrap(err, "failed to write frame data")
	}
	return nil
}

// readFrame 读取一帧
func readFrame(stream network.Stream) ([]byte, error) {
	reader := bufio.NewReader(stream)
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(reader, lengthBuf); err != nil {
		return nil, errors.Wrap(err, "failed to read frame length")
	}
	length := binary.BigEndian.Uint32(lengthBuf)
	if length > MaxMessageSize {
		return nil, errors.Errorf("message size %d exceeds maximum %d", length, MaxMessageSize)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, errors.Wrap(err, "failed to read frame data")
	}
	return data, nil
}
