package client

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/luciancaetano/wsockets"
)

// reassembler turns provider frames into messages. Streamed payloads are read to
// completion into a pooled scratch buffer before a message is produced.
type reassembler struct {
	limit int64
	pool  sync.Pool
}

func newReassembler(limit int64) *reassembler {
	return &reassembler{
		limit: limit,
		pool: sync.Pool{
			New: func() any {
				return new(bytes.Buffer)
			},
		},
	}
}

func (r *reassembler) decode(frame wsockets.Frame) (wsockets.Message, error) {
	switch frame.Type {
	case wsockets.TextMessage:
		if frame.Reader == nil {
			if err := r.check(int64(len(frame.Data))); err != nil {
				return wsockets.Message{}, err
			}
			return wsockets.NewTextMessage(string(frame.Data)), nil
		}
		var text string
		err := r.read(frame.Reader, func(b []byte) { text = string(b) })
		if err != nil {
			return wsockets.Message{}, err
		}
		return wsockets.NewTextMessage(text), nil

	case wsockets.BinaryMessage:
		if frame.Reader == nil {
			if err := r.check(int64(len(frame.Data))); err != nil {
				return wsockets.Message{}, err
			}
			return wsockets.NewBinaryMessage(frame.Data), nil
		}
		var msg wsockets.Message
		err := r.read(frame.Reader, func(b []byte) { msg = wsockets.NewBinaryMessage(b) })
		if err != nil {
			return wsockets.Message{}, err
		}
		return msg, nil

	default:
		return wsockets.Message{}, fmt.Errorf("%s: %v", wsockets.ErrMsgUnexpectedFrame, frame.Type)
	}
}

// read drains src into a pooled buffer and hands the bytes to build.
// build must copy what it keeps; the buffer is reused afterwards.
func (r *reassembler) read(src io.Reader, build func([]byte)) error {
	buf := r.pool.Get().(*bytes.Buffer)
	buf.Reset()
	defer r.pool.Put(buf)

	// One byte past the limit is enough to tell an oversized payload apart
	if r.limit > 0 && r.limit < math.MaxInt64 {
		src = io.LimitReader(src, r.limit+1)
	}
	n, err := buf.ReadFrom(src)
	if err != nil {
		return fmt.Errorf("%s: %w", wsockets.ErrMsgReassembly, err)
	}
	if err := r.check(n); err != nil {
		return err
	}

	build(buf.Bytes())
	return nil
}

func (r *reassembler) check(n int64) error {
	if r.limit > 0 && n > r.limit {
		return &wsockets.SizeError{Limit: r.limit}
	}
	return nil
}
