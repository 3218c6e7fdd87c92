package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/RichardoC/portfolio-chat/internal/models"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
	maxLineSize  = 1 << 20
)

var ErrLineTooLong = errors.New("sse: line exceeds maximum size")

// payload covers every frame shape; pointers tell absent from empty.
type payload struct {
	ResponseID *string `json:"responseId"`
	Content    *string `json:"content"`
	Done       bool    `json:"done"`
	Error      bool    `json:"error"`
	Message    string  `json:"message"`
}

// Reader decodes data frames from a byte stream. Bytes are buffered until a
// newline is seen, so frames and multi-byte characters split across reads
// are reassembled. A trailing line without a newline is dropped at EOF.
type Reader struct {
	br  *bufio.Reader
	err error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 4096)}
}

// Next returns the next recognised event. Lines that are not data frames,
// malformed JSON and unknown payload shapes are skipped. It returns io.EOF
// once the underlying reader is exhausted.
func (r *Reader) Next() (models.StreamEvent, error) {
	for {
		if r.err != nil {
			return models.StreamEvent{}, r.err
		}
		line, err := r.readLine()
		if err != nil {
			r.err = err
			return models.StreamEvent{}, err
		}
		ev, ok := Decode(line)
		if ok {
			return ev, nil
		}
	}
}

func (r *Reader) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := r.br.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > maxLineSize {
			return nil, ErrLineTooLong
		}
		switch {
		case err == nil:
			return bytes.TrimRight(buf, "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			// Incomplete trailing line is discarded.
			return nil, err
		}
	}
}

// Decode classifies a single line. ok is false for anything that should be
// ignored.
func Decode(line []byte) (models.StreamEvent, bool) {
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return models.StreamEvent{}, false
	}
	data := bytes.TrimSpace(line[len(dataPrefix):])
	if string(data) == doneSentinel {
		return models.StreamEvent{}, false
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.StreamEvent{}, false
	}

	content := ""
	if p.Content != nil {
		content = *p.Content
	}
	if p.Error && content == "" {
		content = p.Message
	}

	switch {
	case p.ResponseID != nil && *p.ResponseID != "" && content == "" && !p.Done:
		return models.StreamEvent{Kind: models.EventToken, ResponseID: *p.ResponseID}, true
	case p.Done:
		return models.StreamEvent{Kind: models.EventDone, Content: content, Error: p.Error}, true
	case p.Content != nil && content != "":
		return models.StreamEvent{Kind: models.EventDelta, Content: content}, true
	default:
		return models.StreamEvent{}, false
	}
}
