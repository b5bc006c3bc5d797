/*
Package wire implements the framing used between clients and the relay
server: a 4-byte big-endian length prefix followed by one JSON-encoded
payload of that many bytes.

The codec does not interpret field semantics beyond checking that a decoded
frame is a JSON object with a known TYPE.
*/
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the largest accepted payload body. An oversized length
// header is evidence of a corrupted or hostile peer, so the connection is
// torn down rather than resynchronized.
const MaxFrameSize = 10 << 20

// The error returned when a frame length exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame too large")

// The error returned when a frame body is not a usable payload.
var ErrProtocol = errors.New("protocol error")

// Encoder writes framed payloads to a stream.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one frame. A payload that serializes beyond MaxFrameSize
// fails with ErrFrameTooLarge before anything is written.
func (e *Encoder) Encode(p *Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := e.w.Write(header[:]); err != nil {
		return err
	}
	_, err = e.w.Write(body)
	return err
}

// Decoder reads framed payloads from a stream.
type Decoder struct {
	r io.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode blocks until a whole frame is available or the stream ends.
// A clean close at a frame boundary returns io.EOF; a close mid-frame
// returns io.ErrUnexpectedEOF. Both are fatal to the stream.
func (d *Decoder) Decode() (*Payload, error) {
	var header [4]byte
	if _, err := io.ReadFull(d.r, header[:]); err != nil {
		// A partial header surfaces as io.ErrUnexpectedEOF: the peer died
		// mid-frame. Other errors pass through untouched.
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(d.r, body); err != nil {
		if err == io.EOF {
			// The stream ended between header and body.
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProtocol, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
