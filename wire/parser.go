package wire

import "bytes"

type parserState int

const (
	stateHeaders parserState = iota
	stateBody
	stateComplete
)

// Parser is a restartable state machine that assembles exactly one framed
// message from a byte stream. Once the message is extracted the instance is
// consumed; the Decoder chains fresh parsers for subsequent messages.
//
// The parser expects LF line endings; the transport normalizes CRLF before
// bytes reach it.
type Parser struct {
	state parserState
	hbuf  []byte
	need  int
	msg   *Message
}

// NewParser returns a parser ready for the first byte of a message.
func NewParser() *Parser {
	return &Parser{msg: &Message{}}
}

// Feed consumes one byte. It reports true when the message is complete;
// further bytes belong to the next message and must go to a fresh parser.
func (p *Parser) Feed(b byte) (bool, error) {
	switch p.state {
	case stateHeaders:
		p.hbuf = append(p.hbuf, b)
		if b != '\n' {
			return false, nil
		}
		n := len(p.hbuf)
		if n < 2 || p.hbuf[n-2] != '\n' {
			return false, nil
		}
		parseHeaderBlock(p.msg, bytes.TrimSuffix(p.hbuf, []byte("\n\n")))
		length, err := p.msg.contentLength()
		if err != nil {
			return false, err
		}
		if length == 0 {
			p.state = stateComplete
			return true, nil
		}
		p.need = length
		p.msg.body = make([]byte, 0, length)
		p.msg.hasBody = true
		p.state = stateBody
		return false, nil

	case stateBody:
		p.msg.body = append(p.msg.body, b)
		if len(p.msg.body) == p.need {
			p.state = stateComplete
			return true, nil
		}
		return false, nil

	default:
		return true, &ProtocolError{Reason: "byte fed to a completed parser"}
	}
}

// Message extracts the completed message. It returns nil before completion
// and on every call after the first extraction.
func (p *Parser) Message() *Message {
	if p.state != stateComplete {
		return nil
	}
	m := p.msg
	p.msg = nil
	return m
}

// Decoder turns arbitrary byte chunks into framed messages by chaining
// parsers. Chunk boundaries are irrelevant; a single Write may yield zero
// or many messages.
type Decoder struct {
	p *Parser
}

// NewDecoder returns a decoder positioned at a message boundary.
func NewDecoder() *Decoder {
	return &Decoder{p: NewParser()}
}

// Write feeds a chunk and returns the messages completed by it. A framing
// error is fatal: the decoder must not be used afterwards.
func (d *Decoder) Write(chunk []byte) ([]*Message, error) {
	var out []*Message
	for _, b := range chunk {
		done, err := d.p.Feed(b)
		if err != nil {
			return out, err
		}
		if done {
			out = append(out, d.p.Message())
			d.p = NewParser()
		}
	}
	return out, nil
}
