package packet

import "fmt"

// Packet is implemented by every wire message.
type Packet interface {
	Opcode() Opcode
	Encode(w *Writer)
}

// Decoder is implemented by pointers to wire messages.
type Decoder interface {
	Decode(r *Reader)
}

// Marshal serializes p with its opcode prefix. It fails when a string or
// array does not fit its u16 prefix.
func Marshal(p Packet) ([]byte, error) {
	w := NewWriterWithOpcode(p.Opcode())
	p.Encode(w)
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("encode %s: %w", p.Opcode(), err)
	}
	return w.Bytes(), nil
}

// MustMarshal is Marshal for packets known to fit.
func MustMarshal(p Packet) []byte {
	data, err := Marshal(p)
	if err != nil {
		panic(err)
	}
	return data
}

// Unmarshal decodes data into p after checking the opcode. The whole payload
// must be consumed.
func Unmarshal[P interface {
	Packet
	Decoder
}](data []byte, p P) error {
	r := NewReader(data)
	if err := r.Err(); err != nil {
		return err
	}
	if op := Opcode(r.Opcode()); op != p.Opcode() {
		return fmt.Errorf("%w: opcode %s, want %s", ErrInvalidValue, op, p.Opcode())
	}
	p.Decode(r)
	return r.Finish()
}
