package event

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MarshalRecords serialises records as a JSON array. A nil slice encodes
// as an empty array so stores never hold "null".
func MarshalRecords(recs []Record) ([]byte, error) {
	if recs == nil {
		recs = []Record{}
	}
	return json.Marshal(recs)
}

// UnmarshalRecords deserialises a JSON array of records. Empty input
// yields an empty result.
func UnmarshalRecords(data []byte) ([]Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("event: unmarshal records: %w", err)
	}
	return recs, nil
}

// LineError reports a line of a JSON-lines stream that is not a record.
// The Decoder stays usable after returning one.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("event: line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Decoder reads records from a stream. The stream is either a single JSON
// array or JSON lines (one object per line), which is what recorders
// emitting over a pipe produce. In a JSON array any syntax error is final;
// in JSON lines a bad line yields a *LineError and decoding resumes on
// the next line.
type Decoder struct {
	r     *bufio.Reader
	dec   *json.Decoder
	array bool
	init  bool
	line  int
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next record, or io.EOF when the stream is exhausted.
func (d *Decoder) Next() (Record, error) {
	if !d.init {
		if err := d.start(); err != nil {
			return Record{}, err
		}
	}
	if !d.array {
		return d.nextLine()
	}

	if !d.dec.More() {
		// Consume the closing bracket.
		if _, err := d.dec.Token(); err != nil && !errors.Is(err, io.EOF) {
			return Record{}, fmt.Errorf("event: decode: %w", err)
		}
		return Record{}, io.EOF
	}

	var rec Record
	if err := d.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("event: decode: %w", err)
	}
	return rec, nil
}

func (d *Decoder) nextLine() (Record, error) {
	for {
		raw, err := d.r.ReadBytes('\n')
		if len(raw) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, fmt.Errorf("event: decode: %w", err)
		}
		d.line++
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if uerr := json.Unmarshal(raw, &rec); uerr != nil {
			return Record{}, &LineError{Line: d.line, Err: uerr}
		}
		return rec, nil
	}
}

// All drains the decoder. It stops at the first error, bad lines included.
func (d *Decoder) All() ([]Record, error) {
	var out []Record
	for {
		rec, err := d.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

func (d *Decoder) start() error {
	d.init = true

	// Peek past whitespace to see whether the stream is an array.
	for {
		b, err := d.r.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return fmt.Errorf("event: decode: %w", err)
		}
		switch b[0] {
		case ' ', '\t', '\r':
			d.r.ReadByte()
			continue
		case '\n':
			d.r.ReadByte()
			d.line++
			continue
		case '[':
			d.array = true
			d.dec = json.NewDecoder(d.r)
			if _, err := d.dec.Token(); err != nil {
				return fmt.Errorf("event: decode: %w", err)
			}
		}
		return nil
	}
}
