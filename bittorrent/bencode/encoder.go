package bencode

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// Encoder writes bencoded values to an output stream.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the bencoding of v to the stream.
func (enc *Encoder) Encode(v interface{}) error {
	return marshal(enc.w, v)
}

// Marshal returns the bencoding of v.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	err := marshal(&buf, v)
	return buf.Bytes(), err
}

// Marshaler is implemented by types that encode themselves.
type Marshaler interface {
	MarshalBencode() ([]byte, error)
}

func marshal(w io.Writer, data interface{}) error {
	switch v := data.(type) {
	case Marshaler:
		b, err := v.MarshalBencode()
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err

	case Dict:
		return marshalDict(w, v)

	case List:
		return marshalList(w, []interface{}(v))

	case map[string]interface{}:
		return marshalDict(w, Dict(v))

	case []interface{}:
		return marshalList(w, v)

	case []Dict:
		l := make([]interface{}, len(v))
		for i, d := range v {
			l[i] = d
		}
		return marshalList(w, l)

	case []byte:
		return marshalBytes(w, v)

	case string:
		return marshalBytes(w, []byte(v))

	case []string:
		l := make([]interface{}, len(v))
		for i, s := range v {
			l[i] = s
		}
		return marshalList(w, l)

	case int:
		return marshalInt(w, int64(v))
	case int16:
		return marshalInt(w, int64(v))
	case int32:
		return marshalInt(w, int64(v))
	case int64:
		return marshalInt(w, v)
	case uint:
		return marshalUint(w, uint64(v))
	case uint16:
		return marshalUint(w, uint64(v))
	case uint32:
		return marshalUint(w, uint64(v))
	case uint64:
		return marshalUint(w, v)

	case time.Duration:
		return marshalInt(w, int64(v/time.Second))

	default:
		return fmt.Errorf("bencode: cannot marshal unsupported type %T", v)
	}
}

func marshalInt(w io.Writer, v int64) error {
	_, err := fmt.Fprintf(w, "i%de", v)
	return err
}

func marshalUint(w io.Writer, v uint64) error {
	_, err := fmt.Fprintf(w, "i%de", v)
	return err
}

func marshalBytes(w io.Writer, v []byte) error {
	if _, err := io.WriteString(w, strconv.Itoa(len(v))+":"); err != nil {
		return err
	}
	_, err := w.Write(v)
	return err
}

func marshalList(w io.Writer, v []interface{}) error {
	if _, err := io.WriteString(w, "l"); err != nil {
		return err
	}
	for _, val := range v {
		if err := marshal(w, val); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "e")
	return err
}

func marshalDict(w io.Writer, v Dict) error {
	if _, err := io.WriteString(w, "d"); err != nil {
		return err
	}

	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := marshalBytes(w, []byte(k)); err != nil {
			return err
		}
		if err := marshal(w, v[k]); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "e")
	return err
}
