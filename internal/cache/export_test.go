package cache

import (
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

func encodeRaw(w io.Writer, e *Entry) error {
	return msgpack.NewEncoder(w).Encode(e)
}
