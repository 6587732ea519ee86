package reader

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/ajkula/plistener/domain/model"
)

// numbers are kept as json.Number so integers stay Int
func decodeJSON(_ string, data []byte) (model.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var native any
	if err := dec.Decode(&native); err != nil {
		return nil, err
	}
	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return model.FromNative(native)
}
