package reader

import (
	"math"

	"howett.net/plist"

	"github.com/ajkula/plistener/domain/model"
)

// handles xml, binary and openstep property lists
func (r *Reader) decodePlist(path string, data []byte) (model.Value, error) {
	var native any
	if _, err := plist.Unmarshal(data, &native); err != nil {
		return nil, err
	}

	wide := 0
	native = normalizePlist(native, &wide)
	if wide > 0 {
		r.logger.Warn("Unsigned integers beyond int64 stored as reals", "path", path, "count", wide)
	}
	return model.FromNative(native)
}

// keyed archives carry UIDs, which have no tree equivalent. Unsigned values
// above the int64 range become float64 and are counted in wide.
func normalizePlist(v any, wide *int) any {
	switch tv := v.(type) {
	case plist.UID:
		return normalizePlist(uint64(tv), wide)
	case uint64:
		if tv > math.MaxInt64 {
			*wide++
			return float64(tv)
		}
	case []any:
		for i := range tv {
			tv[i] = normalizePlist(tv[i], wide)
		}
	case map[string]any:
		for k := range tv {
			tv[k] = normalizePlist(tv[k], wide)
		}
	}
	return v
}
