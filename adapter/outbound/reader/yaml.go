package reader

import (
	"gopkg.in/yaml.v3"

	"github.com/ajkula/plistener/adapter/outbound/codec"
	"github.com/ajkula/plistener/domain/model"
)

func decodeYAML(_ string, data []byte) (model.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return codec.NodeToValue(&doc)
}
