package model

import "fmt"

// Metadata holds the data configuration a model was initialized with: a
// mapping from configuration keys to file paths. Vocabulary files are
// resolved against it by the models that own the corresponding keys.
type Metadata struct {
	DataConfig map[string]string
}

func NewMetadata(dataConfig map[string]string) *Metadata {
	return &Metadata{DataConfig: dataConfig}
}

// Resolve returns the file path registered under key.
func (m *Metadata) Resolve(key string) (string, error) {
	path, ok := m.DataConfig[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in data configuration", key)
	}
	return path, nil
}
