package pkg

import (
	"fmt"

	"github.com/spf13/viper"

	"seqtag/pkg/model"
)

// Data configuration keys resolved against the model metadata.
const (
	WordsVocabularyKey  = "words_vocabulary"
	LabelsVocabularyKey = "labels_vocabulary"
)

// LoadMetadata reads the data configuration file. The file holds a "data"
// section mapping configuration keys to file paths:
//
//	data:
//	  words_vocabulary: /path/to/words.vocab
//	  labels_vocabulary: /path/to/labels.vocab
func LoadMetadata(configFileName string) (*model.Metadata, error) {
	v := viper.New()
	v.SetConfigFile(configFileName)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading data configuration %s: %w", configFileName, err)
	}
	dataConfig := v.GetStringMapString("data")
	if len(dataConfig) == 0 {
		return nil, fmt.Errorf("data configuration %s has no data section", configFileName)
	}
	return model.NewMetadata(dataConfig), nil
}
