package io

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"strings"

	"seqtag/pkg/model"
	"seqtag/pkg/model/encoder"
	"seqtag/pkg/model/inputter"
)

func init() {
	gob.Register(&inputter.WordEmbeddings{})
	gob.Register(&encoder.BiLSTM{})
	gob.Register(&encoder.LSTM{})
}

// DataRecord is one tokenized sentence with its aligned label ids. Labels is
// nil for unlabeled data.
type DataRecord struct {
	Tokens []string
	Labels []int
}

type DataError struct {
	Line  int
	Error string
}

// LoadSequences reads a features file and an optional labels file holding
// one sentence per line with space-separated entries, aligned line by line.
// Lines with a token/label count mismatch or an unknown label are reported
// as DataError and skipped. A label count mismatch between the two files is
// an error.
func LoadSequences(featuresFileName, labelsFileName string, labels *model.Vocabulary) ([]*DataRecord, []DataError, error) {
	featuresFile, err := os.Open(featuresFileName)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening features file: %w", err)
	}
	defer featuresFile.Close()

	var labelsScanner *bufio.Scanner
	if labelsFileName != "" {
		labelsFile, err := os.Open(labelsFileName)
		if err != nil {
			return nil, nil, fmt.Errorf("error opening labels file: %w", err)
		}
		defer labelsFile.Close()
		labelsScanner = bufio.NewScanner(labelsFile)
	}

	var records []*DataRecord
	var dataErrors []DataError
	currentLine := 0
	featuresScanner := bufio.NewScanner(featuresFile)
	for featuresScanner.Scan() {
		currentLine++
		record := &DataRecord{Tokens: strings.Fields(featuresScanner.Text())}

		if labelsScanner != nil {
			if !labelsScanner.Scan() {
				return nil, nil, fmt.Errorf("labels file %s is shorter than features file %s", labelsFileName, featuresFileName)
			}
			labelTokens := strings.Fields(labelsScanner.Text())
			if len(labelTokens) != len(record.Tokens) {
				dataErrors = append(dataErrors, DataError{
					Line:  currentLine,
					Error: fmt.Sprintf("%d tokens but %d labels", len(record.Tokens), len(labelTokens)),
				})
				continue
			}
			ids, err := lookupLabels(labels, labelTokens)
			if err != nil {
				dataErrors = append(dataErrors, DataError{Line: currentLine, Error: err.Error()})
				continue
			}
			record.Labels = ids
		}

		if len(record.Tokens) == 0 {
			continue
		}
		records = append(records, record)
	}
	if err := featuresScanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("error reading features file %s: %w", featuresFileName, err)
	}
	if labelsScanner != nil && labelsScanner.Scan() && strings.TrimSpace(labelsScanner.Text()) != "" {
		return nil, nil, fmt.Errorf("labels file %s is longer than features file %s", labelsFileName, featuresFileName)
	}

	return records, dataErrors, nil
}

func lookupLabels(labels *model.Vocabulary, labelTokens []string) ([]int, error) {
	ids := make([]int, len(labelTokens))
	for i, label := range labelTokens {
		id, ok := labels.ID(label)
		if !ok {
			return nil, fmt.Errorf("unknown label %s", label)
		}
		ids[i] = id
	}
	return ids, nil
}

// LoadTokens reads whitespace-tokenized sentences, one per line. Blank lines
// yield empty records so that output stays aligned with the input.
func LoadTokens(reader io.Reader) ([]*DataRecord, error) {
	var records []*DataRecord
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		records = append(records, &DataRecord{Tokens: strings.Fields(scanner.Text())})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	return records, nil
}

func SaveModel(m *model.Model, writer io.Writer) error {
	enc := gob.NewEncoder(writer)
	err := enc.Encode(m)
	if err != nil {
		return fmt.Errorf("error encoding model: %w", err)
	}
	return nil
}

func LoadModel(input io.Reader) (*model.Model, error) {
	decoder := gob.NewDecoder(input)
	m := model.Model{}
	err := decoder.Decode(&m)
	if err != nil {
		return nil, fmt.Errorf("error decoding model: %w", err)
	}
	return &m, nil
}
