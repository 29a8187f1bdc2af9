package model

import (
	"bufio"
	"fmt"
	"os"
)

// Vocabulary is an ordered list of strings loaded from a file holding one
// entry per line, with a bidirectional string/index mapping. Built once and
// read-only afterward.
type Vocabulary struct {
	Items []string
	Index map[string]int
}

func NewVocabulary(items []string) *Vocabulary {
	index := make(map[string]int, len(items))
	for i, item := range items {
		index[item] = i
	}
	return &Vocabulary{Items: items, Index: index}
}

// LoadVocabulary reads a vocabulary file, one entry per line.
func LoadVocabulary(fileName string) (*Vocabulary, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("error opening vocabulary file %s: %w", fileName, err)
	}
	defer file.Close()

	var items []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		items = append(items, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading vocabulary file %s: %w", fileName, err)
	}
	return NewVocabulary(items), nil
}

func (v *Vocabulary) Size() int {
	return len(v.Items)
}

// ID returns the index of an item and whether it is present.
func (v *Vocabulary) ID(item string) (int, bool) {
	id, ok := v.Index[item]
	return id, ok
}

// Item returns the string at the given index.
func (v *Vocabulary) Item(id int) string {
	return v.Items[id]
}

// CountLines returns the number of newline-delimited lines in a file.
// A trailing final newline does not add an empty line; an explicit empty
// line before the end does count.
func CountLines(fileName string) (int, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return 0, fmt.Errorf("error opening %s: %w", fileName, err)
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("error reading %s: %w", fileName, err)
	}
	return count, nil
}
