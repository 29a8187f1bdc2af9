package model

// Model bundles a trained tagger with the data configuration it was
// initialized from.
type Model struct {
	MetaData *Metadata
	Tagger   *Tagger
}
