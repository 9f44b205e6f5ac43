package model

// NameMap implements a bidirectional mapping between a name and an index
type NameMap struct {
	NameToIndex map[string]int
	IndexToName map[int]string
}

func NewNameMap() NameMap {
	return NameMap{
		NameToIndex: map[string]int{},
		IndexToName: map[int]string{},
	}
}

func (f NameMap) Set(name string, index int) {
	f.NameToIndex[name] = index
	f.IndexToName[index] = name
}

func (f NameMap) Size() int {
	return len(f.IndexToName)
}

func (f NameMap) ContainsName(name string) (int, bool) {
	index, ok := f.NameToIndex[name]
	return index, ok
}

// ValueFor returns the index of name, adding it to the map if unseen.
func (f NameMap) ValueFor(name string) int {
	index, ok := f.NameToIndex[name]
	if !ok {
		index = f.Size()
		f.Set(name, index)
	}
	return index
}

// Metadata ties the columns of a concrete dataset to the network's input
// layout: which data-row column feeds which feature section, and the
// vocabulary of every categorical column. It is built while reading the
// training data and persisted with the model so that test data gets encoded
// the same way.
type Metadata struct {
	Columns []string

	// TargetColumn points to the column in the data row that contains the prediction target
	TargetColumn int

	// Info describes the input-vector layout derived from the vocabularies below.
	Info *ColumnFeatureInfo

	// Data-row column indices, parallel to the column lists in Info.
	// A cross column is a conjunction of several base columns.
	WideBaseIdx   []int
	CrossIdx      [][]int
	IndicatorIdx  []int
	EmbedIdx      []int
	ContinuousIdx []int

	// Vocabularies, parallel to the column lists in Info.
	WideBaseVocabs  []NameMap
	CrossVocabs     []NameMap
	IndicatorVocabs []NameMap
	EmbedVocabs     []NameMap

	// TargetMap contains a mapping of target category names to target category indexes
	TargetMap NameMap
}

func NewMetadata() *Metadata {
	return &Metadata{
		TargetColumn: -1,
		TargetMap:    NewNameMap(),
	}
}

func (d *Metadata) NumClasses() int {
	return d.TargetMap.Size()
}

func (d *Metadata) ParseOrAddCategoricalTarget(value string) float64 {
	return float64(d.TargetMap.ValueFor(value))
}

func (d *Metadata) ParseCategoricalTarget(value string) (float64, bool) {
	target, ok := d.TargetMap.ContainsName(value)
	return float64(target), ok
}
