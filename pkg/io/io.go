package io

import (
	"encoding/csv"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/nlpodyssey/spago/pkg/mat"
	"github.com/nlpodyssey/spago/pkg/ml/nn/linear"

	"widedeep/pkg/model"
)

// DataRecord holds one example: the encoded input vector and the target
// class index.
type DataRecord struct {
	Features *mat.Dense
	Target   float64
}

type DataBatch []*DataRecord

// CrossSeparator joins the parts of a cross-column specification ("user:item")
// and the observed value conjunctions in its vocabulary.
const CrossSeparator = ":"

const crossValueSeparator = "|"

type DataParameters struct {
	DataFile     string
	TargetColumn string

	// Column roles. CrossColumns entries are conjunctions of base columns,
	// e.g. "gender:occupation". Columns not named anywhere are continuous.
	WideColumns      []string
	CrossColumns     []string
	IndicatorColumns []string
	EmbedColumns     []string

	// EmbedDimension is the output size of every embedding table.
	EmbedDimension int

	BatchSize int
}

type DataError struct {
	Line  int
	Error string
}

// LoadData reads a CSV file (first line is a header) and encodes every row
// into the network's input-vector layout. When metaData is nil the column
// vocabularies and the target map are discovered from the data and a new
// metadata is returned; otherwise the given metadata is reused and rows with
// unknown categorical or target values are reported as DataErrors and
// skipped.
func LoadData(p DataParameters, metaData *model.Metadata) (*model.Metadata, *DataSet, []DataError, error) {
	inputFile, err := os.Open(p.DataFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error opening file: %w", err)
	}
	defer inputFile.Close()

	reader := csv.NewReader(inputFile)
	reader.Comma = ','

	//First line is expected to be a header
	header, err := reader.Read()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error reading data header: %w", err)
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error reading data: %w", err)
	}

	newMetadata := metaData == nil
	if newMetadata {
		metaData, err = buildMetadata(p, header)
		if err != nil {
			return nil, nil, nil, err
		}
		discoverVocabularies(metaData, rows)
		finalizeColumnInfo(metaData, p.EmbedDimension)
	} else if len(header) != len(metaData.Columns) {
		return nil, nil, nil, fmt.Errorf("data header has %d columns, model expects %d", len(header), len(metaData.Columns))
	}

	var dataErrors []DataError
	records := make([]*DataRecord, 0, len(rows))
	for i, row := range rows {
		record, err := encodeRecord(metaData, newMetadata, row)
		if err != nil {
			dataErrors = append(dataErrors, DataError{
				Line:  i + 1,
				Error: err.Error(),
			})
			continue
		}
		records = append(records, record)
	}

	return metaData, NewDataSet(records, p.BatchSize), dataErrors, nil
}

func buildMetadata(p DataParameters, header []string) (*model.Metadata, error) {
	metaData := model.NewMetadata()
	metaData.Columns = header

	columnIndex := make(map[string]int, len(header))
	for i, col := range header {
		columnIndex[col] = i
	}

	targetColumn := p.TargetColumn
	if targetColumn == "" {
		targetColumn = model.DefaultLabelColumn
	}
	targetIndex, ok := columnIndex[targetColumn]
	if !ok {
		return nil, fmt.Errorf("target column %s not found in data header", targetColumn)
	}
	metaData.TargetColumn = targetIndex

	claimed := map[int]bool{targetIndex: true}
	resolve := func(columns []string) ([]int, error) {
		indices := make([]int, len(columns))
		for i, col := range columns {
			index, ok := columnIndex[col]
			if !ok {
				return nil, fmt.Errorf("column %s not found in data header", col)
			}
			indices[i] = index
			claimed[index] = true
		}
		return indices, nil
	}

	var err error
	if metaData.WideBaseIdx, err = resolve(p.WideColumns); err != nil {
		return nil, err
	}
	if metaData.IndicatorIdx, err = resolve(p.IndicatorColumns); err != nil {
		return nil, err
	}
	if metaData.EmbedIdx, err = resolve(p.EmbedColumns); err != nil {
		return nil, err
	}

	// Cross parts reference base columns without claiming them: a crossed
	// column usually feeds the wide or deep branch on its own as well.
	metaData.CrossIdx = make([][]int, len(p.CrossColumns))
	for i, cross := range p.CrossColumns {
		parts := strings.Split(cross, CrossSeparator)
		if len(parts) < 2 {
			return nil, fmt.Errorf("cross column %q must name at least two columns separated by %q", cross, CrossSeparator)
		}
		indices := make([]int, len(parts))
		for j, col := range parts {
			index, ok := columnIndex[col]
			if !ok {
				return nil, fmt.Errorf("column %s of cross column %q not found in data header", col, cross)
			}
			indices[j] = index
		}
		metaData.CrossIdx[i] = indices
	}

	for i := range header {
		if !claimed[i] {
			metaData.ContinuousIdx = append(metaData.ContinuousIdx, i)
		}
	}

	metaData.WideBaseVocabs = newVocabularies(len(metaData.WideBaseIdx))
	metaData.CrossVocabs = newVocabularies(len(metaData.CrossIdx))
	metaData.IndicatorVocabs = newVocabularies(len(metaData.IndicatorIdx))
	metaData.EmbedVocabs = newVocabularies(len(metaData.EmbedIdx))

	return metaData, nil
}

func newVocabularies(n int) []model.NameMap {
	vocabs := make([]model.NameMap, n)
	for i := range vocabs {
		vocabs[i] = model.NewNameMap()
	}
	return vocabs
}

func discoverVocabularies(metaData *model.Metadata, rows [][]string) {
	for _, row := range rows {
		if len(row) != len(metaData.Columns) {
			continue // reported during encoding
		}
		for j, column := range metaData.WideBaseIdx {
			metaData.WideBaseVocabs[j].ValueFor(row[column])
		}
		for j, parts := range metaData.CrossIdx {
			metaData.CrossVocabs[j].ValueFor(crossValue(row, parts))
		}
		for j, column := range metaData.IndicatorIdx {
			metaData.IndicatorVocabs[j].ValueFor(row[column])
		}
		for j, column := range metaData.EmbedIdx {
			metaData.EmbedVocabs[j].ValueFor(row[column])
		}
		metaData.ParseOrAddCategoricalTarget(row[metaData.TargetColumn])
	}
}

func crossValue(row []string, parts []int) string {
	values := make([]string, len(parts))
	for i, column := range parts {
		values[i] = row[column]
	}
	return strings.Join(values, crossValueSeparator)
}

func finalizeColumnInfo(metaData *model.Metadata, embedDimension int) {
	info := &model.ColumnFeatureInfo{
		LabelCol: metaData.Columns[metaData.TargetColumn],
	}
	for j, column := range metaData.WideBaseIdx {
		info.WideBaseCols = append(info.WideBaseCols, metaData.Columns[column])
		info.WideBaseDims = append(info.WideBaseDims, metaData.WideBaseVocabs[j].Size())
	}
	for j, parts := range metaData.CrossIdx {
		names := make([]string, len(parts))
		for i, column := range parts {
			names[i] = metaData.Columns[column]
		}
		info.WideCrossCols = append(info.WideCrossCols, strings.Join(names, CrossSeparator))
		info.WideCrossDims = append(info.WideCrossDims, metaData.CrossVocabs[j].Size())
	}
	for j, column := range metaData.IndicatorIdx {
		info.IndicatorCols = append(info.IndicatorCols, metaData.Columns[column])
		info.IndicatorDims = append(info.IndicatorDims, metaData.IndicatorVocabs[j].Size())
	}
	for j, column := range metaData.EmbedIdx {
		info.EmbedCols = append(info.EmbedCols, metaData.Columns[column])
		info.EmbedInDims = append(info.EmbedInDims, metaData.EmbedVocabs[j].Size())
		info.EmbedOutDims = append(info.EmbedOutDims, embedDimension)
	}
	for _, column := range metaData.ContinuousIdx {
		info.ContinuousCols = append(info.ContinuousCols, metaData.Columns[column])
	}
	metaData.Info = info
}

func encodeRecord(metaData *model.Metadata, newMetadata bool, row []string) (*DataRecord, error) {
	if len(row) != len(metaData.Columns) {
		return nil, fmt.Errorf("row has %d columns, expected %d", len(row), len(metaData.Columns))
	}

	target, err := parseTarget(metaData, newMetadata, row[metaData.TargetColumn])
	if err != nil {
		return nil, err
	}

	info := metaData.Info
	features := mat.NewEmptyVecDense(info.InputSize())

	for j, column := range metaData.WideBaseIdx {
		index, err := vocabIndex(metaData.WideBaseVocabs[j], row[column], metaData.Columns[column])
		if err != nil {
			return nil, err
		}
		features.Set(info.WideBaseOffset(j)+index, 0, 1.0)
	}
	for j, parts := range metaData.CrossIdx {
		index, err := vocabIndex(metaData.CrossVocabs[j], crossValue(row, parts), info.WideCrossCols[j])
		if err != nil {
			return nil, err
		}
		features.Set(info.WideCrossOffset(j)+index, 0, 1.0)
	}
	for j, column := range metaData.IndicatorIdx {
		index, err := vocabIndex(metaData.IndicatorVocabs[j], row[column], metaData.Columns[column])
		if err != nil {
			return nil, err
		}
		features.Set(info.IndicatorOffset(j)+index, 0, 1.0)
	}
	for j, column := range metaData.EmbedIdx {
		index, err := vocabIndex(metaData.EmbedVocabs[j], row[column], metaData.Columns[column])
		if err != nil {
			return nil, err
		}
		features.Set(info.EmbedOffset(j)+index, 0, 1.0)
	}
	for k, column := range metaData.ContinuousIdx {
		value, err := strconv.ParseFloat(row[column], 64)
		if err != nil {
			return nil, fmt.Errorf("error parsing feature %s: %w", metaData.Columns[column], err)
		}
		features.Set(info.ContinuousOffset()+k, 0, value)
	}

	return &DataRecord{Features: features, Target: target}, nil
}

func parseTarget(metaData *model.Metadata, newMetadata bool, target string) (float64, error) {
	if newMetadata {
		return metaData.ParseOrAddCategoricalTarget(target), nil
	}
	targetValue, ok := metaData.ParseCategoricalTarget(target)
	if !ok {
		return 0, fmt.Errorf("unknown target value %q", target)
	}
	return targetValue, nil
}

func vocabIndex(vocab model.NameMap, value, column string) (int, error) {
	index, ok := vocab.ContainsName(value)
	if !ok {
		return 0, fmt.Errorf("unknown value %q for categorical column %s", value, column)
	}
	return index, nil
}

func SaveModel(m *model.Model, writer io.Writer) error {
	encoder := gob.NewEncoder(writer)
	err := encoder.Encode(m)
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
	if err := m.CheckKind(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadModelFromFile loads a persisted model and, when weightsPath is not
// empty, replaces the network's layers with separately persisted weights.
func LoadModelFromFile(modelPath, weightsPath string) (*model.Model, error) {
	modelFile, err := os.Open(modelPath)
	if err != nil {
		return nil, fmt.Errorf("error opening model file %s: %w", modelPath, err)
	}
	defer modelFile.Close()

	m, err := LoadModel(modelFile)
	if err != nil {
		return nil, fmt.Errorf("error loading model from file %s: %w", modelPath, err)
	}

	if weightsPath != "" {
		weightsFile, err := os.Open(weightsPath)
		if err != nil {
			return nil, fmt.Errorf("error opening weights file %s: %w", weightsPath, err)
		}
		defer weightsFile.Close()

		layers, err := LoadWeights(weightsFile)
		if err != nil {
			return nil, fmt.Errorf("error loading weights from file %s: %w", weightsPath, err)
		}
		if err := m.Network.SetLayers(layers); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// SaveWeights persists only the network's linear layers, in the fixed order
// given by WideAndDeep.Layers.
func SaveWeights(network *model.WideAndDeep, writer io.Writer) error {
	encoder := gob.NewEncoder(writer)
	err := encoder.Encode(network.Layers())
	if err != nil {
		return fmt.Errorf("error encoding weights: %w", err)
	}
	return nil
}

func LoadWeights(input io.Reader) ([]*linear.Model, error) {
	decoder := gob.NewDecoder(input)
	var layers []*linear.Model
	err := decoder.Decode(&layers)
	if err != nil {
		return nil, fmt.Errorf("error decoding weights: %w", err)
	}
	return layers, nil
}
