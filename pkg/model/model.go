package model

import "fmt"

// Kind tags persisted artifacts so a loader can refuse models of a different
// family.
const Kind = "wide_n_deep"

// Model is the persisted artifact: the dataset metadata together with the
// trained network.
type Model struct {
	Kind     string
	MetaData *Metadata
	Network  *WideAndDeep
}

func NewModel(metaData *Metadata, network *WideAndDeep) *Model {
	return &Model{
		Kind:     Kind,
		MetaData: metaData,
		Network:  network,
	}
}

// CheckKind verifies that a loaded artifact is a Wide&Deep model.
func (m *Model) CheckKind() error {
	if m.Kind != Kind {
		return fmt.Errorf("stored model kind %q is not %q", m.Kind, Kind)
	}
	return nil
}
