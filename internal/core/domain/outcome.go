package domain

// DatasetOutcome summarises one contract dataset after a chain sync.
type DatasetOutcome struct {
	Role     Role
	Path     string
	Rows     int
	Added    int
	MaxBlock uint64
	HasRows  bool
}

// SyncOutcome is what a successful chain sync produced.
type SyncOutcome struct {
	ChainID  uint64
	Name     string
	Dir      string
	Endpoint string
	Tip      uint64
	UpToDate bool
	Cursor   *Cursor
	Datasets []DatasetOutcome
}

// Advanced reports whether the sync moved the cursor to the tip. Rows
// flushed by an earlier failed attempt or run only become complete once
// this is true, so consumers of the datasets key off it rather than Added.
func (o *SyncOutcome) Advanced() bool {
	return !o.UpToDate
}

// Added counts rows appended across all datasets.
func (o *SyncOutcome) Added() int {
	n := 0
	for _, d := range o.Datasets {
		n += d.Added
	}
	return n
}
