package syncer

import (
	"github.com/vietddude/archiver/internal/core/domain"
	"github.com/vietddude/archiver/internal/infra/storage/columnar"
)

// dataset is the in-memory copy of one contract file. Every Append
// rewrites the whole file so it always holds every flushed row.
type dataset struct {
	path    string
	batches []domain.Batch
	opts    columnar.Options
}

func (d *dataset) Append(batch domain.Batch) error {
	d.batches = append(d.batches, batch)
	if err := columnar.Write(d.path, d.batches, d.opts); err != nil {
		d.batches = d.batches[:len(d.batches)-1]
		return err
	}
	return nil
}
