// Package columnar stores contract datasets as Parquet files.
package columnar

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/vietddude/archiver/internal/core/domain"
)

// Ext is the dataset file extension.
const Ext = ".parquet"

// Options configures how datasets are written.
type Options struct {
	Compression string // zstd, snappy, gzip, none
}

// DefaultOptions writes zstd at the default level.
func DefaultOptions() Options {
	return Options{Compression: "zstd"}
}

func (o Options) codec() (compress.Codec, error) {
	switch strings.ToLower(o.Compression) {
	case "", "zstd":
		return &zstd.Codec{Level: zstd.SpeedDefault}, nil
	case "snappy":
		return &parquet.Snappy, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "none":
		return &parquet.Uncompressed, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", o.Compression)
	}
}

// Read returns the row batches stored at path, one per row group. A
// missing file yields no batches.
func Read(path string) ([]domain.Batch, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat dataset: %w", err)
	}

	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	batches := make([]domain.Batch, 0, len(pf.RowGroups()))
	for i, rg := range pf.RowGroups() {
		batch, err := readRowGroup(rg)
		if err != nil {
			return nil, fmt.Errorf("read parquet %s row group %d: %w", path, i, err)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func readRowGroup(rg parquet.RowGroup) (domain.Batch, error) {
	r := parquet.NewGenericRowGroupReader[domain.EventRecord](rg)
	defer r.Close()

	batch := make(domain.Batch, rg.NumRows())
	read := 0
	for read < len(batch) {
		n, err := r.Read(batch[read:])
		read += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	if read != len(batch) {
		return nil, fmt.Errorf("read %d of %d rows", read, len(batch))
	}
	return batch, nil
}

// Count returns the number of rows at path from the file footer. A
// missing file has zero rows.
func Count(path string) (int64, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat dataset: %w", err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return 0, fmt.Errorf("open parquet %s: %w", path, err)
	}
	return pf.NumRows(), nil
}

// Write replaces the dataset at path with batches. Each batch becomes one
// row group. The file is written to path+".tmp" and renamed into place.
func Write(path string, batches []domain.Batch, opts Options) error {
	codec, err := opts.codec()
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}

	if err := writeBatches(f, batches, codec); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync dataset: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close dataset: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename dataset: %w", err)
	}
	return nil
}

func writeBatches(f *os.File, batches []domain.Batch, codec compress.Codec) error {
	w := parquet.NewGenericWriter[domain.EventRecord](f, parquet.Compression(codec))
	for _, b := range batches {
		if len(b) == 0 {
			continue
		}
		if _, err := w.Write(b); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush row group: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Convert maps provider logs to rows, dropping entries without a block
// number, transaction hash, transaction index, log index or topic. It
// returns the batch and its length.
func Convert(logs []domain.RawLog) (domain.Batch, int) {
	batch := make(domain.Batch, 0, len(logs))
	for _, l := range logs {
		if l.BlockNumber == nil || l.TransactionHash == nil ||
			l.TransactionIndex == nil || l.LogIndex == nil || len(l.Topics) == 0 {
			continue
		}

		rec := domain.EventRecord{
			BlockNumber: uint64(*l.BlockNumber),
			TxHash:      l.TransactionHash.Hex(),
			TxIndex:     uint32(*l.TransactionIndex),
			LogIndex:    uint32(*l.LogIndex),
			Topic0:      l.Topics[0].Hex(),
			Topic1:      topic(l, 1),
			Topic2:      topic(l, 2),
			Topic3:      topic(l, 3),
			Data:        hexutil.Encode(l.Data),
			Removed:     l.Removed,
		}
		if l.Address != nil {
			rec.Address = hexutil.Encode(l.Address.Bytes())
		} else {
			rec.Address = hexutil.Encode(make([]byte, 20))
		}
		batch = append(batch, rec)
	}
	return batch, len(batch)
}

func topic(l domain.RawLog, i int) *string {
	if len(l.Topics) <= i {
		return nil
	}
	s := l.Topics[i].Hex()
	return &s
}

// MaxBlockNumber returns the highest block number across batches, or
// false when there are no rows.
func MaxBlockNumber(batches []domain.Batch) (uint64, bool) {
	var (
		max   uint64
		found bool
	)
	for _, b := range batches {
		for _, r := range b {
			if !found || r.BlockNumber > max {
				max = r.BlockNumber
				found = true
			}
		}
	}
	return max, found
}
