package domain

// EventRecord is one archived log row. Field order is the on-disk column
// order and must not change.
type EventRecord struct {
	BlockNumber uint64  `parquet:"block_number"`
	TxHash      string  `parquet:"tx_hash"`
	TxIndex     uint32  `parquet:"tx_index"`
	LogIndex    uint32  `parquet:"log_index"`
	Address     string  `parquet:"address"`
	Topic0      string  `parquet:"topic0"`
	Topic1      *string `parquet:"topic1,optional"`
	Topic2      *string `parquet:"topic2,optional"`
	Topic3      *string `parquet:"topic3,optional"`
	Data        string  `parquet:"data"`
	Removed     bool    `parquet:"removed"`
}

// Batch is a group of rows written together as one row group.
type Batch []EventRecord

// Rows counts rows across batches.
func Rows(batches []Batch) int {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	return n
}
