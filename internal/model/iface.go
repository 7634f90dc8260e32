package model

// LogQuerier provides the read-only query operations.
type LogQuerier interface {
	FetchAll() ([]IndexedRecord, error)
	FetchByLevel(bucket string) ([]IndexedRecord, error)
	SearchByWord(word string) ([]IndexedRecord, error)
	Get(index uint64) (LogRecord, bool, error)
	Stats() (Stats, error)
}

// LogWriter accepts validated records and returns their assigned index.
type LogWriter interface {
	Ingest(record LogRecord) (uint64, error)
}

// Rebuilder recomputes derived indices from stored records.
type Rebuilder interface {
	Rebuild() (RebuildStats, error)
}

// ReadAPI is the read contract shared by the HTTP and socket RPC surfaces.
type ReadAPI interface {
	LogQuerier
	Envelope() (Envelope, error)
}
