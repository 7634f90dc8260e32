package index

import (
	"errors"
	"reflect"
	"testing"

	"github.com/tinytelemetry/logdex/internal/model"
)

func TestLevelIndex_RecordIngested(t *testing.T) {
	t.Parallel()

	li := NewLevelIndex()
	li.RecordIngested(1, model.LevelError)
	li.RecordIngested(2, model.LevelInfo)
	li.RecordIngested(3, model.LevelError)

	got, err := li.Lookup("error")
	if err != nil {
		t.Fatalf("Lookup(error): %v", err)
	}
	if !reflect.DeepEqual(got, []uint64{1, 3}) {
		t.Errorf("error bucket = %v, want [1 3]", got)
	}

	all, err := li.Lookup(model.BucketMessage)
	if err != nil {
		t.Fatalf("Lookup(message): %v", err)
	}
	if !reflect.DeepEqual(all, []uint64{1, 2, 3}) {
		t.Errorf("message bucket = %v, want [1 2 3]", all)
	}

	debug, err := li.Lookup("debug")
	if err != nil {
		t.Fatalf("Lookup(debug): %v", err)
	}
	if len(debug) != 0 {
		t.Errorf("debug bucket = %v, want empty", debug)
	}
}

func TestLevelIndex_UnknownBucket(t *testing.T) {
	t.Parallel()

	li := NewLevelIndex()
	_, err := li.Lookup("fatal")
	var fe *model.InvalidFilterError
	if !errors.As(err, &fe) {
		t.Fatalf("Lookup(fatal) error = %v, want InvalidFilterError", err)
	}
	if fe.Bucket != "fatal" {
		t.Errorf("Bucket = %q, want fatal", fe.Bucket)
	}
}

func TestLevelIndex_LookupReturnsCopy(t *testing.T) {
	t.Parallel()

	li := NewLevelIndex()
	li.RecordIngested(1, model.LevelWarn)

	got, _ := li.Lookup("warn")
	got[0] = 99

	again, _ := li.Lookup("warn")
	if again[0] != 1 {
		t.Fatalf("bucket mutated through returned slice: %v", again)
	}
}

func TestLevelIndex_Reset(t *testing.T) {
	t.Parallel()

	li := NewLevelIndex()
	li.RecordIngested(1, model.LevelDebug)
	li.Reset()

	snap := li.Snapshot()
	if len(snap) != len(model.Buckets) {
		t.Fatalf("buckets after reset = %d, want %d", len(snap), len(model.Buckets))
	}
	for name, ids := range snap {
		if len(ids) != 0 {
			t.Errorf("bucket %s = %v after reset, want empty", name, ids)
		}
	}
}
