package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/tinytelemetry/logdex/internal/model"
	"gopkg.in/yaml.v3"
)

// queryClient is the subset of the socket RPC client the commands use.
type queryClient interface {
	model.LogQuerier
	model.Rebuilder
}

var errUsage = errors.New("usage")

// runCommand executes one command against client and writes the result to
// out in the requested format.
func runCommand(client queryClient, args []string, format string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	cmd, rest := args[0], args[1:]

	arg := func(name string) (string, error) {
		if len(rest) != 1 {
			return "", fmt.Errorf("%w: %s takes exactly one %s", errUsage, cmd, name)
		}
		return rest[0], nil
	}

	switch cmd {
	case "all":
		recs, err := client.FetchAll()
		if err != nil {
			return err
		}
		return writeRecords(out, format, recs)

	case "level":
		bucket, err := arg("bucket")
		if err != nil {
			return err
		}
		if !model.IsBucket(bucket) {
			return fmt.Errorf("%w: unknown bucket %q (want %s)", errUsage, bucket, strings.Join(model.Buckets, ", "))
		}
		recs, err := client.FetchByLevel(bucket)
		if err != nil {
			return err
		}
		return writeRecords(out, format, recs)

	case "search":
		word, err := arg("word")
		if err != nil {
			return err
		}
		recs, err := client.SearchByWord(word)
		if err != nil {
			return err
		}
		return writeRecords(out, format, recs)

	case "get":
		raw, err := arg("index")
		if err != nil {
			return err
		}
		idx, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || idx == 0 {
			return fmt.Errorf("index must be a positive integer, got %q", raw)
		}
		rec, ok, err := client.Get(idx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no record with index %d", idx)
		}
		return writeRecords(out, format, []model.IndexedRecord{{Index: idx, Record: rec}})

	case "stats":
		stats, err := client.Stats()
		if err != nil {
			return err
		}
		return writeStats(out, format, stats)

	case "reindex":
		stats, err := client.Rebuild()
		if err != nil {
			return err
		}
		if format == formatText {
			_, err = fmt.Fprintf(out, "rebuilt indices for %d records (%d distinct words)\n", stats.Records, stats.Words)
			return err
		}
		return writeStructured(out, format, stats)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func writeRecords(out io.Writer, format string, recs []model.IndexedRecord) error {
	if recs == nil {
		recs = []model.IndexedRecord{}
	}
	if format != formatText {
		return writeStructured(out, format, recs)
	}
	if len(recs) == 0 {
		_, err := fmt.Fprintln(out, "no records")
		return err
	}
	t := newTable("INDEX", "LEVEL", "MESSAGE", "DETAILS")
	for _, r := range recs {
		t.Row(strconv.FormatUint(r.Index, 10), strings.ToUpper(string(r.Record.Level)), r.Record.Message, recordExtras(r.Record))
	}
	_, err := fmt.Fprintln(out, t.Render())
	return err
}

// newTable builds a plain bordered table. Styles carry no colors, so the
// output is the same on a terminal and in a pipe.
func newTable(headers ...string) *table.Table {
	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return cell.Bold(true)
			}
			return cell
		})
}

func recordExtras(r model.LogRecord) string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("resource", r.ResourceID)
	add("ts", r.Timestamp)
	add("trace", r.TraceID)
	add("span", r.SpanID)
	add("commit", r.Commit)
	return strings.Join(parts, " ")
}

func writeStats(out io.Writer, format string, stats model.Stats) error {
	if format != formatText {
		return writeStructured(out, format, stats)
	}
	t := newTable("STAT", "VALUE").
		Row("backend", stats.Backend).
		Row("persist across restarts", strconv.FormatBool(stats.Persists)).
		Row("records", strconv.Itoa(stats.Records)).
		Row("last index", strconv.FormatUint(stats.LastIdx, 10)).
		Row("distinct words", strconv.Itoa(stats.Words))

	buckets := make([]string, 0, len(stats.Buckets))
	for name := range stats.Buckets {
		buckets = append(buckets, name)
	}
	sort.Slice(buckets, func(i, j int) bool { return bucketRank(buckets[i]) < bucketRank(buckets[j]) })
	for _, name := range buckets {
		t.Row("bucket "+name, strconv.Itoa(stats.Buckets[name]))
	}
	_, err := fmt.Fprintln(out, t.Render())
	return err
}

func bucketRank(name string) int {
	for i, b := range model.Buckets {
		if b == name {
			return i
		}
	}
	return len(model.Buckets)
}

// writeStructured emits v as indented JSON or as YAML. YAML goes through a
// JSON round trip so field names match the wire format.
func writeStructured(out io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("invalid format %q", format)
}
