// Package main provides the sstdump CLI tool for inspecting table files.
//
// Usage:
//
//	sstdump --file=<path> [--command=<cmd>] [options]
//
// Commands:
//
//	footer          Show the footer and top-level block handles
//	index           List index entries and the data blocks they point to
//	properties      Show the properties block
//	scan            Scan key-value pairs
//	get             Look up --key
//	check           Read every block and verify key order
//	export          Write every entry to a dump file (--output)
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/aalhour/blocktable"
	"github.com/aalhour/blocktable/internal/block"
	"github.com/aalhour/blocktable/internal/kvfile"
	"github.com/aalhour/blocktable/internal/logging"
	"github.com/aalhour/blocktable/internal/vfs"
)

var (
	filePath    = flag.String("file", "", "Path to the table file (required)")
	command     = flag.String("command", "scan", "Command: footer, index, properties, scan, get, check, export")
	optionsPath = flag.String("options", "", "Options file the table was written with")
	keyArg      = flag.String("key", "", "Key for the get command (0x prefix for hex)")
	outputPath  = flag.String("output", "", "Dump file for the export command (.sz, .lz4, .zst compress)")
	hexOutput   = flag.Bool("hex", false, "Output keys and values in hex format")
	limit       = flag.Int("limit", 0, "Limit number of entries (0 = unlimited)")
	fromKey     = flag.String("from", "", "Start key for scan (0x prefix for hex)")
	toKey       = flag.String("to", "", "End key for scan, exclusive (0x prefix for hex)")
	showValues  = flag.Bool("values", true, "Show values in scan output")
	showSummary = flag.Bool("summary", true, "Show summary statistics")
	verbose     = flag.Bool("v", false, "Verbose output")
	help        = flag.Bool("help", false, "Print help")
)

func main() {
	flag.Parse()

	if *help {
		printUsage()
		return
	}

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "Error: --file flag is required")
		printUsage()
		os.Exit(1)
	}

	cmd, ok := commands[*command]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		printUsage()
		os.Exit(1)
	}

	tbl, err := openTable(*filePath)
	if err == nil {
		err = cmd(os.Stdout, tbl)
		if cerr := tbl.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var commands = map[string]func(io.Writer, *blocktable.Table) error{
	"footer":     cmdFooter,
	"index":      cmdIndex,
	"properties": cmdProperties,
	"scan":       cmdScan,
	"get":        cmdGet,
	"check":      cmdCheck,
	"export":     cmdExport,
}

func printUsage() {
	fmt.Println("sstdump - table file inspection tool")
	fmt.Println()
	fmt.Println("Usage: sstdump --file=<path> [--command=<cmd>] [options]")
	fmt.Println()
	fmt.Println("Commands (--command):")
	fmt.Println("  footer      Show the footer and block handles")
	fmt.Println("  index       List index entries")
	fmt.Println("  properties  Show table properties")
	fmt.Println("  scan        Scan key-value pairs (default)")
	fmt.Println("  get         Look up --key")
	fmt.Println("  check       Verify table integrity")
	fmt.Println("  export      Write all entries to --output")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}

func openTable(path string) (*blocktable.Table, error) {
	opts := blocktable.DefaultOptions()
	if *optionsPath != "" {
		var err error
		opts, err = blocktable.ReadOptionsFile(vfs.Default(), *optionsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read options: %w", err)
		}
	}
	// Every command reads each block at most once.
	opts.BlockCacheSize = 0
	level := logging.LevelWarn
	if *verbose {
		level = logging.LevelDebug
	}
	opts.Logger = logging.NewDefaultLogger(level)

	return blocktable.Open(path, opts)
}

// parseKey decodes a command line key. A 0x prefix selects hex.
func parseKey(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		return hex.DecodeString(rest)
	}
	return []byte(s), nil
}

func formatOutput(data []byte) string {
	if *hexOutput {
		return hex.EncodeToString(data)
	}
	for _, b := range data {
		if b < 32 || b > 126 {
			return "0x" + hex.EncodeToString(data)
		}
	}
	return string(data)
}

func cmdFooter(w io.Writer, tbl *blocktable.Table) error {
	f := tbl.Footer()
	fmt.Fprintf(w, "Table file: %s\n", *filePath)
	fmt.Fprintln(w, "---")
	fmt.Fprintf(w, "File size: %d bytes\n", tbl.Size())
	fmt.Fprintf(w, "Index block: %s\n", f.IndexHandle)
	fmt.Fprintf(w, "Metaindex block: %s\n", f.MetaindexHandle)
	fmt.Fprintf(w, "Filter: %t\n", tbl.HasFilter())
	return nil
}

func cmdIndex(w io.Writer, tbl *blocktable.Table) error {
	it := tbl.NewIndexIterator()
	defer it.Release()

	n := 0
	var dataBytes uint64
	for it.SeekToFirst(); it.Valid(); it.Next() {
		h, _, err := block.DecodeHandle(it.Value())
		if err != nil {
			return fmt.Errorf("index entry %d: %w", n, err)
		}
		fmt.Fprintf(w, "Block %d: %s separator=%s\n", n, h, formatOutput(it.Key()))
		dataBytes += h.Size
		n++
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("index iterator error: %w", err)
	}
	if *showSummary {
		fmt.Fprintln(w, "---")
		fmt.Fprintf(w, "Data blocks: %d\n", n)
		fmt.Fprintf(w, "Data bytes: %d\n", dataBytes)
	}
	return nil
}

func cmdProperties(w io.Writer, tbl *blocktable.Table) error {
	props, err := tbl.Properties()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Table file: %s\n", *filePath)
	fmt.Fprintln(w, "---")
	fmt.Fprintf(w, "Number of entries: %d\n", props.NumEntries)
	fmt.Fprintf(w, "Number of data blocks: %d\n", props.NumDataBlocks)
	fmt.Fprintf(w, "Raw key size: %d\n", props.RawKeySize)
	fmt.Fprintf(w, "Raw value size: %d\n", props.RawValueSize)
	fmt.Fprintf(w, "Data size: %d\n", props.DataSize)
	fmt.Fprintf(w, "Index size: %d\n", props.IndexSize)
	fmt.Fprintf(w, "Filter size: %d\n", props.FilterSize)
	fmt.Fprintf(w, "Comparator: %s\n", props.ComparatorName)
	fmt.Fprintf(w, "Filter policy: %s\n", props.FilterPolicyName)
	if props.NumEntries > 0 {
		fmt.Fprintf(w, "Average key size: %.1f bytes\n", float64(props.RawKeySize)/float64(props.NumEntries))
		fmt.Fprintf(w, "Average value size: %.1f bytes\n", float64(props.RawValueSize)/float64(props.NumEntries))
	}

	names := make([]string, 0, len(props.UserProperties))
	for name := range props.UserProperties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s: %s\n", name, props.UserProperties[name])
	}
	return nil
}

func cmdScan(w io.Writer, tbl *blocktable.Table) error {
	from, err := parseKey(*fromKey)
	if err != nil {
		return fmt.Errorf("bad --from: %w", err)
	}
	to, err := parseKey(*toKey)
	if err != nil {
		return fmt.Errorf("bad --to: %w", err)
	}
	cmp := tbl.Comparator()

	it := tbl.NewIterator()
	defer it.Release()

	if len(from) > 0 {
		it.Seek(from)
	} else {
		it.SeekToFirst()
	}

	count := 0
	var totalKeyBytes, totalValueBytes int64
	for ; it.Valid(); it.Next() {
		key := it.Key()
		if len(to) > 0 && cmp.Compare(key, to) >= 0 {
			break
		}
		value := it.Value()

		if *showValues {
			fmt.Fprintf(w, "%s => %s\n", formatOutput(key), formatOutput(value))
		} else {
			fmt.Fprintf(w, "%s\n", formatOutput(key))
		}

		totalKeyBytes += int64(len(key))
		totalValueBytes += int64(len(value))
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("iterator error: %w", err)
	}

	if *showSummary {
		fmt.Fprintln(w, "---")
		fmt.Fprintf(w, "Total entries: %d\n", count)
		fmt.Fprintf(w, "Total key bytes: %d\n", totalKeyBytes)
		fmt.Fprintf(w, "Total value bytes: %d\n", totalValueBytes)
	}
	return nil
}

func cmdGet(w io.Writer, tbl *blocktable.Table) error {
	if *keyArg == "" {
		return errors.New("--key is required for get")
	}
	key, err := parseKey(*keyArg)
	if err != nil {
		return fmt.Errorf("bad --key: %w", err)
	}

	if *verbose {
		fmt.Fprintf(w, "Filter may match: %t\n", tbl.KeyMayMatch(key))
	}
	value, err := tbl.Get(key)
	if blocktable.IsNotFound(err) {
		fmt.Fprintf(w, "%s: not found\n", formatOutput(key))
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s => %s\n", formatOutput(key), formatOutput(value))
	return nil
}

func cmdCheck(w io.Writer, tbl *blocktable.Table) error {
	fmt.Fprintf(w, "Checking table file: %s\n", *filePath)
	fmt.Fprintln(w, "---")

	blocks, err := checkIndex(w, tbl)
	if err != nil {
		return err
	}

	cmp := tbl.Comparator()
	it := tbl.NewIterator()
	defer it.Release()

	count := 0
	orderErrors := 0
	var prev []byte
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if count > 0 && cmp.Compare(prev, it.Key()) >= 0 {
			fmt.Fprintf(w, "Order error: entry %d key %s follows %s\n",
				count, formatOutput(it.Key()), formatOutput(prev))
			orderErrors++
		}
		prev = append(prev[:0], it.Key()...)
		count++
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("table is corrupt after %d entries: %w", count, err)
	}

	fmt.Fprintln(w, "---")
	fmt.Fprintf(w, "Total entries scanned: %d\n", count)
	fmt.Fprintf(w, "Data blocks: %d\n", blocks)

	if props, err := tbl.Properties(); err == nil && props.NumEntries != uint64(count) {
		return fmt.Errorf("properties report %d entries, scanned %d", props.NumEntries, count)
	}
	if orderErrors > 0 {
		return fmt.Errorf("table has %d order errors", orderErrors)
	}

	fmt.Fprintln(w, "Table file is valid")
	return nil
}

// checkIndex verifies that index handles are in bounds and do not overlap.
func checkIndex(w io.Writer, tbl *blocktable.Table) (int, error) {
	it := tbl.NewIndexIterator()
	defer it.Release()

	limit := tbl.Footer().MetaindexHandle.Offset
	var end uint64
	n := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		h, _, err := block.DecodeHandle(it.Value())
		if err != nil {
			return n, fmt.Errorf("index entry %d: %w", n, err)
		}
		if h.Offset < end || h.Offset+h.Size > limit {
			return n, fmt.Errorf("index entry %d: block %s out of place", n, h)
		}
		if *verbose {
			fmt.Fprintf(w, "  Block %d: %s\n", n, h)
		}
		end = h.Offset + h.Size
		n++
	}
	return n, it.Error()
}

func cmdExport(w io.Writer, tbl *blocktable.Table) error {
	if *outputPath == "" {
		return errors.New("--output is required for export")
	}
	out, err := kvfile.Create(vfs.Default(), *outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", *outputPath, err)
	}

	it := tbl.NewIterator()
	defer it.Release()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if err := out.Add(it.Key(), it.Value()); err != nil {
			_ = out.Close()
			return err
		}
	}
	if err := it.Error(); err != nil {
		_ = out.Close()
		return fmt.Errorf("iterator error: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Fprintf(w, "Exported %d entries to %s\n", out.Count(), *outputPath)
	return nil
}
