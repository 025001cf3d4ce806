// Package main provides the sstbuild CLI tool, which builds a table file
// from a key/value dump file.
//
// Usage:
//
//	sstbuild --input=<dump> --output=<table> [options]
//
// The dump file holds one entry per line, hex(key) TAB hex(value). Files
// ending in .sz, .lz4 or .zst are decompressed on the fly. Entries must be
// in ascending key order unless --sort is given.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/aalhour/blocktable"
	"github.com/aalhour/blocktable/internal/kvfile"
	"github.com/aalhour/blocktable/internal/logging"
	"github.com/aalhour/blocktable/internal/vfs"
)

var (
	inputPath       = flag.String("input", "", "Path to the dump file (required)")
	outputPath      = flag.String("output", "", "Path of the table file to create (required)")
	optionsPath     = flag.String("options", "", "Options file to build with")
	saveOptionsPath = flag.String("save_options", "", "Write the options used to this file")
	blockSize       = flag.Int("block_size", 0, "Target data block size (0 = from options)")
	restartInterval = flag.Int("block_restart_interval", 0, "Keys between restart points (0 = from options)")
	bloomBits       = flag.Int("bloom_bits", -1, "Bloom filter bits per key, 0 disables (-1 = from options)")
	sortInput       = flag.Bool("sort", false, "Sort entries in memory before building")
	verbose         = flag.Bool("v", false, "Verbose output")
	help            = flag.Bool("help", false, "Print help")
)

func main() {
	flag.Parse()

	if *help {
		printUsage()
		return
	}

	if *inputPath == "" || *outputPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --input and --output flags are required")
		printUsage()
		os.Exit(1)
	}

	opts, err := buildOptions()
	if err == nil {
		err = build(vfs.Default(), *inputPath, *outputPath, opts)
	}
	if err == nil && *saveOptionsPath != "" {
		err = blocktable.WriteOptionsFile(vfs.Default(), *saveOptionsPath, opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("sstbuild - build a table file from a dump file")
	fmt.Println()
	fmt.Println("Usage: sstbuild --input=<dump> --output=<table> [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}

// buildOptions loads --options and applies the flag overrides on top.
func buildOptions() (*blocktable.Options, error) {
	opts := blocktable.DefaultOptions()
	if *optionsPath != "" {
		var err error
		opts, err = blocktable.ReadOptionsFile(vfs.Default(), *optionsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read options: %w", err)
		}
	}
	if *blockSize > 0 {
		opts.BlockSize = *blockSize
	}
	if *restartInterval > 0 {
		opts.BlockRestartInterval = *restartInterval
	}
	switch {
	case *bloomBits == 0:
		opts.FilterPolicy = nil
	case *bloomBits > 0:
		opts.FilterPolicy = blocktable.NewBloomFilterPolicy(*bloomBits)
	}

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	opts.Logger = logging.NewDefaultLogger(level)
	return opts, nil
}

type entry struct {
	key, value []byte
}

// build copies every entry of the dump file at input into a new table at
// output. On failure the partial table is removed.
func build(fs vfs.FS, input, output string, opts *blocktable.Options) error {
	start := time.Now()

	r, err := kvfile.Open(fs, input)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", input, err)
	}
	defer func() { _ = r.Close() }()

	buildOpts := *opts
	buildOpts.FS = fs
	w, err := blocktable.Create(output, &buildOpts)
	if err != nil {
		return err
	}

	if err := copyEntries(r, w, buildOpts.Comparator); err != nil {
		_ = w.Abandon()
		_ = fs.Remove(output)
		return err
	}
	n := w.NumEntries()
	if err := w.Finish(); err != nil {
		_ = fs.Remove(output)
		return err
	}

	opts.Logger.Infof(logging.NSBuild+"%s: %d entries from %s in %v",
		output, n, input, time.Since(start).Round(time.Millisecond))
	return nil
}

func copyEntries(r *kvfile.Reader, w *blocktable.Writer, cmp blocktable.Comparator) error {
	if !*sortInput {
		for r.Next() {
			if err := w.Add(r.Key(), r.Value()); err != nil {
				return err
			}
		}
		return r.Err()
	}

	var entries []entry
	for r.Next() {
		entries = append(entries, entry{bytes.Clone(r.Key()), bytes.Clone(r.Value())})
	}
	if err := r.Err(); err != nil {
		return err
	}
	if cmp == nil {
		cmp = blocktable.BytewiseComparator{}
	}
	// Stable, so the first of several duplicates wins below.
	slices.SortStableFunc(entries, func(a, b entry) int {
		return cmp.Compare(a.key, b.key)
	})
	for i, e := range entries {
		if i > 0 && cmp.Compare(e.key, entries[i-1].key) == 0 {
			continue
		}
		if err := w.Add(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}
