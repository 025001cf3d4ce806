package blocktable

// options_file.go persists table options as a small INI file so that
// tables can be rebuilt and reopened with the same settings.
//
// Format:
//
//	[Version]
//	  blocktable_version=1
//	  options_file_version=1
//
//	[TableOptions]
//	  comparator=leveldb.BytewiseComparator
//	  filter_policy=bloomfilter:10
//	  block_size=4096
//	  block_restart_interval=16
//	  block_cache_size=8388608

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aalhour/blocktable/internal/comparator"
	"github.com/aalhour/blocktable/internal/vfs"
)

const (
	// OptionsFileVersion is the current options file format version.
	OptionsFileVersion = 1

	// Version is the library version recorded in options files.
	Version = "1"

	bloomPolicyPrefix = "bloomfilter:"
)

// ErrBadOptionsFile is wrapped by errors from ParseOptionsFile.
var ErrBadOptionsFile = errors.New("blocktable: bad options file")

// WriteOptionsFile writes opts to path on fs.
func WriteOptionsFile(fs vfs.FS, path string, opts *Options) error {
	file, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	w := bufio.NewWriter(appendWriter{file})
	if err := FormatOptions(w, opts); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return file.Sync()
}

// FormatOptions writes opts in options file format to w.
func FormatOptions(w io.Writer, opts *Options) error {
	opts = orDefault(opts)
	cmp := comparator.OrDefault(opts.Comparator)

	policy := "none"
	if opts.FilterPolicy != nil {
		bits, ok := bloomBitsPerKey(opts.FilterPolicy)
		if !ok {
			return fmt.Errorf("blocktable: filter policy %q cannot be saved", opts.FilterPolicy.Name())
		}
		policy = bloomPolicyPrefix + strconv.Itoa(bits)
	}

	var b strings.Builder
	fmt.Fprintln(&b, "[Version]")
	fmt.Fprintf(&b, "  blocktable_version=%s\n", Version)
	fmt.Fprintf(&b, "  options_file_version=%d\n", OptionsFileVersion)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "[TableOptions]")
	fmt.Fprintf(&b, "  comparator=%s\n", cmp.Name())
	fmt.Fprintf(&b, "  filter_policy=%s\n", policy)
	fmt.Fprintf(&b, "  block_size=%d\n", opts.BlockSize)
	fmt.Fprintf(&b, "  block_restart_interval=%d\n", opts.BlockRestartInterval)
	fmt.Fprintf(&b, "  block_cache_size=%d\n", opts.BlockCacheSize)

	_, err := io.WriteString(w, b.String())
	return err
}

// ReadOptionsFile reads an options file from fs. Fields the file does
// not mention keep their DefaultOptions values.
func ReadOptionsFile(fs vfs.FS, path string) (*Options, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	return ParseOptionsFile(file, nil)
}

// ParseOptionsFile parses an options file, applying it on top of a copy
// of base (DefaultOptions if nil). Unknown sections and keys are ignored.
func ParseOptionsFile(r io.Reader, base *Options) (*Options, error) {
	opts := *orDefault(base)

	scanner := bufio.NewScanner(r)
	section := ""
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line[1 : len(line)-1]
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: expected key=value", ErrBadOptionsFile, lineNum)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if section != "TableOptions" {
			continue
		}
		if err := applyTableOption(&opts, key, value); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadOptionsFile, lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// ApplyOption sets a single [TableOptions] key on opts. The command line
// tools use it for --option=key=value overrides.
func ApplyOption(opts *Options, key, value string) error {
	return applyTableOption(opts, key, value)
}

func applyTableOption(opts *Options, key, value string) error {
	var err error
	switch key {
	case "comparator":
		if value != comparator.Default().Name() {
			return fmt.Errorf("unknown comparator %q", value)
		}
		opts.Comparator = comparator.Default()
	case "filter_policy":
		switch {
		case value == "" || value == "none":
			opts.FilterPolicy = nil
		case strings.HasPrefix(value, bloomPolicyPrefix):
			bits, perr := strconv.Atoi(value[len(bloomPolicyPrefix):])
			if perr != nil || bits < 1 {
				return fmt.Errorf("bad bloom bits per key in %q", value)
			}
			opts.FilterPolicy = NewBloomFilterPolicy(bits)
		default:
			return fmt.Errorf("unknown filter policy %q", value)
		}
	case "block_size":
		opts.BlockSize, err = strconv.Atoi(value)
	case "block_restart_interval":
		opts.BlockRestartInterval, err = strconv.Atoi(value)
	case "block_cache_size":
		opts.BlockCacheSize, err = strconv.ParseUint(value, 10, 64)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// appendWriter adapts a vfs.WritableFile to io.Writer.
type appendWriter struct {
	f vfs.WritableFile
}

func (a appendWriter) Write(p []byte) (int, error) {
	if err := a.f.Append(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
