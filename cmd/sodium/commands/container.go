// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/warp-linux/sodium/cmd/sodium/cli"
	"github.com/warp-linux/sodium/lib/blockcodec"
)

// containerSuffix is appended by compress and stripped by uncompress.
const containerSuffix = ".zv"

type compressParams struct {
	Force      bool   `flag:"force,f" desc:"overwrite an existing output file"`
	Output     string `flag:"output,o" desc:"output file (default: input + .zv, or stdout for stdin)"`
	BlockSize  int    `flag:"block-size" desc:"input bytes per block (1-65535)" default:"65535"`
	Store      bool   `flag:"store" desc:"write raw blocks without compression"`
	NoChecksum bool   `flag:"no-checksum" desc:"omit the trailing checksum block"`
	Verbose    bool   `flag:"verbose,v" desc:"report block statistics"`
}

func compressCommand(streams Streams) *cli.Command {
	var params compressParams

	return &cli.Command{
		Name:    "compress",
		Summary: "Write a file as a ZV container",
		Description: `Write a file as a ZV container.

The input is split into blocks of at most 65535 bytes. Each block is
LZ4-compressed when that makes it smaller and stored raw otherwise. A
checksum block covering the whole input is appended unless
--no-checksum is given. Use "-" to read standard input.`,
		Usage: "sodium compress [flags] <file>",
		Examples: []cli.Example{
			{Command: "sodium compress hello.tar"},
			{Description: "Compress a stream", Command: "tar -c payload | sodium compress - > payload.tar.zv"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("compress", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Usagef("compress requires exactly one input file")
			}
			if params.BlockSize < 1 || params.BlockSize > blockcodec.MaxBlockSize {
				return cli.Usagef("--block-size must be between 1 and %d, got %d", blockcodec.MaxBlockSize, params.BlockSize)
			}
			input := args[0]
			output := params.Output
			if output == "" && input != stdioPath {
				output = input + containerSuffix
			}

			options := []blockcodec.WriterOption{blockcodec.WithBlockSize(params.BlockSize)}
			if params.Store {
				options = append(options, blockcodec.WithWriterCompressor(nil))
			}
			if !params.NoChecksum {
				options = append(options, blockcodec.WithChecksum())
			}

			var stats blockcodec.WriterStats
			encode := func(w io.Writer) error {
				reader, err := openInput(input, streams.Stdin)
				if err != nil {
					return err
				}
				defer reader.Close()

				writer := blockcodec.NewWriter(w, options...)
				if _, err := io.Copy(writer, reader); err != nil {
					return fmt.Errorf("compressing %s: %w", input, err)
				}
				if err := writer.Close(); err != nil {
					return fmt.Errorf("compressing %s: %w", input, err)
				}
				stats = writer.Stats()
				return nil
			}

			if err := emit(output, params.Force, streams.Stdout, encode); err != nil {
				return err
			}
			cli.NewLogger(streams.Stderr, params.Verbose).Debug("compressed",
				"input", input,
				"bytes_in", stats.BytesIn,
				"bytes_out", stats.BytesOut,
				"raw_blocks", stats.RawBlocks,
				"compressed_blocks", stats.CompressedBlocks,
			)
			if output != "" {
				fmt.Fprintf(streams.Stdout, "compressed %s (%s) to %s (%s, %s)\n",
					input, humanize.Bytes(uint64(stats.BytesIn)),
					output, humanize.Bytes(uint64(stats.BytesOut)),
					ratio(stats.BytesOut, stats.BytesIn))
			}
			return nil
		},
	}
}

type uncompressParams struct {
	Force    bool   `flag:"force,f" desc:"overwrite an existing output file"`
	Output   string `flag:"output,o" desc:"output file (default: input without .zv, or stdout for stdin)"`
	NoVerify bool   `flag:"no-verify" desc:"skip checksum block verification"`
}

func uncompressCommand(streams Streams) *cli.Command {
	var params uncompressParams

	return &cli.Command{
		Name:    "uncompress",
		Summary: "Decode a ZV container to a file",
		Usage:   "sodium uncompress [flags] <file.zv>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("uncompress", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Usagef("uncompress requires exactly one input file")
			}
			input := args[0]
			output := params.Output
			if output == "" && input != stdioPath {
				trimmed, ok := strings.CutSuffix(input, containerSuffix)
				if !ok || trimmed == "" {
					return fmt.Errorf("cannot derive an output name from %q (no %s suffix); use --output", input, containerSuffix)
				}
				output = trimmed
			}

			var options []blockcodec.Option
			if params.NoVerify {
				options = append(options, blockcodec.WithoutChecksumVerification())
			}
			var written int64
			decode := func(w io.Writer) error {
				n, err := decodeContainer(input, streams.Stdin, w, options)
				written = n
				return err
			}
			if err := emit(output, params.Force, streams.Stdout, decode); err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(streams.Stdout, "uncompressed %s to %s (%s)\n", input, output, humanize.Bytes(uint64(written)))
			}
			return nil
		},
	}
}

func catCommand(streams Streams) *cli.Command {
	return &cli.Command{
		Name:    "cat",
		Summary: "Decode ZV containers to standard output",
		Description: `Decode ZV containers to standard output.

Each file is decoded in turn and its checksum blocks verified. With no
arguments, or with "-", standard input is decoded.`,
		Usage: "sodium cat [<file.zv>...]",
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				args = []string{stdioPath}
			}
			for _, input := range args {
				if _, err := decodeContainer(input, streams.Stdin, streams.Stdout, nil); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// decodeContainer decodes the container at input ("-" for stdin) into
// w and returns the decoded byte count.
func decodeContainer(input string, stdin io.Reader, w io.Writer, options []blockcodec.Option) (int64, error) {
	reader, err := openInput(input, stdin)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	written, err := io.Copy(w, blockcodec.NewReader(reader, options...))
	if err != nil {
		return written, fmt.Errorf("decoding %s: %w", input, err)
	}
	return written, nil
}

// emit runs produce against the named output file, or against stdout
// when output is empty.
func emit(output string, force bool, stdout io.Writer, produce func(io.Writer) error) error {
	if output == "" || output == stdioPath {
		return produce(stdout)
	}
	return writeOutput(output, force, produce)
}

func ratio(part, whole int64) string {
	if whole == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(part)/float64(whole))
}
