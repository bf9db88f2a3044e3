// Package jsp (JSON persistence) provides utilities to store and load arbitrary
// JSON-encoded structures with optional checksumming and compression.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package jsp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/NVIDIA/raidio/cmn/cos"
	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

//                    0 ---------------- 63  64 ------ 95 | 96 ------ 127
// prefix layout:    [ signature | jsp ver |   reserved   |   bit flags  ]

const (
	signature = "raidio"
	version   = 1
	prefLen   = 16
	sizeofU64 = 8
)

const (
	flagCompressed = 1 << iota
	flagChecksummed
)

type ErrBadCksum struct {
	expected, actual uint64
	tag              string
}

func (e *ErrBadCksum) Error() string {
	return fmt.Sprintf("bad checksum %q: expected %x, got %x", e.tag, e.expected, e.actual)
}

func IsErrBadCksum(err error) bool {
	var e *ErrBadCksum
	return errors.As(err, &e)
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

func EncodeBuf(v any, opts Options) []byte {
	buf := &bytes.Buffer{}
	err := Encode(buf, v, opts)
	cos.AssertNoErr(err)
	return buf.Bytes()
}

func Encode(writer io.Writer, v any, opts Options) (err error) {
	var (
		body = &bytes.Buffer{}
		w    io.Writer
		zw   *lz4.Writer
	)
	w = body
	if opts.Compress {
		zw = lz4.NewWriter(body)
		w = zw
	}
	encoder := jsonAPI.NewEncoder(w)
	if opts.Indent {
		encoder.SetIndent("", "  ")
	}
	if err = encoder.Encode(v); err != nil {
		return errors.Wrap(err, "jsp: encode")
	}
	if zw != nil {
		if err = zw.Close(); err != nil {
			return errors.Wrap(err, "jsp: compress")
		}
	}
	if opts.Signature {
		var (
			prefix [prefLen]byte
			flags  uint64
		)
		copy(prefix[:], signature)
		prefix[len(signature)] = version
		if opts.Compress {
			flags |= flagCompressed
		}
		if opts.Checksum {
			flags |= flagChecksummed
		}
		binary.BigEndian.PutUint64(prefix[sizeofU64:], flags)
		if _, err = writer.Write(prefix[:]); err != nil {
			return err
		}
	}
	if opts.Checksum {
		var hsum [sizeofU64]byte
		binary.BigEndian.PutUint64(hsum[:], xxhash.Sum64(body.Bytes()))
		if _, err = writer.Write(hsum[:]); err != nil {
			return err
		}
	}
	_, err = writer.Write(body.Bytes())
	return err
}

// Decode reads what Encode wrote; with a signature, the prefix flags
// take precedence over the passed options.
func Decode(reader io.Reader, v any, opts Options, tag string) error {
	if opts.Signature {
		var prefix [prefLen]byte
		if _, err := io.ReadFull(reader, prefix[:]); err != nil {
			return errors.Wrapf(err, "jsp: read prefix %q", tag)
		}
		l := len(signature)
		if signature != string(prefix[:l]) {
			return errors.Errorf("jsp: bad signature %q: %v", tag, prefix[:l])
		}
		if prefix[l] != version {
			return errors.Errorf("jsp: unsupported version %q: %d", tag, prefix[l])
		}
		flags := binary.BigEndian.Uint64(prefix[sizeofU64:])
		opts.Compress = flags&flagCompressed != 0
		opts.Checksum = flags&flagChecksummed != 0
	}
	var r io.Reader = reader
	if opts.Checksum {
		var hsum [sizeofU64]byte
		if _, err := io.ReadFull(reader, hsum[:]); err != nil {
			return errors.Wrapf(err, "jsp: read checksum %q", tag)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return errors.Wrapf(err, "jsp: read %q", tag)
		}
		expected, actual := binary.BigEndian.Uint64(hsum[:]), xxhash.Sum64(body)
		if expected != actual {
			return &ErrBadCksum{expected: expected, actual: actual, tag: tag}
		}
		r = bytes.NewReader(body)
	}
	if opts.Compress {
		r = lz4.NewReader(r)
	}
	if err := jsonAPI.NewDecoder(r).Decode(v); err != nil {
		return errors.Wrapf(err, "jsp: decode %q", tag)
	}
	return nil
}
