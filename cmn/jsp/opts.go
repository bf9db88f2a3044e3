// Package jsp (JSON persistence) provides utilities to store and load arbitrary
// JSON-encoded structures with optional checksumming and compression.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package jsp

type Options struct {
	Compress  bool // lz4
	Checksum  bool // xxhash
	Signature bool // when true, write 128bit prefix (see io.go) at offset zero
	Indent    bool
}

func Plain() Options { return Options{Indent: true} }

func CCSign() Options {
	return Options{Compress: true, Checksum: true, Signature: true}
}

func CksumSign() Options {
	return Options{Checksum: true, Signature: true, Indent: true}
}
