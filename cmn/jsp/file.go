// Package jsp (JSON persistence) provides utilities to store and load arbitrary
// JSON-encoded structures with optional checksumming and compression.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package jsp

import (
	"os"
	"strconv"
	"time"

	"github.com/NVIDIA/raidio/cmn/nlog"
	"github.com/pkg/errors"
)

func Save(filepath string, v any, opts Options) (err error) {
	var (
		file *os.File
		tmp  = filepath + ".tmp." + strconv.FormatInt(time.Now().UnixNano(), 36)
	)
	if file, err = os.Create(tmp); err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if err != nil {
			if errRm := os.Remove(tmp); errRm != nil {
				nlog.Errorf("jsp: failed to remove %s: %v", tmp, errRm)
			}
		}
	}()
	if err = Encode(file, v, opts); err != nil {
		file.Close()
		return err
	}
	if err = file.Close(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp, filepath))
}

func Load(filepath string, v any, opts Options) error {
	file, err := os.Open(filepath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer file.Close()
	err = Decode(file, v, opts, filepath)
	if IsErrBadCksum(err) {
		nlog.Errorln("jsp:", err)
	}
	return err
}
