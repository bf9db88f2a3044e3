// Package nlog - raidio logger, provides buffering, timestamping, and writing
// to stderr or a log file
/*
 * Copyright (c) 2023-2026, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	nlogBufSize  = 64 * 1024
	nlogLineSize = 4 * 1024
)

// MaxSize triggers rotation of the log file
var MaxSize int64 = 4 * 1024 * 1024

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

const sevChar = "IWE"

type logger struct {
	file     *os.File
	bw       *bufio.Writer
	override io.Writer
	size     int64
	mu       sync.Mutex
}

var (
	lg    logger
	title string

	logDir   string
	toStderr = true

	pool = sync.Pool{
		New: func() any { return &fixed{buf: make([]byte, nlogLineSize)} },
	}
)

// Setup selects the destination: stderr, or a file in dir (created on demand)
func Setup(dir string, stderr bool, verbose int) error {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	lg.flush()
	logDir, toStderr = dir, stderr
	SetVerbosity(verbose)
	if toStderr || logDir == "" {
		toStderr = true
		return nil
	}
	return lg.rotate(time.Now())
}

func log(sev severity, depth int, format string, args ...any) {
	fb := pool.Get().(*fixed)
	fb.reset()
	sprintf(sev, depth, format, fb, args...)

	lg.mu.Lock()
	lg.write(sev, fb.bytes())
	lg.mu.Unlock()
	pool.Put(fb)
}

// under lock
func (l *logger) write(sev severity, line []byte) {
	switch {
	case l.override != nil:
		l.override.Write(line)
	case toStderr || l.bw == nil:
		os.Stderr.Write(line)
	default:
		n, _ := l.bw.Write(line)
		l.size += int64(n)
		if sev >= sevErr {
			os.Stderr.Write(line)
			l.bw.Flush()
		}
		if l.size >= MaxSize {
			if err := l.rotate(time.Now()); err != nil {
				os.Stderr.WriteString("nlog: " + err.Error() + "\n")
			}
		}
	}
}

func (l *logger) flush() {
	if l.bw != nil {
		l.bw.Flush()
	}
}

func (l *logger) rotate(now time.Time) (err error) {
	if l.file != nil {
		l.bw.Flush()
		l.file.Close()
	}
	if err = os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s.%02d%02d-%02d%02d%02d.%d.log", filepath.Base(os.Args[0]),
		now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), os.Getpid())
	if l.file, err = os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640); err != nil {
		l.file, l.bw = nil, nil
		return err
	}
	l.bw = bufio.NewWriterSize(l.file, nlogBufSize)
	l.size = 0
	hdr := "Started up at " + now.Format("2006/01/02 15:04:05") + ", " + runtime.Version() + "\n"
	if title != "" {
		hdr += title + "\n"
	}
	l.bw.WriteString(hdr)
	return nil
}

func formatHdr(s severity, depth int, fb *fixed) {
	_, fn, ln, ok := runtime.Caller(3 + depth)
	if !ok {
		return
	}
	if idx := strings.LastIndexByte(fn, filepath.Separator); idx > 0 {
		fn = fn[idx+1:]
	}
	fn = strings.TrimSuffix(fn, ".go")
	fb.writeByte(sevChar[s])
	fb.writeByte(' ')
	fb.writeStamp(time.Now())
	fb.writeByte(' ')
	fb.writeString(fn)
	fb.writeByte(':')
	fb.writeString(strconv.Itoa(ln))
	fb.writeByte(' ')
}

func sprintf(sev severity, depth int, format string, fb *fixed, args ...any) {
	formatHdr(sev, depth+1, fb)
	if format == "" {
		fmt.Fprintln(fb, args...)
	} else {
		fmt.Fprintf(fb, format, args...)
	}
	fb.eol()
}
