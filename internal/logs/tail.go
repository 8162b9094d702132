// Package logs reads the daemon log file for CLI consumption.
package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// TailOptions controls how much of the log is returned and whether the
// reader keeps waiting for new lines.
type TailOptions struct {
	// Limit caps the number of trailing lines returned on the first read.
	// Zero means everything.
	Limit int
	// Follow keeps reading as the file grows until ctx is cancelled.
	Follow bool
	// Poll is the interval between size checks while following.
	Poll time.Duration
}

const defaultPoll = 500 * time.Millisecond

// Tail returns the trailing lines of the log at path. A missing file is
// not an error; follow mode waits for it to appear. In follow mode each
// new line is passed to emit and Tail returns when ctx is cancelled.
func Tail(ctx context.Context, path string, opts TailOptions, emit func(string)) error {
	if emit == nil {
		return errors.New("emit callback is required")
	}
	if opts.Poll <= 0 {
		opts.Poll = defaultPoll
	}

	offset, err := emitLastLines(path, opts.Limit, emit)
	if err != nil {
		return err
	}
	if !opts.Follow {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.Poll):
		}
		offset, err = emitFromOffset(path, offset, emit)
		if err != nil {
			return err
		}
	}
}

// emitLastLines emits up to limit trailing lines and returns the offset of
// the end of file, from which follow mode resumes.
func emitLastLines(path string, limit int, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if limit > 0 && len(lines) > limit {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read log file: %w", err)
	}
	for _, line := range lines {
		emit(line)
	}
	return file.Seek(0, io.SeekEnd)
}

// emitFromOffset emits complete lines written after offset. A truncated
// file restarts the read from the beginning.
func emitFromOffset(path string, offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	read := offset
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Partial line, wait for the writer to finish it.
				return read, nil
			}
			return read, fmt.Errorf("read log file: %w", err)
		}
		read += int64(len(line))
		emit(trimNewline(line))
	}
}

func trimNewline(line string) string {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
