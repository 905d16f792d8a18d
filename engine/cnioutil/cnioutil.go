// Package cnioutil holds I/O helpers for connections and service directories.
package cnioutil

import (
	"io"

	"github.com/pkg/errors"
)

// IsTimeoutError checks if the cause of err reports a timeout, like net.Error
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	te, ok := errors.Cause(err).(interface{ Timeout() bool })
	return ok && te.Timeout()
}

// transfer calls op until data is used up. Timeouts of deadline-driven connections are retried.
func transfer(data []byte, op func([]byte) (int, error)) error {
	for len(data) > 0 {
		n, err := op(data)
		data = data[n:]
		if err != nil && !IsTimeoutError(err) {
			return err
		}
	}
	return nil
}

// WriteAll writes all of data to w
func WriteAll(w io.Writer, data []byte) error {
	return transfer(data, w.Write)
}

// ReadAll fills data from r
func ReadAll(r io.Reader, data []byte) error {
	return transfer(data, r.Read)
}
