//go:build !linux

package utils

import "errors"

func CountInstructions(fn func() error) (count uint64, err error) {
	if err = fn(); err != nil {
		return
	}
	err = errors.New("instruction counting needs linux perf events")
	return
}
