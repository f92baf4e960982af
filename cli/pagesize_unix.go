//go:build unix

package main

import "golang.org/x/sys/unix"

func hostPageSize() int {
	return unix.Getpagesize()
}
