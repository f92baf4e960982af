//go:build !unix

package main

import "github.com/sliverarmory/elfloader/loader"

func hostPageSize() int {
	return loader.PageSize
}
