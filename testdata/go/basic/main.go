package main

import (
	"fmt"
	"os"
)

var greeting = "hello from basic"

func main() {
	fmt.Println(greeting)
	for i, arg := range os.Args {
		fmt.Printf("argv[%d] = %s\n", i, arg)
	}
}
