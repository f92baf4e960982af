package main

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sliverarmory/elfloader"
	"github.com/sliverarmory/elfloader/loader"
)

var (
	baseAddr  uint64
	args      []string
	envs      []string
	stackTop  uint64
	stackSize uint64
	verbose   bool
	dumpStack bool
	noRandom  bool
	mapImage  bool
)

var rootCmd = &cobra.Command{
	Use:          "elfloader <binary>",
	Short:        "Prepare an ELF binary for execution and print the resulting process image",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, argv []string) error {
		log := logrus.New()
		log.SetOutput(cmd.ErrOrStderr())
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
		if host := hostPageSize(); host != loader.PageSize {
			log.WithField("host", host).Warnf("host page size differs from the %#x byte ABI page size", loader.PageSize)
		}

		opts := elfloader.Options{
			Args:      append([]string{argv[0]}, args...),
			Env:       envs,
			StackTop:  stackTop,
			StackSize: stackSize,
			Logger:    log,
			NoRandom:  noRandom,
		}
		if cmd.Flags().Changed("base") {
			opts.Base = loader.At(baseAddr)
		}

		image, err := elfloader.LoadFile(argv[0], opts)
		if err != nil {
			return err
		}
		printImage(cmd.OutOrStdout(), image)
		if mapImage {
			return verifyMapping(cmd.OutOrStdout(), image)
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().Uint64Var(&baseAddr, "base", 0, "Load address for position-independent binaries")
	rootCmd.Flags().StringArrayVar(&args, "arg", nil, "Argument passed after argv[0] (repeatable)")
	rootCmd.Flags().StringArrayVar(&envs, "env", nil, "Environment entry KEY=VALUE (repeatable)")
	rootCmd.Flags().Uint64Var(&stackTop, "stack-top", elfloader.DefaultStackTop, "Lowest address of the stack region")
	rootCmd.Flags().Uint64Var(&stackSize, "stack-size", elfloader.DefaultStackSize, "Size of the stack region in bytes")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every loading step")
	rootCmd.Flags().BoolVar(&dumpStack, "dump-stack", false, "Hex dump the initialized part of the stack")
	rootCmd.Flags().BoolVar(&noRandom, "no-random", false, "Leave AT_RANDOM at 0")
	rootCmd.Flags().BoolVar(&mapImage, "map", false, "Map the image into host memory and read every relocation back")
}

func printImage(w io.Writer, image *elfloader.Image) {
	fmt.Fprintf(w, "base:  %#x\n", image.Base)
	fmt.Fprintf(w, "entry: %#x\n", image.Entry)

	fmt.Fprintln(w, "segments:")
	for _, s := range image.Segments {
		fmt.Fprintf(w, "  %#016x-%#016x %s file %#x\n", s.Vaddr, s.End(), s.Flags, len(s.Data))
	}

	fmt.Fprintf(w, "relocations: %d\n", len(image.Relocations))
	for _, r := range image.Relocations {
		fmt.Fprintf(w, "  *%#016x = %#x (%d bytes)\n", r.Dst, r.Src, r.Count)
	}

	fmt.Fprintln(w, "auxv:")
	for _, e := range image.Auxv.Entries() {
		fmt.Fprintf(w, "  %-2d %#x\n", e.Tag, e.Value)
	}

	stack := image.Stack
	fmt.Fprintf(w, "stack: sp %#x, %d of %d bytes used\n", stack.SP, len(stack.Initialized()), len(stack.Data))
	if dumpStack {
		fmt.Fprint(w, hex.Dump(stack.Initialized()))
	}
}

func verifyMapping(w io.Writer, image *elfloader.Image) error {
	mapping, err := image.Map()
	if err != nil {
		return err
	}
	defer mapping.Free()

	for _, r := range image.Relocations {
		got, err := mapping.Word(r.Dst, r.Count, image.ByteOrder)
		if err != nil {
			return err
		}
		if want := r.Src & (1<<(8*r.Count) - 1); got != want {
			return fmt.Errorf("relocation at %#x reads back %#x, want %#x", r.Dst, got, want)
		}
	}
	fmt.Fprintf(w, "mapped: %#x bytes at %#x, %d relocations verified\n", mapping.Len(), mapping.Low(), len(image.Relocations))
	return nil
}
