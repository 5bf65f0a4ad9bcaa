// Command fatmod inspects and mutates a FAT32 filesystem image stored in a
// regular host file, without mounting it. Argument parsing and host file
// access are deliberately thin: the on-disk FAT32 semantics all live in
// fileops and the packages underneath it, grounded on disko's
// drivers/fat package; this file is the outer shell, grounded on disko's
// own cmd/main.go (urfave/cli App scaffolding) and drivers/common (host
// file opening via afero, mirroring disko's driver tests).
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/dargueta/fatmod/block"
	"github.com/dargueta/fatmod/ferrors"
	"github.com/dargueta/fatmod/fileops"
)

// hostFS is the host filesystem abstraction the image file is opened
// through. Using afero.Fs rather than os directly lets tests swap in an
// afero.MemMapFs without touching a real file.
var hostFS afero.Fs = afero.NewOsFs()

func main() {
	app := &cli.App{
		Name:      "fatmod",
		Usage:     "inspect and mutate a FAT32 image without mounting it",
		ArgsUsage: "IMAGE OPTION [ARGS...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log cluster allocation and geometry warnings to stderr",
			},
		},
		Action: run,
		// Argument parsing beyond the IMAGE/OPTION split below is
		// intentionally hand-rolled in dispatch, not delegated to urfave's
		// flag machinery: spec.md's grammar interleaves flags and
		// positional arguments ("-r -a NAME", "-w NAME OFFSET N DATA") in
		// a way subcommands don't model cleanly.
		HideHelpCommand: true,
	}

	if err := app.Run(os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if !c.Bool("verbose") {
		log.SetOutput(io.Discard)
	}

	args := c.Args().Slice()
	if len(args) == 0 {
		return cli.ShowAppHelp(c)
	}
	if args[0] == "-h" {
		return cli.ShowAppHelp(c)
	}

	imagePath := args[0]
	rest := args[1:]
	if len(rest) == 0 {
		cli.ShowAppHelp(c)
		return cli.Exit("missing OPTION", 1)
	}

	f, err := hostFS.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open image: %s", err), 1)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot stat image: %s", err), 1)
	}
	totalSectors := uint(info.Size() / block.SectorSize)

	dev := block.New(f, totalSectors)
	vol, err := fileops.Open(dev)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot parse image: %s", err), 1)
	}

	return dispatch(vol, rest)
}

func dispatch(vol *fileops.Volume, args []string) error {
	switch args[0] {
	case "-l":
		return doList(vol)
	case "-r":
		return doRead(vol, args[1:])
	case "-c":
		return doCreate(vol, args[1:])
	case "-d":
		return doDelete(vol, args[1:])
	case "-w":
		return doWrite(vol, args[1:])
	case "-h":
		return cli.Exit("usage: fatmod IMAGE (-l | -r -a|-b NAME | -c NAME | -d NAME | -w NAME OFFSET N DATA)", 0)
	default:
		return cli.Exit(fmt.Sprintf("unrecognized option: %s", args[0]), 1)
	}
}

func doList(vol *fileops.Volume) error {
	lines, err := vol.ListLines()
	if err != nil {
		return reportOperationalFailure(err)
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

func doRead(vol *fileops.Volume, args []string) error {
	if len(args) != 2 {
		return cli.Exit("usage: -r -a|-b NAME", 1)
	}
	mode, name := args[0], args[1]

	switch mode {
	case "-a":
		data, err := vol.ReadASCII(name)
		if err != nil {
			return reportOperationalFailure(err)
		}
		os.Stdout.Write(data)
		fmt.Println()
		return nil
	case "-b":
		dump, err := vol.ReadHex(name)
		if err != nil {
			return reportOperationalFailure(err)
		}
		fmt.Print(dump)
		return nil
	default:
		return cli.Exit("usage: -r -a|-b NAME", 1)
	}
}

func doCreate(vol *fileops.Volume, args []string) error {
	if len(args) != 1 {
		return cli.Exit("usage: -c NAME", 1)
	}
	name := args[0]

	if err := vol.Create(name); err != nil {
		return reportOperationalFailure(err)
	}
	fmt.Printf("File created: %s\n", name)
	return nil
}

func doDelete(vol *fileops.Volume, args []string) error {
	if len(args) != 1 {
		return cli.Exit("usage: -d NAME", 1)
	}
	name := args[0]

	if err := vol.Delete(name); err != nil {
		return reportOperationalFailure(err)
	}
	fmt.Printf("File deleted: %s\n", name)
	return nil
}

func doWrite(vol *fileops.Volume, args []string) error {
	if len(args) != 4 {
		return cli.Exit("usage: -w NAME OFFSET N DATA", 1)
	}
	name := args[0]

	offset, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return cli.Exit("OFFSET must be a non-negative integer", 1)
	}
	n, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return cli.Exit("N must be a non-negative integer", 1)
	}
	data, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		return cli.Exit("DATA must be an integer", 1)
	}

	if err := vol.Write(name, uint32(offset), uint32(n), byte(data&0xFF)); err != nil {
		return reportOperationalFailure(err)
	}
	fmt.Printf("Data written to file: %s\n", name)
	return nil
}

// reportOperationalFailure prints the diagnostic original_source/fatmod.c
// prints for each classified failure and returns nil so the command still
// exits 0, per spec.md §6's reference exit-code behavior: only argument
// errors and image-open failures (handled before dispatch) exit 1.
func reportOperationalFailure(err error) error {
	switch {
	case errors.Is(err, ferrors.ErrNotFound):
		fmt.Printf("File not found: %s\n", trailingDetail(err))
	case errors.Is(err, ferrors.ErrExists):
		fmt.Printf("File already exists: %s\n", trailingDetail(err))
	case errors.Is(err, ferrors.ErrFull):
		fmt.Println("No free directory entry found.")
	case errors.Is(err, ferrors.ErrNoSpace):
		fmt.Println("No free clusters available.")
	case errors.Is(err, ferrors.ErrOffsetBeyondEnd):
		fmt.Printf("Offset exceeds file size. %s\n", trailingDetail(err))
	default:
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// trailingDetail strips the "<sentinel>: " prefix ferrors.WithMessage adds,
// leaving just the caller-supplied detail (a file name, or a "File size: N
// bytes" clause).
func trailingDetail(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}
