package main

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/dargueta/fatmod/block"
)

// s1Image is the same 8 MiB, empty-root fixture spec.md scenario S1 uses.
func s1Image() []byte {
	const totalSectors = 16384
	sector0 := make([]byte, block.SectorSize)
	binary.LittleEndian.PutUint16(sector0[11:13], 512)
	sector0[13] = 2
	binary.LittleEndian.PutUint16(sector0[14:16], 32)
	sector0[16] = 1
	binary.LittleEndian.PutUint32(sector0[32:36], totalSectors)
	binary.LittleEndian.PutUint32(sector0[36:40], 1024)
	binary.LittleEndian.PutUint32(sector0[44:48], 2)

	buf := make([]byte, totalSectors*block.SectorSize)
	copy(buf, sector0)
	// FAT[2] belongs to the root directory: mark it end-of-chain so the
	// allocator never hands the root cluster out to a file.
	binary.LittleEndian.PutUint32(buf[32*block.SectorSize+2*4:], 0x0FFFFFFF)
	return buf
}

func withFixtureImage(t *testing.T) string {
	t.Helper()
	prevFS := hostFS
	memFS := afero.NewMemMapFs()
	hostFS = memFS
	t.Cleanup(func() { hostFS = prevFS })

	const path = "/img.dat"
	require.NoError(t, afero.WriteFile(memFS, path, s1Image(), 0o644))
	return path
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "fatmod",
		ArgsUsage: "IMAGE OPTION [ARGS...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
		},
		Action:          run,
		HideHelpCommand: true,
		// Without this, urfave/cli handles a cli.Exit error by exiting the
		// process; the tests need Run to return the error instead.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String()
}

func runCLI(t *testing.T, argv ...string) (string, error) {
	t.Helper()
	app := newApp()
	var runErr error
	out := captureStdout(t, func() {
		runErr = app.Run(append([]string{"fatmod"}, argv...))
	})
	return out, runErr
}

func TestCLI_List_S1EmptyImage(t *testing.T) {
	path := withFixtureImage(t)
	out, err := runCLI(t, path, "-l")
	require.NoError(t, err)
	assert.Equal(t, "Sector Size: 512\n"+
		"Sectors per Cluster: 2\n"+
		"Reserved Sector Count: 32\n"+
		"Number of FATs: 1\n"+
		"Total Sectors: 16384\n"+
		"Sectors per FAT: 1024\n"+
		"Root Cluster: 2\n", out)
}

func TestCLI_CreateThenList_S2(t *testing.T) {
	path := withFixtureImage(t)

	out, err := runCLI(t, path, "-c", "HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, "File created: HELLO.TXT\n", out)

	out, err = runCLI(t, path, "-l")
	require.NoError(t, err)
	assert.Contains(t, out, "HELLO.TXT 0\n")
}

func TestCLI_WriteThenReadASCII_S3(t *testing.T) {
	path := withFixtureImage(t)
	_, err := runCLI(t, path, "-c", "HELLO.TXT")
	require.NoError(t, err)

	out, err := runCLI(t, path, "-w", "HELLO.TXT", "0", "5", "65")
	require.NoError(t, err)
	assert.Equal(t, "Data written to file: HELLO.TXT\n", out)

	out, err = runCLI(t, path, "-r", "-a", "HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, "AAAAA\n", out)

	out, err = runCLI(t, path, "-l")
	require.NoError(t, err)
	assert.Contains(t, out, "HELLO.TXT 5\n")
}

func TestCLI_WriteOffsetBeyondSize_S4(t *testing.T) {
	path := withFixtureImage(t)
	_, err := runCLI(t, path, "-c", "HELLO.TXT")
	require.NoError(t, err)
	_, err = runCLI(t, path, "-w", "HELLO.TXT", "0", "5", "65")
	require.NoError(t, err)

	out, err := runCLI(t, path, "-w", "HELLO.TXT", "2000", "10", "66")
	require.NoError(t, err)
	assert.Equal(t, "Offset exceeds file size. File size: 5 bytes\n", out)

	out, err = runCLI(t, path, "-r", "-a", "HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, "AAAAA\n", out, "the file must be unchanged")
}

func TestCLI_ReadHex_S6(t *testing.T) {
	path := withFixtureImage(t)
	_, err := runCLI(t, path, "-c", "HELLO.TXT")
	require.NoError(t, err)
	_, err = runCLI(t, path, "-w", "HELLO.TXT", "0", "5", "65")
	require.NoError(t, err)

	out, err := runCLI(t, path, "-r", "-b", "HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, "\n00000000: 41 41 41 41 41 \n", out)
}

func TestCLI_Delete_S5(t *testing.T) {
	path := withFixtureImage(t)
	_, err := runCLI(t, path, "-c", "HELLO.TXT")
	require.NoError(t, err)
	_, err = runCLI(t, path, "-w", "HELLO.TXT", "0", "1500", "90")
	require.NoError(t, err)

	out, err := runCLI(t, path, "-d", "HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, "File deleted: HELLO.TXT\n", out)

	out, err = runCLI(t, path, "-l")
	require.NoError(t, err)
	assert.NotContains(t, out, "HELLO.TXT")

	_, err = runCLI(t, path, "-c", "AGAIN.TXT")
	require.NoError(t, err)
	out, err = runCLI(t, path, "-w", "AGAIN.TXT", "0", "1500", "90")
	require.NoError(t, err)
	assert.Equal(t, "Data written to file: AGAIN.TXT\n", out)
}

func TestCLI_DeleteMissing_NotFoundDiagnostic(t *testing.T) {
	path := withFixtureImage(t)
	out, err := runCLI(t, path, "-d", "MISSING.TXT")
	require.NoError(t, err)
	assert.Equal(t, "File not found: MISSING.TXT\n", out)
}

func TestCLI_MissingImage_ExitsNonZero(t *testing.T) {
	withFixtureImage(t)
	_, err := runCLI(t, "/does-not-exist.img", "-l")
	require.Error(t, err)
}
