package binrewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDFSFixture(t *testing.T) []byte {
	t.Helper()
	dfs := make([]byte, 600)

	copy(dfs[0:8], "MYDISK  ")
	dfs[0x104] = 0  // cycle
	dfs[0x105] = 8  // one file, 8 bytes per catalog entry
	dfs[0x106] = 0  // sectors high bits + boot option
	dfs[0x107] = 10 // sectors low byte

	copy(dfs[0x008:0x00F], "TEST   ")
	dfs[0x00F] = '$' // directory

	dfs[0x108] = 0x00 // load addr lo
	dfs[0x109] = 0x19 // load addr hi -> 0x1900
	dfs[0x10A] = 0x00 // exec addr lo
	dfs[0x10B] = 0x19 // exec addr hi -> 0x1900
	dfs[0x10C] = 10   // length lo
	dfs[0x10D] = 0    // length mid
	dfs[0x10E] = 0    // packed high bits
	dfs[0x10F] = 2    // start sector

	copy(dfs[512:522], []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	return dfs
}

func TestParseDFSReadsCatalog(t *testing.T) {
	dfs := buildDFSFixture(t)
	img, err := ParseDFS(dfs)
	require.NoError(t, err)

	assert.Equal(t, 10, img.Sectors)
	assert.Equal(t, 0, img.BootOpt)
	assert.Equal(t, 0, img.Cycle)
	require.Len(t, img.Files, 1)

	f := img.Files[0]
	assert.Equal(t, "TEST", f.Filename)
	assert.Equal(t, "$", f.Dir)
	assert.Equal(t, 0x1900, f.LoadAddr)
	assert.Equal(t, 0x1900, f.ExecAddr)
	assert.Equal(t, 10, f.Length)
	assert.Equal(t, 2, f.StartSector)
}

func TestCatalogBytesExtractsFileContent(t *testing.T) {
	dfs := buildDFSFixture(t)
	img, err := ParseDFS(dfs)
	require.NoError(t, err)

	content := img.Files[0].Bytes(dfs)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, content)
}

func TestParseDFSRejectsImageShorterThanCatalog(t *testing.T) {
	_, err := ParseDFS(make([]byte, 0x100))
	require.Error(t, err)
	var me *MalformedDFSImageError
	assert.ErrorAs(t, err, &me)
}

