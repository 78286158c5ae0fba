package binrewrite

import (
	"fmt"
	"strings"
)

// DiskImage is the catalog of an Acorn DFS disk image: the on-disk source
// of the byte regions this engine rewrites.
type DiskImage struct {
	Title   string
	Sectors int
	BootOpt int
	Cycle   int
	Files   []Catalog
}

// Catalog is one file entry within a DiskImage.
type Catalog struct {
	Filename    string
	Dir         string
	Length      int
	LoadAddr    int
	ExecAddr    int
	StartSector int
	Attr        byte
}

// MalformedDFSImageError reports that a byte slice handed to ParseDFS is too
// short to hold the two fixed catalog sectors the format requires. The
// original disassembler panicked on an undersized catalog; ParseDFS returns
// this instead, so a caller can check it rather than crash.
type MalformedDFSImageError struct {
	Reason string
}

func (e *MalformedDFSImageError) Error() string {
	return fmt.Sprintf("malformed DFS image: %s", e.Reason)
}

const dfsCatalogSize = 0x200 // two fixed 256-byte sectors: names then file info

// ParseDFS reads the disk and file catalogs from raw DFS disk image bytes.
// The catalog layout is a fixed on-disk format, not a choice this engine
// makes, so the field-by-field byte offsets below follow the format
// directly. Resources:
//
//	http://mdfs.net/Docs/Comp/Disk/Format/DFS
//	http://chrisacorns.computinghistory.org.uk/docs/Acorn/Manuals/Acorn_DiscSystemUGI2.pdf
func ParseDFS(dfs []byte) (*DiskImage, error) {
	if len(dfs) < dfsCatalogSize {
		return nil, &MalformedDFSImageError{Reason: fmt.Sprintf("image is %d bytes, shorter than the %d-byte catalog", len(dfs), dfsCatalogSize)}
	}

	// nfiles is a byte divided by 8, so it tops out at 31 — exactly as many
	// entries as fit the 248 usable bytes of each fixed catalog sector, never
	// more, so there is no further overrun to guard against here.
	nfiles := int(dfs[0x105]) / 8

	img := &DiskImage{
		Title:   strings.TrimRight(string(dfs[0:8])+string(dfs[0x100:0x104]), "\000"),
		Sectors: int(dfs[0x107]) + int(dfs[0x106]&3)*256,
		BootOpt: int(dfs[0x106]&48) >> 4,
		Cycle:   int(dfs[0x104]),
		Files:   make([]Catalog, nfiles),
	}

	for i := range img.Files {
		file := &img.Files[i]

		nameOffset := 0x008 + i*8
		file.Filename, file.Attr = readFilename(dfs[nameOffset : nameOffset+7])
		file.Dir = string(dfs[nameOffset+7])

		infoOffset := 0x108 + i*8
		file.Length = int(dfs[infoOffset+4]) + int(dfs[infoOffset+5])*256 + int(dfs[infoOffset+6]&0b110000)*4096
		file.LoadAddr = int(dfs[infoOffset+0]) + int(dfs[infoOffset+1])*256 + int(dfs[infoOffset+6]&0b1100)*16384
		file.ExecAddr = int(dfs[infoOffset+2]) + int(dfs[infoOffset+3])*256 + int(dfs[infoOffset+6]&0b11000000)*1024
		file.StartSector = int(dfs[infoOffset+7]) + int(dfs[infoOffset+6]&0b11)*256
	}

	return img, nil
}

// Bytes returns the raw content bytes of one catalog entry within the
// original full disk image.
func (c Catalog) Bytes(dfs []byte) []byte {
	offset := c.StartSector * 256
	return dfs[offset : offset+c.Length]
}

// readFilename unpacks a 7-byte DFS directory entry: each byte's top bit is
// one bit of the entry's attribute byte (the first character's becomes bit
// 0, the seventh's bit 6), with the low 7 bits the printable filename
// character.
func readFilename(block []byte) (string, byte) {
	name := make([]byte, len(block))
	var attr byte
	for i, v := range block {
		attr |= (v & 0x80) >> (7 - i)
		name[i] = v & 0x7f
	}
	return strings.TrimRight(string(name), " "), attr
}
