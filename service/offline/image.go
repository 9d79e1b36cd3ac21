package offline

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io/ioutil"
)

// DefaultBase is the load address of flat images.
const DefaultBase = 0x400000

// ErrOutOfImage is returned for accesses outside the loaded image.
var ErrOutOfImage = errors.New("address outside the image")

// Image is the memory of the simulated target: one contiguous executable
// region and the bytes it had when it was loaded.
type Image struct {
	Path  string
	Base  uint64
	Entry uint64
	// Mode is the x86 decoding mode, 32 or 64.
	Mode int

	data []byte
	orig []byte
	syms symbolTable
}

// LoadImage reads the target at path. ELF files are mapped from their
// executable sections; any other file is a flat image loaded at base.
func LoadImage(path string, base uint64, mode int) (*Image, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(raw, []byte(elf.ELFMAG)) {
		return loadELF(path, raw)
	}
	if mode == 0 {
		mode = 64
	}
	return newImage(path, base, base, mode, raw), nil
}

func newImage(path string, base, entry uint64, mode int, data []byte) *Image {
	return &Image{
		Path:  path,
		Base:  base,
		Entry: entry,
		Mode:  mode,
		data:  append([]byte(nil), data...),
		orig:  append([]byte(nil), data...),
	}
}

// loadELF maps the executable sections of an ELF file. Sections are laid
// out at their virtual addresses, gaps are zero filled.
func loadELF(path string, raw []byte) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer f.Close()

	mode := 64
	switch f.Machine {
	case elf.EM_X86_64:
	case elf.EM_386:
		mode = 32
	default:
		return nil, fmt.Errorf("%s: unsupported machine %v", path, f.Machine)
	}

	var lo, hi uint64
	var text []*elf.Section
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_EXECINSTR == 0 || s.Type != elf.SHT_PROGBITS || s.Size == 0 {
			continue
		}
		if len(text) == 0 || s.Addr < lo {
			lo = s.Addr
		}
		if end := s.Addr + s.Size; end > hi {
			hi = end
		}
		text = append(text, s)
	}
	if len(text) == 0 {
		return nil, fmt.Errorf("%s: no executable sections", path)
	}

	data := make([]byte, hi-lo)
	for _, s := range text {
		b, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("%s: section %s: %w", path, s.Name, err)
		}
		copy(data[s.Addr-lo:], b)
	}
	entry := f.Entry
	if entry < lo || entry >= hi {
		entry = lo
	}
	img := newImage(path, lo, entry, mode, data)

	// stripped binaries have no symbol table
	if elfSyms, err := f.Symbols(); err == nil {
		var syms []symbol
		for _, s := range elfSyms {
			if elf.ST_TYPE(s.Info) == elf.STT_FUNC && s.Value != 0 && s.Name != "" {
				syms = append(syms, symbol{name: s.Name, addr: s.Value})
			}
		}
		img.syms = newSymbolTable(syms)
	}
	return img, nil
}

// End returns the first address after the image.
func (img *Image) End() uint64 {
	return img.Base + uint64(len(img.data))
}

// Contains reports whether addr is inside the image.
func (img *Image) Contains(addr uint64) bool {
	return addr >= img.Base && addr < img.End()
}

// Read returns up to n bytes at addr. The slice aliases the image.
func (img *Image) Read(addr uint64, n int) []byte {
	if !img.Contains(addr) {
		return nil
	}
	off := addr - img.Base
	end := off + uint64(n)
	if end > uint64(len(img.data)) {
		end = uint64(len(img.data))
	}
	return img.data[off:end]
}

// Write copies data to addr. Nothing is written if any byte falls outside
// the image.
func (img *Image) Write(addr uint64, data []byte) error {
	if len(data) == 0 {
		return errors.New("no bytes to write")
	}
	if !img.Contains(addr) || !img.Contains(addr+uint64(len(data))-1) {
		return fmt.Errorf("%w: %#x", ErrOutOfImage, addr)
	}
	copy(img.data[addr-img.Base:], data)
	return nil
}

// Original returns the byte at addr as it was loaded.
func (img *Image) Original(addr uint64) (byte, error) {
	if !img.Contains(addr) {
		return 0, fmt.Errorf("%w: %#x", ErrOutOfImage, addr)
	}
	return img.orig[addr-img.Base], nil
}
