// Package image stores an assembled program together with the debug
// information that wire form drops: label names and the source text.
//
// Images are encoded as canonical CBOR, so the same program always
// produces the same bytes.
package image

import (
	"fmt"

	"github.com/chain/txvm/errors"
	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/uvm/pkg/bytecode"
)

// Version is the image format version written by Marshal.
const Version = 1

// ErrVersion is returned when an image was written by a newer format.
var ErrVersion = errors.New("unsupported image version")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Image is a program in wire form plus its symbols.
type Image struct {
	Version uint8   `cbor:"1,keyasint"`
	Program []byte  `cbor:"2,keyasint"` // concatenated instruction chunks
	Labels  []Label `cbor:"3,keyasint,omitempty"`
	Source  string  `cbor:"4,keyasint,omitempty"`
}

// Label is a named program address.
type Label struct {
	Name string `cbor:"1,keyasint"`
	Addr uint32 `cbor:"2,keyasint"`
	Line uint32 `cbor:"3,keyasint,omitempty"`
}

// FromProgram builds an image. source may be empty.
func FromProgram(p *bytecode.Program, labels []bytecode.Label, source string) *Image {
	img := &Image{
		Version: Version,
		Program: bytecode.EncodeProgram(p),
		Source:  source,
	}
	for _, l := range labels {
		img.Labels = append(img.Labels, Label{
			Name: l.Name,
			Addr: uint32(l.Addr),
			Line: uint32(l.Line),
		})
	}
	return img
}

// Decode returns the program held by the image, limited to capacity
// instructions.
func (img *Image) Decode(capacity int) (*bytecode.Program, error) {
	p, err := bytecode.DecodeProgram(img.Program, capacity)
	if err != nil {
		return nil, errors.Wrap(err, "decoding image program")
	}
	return p, nil
}

// Symbols returns the image labels in bytecode form.
func (img *Image) Symbols() []bytecode.Label {
	if len(img.Labels) == 0 {
		return nil
	}
	labels := make([]bytecode.Label, len(img.Labels))
	for i, l := range img.Labels {
		labels[i] = bytecode.Label{Name: l.Name, Addr: int(l.Addr), Line: int(l.Line)}
	}
	return labels
}

// Listing renders the program in source form with its labels restored.
func (img *Image) Listing(capacity int) (string, error) {
	p, err := img.Decode(capacity)
	if err != nil {
		return "", err
	}
	return bytecode.DisassembleWithLabels(p, img.Symbols()), nil
}

// Marshal serializes an image to CBOR bytes.
func Marshal(img *Image) ([]byte, error) {
	data, err := cborEncMode.Marshal(img)
	if err != nil {
		return nil, errors.Wrap(err, "marshal image")
	}
	return data, nil
}

// Unmarshal deserializes an image from CBOR bytes.
func Unmarshal(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, errors.Wrap(err, "unmarshal image")
	}
	if img.Version > Version {
		return nil, errors.WithData(
			errors.Wrapf(ErrVersion, "version %d, newest supported %d", img.Version, Version),
			"version", img.Version)
	}
	return &img, nil
}
