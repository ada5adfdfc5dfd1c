// Package wire implements the on-disk and cache encoding of compiled
// bytecode. Programs are stored as CBOR with integer map keys so the
// encoding stays compact and deterministic.
package wire

import (
	"errors"
	"fmt"

	"github.com/chazu/jsvm/vm"
	"github.com/fxamacker/cbor/v2"
)

// Version is the current container version. Decoders reject others.
const Version = 1

// ErrVersion reports a container written by an incompatible encoder.
var ErrVersion = errors.New("wire: unsupported bytecode version")

// File is the serialized form of a vm.Bytecode.
type File struct {
	Version      uint8    `cbor:"1,keyasint"`
	Instructions []uint32 `cbor:"2,keyasint"`
	Numbers      []uint64 `cbor:"3,keyasint,omitempty"`
	Strings      []String `cbor:"4,keyasint,omitempty"`
	Buffer       []byte   `cbor:"5,keyasint,omitempty"`
	SourceKey    string   `cbor:"6,keyasint,omitempty"` // hash of the AST it was compiled from
}

// String is one entry of the string constant table.
type String struct {
	Hash   uint32 `cbor:"1,keyasint"`
	Offset uint32 `cbor:"2,keyasint"`
	Length uint32 `cbor:"3,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// FromBytecode converts bc to its serialized form.
func FromBytecode(bc *vm.Bytecode, sourceKey string) *File {
	f := &File{
		Version:      Version,
		Instructions: make([]uint32, len(bc.Instructions)),
		Buffer:       append([]byte(nil), bc.StringBuffer...),
		SourceKey:    sourceKey,
	}
	for i, ins := range bc.Instructions {
		f.Instructions[i] = uint32(ins)
	}
	if len(bc.Numbers) > 0 {
		f.Numbers = make([]uint64, len(bc.Numbers))
		for i, n := range bc.Numbers {
			f.Numbers[i] = uint64(n)
		}
	}
	if len(bc.Strings) > 0 {
		f.Strings = make([]String, len(bc.Strings))
		for i, s := range bc.Strings {
			f.Strings[i] = String{Hash: s.Hash, Offset: s.Offset, Length: s.Length}
		}
	}
	return f
}

// Bytecode validates f and converts it back to executable form.
func (f *File) Bytecode() (*vm.Bytecode, error) {
	if f.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, f.Version)
	}
	bc := &vm.Bytecode{
		Instructions: make([]vm.Instruction, len(f.Instructions)),
		StringBuffer: f.Buffer,
	}
	for i, raw := range f.Instructions {
		ins := vm.Instruction(raw)
		if !ins.Op().Valid() {
			return nil, fmt.Errorf("wire: instruction %d: %w", i, vm.ErrBadOpcode)
		}
		bc.Instructions[i] = ins
	}
	for _, n := range f.Numbers {
		bc.Numbers = append(bc.Numbers, vm.Number(n))
	}
	for _, s := range f.Strings {
		bc.Strings = append(bc.Strings, vm.StringConst{Hash: s.Hash, Offset: s.Offset, Length: s.Length})
	}
	for i := range bc.Strings {
		if _, err := bc.StringAt(i); err != nil {
			return nil, fmt.Errorf("wire: %w", err)
		}
	}
	return bc, nil
}

// Marshal serializes bc to CBOR bytes.
func Marshal(bc *vm.Bytecode, sourceKey string) ([]byte, error) {
	return cborEncMode.Marshal(FromBytecode(bc, sourceKey))
}

// UnmarshalFile decodes a container without converting it.
func UnmarshalFile(data []byte) (*File, error) {
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("wire: unmarshal bytecode: %w", err)
	}
	return &f, nil
}

// Unmarshal deserializes and validates bytecode from CBOR bytes.
func Unmarshal(data []byte) (*vm.Bytecode, error) {
	f, err := UnmarshalFile(data)
	if err != nil {
		return nil, err
	}
	return f.Bytecode()
}
