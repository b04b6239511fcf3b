package amx

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ImageVersion is the version written into serialized program images.
const ImageVersion = 1

// DefaultStackHeap is the heap+stack size used when a program declares none.
const DefaultStackHeap = 16 * 1024

// Symbol names a code address.
type Symbol struct {
	Name string `cbor:"1,keyasint"`
	Addr Cell   `cbor:"2,keyasint"`
}

// Program is a compiled script: code, initial data and the symbol tables
// needed to bind natives and look up publics.
type Program struct {
	Code      []Cell   `cbor:"1,keyasint"`
	Data      []byte   `cbor:"2,keyasint"`
	Publics   []Symbol `cbor:"3,keyasint"`
	Natives   []string `cbor:"4,keyasint"`
	StackHeap Cell     `cbor:"5,keyasint"`
	Main      Cell     `cbor:"6,keyasint"`
	Version   int      `cbor:"7,keyasint"`
}

// Validate checks that the code decodes into whole instructions and that
// every jump and public lands inside the code section.
func (p *Program) Validate() error {
	if len(p.Code) < 2 || Opcode(p.Code[0]) != OpHalt {
		return fmt.Errorf("amx: code must start with halt")
	}
	if len(p.Data)%CellSize != 0 {
		return fmt.Errorf("amx: data size %d is not cell aligned", len(p.Data))
	}
	if p.StackHeap < 0 || p.StackHeap%CellSize != 0 {
		return fmt.Errorf("amx: invalid stack/heap size %d", p.StackHeap)
	}
	size := Cell(len(p.Code))
	for cip := Cell(0); cip < size; {
		op := Opcode(p.Code[cip])
		if !op.Valid() {
			return fmt.Errorf("amx: invalid opcode %d at %d", p.Code[cip], cip)
		}
		if cip+1+Cell(op.Operands()) > size {
			return fmt.Errorf("amx: truncated %s at %d", op, cip)
		}
		if op.IsJump() {
			if target := p.Code[cip+1]; target < 0 || target >= size {
				return fmt.Errorf("amx: %s at %d targets %d outside code", op, cip, target)
			}
		}
		if op == OpSysreqC {
			if idx := p.Code[cip+1]; idx < 0 || int(idx) >= len(p.Natives) {
				return fmt.Errorf("amx: sysreq.c at %d uses unknown native %d", cip, idx)
			}
		}
		cip += 1 + Cell(op.Operands())
	}
	for _, pub := range p.Publics {
		if pub.Addr <= 0 || pub.Addr >= size {
			return fmt.Errorf("amx: public %q at invalid address %d", pub.Name, pub.Addr)
		}
	}
	if p.Main != -1 && (p.Main <= 0 || p.Main >= size) {
		return fmt.Errorf("amx: main at invalid address %d", p.Main)
	}
	return nil
}

var imageEncMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("amx: failed to create CBOR enc mode: %v", err))
	}
	return em
}()

// MarshalImage serializes p to a canonical CBOR image.
func MarshalImage(p *Program) ([]byte, error) {
	cp := *p
	cp.Version = ImageVersion
	return imageEncMode.Marshal(&cp)
}

// UnmarshalImage decodes and validates a CBOR program image.
func UnmarshalImage(data []byte) (*Program, error) {
	var p Program
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("amx: unmarshal image: %w", err)
	}
	if p.Version > ImageVersion {
		return nil, ErrVersion
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
