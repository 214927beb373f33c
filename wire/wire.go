// Package wire defines the fixed-layout frames exchanged between the
// kernel process and an emulated app process, and their little-endian
// wire encoding.
//
// Every frame is a packed, contiguous record with no padding and no
// framing inside a datagram: one record is one datagram. Decoding is a
// validated-length operation, never an unsafe reinterpretation — a byte
// slice of any length other than the record's exact size is an error.
package wire

import "encoding/binary"

// NumArgs is the number of register-sized arguments carried by a Syscall
// or Callback frame.
const NumArgs = 4

// Syscall is the app-to-kernel frame: a syscall number and its arguments.
type Syscall struct {
	Number uint64
	Args   [NumArgs]uint64
}

// SyscallSize is the encoded size of a Syscall frame in bytes.
const SyscallSize = 8 + NumArgs*8

// Encode serializes s into a freshly allocated byte slice.
func (s Syscall) Encode() []byte {
	buf := make([]byte, SyscallSize)
	binary.LittleEndian.PutUint64(buf[0:8], s.Number)
	for i, a := range s.Args {
		off := 8 + i*8
		binary.LittleEndian.PutUint64(buf[off:off+8], a)
	}
	return buf
}

// Decode populates s from buf. buf must be exactly SyscallSize bytes.
func (s *Syscall) Decode(buf []byte) error {
	if len(buf) != SyscallSize {
		return newSizeError("Syscall", SyscallSize, len(buf))
	}
	s.Number = binary.LittleEndian.Uint64(buf[0:8])
	for i := range s.Args {
		off := 8 + i*8
		s.Args[i] = binary.LittleEndian.Uint64(buf[off : off+8])
	}
	return nil
}

// Callback is the kernel's "invoke this function" half of a KernelReturn.
type Callback struct {
	PC   uint64
	Args [NumArgs]uint64
}

// CallbackSize is the encoded size of a Callback frame in bytes.
const CallbackSize = 8 + NumArgs*8

// Encode serializes c into a freshly allocated byte slice.
func (c Callback) Encode() []byte {
	buf := make([]byte, CallbackSize)
	binary.LittleEndian.PutUint64(buf[0:8], c.PC)
	for i, a := range c.Args {
		off := 8 + i*8
		binary.LittleEndian.PutUint64(buf[off:off+8], a)
	}
	return buf
}

// Decode populates c from buf. buf must be exactly CallbackSize bytes.
func (c *Callback) Decode(buf []byte) error {
	if len(buf) != CallbackSize {
		return newSizeError("Callback", CallbackSize, len(buf))
	}
	c.PC = binary.LittleEndian.Uint64(buf[0:8])
	for i := range c.Args {
		off := 8 + i*8
		c.Args[i] = binary.LittleEndian.Uint64(buf[off : off+8])
	}
	return nil
}

// KernelReturn is the kernel-to-app frame. Exactly one of RetVal or CB is
// semantically meaningful per message, discriminated by the app on
// whether CB.PC is non-zero.
type KernelReturn struct {
	RetVal int64
	CB     Callback
}

// KernelReturnSize is the encoded size of a KernelReturn frame in bytes.
const KernelReturnSize = 8 + CallbackSize

// NewRet builds a KernelReturn carrying a plain syscall return value.
func NewRet(v int64) KernelReturn {
	return KernelReturn{RetVal: v}
}

// NewCallback builds a KernelReturn carrying a callback invocation.
func NewCallback(cb Callback) KernelReturn {
	return KernelReturn{CB: cb}
}

// IsCallback reports whether this return should be interpreted as a
// callback invocation rather than a plain return value.
func (r KernelReturn) IsCallback() bool {
	return r.CB.PC != 0
}

// Encode serializes r into a freshly allocated byte slice.
func (r KernelReturn) Encode() []byte {
	buf := make([]byte, KernelReturnSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.RetVal))
	copy(buf[8:], r.CB.Encode())
	return buf
}

// Decode populates r from buf. buf must be exactly KernelReturnSize bytes.
func (r *KernelReturn) Decode(buf []byte) error {
	if len(buf) != KernelReturnSize {
		return newSizeError("KernelReturn", KernelReturnSize, len(buf))
	}
	r.RetVal = int64(binary.LittleEndian.Uint64(buf[0:8]))
	return r.CB.Decode(buf[8:])
}

// AllowedRegionPreamble precedes the bytes of one allow region on the
// wire. An all-zero preamble terminates the allow-region list.
type AllowedRegionPreamble struct {
	Address uint64
	Length  uint64
}

// AllowedRegionPreambleSize is the encoded size of a preamble in bytes.
const AllowedRegionPreambleSize = 16

// NullPreamble is the list terminator.
func NullPreamble() AllowedRegionPreamble {
	return AllowedRegionPreamble{}
}

// IsNull reports whether p is the list terminator.
func (p AllowedRegionPreamble) IsNull() bool {
	return p.Address == 0 && p.Length == 0
}

// Encode serializes p into a freshly allocated byte slice.
func (p AllowedRegionPreamble) Encode() []byte {
	buf := make([]byte, AllowedRegionPreambleSize)
	binary.LittleEndian.PutUint64(buf[0:8], p.Address)
	binary.LittleEndian.PutUint64(buf[8:16], p.Length)
	return buf
}

// Decode populates p from buf. buf must be exactly
// AllowedRegionPreambleSize bytes.
func (p *AllowedRegionPreamble) Decode(buf []byte) error {
	if len(buf) != AllowedRegionPreambleSize {
		return newSizeError("AllowedRegionPreamble", AllowedRegionPreambleSize, len(buf))
	}
	p.Address = binary.LittleEndian.Uint64(buf[0:8])
	p.Length = binary.LittleEndian.Uint64(buf[8:16])
	return nil
}

// Interrupt is the frame carried from an external source into the kernel's
// interrupt upper half: a 32-bit source identifier, totally ordered.
type Interrupt struct {
	Source uint32
}

// InterruptSize is the encoded size of an Interrupt frame in bytes.
const InterruptSize = 4

// Encode serializes i into a freshly allocated byte slice.
func (i Interrupt) Encode() []byte {
	buf := make([]byte, InterruptSize)
	binary.LittleEndian.PutUint32(buf, i.Source)
	return buf
}

// Decode populates i from buf. buf must be exactly InterruptSize bytes.
func (i *Interrupt) Decode(buf []byte) error {
	if len(buf) != InterruptSize {
		return newSizeError("Interrupt", InterruptSize, len(buf))
	}
	i.Source = binary.LittleEndian.Uint32(buf)
	return nil
}
