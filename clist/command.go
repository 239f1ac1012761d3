// Package clist records device operations as a compact command list and
// plays them back onto another device.
//
// It registers itself as the "clist" deferred writer, so importing it for
// its side effect enables command-list accumulation of large pattern
// tiles:
//
//	import _ "github.com/gogpu/pattern/clist"
//
// # Encoding
//
// A list is a stream of commands. Each command is an opcode byte followed
// by its operands: signed varints for coordinates, unsigned varints for
// colors and lengths, then any pixel data packed at offset 0 with the
// narrowest row stride. Pixel rows are copied, so the source buffers may
// be reused as soon as a call returns.
package clist

import "fmt"

// Op identifies a recorded operation.
type Op uint8

const (
	OpFillRect       Op = iota + 1 // x y w h color
	OpCopyMono                     // x y w h c0 c1 raster rows
	OpCopyColor                    // x y w h raster rows
	OpCopyPlanes                   // x y w h planes rows
	OpBlendState                   // alpha mode
	OpPushCompositor               //
	OpPopCompositor                //
	OpBeginGroup                   // alpha mode
	OpEndGroup                     //
)

var opNames = [...]string{
	OpFillRect:       "FillRect",
	OpCopyMono:       "CopyMono",
	OpCopyColor:      "CopyColor",
	OpCopyPlanes:     "CopyPlanes",
	OpBlendState:     "BlendState",
	OpPushCompositor: "PushCompositor",
	OpPopCompositor:  "PopCompositor",
	OpBeginGroup:     "BeginGroup",
	OpEndGroup:       "EndGroup",
}

// String returns the name of the operation.
func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}
