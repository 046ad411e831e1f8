package mwgc

import "fmt"

import s "github.com/prataprc/gosettings"

// BlockSize is the compile-time granularity of allocation accounting.
// Every allocation is rounded up to a whole number of blocks. Must be
// a multiple of Alignment and large enough to hold a free-span header
// (next-pointer + size, see freeSpanHeaderSize).
const BlockSize = int64(16)

// Alignment that allocated spans, and the machine-word candidate
// pointers scanned during mark, are expected to respect.
const Alignment = int64(8)

func init() {
	if (BlockSize % Alignment) != 0 {
		panic(fmt.Errorf("mwgc: BlockSize %v must be a multiple of Alignment %v", BlockSize, Alignment))
	}
	if BlockSize < freeSpanHeaderSize {
		panic(fmt.Errorf("mwgc: BlockSize %v smaller than free-span header %v", BlockSize, freeSpanHeaderSize))
	}
}

// Defaultsettings for a Heap.
//
// "log.level" (string, default: "ignore")
//		golog level used by LogComponents-enabled tracing. Ignored
//		unless a component has been switched on with LogComponents.
func Defaultsettings() s.Settings {
	return s.Settings{
		"log.level": "ignore",
	}
}
