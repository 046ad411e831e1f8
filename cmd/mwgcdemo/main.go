// Command mwgcdemo exercises NewHeap/Allocate/Gc end to end, sizing its
// demo heap off a fraction of free system RAM the way llrb/config.go's
// getsysmem helper does for its own capacity defaults.
package main

import "fmt"
import "flag"
import "unsafe"

import "github.com/cloudfoundry/gosigar"

import "github.com/bnclabs/mwgc"

var options struct {
	fraction float64
	objects  int
	log      string
}

func argParse() {
	flag.Float64Var(&options.fraction, "fraction", 0.0001,
		"fraction of free system RAM to carve out as the demo heap")
	flag.IntVar(&options.objects, "objects", 64,
		"number of one-block list nodes to allocate before collecting")
	flag.StringVar(&options.log, "log", "ignore",
		"golog level, passed through mwgc.LogComponents when not \"ignore\"")
	flag.Parse()
}

type node struct {
	next unsafe.Pointer
	val  int64
}

func main() {
	argParse()
	if options.log != "ignore" {
		mwgc.LogComponents("all")
	}

	region := sizeRegion(options.fraction)
	fmt.Printf("demo heap: %v bytes (%.6f%% of free RAM)\n", len(region), options.fraction*100)

	h := mwgc.NewHeap(region, mwgc.Defaultsettings())
	fmt.Println("initial:", h.Stats())

	// allocate a linked list of nodes, rooted only at the head, then
	// collect: every node reachable via the chain's next pointers must
	// survive via conservative interior scanning.
	var head *node
	for i := 0; i < options.objects; i++ {
		n, ok := mwgc.AllocateObject[node](h)
		if !ok {
			fmt.Println("allocation failed, collecting and retrying")
			h.Gc([]unsafe.Pointer{unsafe.Pointer(head)})
			n, ok = mwgc.AllocateObject[node](h)
			if !ok {
				fmt.Println("still out of memory after gc, stopping early")
				break
			}
		}
		n.val = int64(i)
		n.next = unsafe.Pointer(head)
		head = n
	}
	fmt.Println("after allocating chain:", h.Stats())

	h.Gc([]unsafe.Pointer{unsafe.Pointer(head)})
	fmt.Println("after gc rooted at chain head:", h.Stats())

	h.Gc(nil)
	fmt.Println("after gc with no roots:", h.Stats())
}

// sizeRegion carves out a demo heap as a fraction of free system RAM,
// capped well under the spec's ~1MB performance target: this is a demo
// convenience, not a core capability.
func sizeRegion(fraction float64) []byte {
	mem := sigar.Mem{}
	mem.Get()
	size := int64(float64(mem.Free) * fraction)
	const cap = 1024 * 512
	if size > cap || size <= 0 {
		size = cap
	}
	return make([]byte, size)
}
