package halftone

import (
	"fmt"
	"sync"
)

var predefinedNames = []string{"bayer4", "bayer8"}

var predefinedOrders = sync.OnceValue(func() map[string]*Order {
	m := make(map[string]*Order, len(predefinedNames))
	for _, n := range []int{4, 8} {
		o, err := NewOrder(n, n, n*n+1, RepShort)
		if err != nil {
			panic(err)
		}
		o.construct(BayerThresholds(n))
		o.shared = true
		m[fmt.Sprintf("bayer%d", n)] = o
	}
	return m
})

func predefined(name string) *Order {
	return predefinedOrders()[name]
}

// Predefined returns the built-in order called name: "bayer4" or
// "bayer8". Orders returned for the same name share their arrays.
func Predefined(name string) (*Order, bool) {
	p := predefined(name)
	if p == nil {
		return nil, false
	}
	o := *p
	return &o, true
}

// PredefinedNames returns the names Predefined accepts.
func PredefinedNames() []string {
	return append([]string(nil), predefinedNames...)
}

// BayerThresholds returns the n by n ordered-dither thresholds, 1
// through n*n, row by row. n must be a power of two no larger than 8.
func BayerThresholds(n int) []byte {
	if n <= 0 || n&(n-1) != 0 || n > 8 {
		panic(fmt.Sprintf("halftone: Bayer size %d", n))
	}
	m := []int{0}
	for size := 1; size < n; size *= 2 {
		next := make([]int, 4*size*size)
		w := 2 * size
		for y := range size {
			for x := range size {
				v := 4 * m[y*size+x]
				next[y*w+x] = v
				next[y*w+x+size] = v + 2
				next[(y+size)*w+x] = v + 3
				next[(y+size)*w+x+size] = v + 1
			}
		}
		m = next
	}
	t := make([]byte, len(m))
	for i, v := range m {
		t[i] = byte(v + 1)
	}
	return t
}
