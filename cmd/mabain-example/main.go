// Command mabain-example is a quick-start walkthrough of pkg/mabain,
// adapted from the teacher's example/quick_start.go: open a writer,
// insert a batch of keys, reopen as a reader, and look a few back up.
package main

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/mabain/mabain-go/pkg/mabain"
)

func main() {
	db, err := mabain.Open(mabain.Options{
		Dir:        "dbset/quick_start",
		AccessMode: mabain.AccessModeWriter,
	})
	if err != nil {
		panic(err)
	}

	for i := uint64(0); i < 64; i++ {
		key := strconv.FormatUint(i, 10)
		val := strconv.FormatUint(rand.Uint64(), 10)
		if err := db.Add([]byte(key), []byte(val), true); err != nil {
			panic(fmt.Errorf("add key=%s: %w", key, err))
		}
	}

	for i := 0; i < 64; i++ {
		key := strconv.FormatUint(rand.Uint64N(63), 10)
		v, err := db.Find([]byte(key))
		if err != nil {
			panic(fmt.Errorf("find key=%s: %w", key, err))
		}
		fmt.Printf("db.Find key=%s, val=%s\n", key, v)
	}

	if err := db.Close(); err != nil {
		panic(fmt.Errorf("close err: %w", err))
	}
}
