package nexmark_test

import (
	"fmt"

	"github.com/fabricekabongo/nexmark"
)

func ExampleEventGenerator_Take() {
	cfg := nexmark.DefaultConfig()
	cfg.NumEventGenerators = 4
	g, err := nexmark.New(cfg)
	if err != nil {
		panic(err)
	}
	for _, ev := range g.Take(3) {
		fmt.Println(ev.Kind())
	}
	// Output:
	// person
	// auction
	// auction
}
