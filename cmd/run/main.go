package main

import (
	"log"

	"github.com/zintix-labs/acdc/sdk/perf"
)

// makefile runner
func main() {
	bindVar()
	if err := perf.RunPProf(executeSimulator, cfg.pprofmode); err != nil {
		log.Fatal(err)
	}
}
