// Package main is the skylab command line tool. It evaluates, orders and
// validates flag files locally, without a control or data plane.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
