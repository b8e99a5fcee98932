// Command rtnn runs fixed-radius and k-nearest-neighbor searches over 3-D
// point sets and generates synthetic datasets.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
