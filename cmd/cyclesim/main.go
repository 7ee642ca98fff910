// Command cyclesim runs the contention model on the cycle kernel.
package main

import "github.com/sarchlab/cyclesim/cmd/cyclesim/cmd"

func main() {
	cmd.Execute()
}
