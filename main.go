package main

import "github.com/tsinghua-fib-lab/aimsim/cmd"

func main() {
	cmd.Execute()
}
