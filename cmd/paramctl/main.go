// Command paramctl reads and writes the deployment parameters of an
// application environment and inspects the batch workloads behind them.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(awsBackend()).Execute(); err != nil {
		os.Exit(1)
	}
}
