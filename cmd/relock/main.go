// relock regenerates pip-compile lock files after dependency updates.
package main

import "github.com/anthr76/relock/cmd/relock/cmd"

func main() {
	cmd.Execute()
}
