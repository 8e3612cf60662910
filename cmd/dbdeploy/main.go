// Command dbdeploy applies numbered SQL change scripts to a database and
// records each one in a changelog table.
package main

import "github.com/dbdeploy/dbdeploy/internal/cli"

func main() {
	cli.Execute()
}
