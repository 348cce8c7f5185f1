// Command crawld is the thin operational entrypoint wiring env-derived
// configuration into the shared process state (state.New), starting the
// task queue and graph watcher, and optionally admitting one crawl task
// given on the command line.
package main

import "github.com/antsinar/crawlerapi/cmd/crawld/cmd"

func main() {
	cmd.Execute()
}
