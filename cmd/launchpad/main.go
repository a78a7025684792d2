// Package main is the container entrypoint for the plexident web service: it
// waits for the database, applies migrations, collects static assets and then
// hands the process over to the application server.
package main

func main() {
	Execute()
}
