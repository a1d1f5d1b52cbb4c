package main

import "github.com/thereayou/consilium/cmd/server"

func main() {
	server.NewServer().Run()
}
