package main

import (
	api "BlitzCup"
)

func main() {
	api.Run()
}
