package main

import (
	api "traceback"
)

func main() {
	api.Run()
}
