package main

import (
	v23 "github.com/doismellburning/v23/src"
)

func main() {
	v23.V23Main()
}
