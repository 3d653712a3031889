package main

import (
	"log"

	"barberq/cmd"
	_ "barberq/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
