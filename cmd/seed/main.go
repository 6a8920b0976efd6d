package main

import (
	"collab-realtime/repositories"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Imports users, group memberships and messages into a node's Badger store.
// The node must be stopped: Badger holds an exclusive lock on its directory.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	file := flag.String("file", "", "Seed document (JSON), - for stdin")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	input := os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			log.Fatal("Error while opening seed: ", err)
		}
		defer f.Close()
		input = f
	}

	db, err := repositories.OpenBadger(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	store := repositories.NewStore(db, logs.GetLoggerFromLevel(slog.LevelWarn), nil)
	counts, err := store.LoadSeed(input)
	if err != nil {
		color.Red.Println(err.Error())
		_ = db.Close()
		os.Exit(1)
	}
	color.Green.Printf("Seeded %s: %d user(s), %d membership(s), %d message(s)\n",
		*dbPath, counts.Users, counts.Memberships, counts.Messages)
}
