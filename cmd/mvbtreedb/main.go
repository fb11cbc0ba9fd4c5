// Command mvbtreedb runs the database REPL over a directory of
// multi-value B+-trees: flag parsing, close-handler signal setup, and
// the REPL run loop, trimmed to this module's single index kind.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"mvbtree/pkg/config"
	"mvbtree/pkg/database"

	"github.com/google/uuid"
)

func setupCloseHandler(db *database.Database) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("closehandler invoked")
		db.Close()
		os.Exit(0)
	}()
}

func main() {
	var promptFlag = flag.Bool("c", true, "use prompt?")
	var dbFlag = flag.String("db", "data/", "DB folder")
	flag.Parse()

	db, err := database.Open(*dbFlag, filepath.Join(*dbFlag, config.LogFileName))
	if err != nil {
		panic(err)
	}
	defer db.Close()
	setupCloseHandler(db)

	prompt := config.GetPrompt(*promptFlag)
	r := database.DatabaseRepl(db)
	r.Run(uuid.New(), prompt, nil, nil)
}
