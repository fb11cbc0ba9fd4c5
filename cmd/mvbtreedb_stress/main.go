// Command mvbtreedb_stress drives a workload of REPL commands against a
// fresh table from multiple goroutines and optionally verifies the
// table's structure afterward: a workload file of newline-delimited
// REPL lines, -n worker threads feeding a shared channel, and a
// trailing -verify pass.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"mvbtree/pkg/config"
	"mvbtree/pkg/database"
	"mvbtree/pkg/diag"

	"github.com/google/uuid"
)

var startupDelay = 100 * time.Millisecond
var maxDelayMillis int64 = 10

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

func jitter() time.Duration {
	return time.Duration(rand.Int63n(maxDelayMillis)+1) * time.Millisecond
}

func parseWorkload(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var workload []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		workload = append(workload, scanner.Text())
	}
	return workload, scanner.Err()
}

func handleWorkload(c chan string, wg *sync.WaitGroup, workload []string, idx, n int) {
	defer wg.Done()
	for i := idx; i < len(workload); i += n {
		time.Sleep(jitter())
		c <- workload[i]
	}
}

func main() {
	var workloadFlag = flag.String("workload", "", "workload file (required)")
	var tableFlag = flag.String("table", "t", "table name to create and drive the workload against")
	var arityFlag = flag.Int("arity", 1, "key arity of the created table")
	var nFlag = flag.Int("n", 1, "number of worker threads")
	var verifyFlag = flag.Bool("verify", false, "verify the table's structure after the workload finishes")
	flag.Parse()

	db, err := database.Open("data", "data/"+config.LogFileName)
	if err != nil {
		panic(err)
	}
	defer db.Close()
	setupCloseHandler(db)

	if _, err := db.CreateTable(*tableFlag, *arityFlag); err != nil {
		panic(err)
	}

	r := database.DatabaseRepl(db)
	c := make(chan string)
	go r.RunChan(c, uuid.New(), "")
	time.Sleep(startupDelay)

	if *workloadFlag == "" {
		fmt.Println("no workload file given")
		return
	}
	workload, err := parseWorkload(*workloadFlag)
	if err != nil {
		fmt.Println(err)
		return
	}

	var wg sync.WaitGroup
	for i := 0; i < *nFlag; i++ {
		wg.Add(1)
		go handleWorkload(c, &wg, workload, i, *nFlag)
	}
	wg.Wait()

	if *verifyFlag {
		t, err := db.GetTable(*tableFlag, *arityFlag)
		if err != nil {
			fmt.Println("error getting table", *tableFlag, err)
			return
		}
		rep, err := diag.Verify(t)
		if err != nil {
			fmt.Println("verify error:", err)
			return
		}
		fmt.Printf("verify: ok=%v shapeOK=%v leafSetOK=%v sizeOK=%v (reported=%d scanned=%d)\n",
			rep.OK(), rep.Shape.OK, rep.LeafSetOK, rep.SizeOK, rep.ReportedSize, rep.ScannedSize)
	}
}
