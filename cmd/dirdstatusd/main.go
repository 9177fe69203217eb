// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

// Command dirdstatusd runs a dird.JobQueue fed by a tiny no-op engine and
// exposes its snapshot and history over HTTP, for exercising status.Server
// without the full dirdsim load generator.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dirdaemon/jobqueue/dird"
	"github.com/dirdaemon/jobqueue/history"
	"github.com/dirdaemon/jobqueue/status"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:12345", "HTTP bind address")
		workers    = flag.Int("workers", 4, "maximum concurrent workers")
		historyDSN = flag.String("history-dsn", ":memory:", "sqlite DSN for the history store")
	)
	flag.Parse()

	hist, err := history.Open(*historyDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer hist.Close()

	q := dird.New(*workers, func(r *dird.JobRecord) {
		r.SetStatus(dird.TerminatedOk)
	}, dird.WithHistory(hist))
	defer q.Shutdown()

	srv := status.New(q, hist)

	errc := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %v", *addr)
		errc <- srv.Serve(*addr)
	}()
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGTERM, syscall.SIGINT)
		log.Printf("recv signal %v", fmt.Sprint(<-c))
		errc <- nil
	}()

	if err := <-errc; err != nil {
		log.Printf("exit with error %v", err)
		os.Exit(1)
	}
}
