// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

// Command dirdsim drives a dird.JobQueue under synthetic load: it submits
// backup jobs for a handful of simulated clients at random intervals,
// lets a toy engine succeed or fail them, and prints queue/history stats
// on a timer until interrupted.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dirdaemon/jobqueue/dird"
	"github.com/dirdaemon/jobqueue/history"
)

func main() {
	var (
		clients     = flag.Int("clients", 3, "number of simulated clients")
		workers     = flag.Int("workers", 4, "maximum concurrent workers")
		fillTime    = flag.Duration("fill-time", 300*time.Millisecond, "interval in which new jobs get submitted")
		runTime     = flag.Duration("run-time", 2*time.Second, "maximum simulated run time of a single job")
		logInterval = flag.Duration("log-interval", 1*time.Second, "log interval for queue/history stats")
		failureRate = flag.Float64("failure-rate", 0.1, "failure rate in the interval [0.0,1.0], drives RescheduleOnError")
		historyDSN  = flag.String("history-dsn", ":memory:", "sqlite DSN for the history store")
	)
	flag.Parse()

	if *clients <= 0 {
		log.Fatal("clients must be greater than 0")
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	rand.Seed(time.Now().UnixNano())

	hist, err := history.Open(*historyDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer hist.Close()

	def := &dird.JobResource{
		Name:               "sim-backup",
		Type:               dird.TypeBackup,
		Level:              dird.LevelIncremental,
		MaxConcurrentJobs:  0,
		RescheduleOnError:  true,
		RescheduleTimes:    2,
		RescheduleInterval: 50 * time.Millisecond,
	}

	clientResources := make([]*dird.ClientResource, *clients)
	for i := range clientResources {
		clientResources[i] = &dird.ClientResource{
			Name:              fmt.Sprintf("client-%02d", i),
			MaxConcurrentJobs: 1,
		}
	}

	runTimeNanos := runTime.Nanoseconds()
	engine := func(r *dird.JobRecord) {
		time.Sleep(time.Duration(rand.Int63n(runTimeNanos)) * time.Nanosecond)
		if rand.Float64() < *failureRate {
			r.JobErrors++
			r.SetStatus(dird.ErrorTerminated)
			return
		}
		r.BytesWritten = rand.Int63n(1 << 20)
		r.SetStatus(dird.TerminatedOk)
	}

	q := dird.New(*workers, engine, dird.WithHistory(hist))
	defer q.Shutdown()

	errc := make(chan error, 1)
	go func() { errc <- submitter(q, def, clientResources, *fillTime) }()
	go reportStats(q, hist, *logInterval)

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGTERM, syscall.SIGINT)
		log.Printf("signal %v", <-c)
		errc <- nil
	}()

	if err := <-errc; err != nil {
		log.Fatal(err)
	}
	log.Print("exiting")
}

func submitter(q *dird.JobQueue, def *dird.JobResource, clients []*dird.ClientResource, fillTime time.Duration) error {
	fillTimeNanos := fillTime.Nanoseconds()
	var seq int64
	for {
		time.Sleep(time.Duration(rand.Int63n(fillTimeNanos)) * time.Nanosecond)
		seq++
		r := dird.NewDirectorJcr(seq, def)
		r.SetJcrDefaults(def)
		r.Client = clients[rand.Intn(len(clients))]
		r.Priority = 10 + 10*rand.Intn(3)
		r.ScheduledTime = time.Now()
		if status := q.Submit(r); status != dird.Ok {
			return fmt.Errorf("submit job %d: %v", seq, status)
		}
	}
}

func reportStats(q *dird.JobQueue, hist *history.Store, d time.Duration) {
	t := time.NewTicker(d)
	defer t.Stop()
	for range t.C {
		s := q.Snapshot()
		entries, err := hist.Query(history.Query{Limit: 1000})
		if err != nil {
			log.Printf("history query failed: %v", err)
			continue
		}
		var succeeded, failed int
		for _, e := range entries {
			if e.Status == dird.TerminatedOk.String() {
				succeeded++
			} else {
				failed++
			}
		}
		fmt.Printf("Waiting=%3d Ready=%3d Running=%3d Succeeded=%4d Failed=%4d\n",
			len(s.Waiting), len(s.Ready), len(s.Running), succeeded, failed)
	}
}
