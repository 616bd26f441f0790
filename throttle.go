// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// throttle limits the number of concurrent goroutines and remembers
// the first error any of them reports.
type throttle struct {
	Max       int
	wg        sync.WaitGroup
	ch        chan bool
	err       atomic.Value
	setupOnce sync.Once
	errorOnce sync.Once
}

func (t *throttle) Acquire() {
	t.setupOnce.Do(func() {
		if t.Max < 1 {
			t.Max = 1
		}
		t.ch = make(chan bool, t.Max)
	})
	t.wg.Add(1)
	t.ch <- true
}

func (t *throttle) Release() {
	t.wg.Done()
	<-t.ch
}

func (t *throttle) Report(err error) {
	if err != nil {
		t.errorOnce.Do(func() { t.err.Store(err) })
	}
}

func (t *throttle) Err() error {
	err, _ := t.err.Load().(error)
	return err
}

func (t *throttle) Wait() error {
	t.wg.Wait()
	return t.Err()
}

// Go runs fn in a new goroutine once a slot is free. After an error
// has been reported, further calls do nothing.
func (t *throttle) Go(fn func() error) {
	if t.Err() != nil {
		return
	}
	t.Acquire()
	go func() {
		defer t.Release()
		if t.Err() != nil {
			return
		}
		t.Report(fn())
	}()
}

// loadTables loads the given files concurrently, at most max at a
// time (default GOMAXPROCS). The returned tables are in the same
// order as paths.
func loadTables(paths []string, max int) ([]*Table, error) {
	if max < 1 {
		max = runtime.GOMAXPROCS(0)
	}
	tables := make([]*Table, len(paths))
	th := throttle{Max: max}
	for i, path := range paths {
		i, path := i, path
		th.Go(func() error {
			log.Infof("loading %s", path)
			t, err := LoadTable(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			tables[i] = t
			return nil
		})
	}
	if err := th.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}
