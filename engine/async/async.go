// Package async runs blocking jobs on named worker groups.
//
// Jobs appended to the same group run one after another in append order, different groups run
// concurrently. Channels use one group per connection so that packets of a connection are handled
// in arrival order while connections proceed in parallel.
package async

import (
	"sync"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnutils"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/post"
)

var (
	numAsyncJobWorkersRunning sync.WaitGroup
)

// AsyncCallback receives the result of an AsyncRoutine on the main routine
type AsyncCallback func(res interface{}, err error)

// Callback posts the callback to the main routine
func (ac AsyncCallback) Callback(res interface{}, err error) {
	if ac != nil {
		post.Post(func() {
			ac(res, err)
		})
	}
}

// AsyncRoutine is a blocking job returning a result
type AsyncRoutine func() (res interface{}, err error)

// AsyncJobWorker runs the jobs of one group
type AsyncJobWorker struct {
	group    string
	jobQueue chan asyncJobItem
}

type asyncJobItem struct {
	routine  AsyncRoutine
	callback AsyncCallback
}

func newAsyncJobWorker(group string) *AsyncJobWorker {
	ajw := &AsyncJobWorker{
		group:    group,
		jobQueue: make(chan asyncJobItem, consts.ASYNC_JOB_QUEUE_MAXLEN),
	}
	numAsyncJobWorkersRunning.Add(1)
	go ajw.loop()
	return ajw
}

func (ajw *AsyncJobWorker) appendJob(routine AsyncRoutine, callback AsyncCallback) {
	ajw.jobQueue <- asyncJobItem{routine, callback}
}

func (ajw *AsyncJobWorker) loop() {
	defer numAsyncJobWorkersRunning.Done()
	for item := range ajw.jobQueue {
		var res interface{}
		var err error
		cnutils.RunPanicless(func() {
			res, err = item.routine()
		})
		item.callback.Callback(res, err)
	}
}

var (
	asyncJobWorkersLock sync.RWMutex
	asyncJobWorkers     = map[string]*AsyncJobWorker{}
)

func getAsyncJobWorker(group string) (ajw *AsyncJobWorker) {
	asyncJobWorkersLock.RLock()
	ajw = asyncJobWorkers[group]
	asyncJobWorkersLock.RUnlock()

	if ajw == nil {
		asyncJobWorkersLock.Lock()
		ajw = asyncJobWorkers[group]
		if ajw == nil {
			ajw = newAsyncJobWorker(group)
			asyncJobWorkers[group] = ajw
		}
		asyncJobWorkersLock.Unlock()
	}
	return
}

// AppendAsyncJob appends a job to the group, the callback (optional) runs on the main routine
func AppendAsyncJob(group string, routine AsyncRoutine, callback AsyncCallback) {
	ajw := getAsyncJobWorker(group)
	ajw.appendJob(routine, callback)
}

// Run appends a job without result to the group
func Run(group string, f func()) {
	AppendAsyncJob(group, func() (interface{}, error) {
		f()
		return nil, nil
	}, nil)
}

// CloseGroup stops the worker of the group after its queued jobs are done
func CloseGroup(group string) {
	asyncJobWorkersLock.Lock()
	ajw := asyncJobWorkers[group]
	delete(asyncJobWorkers, group)
	asyncJobWorkersLock.Unlock()

	if ajw != nil {
		close(ajw.jobQueue)
	}
}

// Shutdown closes all job queue workers and waits for them to finish their queued jobs
func Shutdown() {
	asyncJobWorkersLock.Lock()
	for _, alw := range asyncJobWorkers {
		close(alw.jobQueue)
	}
	asyncJobWorkers = map[string]*AsyncJobWorker{}
	asyncJobWorkersLock.Unlock()

	numAsyncJobWorkersRunning.Wait()
}
