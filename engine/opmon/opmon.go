package opmon

import (
	"sort"
	"sync"
	"time"

	"github.com/xiaonanln/gwrepl/engine/consts"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
)

var (
	operationAllocPool = sync.Pool{
		New: func() interface{} {
			return &Operation{}
		},
	}

	monitor = newMonitor()
)

func init() {
	if consts.OPMON_DUMP_INTERVAL > 0 {
		go func() {
			for {
				time.Sleep(consts.OPMON_DUMP_INTERVAL)
				Dump()
			}
		}()
	}
}

// OpStat is the statistic of one operation name
type OpStat struct {
	Name          string
	Count         uint64
	TotalDuration time.Duration
	MaxDuration   time.Duration
}

// AvgDuration returns the average duration of the operation
func (s OpStat) AvgDuration() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Count)
}

type _Monitor struct {
	sync.Mutex
	opInfos map[string]*OpStat
}

func newMonitor() *_Monitor {
	return &_Monitor{
		opInfos: map[string]*OpStat{},
	}
}

func (monitor *_Monitor) record(opname string, duration time.Duration) {
	monitor.Lock()
	info := monitor.opInfos[opname]
	if info == nil {
		info = &OpStat{Name: opname}
		monitor.opInfos[opname] = info
	}
	info.Count += 1
	info.TotalDuration += duration
	if duration > info.MaxDuration {
		info.MaxDuration = duration
	}
	monitor.Unlock()
}

// Collect returns the statistics recorded since last Collect, sorted by name
func Collect() []OpStat {
	monitor.Lock()
	opInfos := monitor.opInfos
	monitor.opInfos = map[string]*OpStat{} // clear to be empty
	monitor.Unlock()

	stats := make([]OpStat, 0, len(opInfos))
	for _, info := range opInfos {
		stats = append(stats, *info)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Name < stats[j].Name
	})
	return stats
}

// Dump logs the statistics recorded since last Collect
func Dump() {
	for _, s := range Collect() {
		gwlog.Infof("opmon: %-30sx%-10d AVG %-10s MAX %-10s", s.Name, s.Count, s.AvgDuration(), s.MaxDuration)
	}
}

// Operation is the type of operation to be monitored
type Operation struct {
	name      string
	startTime time.Time
}

// StartOperation creates a new operation
func StartOperation(operationName string) *Operation {
	op := operationAllocPool.Get().(*Operation)
	op.name = operationName
	op.startTime = time.Now()
	return op
}

// Finish finishes the operation and records the duration of operation
func (op *Operation) Finish(warnThreshold time.Duration) {
	takeTime := time.Since(op.startTime)
	monitor.record(op.name, takeTime)
	if warnThreshold > 0 && takeTime >= warnThreshold {
		gwlog.Warnf("opmon: operation %s takes %s > %s", op.name, takeTime, warnThreshold)
	}
	operationAllocPool.Put(op)
}
