package progmgr

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"

	"mortar/lib/config"
	"mortar/lib/errco"
	"mortar/lib/model"
	"mortar/lib/servstats"
)

// Health returns the health report of mortar and of the system it runs on.
// Values that can't be read are left empty.
func Health() *model.Health {
	h := &model.Health{}

	h.ID = config.InstanceID
	h.Version = MrtVersion
	h.MortarUptime = Uptime().Round(time.Second).String()
	h.Connections = servstats.Stats.Snapshot()

	// mortar process
	if p, err := process.NewProcess(int32(os.Getpid())); err != nil {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_HEALTH_PROCESS, err.Error())
	} else {
		if memInfo, err := p.MemoryInfo(); err != nil {
			errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_HEALTH_PROCESS, err.Error())
		} else {
			h.Memory.Rss = byteSize(memInfo.RSS)
			h.Memory.Vms = byteSize(memInfo.VMS)
		}

		if memPercent, err := p.MemoryPercent(); err != nil {
			errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_HEALTH_PROCESS, err.Error())
		} else {
			h.Memory.Percent = float64(memPercent)
		}

		pTracker.clean([]*process.Process{p})
		if pCpu, logMrt := cpuPercent(p); logMrt != nil {
			logMrt.Log(true)
		} else {
			h.Cpu.Usage = fmt.Sprintf("%.2f%%", pCpu)
		}
	}

	// system
	if memInfo, err := mem.VirtualMemory(); err != nil {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_GET_MEMORY, err.Error())
	} else {
		h.Memory.SysTotal = byteSize(memInfo.Total)
		h.Memory.SysUsed = byteSize(memInfo.Used)
	}

	if sysCpu, err := cpu.Percent(0, false); err != nil || len(sysCpu) == 0 {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_GET_CPU_USAGE, "could not read system cpu usage: %v", err)
	} else {
		h.Cpu.SysUsage = fmt.Sprintf("%.2f%%", sysCpu[0])
	}

	if cores, err := cpu.Counts(true); err != nil {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_GET_CORES, err.Error())
		h.Cpu.Cores = runtime.NumCPU()
	} else {
		h.Cpu.Cores = cores
	}

	if uptime, err := host.Uptime(); err != nil {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_GET_UPTIME, err.Error())
	} else {
		h.Uptime = (time.Duration(uptime) * time.Second).String()
	}

	return h
}

// byteSize returns a human readable size
func byteSize(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// cpuPercent returns the average cpu percent usage since last call.
//
// cpuPercent first call returns the average cpu percent usage since the start of the process.
func cpuPercent(p *process.Process) (float64, *errco.MrtLog) {
	crt_time, err := p.CreateTime()
	if err != nil {
		return -1, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_HEALTH_PROCESS, err.Error())
	}
	lifeTimeNow := time.Since(time.Unix(0, crt_time*int64(time.Millisecond)))

	cput, err := p.Times()
	if err != nil {
		return -1, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_HEALTH_PROCESS, err.Error())
	}
	cpuTotalNow := cput.User + cput.System

	// update tracked pid
	cpuTotalLast, lifeTimeLast := pTracker.upd(p.Pid, cpuTotalNow, lifeTimeNow)

	elapsed := (lifeTimeNow - lifeTimeLast).Seconds()
	if elapsed <= 0 {
		return 0, nil
	}

	return 100 * (cpuTotalNow - cpuTotalLast) / elapsed, nil
}

// pStats keeps track of a single process stats
type pStats struct {
	cpuTotalLast float64
	lifeTimeLast time.Duration
}

// pStatsByPid keeps track of multiple processes stats
//
// (pid is used as map key to access each single process stats)
type pStatsByPid struct {
	m     sync.Mutex
	stats map[int32]*pStats
}

// pTracker is the variable that stores all process stats in a pid map
var pTracker *pStatsByPid = &pStatsByPid{stats: map[int32]*pStats{}}

// clean the processes that are not in the process list
func (pTracker *pStatsByPid) clean(procs []*process.Process) {
	pTracker.m.Lock()
	defer pTracker.m.Unlock()

t:
	for pid := range pTracker.stats {
		for _, p := range procs {
			if pid == p.Pid {
				// tracked pid is still in process list
				// check next tracked pid
				continue t
			}
		}

		// tracked pid is not in process list anymore:
		// remove it
		delete(pTracker.stats, pid)
	}
}

// upd specified pid and returns last cpu total and last life time.
func (pTracker *pStatsByPid) upd(pid int32, cpuTotalNow float64, lifeTimeNow time.Duration) (float64, time.Duration) {
	pTracker.m.Lock()
	defer pTracker.m.Unlock()

	// if pid is not tracked, return 0, 0
	cpuTotalLast := 0.0
	lifeTimeLast := time.Duration(0)

	// if pid is tracked, return last values
	if last, ok := pTracker.stats[pid]; ok {
		cpuTotalLast = last.cpuTotalLast
		lifeTimeLast = last.lifeTimeLast
	}

	// update process stats in tracker
	pTracker.stats[pid] = &pStats{
		cpuTotalLast: cpuTotalNow,
		lifeTimeLast: lifeTimeNow,
	}

	return cpuTotalLast, lifeTimeLast
}
