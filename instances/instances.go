// Package instances tracks client processes started by any launcher run on
// this host. The persisted PID map is reconciled against the live OS
// process table, so stale entries from crashed clients disappear on the
// next check.
package instances

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
)

// unknownName is recorded when the process table has no name for a PID.
const unknownName = "no name found"

// ProcessInfo is one row of the OS process table.
type ProcessInfo struct {
	PID  int32
	Name string
}

// ProcessLister reads the OS process table. The gopsutil implementation is
// the default; tests substitute a fixture.
type ProcessLister interface {
	Processes() ([]ProcessInfo, error)
}

// SystemLister lists live processes via the OS.
type SystemLister struct{}

func (SystemLister) Processes() ([]ProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("cannot list processes: %w", err)
	}
	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			// Processes may exit mid-scan or deny access; they are not ours.
			continue
		}
		infos = append(infos, ProcessInfo{PID: p.Pid, Name: name})
	}
	return infos, nil
}

// Tracker persists the PID→name map of running client instances.
type Tracker struct {
	log    *slog.Logger
	path   string
	lister ProcessLister
}

func NewTracker(log *slog.Logger, path string) *Tracker {
	return &Tracker{log: log, path: path, lister: SystemLister{}}
}

// SetLister replaces the process table source, for tests.
func (t *Tracker) SetLister(lister ProcessLister) {
	t.lister = lister
}

type storage struct {
	Processes map[string]string `json:"processes"`
}

func (t *Tracker) load() storage {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return storage{Processes: map[string]string{}}
	}
	var content storage
	if err := json.Unmarshal(data, &content); err != nil || content.Processes == nil {
		return storage{Processes: map[string]string{}}
	}
	return content
}

func (t *Tracker) store(content storage) error {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write running instances file: %w", err)
	}
	return nil
}

// RegisterNewInstance records the freshly spawned client. On OSes where the
// child PID is the visible process, the PID is registered directly; on
// Windows the launcher's child is an intermediary, so the process table is
// scanned for the client executable by its exact name instead.
func (t *Tracker) RegisterNewInstance(pid int, executableName string) {
	if runtime.GOOS == "windows" {
		t.RegisterByScan(executableName)
		return
	}
	t.RegisterPID(pid)
}

// RegisterPID records one PID, naming it from the process table.
func (t *Tracker) RegisterPID(pid int) {
	name := unknownName
	infos, err := t.lister.Processes()
	if err == nil {
		for _, info := range infos {
			if int(info.PID) == pid {
				name = info.Name
				break
			}
		}
	}
	t.log.Info("registering client instance", slog.Int("pid", pid), slog.String("name", name))

	content := t.load()
	content.Processes[fmt.Sprint(pid)] = name
	if err := t.store(content); err != nil {
		t.log.Error("cannot register running instance", slog.Any("error", err))
	}
}

// RegisterByScan records every process whose exact name matches the client
// executable and whose PID is not already known.
func (t *Tracker) RegisterByScan(executableName string) {
	infos, err := t.lister.Processes()
	if err != nil {
		t.log.Error("cannot scan process table", slog.Any("error", err))
		return
	}

	content := t.load()
	registered := 0
	for _, info := range infos {
		if info.Name != executableName {
			continue
		}
		key := fmt.Sprint(info.PID)
		if _, known := content.Processes[key]; known {
			continue
		}
		content.Processes[key] = info.Name
		registered++
	}
	if registered == 0 {
		return
	}
	if err := t.store(content); err != nil {
		t.log.Error("cannot register running instances", slog.Any("error", err))
	}
}

// AnyIsRunning reconciles the persisted map against the live process table,
// drops dead entries, and reports whether any instance is still alive. An
// entry is alive only when the PID exists and its current name matches the
// recorded one.
func (t *Tracker) AnyIsRunning() (bool, error) {
	infos, err := t.lister.Processes()
	if err != nil {
		return false, err
	}
	byPID := make(map[string]string, len(infos))
	for _, info := range infos {
		byPID[fmt.Sprint(info.PID)] = info.Name
	}

	content := t.load()
	alive := map[string]string{}
	anyRunning := false
	for pid, name := range content.Processes {
		if current, ok := byPID[pid]; ok && current == name {
			alive[pid] = name
			anyRunning = true
		}
	}

	if len(alive) != len(content.Processes) {
		if err := t.store(storage{Processes: alive}); err != nil {
			return anyRunning, err
		}
	}
	return anyRunning, nil
}
