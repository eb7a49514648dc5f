// Package svc implements spec.md 4.7's service registry: named endpoints
// advertised by processes and discovered by peers through a name-prefix
// scan, plus appearance/disappearance subscriptions.
package svc

import "nucleus/kernel"

// NameLen is the fixed width of a service name, mirroring the 80-byte
// fixed-width string spec.md calls for.
const NameLen = 80

var errDuplicateService = &kernel.Error{Module: "svc", Message: "service with this message-id already registered"}

// Service is a single named endpoint.
type Service struct {
	ProcessID uint64
	MessageID uint64
	Name      string
}

// AppearanceSub fires a notification to (WatcherPID, NotifyMID) whenever a
// service matching Name registers.
type AppearanceSub struct {
	WatcherPID uint64
	Name       string
	NotifyMID  uint64
}

// DisappearanceSub fires a notification to (WatcherPID, NotifyMID) when the
// specific (TargetPID, TargetMID) service unregisters.
type DisappearanceSub struct {
	WatcherPID uint64
	TargetPID  uint64
	TargetMID  uint64
	NotifyMID  uint64
}

// Registry holds every registered service, indexed per-process and kept
// sorted by message-id within each process, plus the subscription lists.
type Registry struct {
	byProcess map[uint64][]*Service
	appear    []AppearanceSub
	disappear []DisappearanceSub
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{byProcess: map[uint64][]*Service{}}
}

// Register inserts a new service for processID, keeping the per-process
// list sorted by message-id. Duplicate message-ids within the same process
// are rejected (spec.md's open question leaves ambiguous whether this
// should instead fail the syscall silently vs with an error; this port
// returns an error so the caller can choose).
func (reg *Registry) Register(processID, messageID uint64, name string) (*Service, *kernel.Error) {
	list := reg.byProcess[processID]
	pos := 0
	for pos < len(list) {
		if list[pos].MessageID == messageID {
			return nil, errDuplicateService
		}
		if list[pos].MessageID > messageID {
			break
		}
		pos++
	}

	svc := &Service{ProcessID: processID, MessageID: messageID, Name: name}
	list = append(list, nil)
	copy(list[pos+1:], list[pos:])
	list[pos] = svc
	reg.byProcess[processID] = list

	return svc, nil
}

// Unregister removes the (processID, messageID) service, if present.
func (reg *Registry) Unregister(processID, messageID uint64) (*Service, bool) {
	list := reg.byProcess[processID]
	for i, s := range list {
		if s.MessageID == messageID {
			reg.byProcess[processID] = append(list[:i], list[i+1:]...)
			return s, true
		}
	}
	return nil, false
}

// Find returns the service registered by (processID, messageID), if any.
func (reg *Registry) Find(processID, messageID uint64) (*Service, bool) {
	for _, s := range reg.byProcess[processID] {
		if s.MessageID == messageID {
			return s, true
		}
	}
	return nil, false
}

// UnregisterAll removes every service belonging to processID (called during
// process teardown) and returns them so the caller can fire disappearance
// notifications.
func (reg *Registry) UnregisterAll(processID uint64) []*Service {
	list := reg.byProcess[processID]
	delete(reg.byProcess, processID)
	return list
}

// processIDsSorted returns every process id with at least one service,
// in ascending order, for lookup's deterministic iteration order.
func (reg *Registry) processIDsSorted() []uint64 {
	ids := make([]uint64, 0, len(reg.byProcess))
	for pid := range reg.byProcess {
		ids = append(ids, pid)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// FindNext scans all processes in id order (and, within a process, services
// in message-id order) starting strictly after the (minPID, minMID) cursor,
// returning the first service whose name matches exactly. It is the
// pagination primitive the enumerate-by-name syscalls are built on.
func (reg *Registry) FindNext(name string, minPID, minMID uint64) (*Service, bool) {
	for _, pid := range reg.processIDsSorted() {
		if pid < minPID {
			continue
		}
		for _, s := range reg.byProcess[pid] {
			if pid == minPID && s.MessageID <= minMID {
				continue
			}
			if s.Name == name {
				return s, true
			}
		}
	}
	return nil, false
}

// SubscribeAppearance records a watcher for future registrations of name and
// returns every already-registered service that matches, so the caller can
// deliver one notification per existing match immediately (spec.md 4.7).
func (reg *Registry) SubscribeAppearance(watcherPID uint64, name string, notifyMID uint64) []*Service {
	reg.appear = append(reg.appear, AppearanceSub{WatcherPID: watcherPID, Name: name, NotifyMID: notifyMID})

	var existing []*Service
	for _, pid := range reg.processIDsSorted() {
		for _, s := range reg.byProcess[pid] {
			if s.Name == name {
				existing = append(existing, s)
			}
		}
	}
	return existing
}

// CancelAppearance removes a previously registered appearance subscription.
func (reg *Registry) CancelAppearance(watcherPID uint64, name string, notifyMID uint64) {
	for i, s := range reg.appear {
		if s.WatcherPID == watcherPID && s.Name == name && s.NotifyMID == notifyMID {
			reg.appear = append(reg.appear[:i], reg.appear[i+1:]...)
			return
		}
	}
}

// SubscribeDisappearance records a watcher for the unregistration of a
// specific (targetPID, targetMID) service.
func (reg *Registry) SubscribeDisappearance(watcherPID, targetPID, targetMID, notifyMID uint64) {
	reg.disappear = append(reg.disappear, DisappearanceSub{
		WatcherPID: watcherPID, TargetPID: targetPID, TargetMID: targetMID, NotifyMID: notifyMID,
	})
}

// CancelDisappearance removes a previously registered disappearance
// subscription.
func (reg *Registry) CancelDisappearance(watcherPID, targetPID, targetMID, notifyMID uint64) {
	for i, s := range reg.disappear {
		if s.WatcherPID == watcherPID && s.TargetPID == targetPID && s.TargetMID == targetMID && s.NotifyMID == notifyMID {
			reg.disappear = append(reg.disappear[:i], reg.disappear[i+1:]...)
			return
		}
	}
}

// MatchAppearance returns every appearance subscription whose name matches
// the just-registered service, for the caller to notify.
func (reg *Registry) MatchAppearance(name string) []AppearanceSub {
	var matches []AppearanceSub
	for _, s := range reg.appear {
		if s.Name == name {
			matches = append(matches, s)
		}
	}
	return matches
}

// MatchDisappearance returns every disappearance subscription targeting the
// just-unregistered (processID, messageID) service, for the caller to
// notify, and removes them (they are one-shot).
func (reg *Registry) MatchDisappearance(processID, messageID uint64) []DisappearanceSub {
	var matches []DisappearanceSub
	var remaining []DisappearanceSub
	for _, s := range reg.disappear {
		if s.TargetPID == processID && s.TargetMID == messageID {
			matches = append(matches, s)
		} else {
			remaining = append(remaining, s)
		}
	}
	reg.disappear = remaining
	return matches
}
