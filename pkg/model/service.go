// Package model holds the long-lived entities the reconciler keeps in sync
// with the cluster.
package model

import (
	"strings"
	"sync"

	"clusterwatch/pkg/crm"
)

const (
	resPrefix     = "res_"
	grpPrefix     = "grp_"
	clonePrefix   = "cl_"
	msPrefix      = "ms_"
	stonithPrefix = "stonith_"
)

// Service carries the identity of one CRM service. The id is assigned once
// and never changes afterwards.
type Service struct {
	mu          sync.Mutex
	name        string
	class       string
	id          string
	heartbeatID string
	idSet       bool

	isNew     bool
	removed   bool
	removing  bool
	modified  bool
	modifying bool
}

// NewService creates a service of the given logical name, e.g. "Filesystem"
// or "Group".
func NewService(name, class string) *Service {
	return &Service{name: name, class: class}
}

func (s *Service) Name() string  { return s.name }
func (s *Service) Class() string { return s.class }

// prefix returns the heartbeat id prefix for this service.
func (s *Service) prefix() string {
	switch s.name {
	case crm.GroupName:
		return grpPrefix
	case crm.CloneName:
		return clonePrefix
	case crm.MasterSlaveName:
		return msPrefix
	}
	if s.class == crm.ClassStonith {
		return stonithPrefix + s.name + "_"
	}
	return resPrefix + s.name + "_"
}

// ID returns the bare id, empty until assigned.
func (s *Service) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// HeartbeatID returns the CRM id, empty until assigned.
func (s *Service) HeartbeatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeatID
}

// HasID reports whether an id was assigned.
func (s *Service) HasID() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idSet
}

// SetID assigns the bare id and derives the heartbeat id. It does nothing
// and returns false when an id is already set.
func (s *Service) SetID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idSet {
		return false
	}
	p := s.prefix()
	s.id = id
	if strings.HasPrefix(id, p) {
		s.heartbeatID = id
		s.id = strings.TrimPrefix(id, p)
	} else {
		s.heartbeatID = p + id
	}
	s.idSet = true
	return true
}

// SetHeartbeatID assigns the CRM id and derives the bare id by stripping the
// prefix. Ids that do not carry the prefix are used as they are. Like SetID
// it only takes effect once.
func (s *Service) SetHeartbeatID(hbID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idSet {
		return false
	}
	s.heartbeatID = hbID
	s.id = strings.TrimPrefix(hbID, s.prefix())
	s.idSet = true
	return true
}

// SetNew marks the service as created locally and not yet confirmed by the
// cluster.
func (s *Service) SetNew(v bool) {
	s.mu.Lock()
	s.isNew = v
	s.mu.Unlock()
}

func (s *Service) IsNew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isNew
}

// SetRemoved marks the service as removed. The removing state lasts until
// DoneRemoving.
func (s *Service) SetRemoved(v bool) {
	s.mu.Lock()
	s.removed = v
	if v {
		s.removing = true
	}
	s.mu.Unlock()
}

func (s *Service) DoneRemoving() {
	s.mu.Lock()
	s.removing = false
	s.mu.Unlock()
}

func (s *Service) IsRemoved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removed || s.removing
}

func (s *Service) SetModified(v bool) {
	s.mu.Lock()
	s.modified = v
	if v {
		s.modifying = true
	}
	s.mu.Unlock()
}

func (s *Service) DoneModifying() {
	s.mu.Lock()
	s.modifying = false
	s.mu.Unlock()
}

// SetAvailable clears the new, modified and removed marks.
func (s *Service) SetAvailable() {
	s.mu.Lock()
	s.isNew, s.modified, s.removed = false, false, false
	s.mu.Unlock()
}

// IsAvailable reports whether no change is pending on the service.
func (s *Service) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.isNew && !s.modified && !s.removed && !s.modifying && !s.removing
}
