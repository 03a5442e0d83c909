package crm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned for a frame the parser cannot make sense of.
var ErrMalformed = errors.New("crm: malformed status frame")

// Parser turns a complete status frame into a ClusterStatus.
type Parser interface {
	Parse(frame string) (*ClusterStatus, error)
}

// TextParser reads the line based status format emitted by the status
// helper:
//
//	---start---
//	dc:node1
//	node:node1 online standby=off
//	node:node2 offline
//	rsc_defaults:resource-stickiness=100
//	resource:grp_1 group
//	resource:res_Filesystem_1 ocf:heartbeat:Filesystem container=grp_1 running=node1 device=/dev/drbd0
//	---done---
type TextParser struct{}

var _ Parser = TextParser{}

func (TextParser) Parse(frame string) (*ClusterStatus, error) {
	body, ok := frameBody(frame)
	if !ok {
		return nil, fmt.Errorf("%w: missing frame markers", ErrMalformed)
	}

	s := Empty()
	for n, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		key, rest, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformed, n+1, line)
		}
		var err error
		switch key {
		case "dc":
			s.dc = strings.TrimSpace(rest)
		case "node":
			err = parseNode(s, rest)
		case "resource":
			err = parseResource(s, rest)
		case "rsc_defaults":
			err = parsePairs(strings.Fields(rest), s.rscDefaults)
		default:
			err = fmt.Errorf("unknown section %q", key)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, n+1, err)
		}
	}
	for _, r := range s.resources {
		if r.Container == "" {
			continue
		}
		if _, ok := s.resources[r.Container]; !ok {
			return nil, fmt.Errorf("%w: %s references unknown container %s", ErrMalformed, r.ID, r.Container)
		}
	}
	return s, nil
}

func frameBody(frame string) (string, bool) {
	i := strings.Index(frame, frameStart)
	j := strings.LastIndex(frame, frameDone)
	if i < 0 || j < i {
		return "", false
	}
	return frame[i+len(frameStart) : j], true
}

func parseNode(s *ClusterStatus, rest string) error {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return errors.New("node needs a name and a state")
	}
	name := fields[0]
	key := strings.ToLower(name)
	switch fields[1] {
	case "online":
		s.online[key] = true
	case "offline":
		s.online[key] = false
	default:
		return fmt.Errorf("unknown node state %q", fields[1])
	}
	s.names[key] = name
	params := map[string]string{}
	if err := parsePairs(fields[2:], params); err != nil {
		return err
	}
	s.nodeParams[key] = params
	return nil
}

func parseResource(s *ClusterStatus, rest string) error {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return errors.New("resource needs an id and an agent")
	}
	r := Resource{ID: fields[0], Params: map[string]string{}}
	switch fields[1] {
	case KindGroup, KindClone, KindMasterSlave:
		r.Kind = fields[1]
	default:
		agent, err := ParseAgent(fields[1])
		if err != nil {
			return err
		}
		r.Kind = KindPrimitive
		r.Agent = agent
	}
	if err := parsePairs(fields[2:], r.Params); err != nil {
		return err
	}
	if c, ok := r.Params["container"]; ok {
		r.Container = c
		delete(r.Params, "container")
	}
	if o, ok := r.Params["orphaned"]; ok {
		r.Orphaned = o == "true"
		delete(r.Params, "orphaned")
	}
	if on, ok := r.Params["running"]; ok {
		r.RunningOn = strings.Split(on, ",")
		delete(r.Params, "running")
	}
	if _, dup := s.resources[r.ID]; dup {
		return fmt.Errorf("duplicate resource %s", r.ID)
	}
	s.resources[r.ID] = r
	return nil
}

func parsePairs(fields []string, into map[string]string) error {
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return fmt.Errorf("expected key=value, got %q", f)
		}
		into[k] = v
	}
	return nil
}
