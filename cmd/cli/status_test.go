package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintServices(t *testing.T) {
	var buf bytes.Buffer
	printServices(&buf, []interface{}{
		map[string]interface{}{
			"id":         "res_IPaddr2_1",
			"agent":      "ocf:heartbeat:IPaddr2",
			"container":  "grp_1",
			"running_on": []interface{}{"alice"},
			"orphaned":   false,
		},
	})
	assert.Equal(t, "1) res_IPaddr2_1 - ocf:heartbeat:IPaddr2 in grp_1 on alice\n", buf.String())
}

func TestPrintWatchBatch(t *testing.T) {
	var buf bytes.Buffer
	printWatch(&buf, map[string]interface{}{
		"type": "batch",
		"batch": map[string]interface{}{
			"category": "vms",
			"added":    []interface{}{map[string]interface{}{"key": "web", "index": 0.0}},
			"removed":  []interface{}{"old"},
			"updated":  []interface{}{},
		},
	})
	assert.Equal(t, "[vms] +web -old ~\n", buf.String())
}

func TestPrintDC(t *testing.T) {
	var buf bytes.Buffer
	printDC(&buf, map[string]interface{}{"host": "alice", "real_dc": true})
	assert.Equal(t, "DC host: alice (reported)\n", buf.String())
}
