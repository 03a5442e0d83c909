package server

import (
	"context"

	"clusterwatch/pkg/host"
	"clusterwatch/pkg/reconcile"
	"clusterwatch/pkg/status"
)

// Backend is the watcher state served to observers.
type Backend interface {
	Store() *status.Store
	Elector() *status.Elector
	Reconciler() *reconcile.Reconciler
	Hosts() []*host.Host
	SaveGraphPositions(ctx context.Context) error
}

// Views are plain maps so they encode both as JSON and as structpb values.

func statusView(b Backend) map[string]interface{} {
	return map[string]interface{}{
		"dc":                    dcView(b),
		"cluster_status_failed": b.Elector().ClusterStatusFailed(),
		"hosts":                 hostsView(b),
		"services":              servicesView(b.Reconciler()),
		"drbd":                  drbdView(b.Reconciler()),
		"vms":                   vmsView(b.Reconciler()),
		"block_devices":         list(b.Reconciler().CommonBlockDevices()),
	}
}

// dcView is nil while no host is configured.
func dcView(b Backend) interface{} {
	e := b.Elector()
	h := e.DCHost()
	if h == nil {
		return nil
	}
	return map[string]interface{}{
		"host":           h.Name(),
		"real_dc":        e.IsRealDC(h),
		"reported_dc":    b.Store().ClusterStatus().DC(),
		"all_hosts_down": e.AllHostsDown(),
	}
}

func hostsView(b Backend) []interface{} {
	e := b.Elector()
	cs := b.Store().ClusterStatus()
	out := []interface{}{}
	for _, h := range b.Hosts() {
		out = append(out, map[string]interface{}{
			"name":           h.Name(),
			"connected":      h.IsConnected(),
			"cluster_status": h.ClStatus(),
			"drbd_status":    h.DrbdStatus(),
			"drbd_loaded":    h.IsDrbdLoaded(),
			"online":         cs.IsOnline(h.Name()),
			"standby":        e.IsStandby(h),
			"stack_running":  h.IsClusterStackRunning(),
		})
	}
	return out
}

func servicesView(r *reconcile.Reconciler) []interface{} {
	out := []interface{}{}
	for _, si := range r.ServiceList() {
		out = append(out, map[string]interface{}{
			"id":         si.HeartbeatID(),
			"name":       si.Name(),
			"agent":      si.Agent().String(),
			"container":  si.Container(),
			"running_on": list(si.RunningOn()),
			"orphaned":   si.IsOrphaned(),
		})
	}
	return out
}

func drbdView(r *reconcile.Reconciler) []interface{} {
	out := []interface{}{}
	for _, res := range r.DrbdResources() {
		volumes := []interface{}{}
		for _, v := range res.Volumes() {
			endpoints := []interface{}{}
			for _, bd := range v.Endpoints() {
				st := v.State(bd.Host())
				endpoints = append(endpoints, map[string]interface{}{
					"host":        bd.Host(),
					"disk":        bd.Name(),
					"role":        st.Role,
					"connection":  st.Connection,
					"replication": st.Replication,
					"disk_state":  st.Disk,
					"peer_disk":   st.PeerDisk,
				})
			}
			volumes = append(volumes, map[string]interface{}{
				"volume":    v.Key().Volume,
				"device":    v.Device(),
				"endpoints": endpoints,
			})
		}
		out = append(out, map[string]interface{}{
			"name":     res.Name(),
			"protocol": res.Protocol(),
			"volumes":  volumes,
		})
	}
	return out
}

func vmsView(r *reconcile.Reconciler) []interface{} {
	out := []interface{}{}
	for _, v := range r.VMList() {
		out = append(out, map[string]interface{}{
			"name":        v.Name(),
			"running_on":  list(v.RunningOn()),
			"used_by_crm": v.UsedByCRM(),
		})
	}
	return out
}

func batchView(b reconcile.Batch) map[string]interface{} {
	added := []interface{}{}
	for _, in := range b.Added {
		added = append(added, map[string]interface{}{"key": in.Key, "index": in.Index})
	}
	return map[string]interface{}{
		"category": string(b.Category),
		"removed":  list(b.Removed),
		"added":    added,
		"updated":  list(b.Updated),
	}
}

func list(ss []string) []interface{} {
	out := make([]interface{}, 0, len(ss))
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}
