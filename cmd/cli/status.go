package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	client "clusterwatch/clients/go"
)

// withClient dials the daemon and runs fn with a request timeout.
func withClient(fn func(ctx context.Context, c *client.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()
	c, err := client.New(ctx, serverAddr, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

// statusSection fetches the status and prints one section of it.
func statusSection(key string, show func(io.Writer, []interface{})) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			items, _ := st[key].([]interface{})
			if jsonOutput {
				return printJSON(os.Stdout, items)
			}
			show(os.Stdout, items)
			return nil
		})
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the whole cluster status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(os.Stdout, st)
				}
				printStatus(os.Stdout, st)
				return nil
			})
		},
	}
}

func dcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dc",
		Short: "Show the host commands are sent to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				dc, err := c.DCHost(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(os.Stdout, dc)
				}
				printDC(os.Stdout, dc)
				return nil
			})
		},
	}
}

func hostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List hosts and their connection state",
		RunE:  statusSection("hosts", printHosts),
	}
}

func servicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List cluster services",
		RunE:  statusSection("services", printServices),
	}
}

func drbdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drbd",
		Short: "List DRBD resources and volumes",
		RunE:  statusSection("drbd", printDrbd),
	}
}

func vmsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vms",
		Short: "List virtual machines",
		RunE:  statusSection("vms", printVMs),
	}
}

func saveLayoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save-layout",
		Short: "Store graph node positions on every host",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				if err := c.SaveLayout(ctx); err != nil {
					return err
				}
				fmt.Println("OK")
				return nil
			})
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream model changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(cmd.Context(), serverAddr, nil)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Watch(cmd.Context(), func(msg map[string]interface{}) error {
				if jsonOutput {
					return printJSON(os.Stdout, msg)
				}
				printWatch(os.Stdout, msg)
				return nil
			})
		},
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStatus(w io.Writer, st map[string]interface{}) {
	if dc, ok := st["dc"].(map[string]interface{}); ok {
		printDC(w, dc)
	}
	if failed, _ := st["cluster_status_failed"].(bool); failed {
		fmt.Fprintln(w, "Cluster status: FAILED")
	}
	sections := []struct {
		title string
		key   string
		print func(io.Writer, []interface{})
	}{
		{"Hosts", "hosts", printHosts},
		{"Services", "services", printServices},
		{"DRBD", "drbd", printDrbd},
		{"VMs", "vms", printVMs},
	}
	for _, s := range sections {
		items, _ := st[s.key].([]interface{})
		fmt.Fprintf(w, "\n%s:\n", s.title)
		s.print(w, items)
	}
	if devs, _ := st["block_devices"].([]interface{}); len(devs) > 0 {
		fmt.Fprintf(w, "\nCommon block devices: %s\n", join(devs))
	}
}

func printDC(w io.Writer, dc map[string]interface{}) {
	kind := "fallback"
	if reported, _ := dc["real_dc"].(bool); reported {
		kind = "reported"
	}
	fmt.Fprintf(w, "DC host: %v (%s)\n", dc["host"], kind)
}

func printHosts(w io.Writer, items []interface{}) {
	for i, it := range items {
		h, _ := it.(map[string]interface{})
		var flags []string
		for _, f := range []string{"connected", "cluster_status", "drbd_status", "drbd_loaded", "online", "standby"} {
			if v, _ := h[f].(bool); v {
				flags = append(flags, f)
			}
		}
		fmt.Fprintf(w, "%d) %v [%s]\n", i+1, h["name"], strings.Join(flags, " "))
	}
}

func printServices(w io.Writer, items []interface{}) {
	for i, it := range items {
		s, _ := it.(map[string]interface{})
		line := fmt.Sprintf("%d) %v - %v", i+1, s["id"], s["agent"])
		if c, _ := s["container"].(string); c != "" {
			line += " in " + c
		}
		if on, _ := s["running_on"].([]interface{}); len(on) > 0 {
			line += " on " + join(on)
		}
		if orphaned, _ := s["orphaned"].(bool); orphaned {
			line += " (orphaned)"
		}
		fmt.Fprintln(w, line)
	}
}

func printDrbd(w io.Writer, items []interface{}) {
	for _, it := range items {
		r, _ := it.(map[string]interface{})
		fmt.Fprintf(w, "%v (protocol %v)\n", r["name"], r["protocol"])
		volumes, _ := r["volumes"].([]interface{})
		for _, vit := range volumes {
			v, _ := vit.(map[string]interface{})
			fmt.Fprintf(w, "  volume %v %v\n", v["volume"], v["device"])
			endpoints, _ := v["endpoints"].([]interface{})
			for _, eit := range endpoints {
				e, _ := eit.(map[string]interface{})
				fmt.Fprintf(w, "    %v:%v role=%v disk=%v conn=%v\n", e["host"], e["disk"], e["role"], e["disk_state"], e["connection"])
			}
		}
	}
}

func printVMs(w io.Writer, items []interface{}) {
	for i, it := range items {
		v, _ := it.(map[string]interface{})
		on, _ := v["running_on"].([]interface{})
		crm := ""
		if used, _ := v["used_by_crm"].(bool); used {
			crm = " (crm)"
		}
		fmt.Fprintf(w, "%d) %v on [%s]%s\n", i+1, v["name"], join(on), crm)
	}
}

func printWatch(w io.Writer, msg map[string]interface{}) {
	switch msg["type"] {
	case "status":
		st, _ := msg["status"].(map[string]interface{})
		printStatus(w, st)
	case "batch":
		b, _ := msg["batch"].(map[string]interface{})
		added, _ := b["added"].([]interface{})
		var keys []interface{}
		for _, a := range added {
			if m, ok := a.(map[string]interface{}); ok {
				keys = append(keys, m["key"])
			}
		}
		removed, _ := b["removed"].([]interface{})
		updated, _ := b["updated"].([]interface{})
		fmt.Fprintf(w, "[%v] +%s -%s ~%s\n", b["category"], join(keys), join(removed), join(updated))
	}
}

func join(vals []interface{}) string {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ",")
}
