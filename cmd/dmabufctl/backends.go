package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/dmabufkit/dmabuf/factory"
)

func init() {
	rootCmd.AddCommand(newBackendsCmd())
}

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List allocator backends and whether they are usable here",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackends()
		},
	}
}

type backendInfo struct {
	Name      string `json:"name"`
	Node      string `json:"node,omitempty"`
	Available bool   `json:"available"`
	Default   bool   `json:"default"`
}

func runBackends() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	infos := make([]backendInfo, 0, len(factory.Backends()))
	for _, name := range factory.Backends() {
		infos = append(infos, backendInfo{
			Name:      name,
			Node:      cfg.DeviceNode(name),
			Available: cfg.Available(name),
			Default:   name == cfg.Backend,
		})
	}

	if jsonOut {
		return printJSON(infos)
	}
	for _, info := range infos {
		mark := " "
		if info.Default {
			mark = "*"
		}
		status := "missing"
		if info.Available {
			status = "available"
		}
		node := info.Node
		if node == "" {
			node = "-"
		}
		printInfo("%s %-9s %-26s %s\n", mark, info.Name, node, status)
	}
	return nil
}
