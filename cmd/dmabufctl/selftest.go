package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/dmabufkit/dmabuf"
)

const (
	selftestSize      = 4096
	selftestAlignment = 16
)

func init() {
	rootCmd.AddCommand(newSelftestCmd())
}

func newSelftestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selftest [backend...]",
		Short: "Run the allocation smoke test against one or more backends",
		Long: `The selftest command allocates a 4096 byte buffer with 16 byte alignment
from each backend, checks its size, maps it, verifies that the physical
address is non-zero and aligned, then unmaps and releases it.

Without arguments the configured backend is tested.

Example:
  dmabufctl selftest
  dmabufctl selftest ion ipu pxp
  dmabufctl selftest memfd --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelftest(args)
		},
	}
	return cmd
}

// selftestResult is the outcome of testing one backend.
type selftestResult struct {
	Backend         string `json:"backend"`
	OK              bool   `json:"ok"`
	PhysicalAddress string `json:"physical_address,omitempty"`
	Size            int    `json:"size,omitempty"`
	Error           string `json:"error,omitempty"`
}

var errSelftestFailed = errors.New("selftest failed")

func runSelftest(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	backends := args
	if len(backends) == 0 {
		backends = []string{cfg.Backend}
	}

	results := make([]selftestResult, 0, len(backends))
	failed := false
	for _, name := range backends {
		printVerbose("Testing backend: %s\n", name)
		res := selftestResult{Backend: name}

		a, err := newAllocator(cfg, name)
		if err != nil {
			res.Error = fmt.Sprintf("could not create allocator: %v", err)
		} else {
			addr, err := checkAllocator(a)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.OK = true
				res.PhysicalAddress = addr.String()
				res.Size = selftestSize
			}
			if err := a.Destroy(); err != nil && res.OK {
				res.OK = false
				res.Error = fmt.Sprintf("could not destroy allocator: %v", err)
			}
		}

		failed = failed || !res.OK
		results = append(results, res)
	}

	if jsonOut {
		if err := printJSON(results); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			if res.OK {
				printInfo("  ✓ %-10s physical address %s\n", res.Backend, res.PhysicalAddress)
			} else {
				printInfo("  ✗ %-10s %s\n", res.Backend, res.Error)
			}
		}
	}

	if failed {
		return errSelftestFailed
	}
	return nil
}

// checkAllocator runs the smoke test on a and returns the buffer's address.
func checkAllocator(a dmabuf.Allocator) (dmabuf.PhysicalAddress, error) {
	buf, err := dmabuf.Allocate(a, selftestSize, selftestAlignment)
	if err != nil {
		return 0, fmt.Errorf("could not allocate DMA buffer: %w", err)
	}

	if got := dmabuf.SizeOf(buf); got != selftestSize {
		_ = dmabuf.Deallocate(buf)
		return 0, fmt.Errorf("size mismatch: expected %d, got %d", selftestSize, got)
	}

	data, err := dmabuf.Map(buf, 0)
	if err != nil {
		_ = dmabuf.Deallocate(buf)
		return 0, fmt.Errorf("could not map DMA buffer: %w", err)
	}
	if len(data) != selftestSize {
		_ = dmabuf.Deallocate(buf)
		return 0, fmt.Errorf("mapping length mismatch: expected %d, got %d", selftestSize, len(data))
	}

	addr := dmabuf.AddressOf(buf)
	switch {
	case !addr.IsValid():
		_ = dmabuf.Deallocate(buf)
		return 0, errors.New("physical address is 0")
	case !addr.IsAligned(selftestAlignment):
		_ = dmabuf.Deallocate(buf)
		return 0, fmt.Errorf("physical address %s is not %d-byte aligned", addr, selftestAlignment)
	}
	printVerbose("  physical address: %s\n", addr)

	if err := dmabuf.Unmap(buf); err != nil {
		_ = dmabuf.Deallocate(buf)
		return 0, fmt.Errorf("could not unmap DMA buffer: %w", err)
	}
	if err := dmabuf.Deallocate(buf); err != nil {
		return 0, fmt.Errorf("could not deallocate DMA buffer: %w", err)
	}
	return addr, nil
}
