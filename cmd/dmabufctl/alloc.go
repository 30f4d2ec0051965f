package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/dmabufkit/dmabuf"
)

var sizePrinter = message.NewPrinter(language.English)

func init() {
	rootCmd.AddCommand(newAllocCmd())
}

type allocOptions struct {
	size      int
	alignment int
	count     int
	flags     string
	pattern   int
}

func newAllocCmd() *cobra.Command {
	opts := allocOptions{}
	cmd := &cobra.Command{
		Use:   "alloc",
		Short: "Allocate buffers and report their properties",
		Long: `The alloc command allocates one or more DMA buffers, maps them and
reports their physical address, descriptor and size. With --pattern the
buffer is filled with the given byte and read back.

Example:
  dmabufctl alloc --size 1048576 --alignment 4096
  dmabufctl alloc --backend memfd --count 4 --pattern 0xa5 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlloc(opts)
		},
	}
	cmd.Flags().IntVar(&opts.size, "size", 4096, "Buffer size in bytes")
	cmd.Flags().IntVar(&opts.alignment, "alignment", 0, "Physical address alignment (0 or 1 for none)")
	cmd.Flags().IntVar(&opts.count, "count", 1, "Number of buffers to allocate")
	cmd.Flags().StringVar(&opts.flags, "flags", "", "Map flags: read, write, manual-sync, private")
	cmd.Flags().IntVar(&opts.pattern, "pattern", -1, "Fill each buffer with this byte and verify it (needs write access)")
	return cmd
}

// allocResult describes one allocated buffer.
type allocResult struct {
	Backend         string `json:"backend"`
	PhysicalAddress string `json:"physical_address"`
	FD              int    `json:"fd"`
	Size            int    `json:"size"`
	Verified        bool   `json:"verified,omitempty"`
}

func runAlloc(opts allocOptions) error {
	if opts.count < 1 {
		return fmt.Errorf("--count must be at least 1, got %d", opts.count)
	}
	if opts.pattern > 0xff {
		return fmt.Errorf("--pattern must be a byte value, got %#x", opts.pattern)
	}
	flags, err := dmabuf.ParseMapFlags(opts.flags)
	if err != nil {
		return err
	}
	if opts.pattern >= 0 && !flags.Normalize().Has(dmabuf.MapWrite) {
		return fmt.Errorf("--pattern needs write access, got --flags %q", opts.flags)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newAllocator(cfg, cfg.Backend)
	if err != nil {
		return err
	}
	defer a.Destroy()

	results := make([]allocResult, 0, opts.count)
	for i := 0; i < opts.count; i++ {
		res, err := allocOne(a, cfg.Backend, opts, flags)
		if err != nil {
			return fmt.Errorf("buffer %d: %w", i, err)
		}
		results = append(results, res)
	}

	if jsonOut {
		return printJSON(results)
	}
	for _, res := range results {
		printInfo("%s: %s physical address %s, fd %d\n",
			res.Backend, sizePrinter.Sprintf("%d bytes", res.Size), res.PhysicalAddress, res.FD)
		if res.Verified {
			printVerbose("  pattern %#02x verified\n", opts.pattern)
		}
	}
	return nil
}

func allocOne(a dmabuf.Allocator, backend string, opts allocOptions, flags dmabuf.MapFlags) (allocResult, error) {
	buf, err := dmabuf.Allocate(a, opts.size, opts.alignment)
	if err != nil {
		return allocResult{}, err
	}
	defer dmabuf.Deallocate(buf)

	res := allocResult{
		Backend:         backend,
		PhysicalAddress: dmabuf.AddressOf(buf).String(),
		FD:              dmabuf.FDOf(buf),
		Size:            dmabuf.SizeOf(buf),
	}

	data, err := dmabuf.Map(buf, flags)
	if err != nil {
		return allocResult{}, err
	}
	if flags.Has(dmabuf.MapManualSync) {
		if err := dmabuf.StartSyncSession(buf); err != nil {
			return allocResult{}, err
		}
	}
	if opts.pattern >= 0 {
		want := bytes.Repeat([]byte{byte(opts.pattern)}, len(data))
		copy(data, want)
		if !bytes.Equal(data, want) {
			return allocResult{}, fmt.Errorf("pattern %#02x not read back", opts.pattern)
		}
		res.Verified = true
	}
	if flags.Has(dmabuf.MapManualSync) {
		if err := dmabuf.StopSyncSession(buf); err != nil {
			return allocResult{}, err
		}
	}
	return res, dmabuf.Unmap(buf)
}
