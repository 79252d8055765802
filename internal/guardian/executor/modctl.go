package executor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/t2linux-tools/t2guard/internal/guardian/registry"
)

// ModuleOp enumerates the kernel module operations the sequencer issues.
type ModuleOp int

const (
	ModuleLoad ModuleOp = iota
	ModuleUnload
)

func (op ModuleOp) String() string {
	if op == ModuleLoad {
		return "load"
	}
	return "unload"
}

// defaultModuleTable is the kernel's loaded-module listing.
const defaultModuleTable = "/proc/modules"

// ModuleController wraps modprobe and the loaded-module table into the
// typed primitives the sequencer and verifier operate on.
type ModuleController struct {
	runner Runner

	// moduleTable is overridable in tests.
	moduleTable string
}

// NewModuleController builds a controller using the given runner.
func NewModuleController(r Runner) *ModuleController {
	return &ModuleController{runner: r, moduleTable: defaultModuleTable}
}

// moduleCommand builds the modprobe argv for an operation. Unload uses
// --remove-holders so dependent modules are torn down with the driver.
func moduleCommand(op ModuleOp, d registry.DriverSpec) []string {
	switch op {
	case ModuleLoad:
		return []string{"modprobe", "--verbose", d.Name}
	default:
		return []string{"modprobe", "--remove", "--remove-holders", d.Name}
	}
}

// Apply runs a single module operation.
func (c *ModuleController) Apply(ctx context.Context, op ModuleOp, d registry.DriverSpec) error {
	argv := moduleCommand(op, d)
	res := c.runner.Run(ctx, argv[0], argv[1:]...)
	if !res.OK() {
		return fmt.Errorf("%s %s: modprobe exited %d: %s", op, d.Name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	// Unload success additionally requires the module to be gone from
	// the loaded-module table; modprobe can exit zero while a holder
	// keeps the module pinned.
	if op == ModuleUnload {
		loaded, err := c.IsLoaded(d.Name)
		if err != nil {
			return fmt.Errorf("unload %s: cannot confirm removal: %w", d.Name, err)
		}
		if loaded {
			return fmt.Errorf("unload %s: module still present in %s", d.Name, c.moduleTable)
		}
	}

	return nil
}

// Load inserts the driver's module.
func (c *ModuleController) Load(ctx context.Context, d registry.DriverSpec) error {
	return c.Apply(ctx, ModuleLoad, d)
}

// Unload removes the driver's module together with its holders.
func (c *ModuleController) Unload(ctx context.Context, d registry.DriverSpec) error {
	return c.Apply(ctx, ModuleUnload, d)
}

// IsLoaded scans the loaded-module table for the given module name.
// Dashes and underscores are interchangeable in module names.
func (c *ModuleController) IsLoaded(name string) (bool, error) {
	f, err := os.Open(c.moduleTable)
	if err != nil {
		return false, err
	}
	defer f.Close()

	want := normalizeModuleName(name)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if normalizeModuleName(fields[0]) == want {
			return true, nil
		}
	}

	return false, scanner.Err()
}

func normalizeModuleName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}
