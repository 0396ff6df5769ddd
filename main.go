package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacisnonsense/quokkago/internal/logging"
	"github.com/jacisnonsense/quokkago/lua"
)

var verbose bool

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quokkago",
		Short:         "Run and inspect compiled Lua 5.3 bytecode chunks",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	root.AddCommand(newRunCmd(), newDisasmCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <chunk>",
		Short: "Load a compiled chunk and call its entry closure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(verbose)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			vm := lua.NewVM(log)
			registerDemoNatives(vm)

			entry, err := vm.Load(data)
			if err != nil {
				return fmt.Errorf("loading chunk: %w", err)
			}

			results, err := vm.Call(entry, nil, lua.MULTIRET)
			if err != nil {
				return fmt.Errorf("running chunk: %w", err)
			}
			for i, v := range results {
				fmt.Printf("result[%d] = %s\n", i, v)
				vm.Release(v)
			}
			return nil
		},
	}
}

// registerDemoNatives wires up the host functions every chunk run through
// this CLI can call into, as a worked example of the native-closure
// protocol rather than a fixed standard library.
func registerDemoNatives(vm *lua.VM) {
	vm.Register("print_len", func(vm *lua.VM) (int, error) {
		s, _ := vm.ToString(0)
		vm.PushInt(int64(len(s)))
		return 1, nil
	})
}

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <chunk>",
		Short: "Print the decoded instructions of a compiled chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			chunk, err := lua.LoadChunk(data)
			if err != nil {
				return fmt.Errorf("loading chunk: %w", err)
			}
			fmt.Print(lua.Disassemble(chunk.Root))
			return nil
		},
	}
}
