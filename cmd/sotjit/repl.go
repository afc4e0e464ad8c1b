package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/wudi/sotjit/bytecode"
	"github.com/wudi/sotjit/cache"
	"github.com/wudi/sotjit/codegen"
	"github.com/wudi/sotjit/config"
	"github.com/wudi/sotjit/frame"
	"github.com/wudi/sotjit/guard"
	"github.com/wudi/sotjit/tracker"
	"github.com/wudi/sotjit/variable"
)

// runRepl is an interactive shell over the demo frames: an operator types
// one of the built-in frame names plus its integer locals and watches the
// cache hit or miss live, adapted from the teacher's interactive-shell
// idiom (cmd/hey's "-a" flag) but driven by chzyer/readline instead of
// bufio.Scanner since this surface benefits from history/line-editing.
func runRepl(cfg *config.Config) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sotjit> ",
		HistoryFile:     "",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("sotjit: opening readline: %w", err)
	}
	defer rl.Close()

	c := cache.New(cfg.StrictMode, cache.NewTranslateFunc(toyOracle{}, func() codegen.CodeGen { return codegen.NewEmitter("compiled") }, cfg.StrictMode))
	if cfg.CacheDB != "" {
		store, err := cache.OpenStore(cfg.CacheDB)
		if err != nil {
			return err
		}
		defer store.Close()
		c.Attach(store)
	}

	fmt.Println("sotjit repl — type `add_one_twice <x>`, `sum_list <n1,n2,...>`, `report`, or `exit`")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := handleReplLine(c, strings.TrimSpace(line)); err != nil {
			if err == io.EOF {
				return nil
			}
			fmt.Println("error:", err)
		}
	}
}

func handleReplLine(c *cache.InstructionTranslatorCache, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "exit", "quit":
		return io.EOF
	case "report":
		printReport(c)
		return nil
	case "add_one_twice":
		if len(fields) != 2 {
			return fmt.Errorf("usage: add_one_twice <x>")
		}
		x, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("x must be an integer: %w", err)
		}
		return runOnce(c, addOneTwiceCode(), map[string]variable.Variable{
			"x": variable.Default.From(&tracker.Local{Name: "x"}, x),
		})
	case "sum_list":
		if len(fields) != 2 {
			return fmt.Errorf("usage: sum_list <n1,n2,...>")
		}
		parts := strings.Split(fields[1], ",")
		items := make(variable.ListValue, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
			if err != nil {
				return fmt.Errorf("list item %q is not an integer: %w", p, err)
			}
			items = append(items, variable.Default.From(&tracker.Const{Literal: n}, n))
		}
		return runOnce(c, sumListCode(), map[string]variable.Variable{
			"xs": variable.Default.From(&tracker.Local{Name: "xs"}, items),
			"y":  variable.Default.From(&tracker.Const{Literal: int64(0)}, int64(0)),
		})
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func runOnce(c *cache.InstructionTranslatorCache, code *bytecode.CodeObject, locals map[string]variable.Variable) error {
	resolve := guard.FrameResolver(func(name string) (any, bool) {
		v, ok := locals[name]
		if !ok {
			return nil, false
		}
		val, err := variable.GetValue(v)
		if err != nil {
			return v, true
		}
		return val, true
	})

	f := frame.New(code, locals, nil, nil, wrapConsts(code))
	cc, err := c.Lookup(f, resolve)
	if err != nil {
		return err
	}
	if cc == nil {
		fmt.Println("no custom code (fell back to default evaluation)")
		return nil
	}
	fmt.Printf("rewritten code %q, %d instructions\n", cc.Code.Name, len(cc.Code.Instructions))
	return nil
}
