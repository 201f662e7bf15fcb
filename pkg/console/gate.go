// Package console implements the interactive step gate for --step runs.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/arvelex/veriplan/pkg/model"
	"github.com/arvelex/veriplan/pkg/orchestrator"
)

// Gate prompts the operator before each step and maps their answer to a
// GateDecision. Interrupt and EOF abort the run, matching what an operator
// pressing ^C at the prompt expects.
type Gate struct {
	rl     *readline.Instance
	output io.Writer
	total  int
}

// NewGate opens the terminal prompt. Close it when the run ends.
func NewGate(total int) (*Gate, error) {
	completer := readline.NewPrefixCompleter(
		readline.PcItem("continue"),
		readline.PcItem("skip"),
		readline.PcItem("abort"),
	)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "veriplan> ",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "abort",
	})
	if err != nil {
		return nil, fmt.Errorf("init readline: %w", err)
	}
	return &Gate{rl: rl, output: os.Stdout, total: total}, nil
}

// Close releases the terminal.
func (g *Gate) Close() error { return g.rl.Close() }

// Decide implements orchestrator.GateFunc.
func (g *Gate) Decide(step model.Step) (orchestrator.GateDecision, error) {
	fmt.Fprintf(g.output, "\nstep %d/%d [%s]: %s\n", step.Index, g.total, step.Target, step.Description)
	if step.Expected != "" {
		fmt.Fprintf(g.output, "  expect: %s\n", step.Expected)
	}
	g.rl.SetPrompt(fmt.Sprintf("veriplan[%d/%d]> ", step.Index, g.total))

	for {
		line, err := g.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return orchestrator.GateAbort, nil
			}
			return orchestrator.GateAbort, err
		}
		switch strings.TrimSpace(strings.ToLower(line)) {
		case "", "continue", "c", "y", "yes":
			return orchestrator.GateContinue, nil
		case "skip", "s":
			return orchestrator.GateSkip, nil
		case "abort", "a", "q", "quit":
			return orchestrator.GateAbort, nil
		default:
			fmt.Fprintf(g.output, "answer continue, skip, or abort\n")
		}
	}
}
