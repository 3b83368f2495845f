// cmd/compile/main.go
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Corphon/ClientInterviewMCP/internal/corpus"
	"github.com/Corphon/ClientInterviewMCP/internal/models"
	"github.com/Corphon/ClientInterviewMCP/internal/utils"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, utils.GetLogger()); err != nil {
		fmt.Fprintf(os.Stderr, "compile: %v\n", err)
		os.Exit(1)
	}
}

// run 编译语料。-in 为空时使用内置语料；-out 为 "-" 时写到 stdout。
func run(args []string, stdout io.Writer, logger *utils.Logger) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	var (
		in     = fs.String("in", "", "Training corpus (.json, .yaml or .yml); empty uses the embedded corpus")
		out    = fs.String("out", "compiled_index.json", "Output path for the compiled index, - for stdout")
		check  = fs.Bool("check", false, "Validate and lint only, do not write the index")
		strict = fs.Bool("strict", false, "Treat lint warnings as errors")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	start := time.Now()
	source := *in
	var (
		c   *models.TrainingCorpus
		err error
	)
	if source == "" {
		source = "embedded"
		c, err = corpus.DefaultCorpus()
	} else {
		c, err = corpus.LoadCorpus(source)
	}
	if err != nil {
		return err
	}

	warnings := corpus.Lint(c)
	for _, w := range warnings {
		logger.Warn("Corpus warning", map[string]interface{}{"intent": w.Intent, "warning": w.Message})
	}

	idx, err := corpus.Compile(c)
	if err != nil {
		return err
	}
	if *strict && len(warnings) > 0 {
		return fmt.Errorf("%d lint warning(s) in strict mode", len(warnings))
	}

	stats := idx.Stats()
	logger.Info("Corpus compiled", map[string]interface{}{
		"source":     source,
		"character":  idx.Character.Name,
		"intents":    stats.Intents,
		"examples":   stats.Examples,
		"keywords":   stats.Keywords,
		"warnings":   len(warnings),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})

	switch {
	case *check:
		return nil
	case *out == "-":
		data, err := corpus.MarshalIndex(idx)
		if err != nil {
			return err
		}
		_, err = stdout.Write(append(data, '\n'))
		return err
	default:
		if err := corpus.SaveIndex(*out, idx); err != nil {
			return err
		}
		logger.Info("Compiled index written", map[string]interface{}{"path": *out})
		return nil
	}
}
