package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/kalambet/parrot/internal/api"
	"github.com/kalambet/parrot/internal/assistant"
	"github.com/kalambet/parrot/internal/corpus"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// Status lines go to stderr; answers go to stdout so they can be piped.

func printSuccess(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func printStep(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+fmt.Sprintf(format, args...)))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// printPrediction colours a label green, an error red and the two "can't
// tell" sentinels yellow.
func printPrediction(resp api.PredictResponse) {
	switch resp.Kind {
	case "label":
		fmt.Println(colorize(colorGreen, resp.Message))
	case "error":
		fmt.Println(colorize(colorRed, resp.Message))
	default:
		fmt.Println(colorize(colorYellow, resp.Message))
	}
}

func printAnswer(resp api.RespondResponse) {
	if resp.Kind == "fallback" {
		fmt.Println(colorize(colorYellow, resp.Answer))
		return
	}
	fmt.Println(resp.Answer)
}

func printModelStatus(st assistant.Status) {
	c := st.Classifier
	if c.IsTrained {
		printStatus("Classifier", "trained, %d classes, %d terms (at %s)",
			c.NumClasses, c.VocabSize, c.TrainedAt.Local().Format(time.DateTime))
	} else {
		printStatus("Classifier", "%s", colorize(colorYellow, "not trained"))
	}
	printStatus("Examples", "%d", c.Examples)

	ch := st.Chat
	if ch.IsTrained {
		printStatus("Chat", "trained, %d questions indexed (at %s)",
			ch.IndexedCount, ch.TrainedAt.Local().Format(time.DateTime))
	} else {
		printStatus("Chat", "%s", colorize(colorYellow, "not trained"))
	}
	printStatus("Chat examples", "%d", ch.Examples)
}

// printTrainingSet prints per-label counts followed by the last limit
// examples (all of them when limit is 0).
func printTrainingSet(set corpus.TrainingSet, limit int) {
	if set.Len() == 0 {
		fmt.Println("No training data.")
		return
	}

	counts := make(map[string]int)
	for _, l := range set.Labels {
		counts[l]++
	}
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		printStatus(l, "%d", counts[l])
	}

	start := 0
	if limit > 0 && set.Len() > limit {
		start = set.Len() - limit
	}
	fmt.Println()
	for i := start; i < set.Len(); i++ {
		fmt.Printf("%s  %s\n", colorize(colorCyan, set.Labels[i]), set.Texts[i])
	}
}
