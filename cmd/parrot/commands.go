package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kalambet/parrot/internal/api"
	"github.com/kalambet/parrot/internal/assistant"
	"github.com/kalambet/parrot/internal/config"
	"github.com/kalambet/parrot/internal/corpus"
	"github.com/kalambet/parrot/internal/tui"
)

// --- predict ---

var predictCmd = &cobra.Command{
	Use:   "predict <text>",
	Short: "Classify text with the trained model",
	Args:  mustArgs(1, "text"),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var resp api.PredictResponse
		if err := client.postJSON(cmd.Context(), "/predict", api.PredictRequest{Text: strings.Join(args, " ")}, &resp); err != nil {
			return err
		}
		printPrediction(resp)
		return nil
	},
}

// --- train ---

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Retrain the classifier from its corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		async, _ := cmd.Flags().GetBool("async")
		return requestTraining(cmd, "/train", "classifier", async)
	},
}

func requestTraining(cmd *cobra.Command, path, what string, async bool) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	if async {
		var queued map[string]string
		if err := client.postJSON(cmd.Context(), path+"?async=true", nil, &queued); err != nil {
			return err
		}
		printSuccess("Queued %s training (job %s)", what, queued["job_id"])
		return nil
	}

	printStep("Training %s...", what)
	var st assistant.Status
	if err := client.postJSON(cmd.Context(), path, nil, &st); err != nil {
		return err
	}
	printSuccess("Trained %s", what)
	printModelStatus(st)
	return nil
}

func init() {
	trainCmd.Flags().Bool("async", false, "queue training in the background")
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Manage classifier training data",
}

var dataAddCmd = &cobra.Command{
	Use:   "add <text> <label>",
	Short: "Add a labelled example",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var result struct {
			Examples int  `json:"examples_count"`
			NewLabel bool `json:"new_label"`
		}
		req := api.TrainingDataRequest{Text: args[0], Label: args[1]}
		if err := client.postJSON(cmd.Context(), "/training-data", req, &result); err != nil {
			return err
		}
		printSuccess("Added example for %q (%d total)", args[1], result.Examples)
		if result.NewLabel {
			printWarning("The model does not know %q yet; run `parrot train` to use it", args[1])
		}
		return nil
	},
}

var dataImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import every line of a text, Markdown, HTML or PDF file under one label",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		label, _ := cmd.Flags().GetString("label")
		if file == "" || label == "" {
			return fmt.Errorf("--file and --label are required")
		}
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var result map[string]int
		if err := client.postJSON(cmd.Context(), "/training-data/import", api.ImportRequest{Path: abs, Label: label}, &result); err != nil {
			return err
		}
		printSuccess("Imported %d examples labelled %q", result["added"], label)
		return nil
	},
}

var dataShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show stored training data",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var set corpus.TrainingSet
		if err := client.getJSON(cmd.Context(), "/training-data", &set); err != nil {
			return err
		}
		if asJSON {
			return printJSON(set)
		}
		printTrainingSet(set, limit)
		return nil
	},
}

func init() {
	dataImportCmd.Flags().String("file", "", "file to import (.txt, .md, .html, .pdf)")
	dataImportCmd.Flags().String("label", "", "label for every imported line")
	dataShowCmd.Flags().Int("limit", 20, "number of most recent examples to list (0 for all)")
	dataShowCmd.Flags().Bool("json", false, "print the corpus as JSON")
	dataCmd.AddCommand(dataAddCmd, dataImportCmd, dataShowCmd)
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Manage question/answer pairs",
}

var chatAddCmd = &cobra.Command{
	Use:   "add <question> <answer>",
	Short: "Teach the bot an answer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var result map[string]bool
		if err := client.postJSON(cmd.Context(), "/chat/examples", api.ChatExampleRequest{Question: args[0], Answer: args[1]}, &result); err != nil {
			return err
		}
		if !result["added"] {
			printWarning("Question already known; kept the existing answer")
			return nil
		}
		printSuccess("Added answer for %q", args[0])
		return nil
	},
}

var chatTrainCmd = &cobra.Command{
	Use:   "train",
	Short: "Rebuild the question similarity model",
	RunE: func(cmd *cobra.Command, args []string) error {
		async, _ := cmd.Flags().GetBool("async")
		return requestTraining(cmd, "/chat/train", "chat model", async)
	},
}

var chatAskCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the bot a question",
	Args:  mustArgs(1, "question"),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var resp api.RespondResponse
		if err := client.postJSON(cmd.Context(), "/chat/respond", api.RespondRequest{Query: strings.Join(args, " ")}, &resp); err != nil {
			return err
		}
		printAnswer(resp)
		return nil
	},
}

var chatImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a YAML seed of chat pairs and labelled examples",
	Long: `Import a YAML seed file:

  examples:
    - {text: привет, label: greeting}
  chat:
    - {question: как дела, answer: Отлично!}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var res assistant.SeedResult
		if err := client.postJSON(cmd.Context(), "/seed", api.ImportRequest{Path: abs}, &res); err != nil {
			return err
		}
		printSuccess("Imported %d chat pairs (%d already known) and %d examples", res.ChatAdded, res.ChatSkipped, res.Examples)
		return nil
	},
}

var chatShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List known questions and answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var examples map[string]string
		if err := client.getJSON(cmd.Context(), "/chat/examples", &examples); err != nil {
			return err
		}
		if len(examples) == 0 {
			fmt.Println("No chat examples.")
			return nil
		}
		questions := make([]string, 0, len(examples))
		for q := range examples {
			questions = append(questions, q)
		}
		sort.Strings(questions)
		for _, q := range questions {
			fmt.Printf("%s\n  %s\n", colorize(colorBold, q), examples[q])
		}
		return nil
	},
}

func init() {
	chatTrainCmd.Flags().Bool("async", false, "queue training in the background")
	chatImportCmd.Flags().String("file", "", "YAML seed file")
	chatCmd.AddCommand(chatAddCmd, chatTrainCmd, chatAskCmd, chatImportCmd, chatShowCmd)
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Review queries the bot could not answer",
}

var interactionsUnresolvedCmd = &cobra.Command{
	Use:   "unresolved",
	Short: "List recent unanswered queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var items []api.InteractionView
		if err := client.getJSON(cmd.Context(), fmt.Sprintf("/interactions/unresolved?limit=%d", limit), &items); err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No unresolved queries.")
			return nil
		}
		for _, ix := range items {
			query := ix.Query
			if r := []rune(query); len(r) > 80 {
				query = string(r[:80]) + "..."
			}
			fmt.Printf("%s  %s  %-7s  %s\n",
				colorize(colorCyan, ix.ID),
				ix.CreatedAt,
				ix.Mode,
				query,
			)
		}
		return nil
	},
}

var interactionsResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Mark a query as handled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var result map[string]string
		if err := client.postJSON(cmd.Context(), "/interactions/"+url.PathEscape(args[0])+"/resolve", nil, &result); err != nil {
			return err
		}
		printSuccess("Resolved %s", args[0])
		return nil
	},
}

func init() {
	interactionsUnresolvedCmd.Flags().Int("limit", 20, "maximum number of queries to list")
	interactionsCmd.AddCommand(interactionsUnresolvedCmd, interactionsResolveCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- repl ---

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Talk to the bot interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		modeFlag, _ := cmd.Flags().GetString("mode")
		local, _ := cmd.Flags().GetBool("local")

		mode, err := tui.ParseMode(modeFlag)
		if err != nil {
			return err
		}

		var bot tui.Bot
		if local {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			bot = buildService(cfg, nil)
		} else {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			bot = &apiBot{client: client, ctx: cmd.Context()}
		}

		_, err = tea.NewProgram(tui.New(bot, mode), tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	replCmd.Flags().String("mode", "chat", "starting mode: chat or predict")
	replCmd.Flags().Bool("local", false, "load models in-process instead of using the server")
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
