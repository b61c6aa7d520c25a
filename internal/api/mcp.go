package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/parrot/internal/assistant"
	"github.com/kalambet/parrot/internal/training"
)

// NewMCPServer creates an MCP server exposing the classifier and the chat
// responder as tools.
func NewMCPServer(svc *assistant.Service) *server.MCPServer {
	s := server.NewMCPServer(
		"parrot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("parrot: a trainable Russian text classifier and question/answer bot."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("predict",
			mcp.WithDescription("Classify a piece of text with the trained classifier."),
			mcp.WithString("text", mcp.Description("Text to classify"), mcp.Required()),
		),
		mcpPredict(svc),
	)

	s.AddTool(
		mcp.NewTool("respond",
			mcp.WithDescription("Answer a chat message using the closest known question."),
			mcp.WithString("query", mcp.Description("User message"), mcp.Required()),
		),
		mcpRespond(svc),
	)

	s.AddTool(
		mcp.NewTool("add_training_data",
			mcp.WithDescription("Append a labelled example to the classifier corpus."),
			mcp.WithString("text", mcp.Description("Example text"), mcp.Required()),
			mcp.WithString("label", mcp.Description("Class label"), mcp.Required()),
		),
		mcpAddTrainingData(svc),
	)

	s.AddTool(
		mcp.NewTool("add_chat_example",
			mcp.WithDescription("Teach the bot an answer to a question. Existing questions are kept."),
			mcp.WithString("question", mcp.Description("Question"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("Answer"), mcp.Required()),
		),
		mcpAddChatExample(svc),
	)

	s.AddTool(
		mcp.NewTool("train",
			mcp.WithDescription("Queue retraining of the classifier or the chat model."),
			mcp.WithString("target",
				mcp.Description("Model to train"),
				mcp.Enum("classifier", "chat"),
				mcp.Required(),
			),
		),
		mcpTrain(svc),
	)

	s.AddTool(
		mcp.NewTool("status",
			mcp.WithDescription("Report training state of the classifier and the chat model."),
		),
		mcpStatus(svc),
	)

	s.AddResource(
		mcp.NewResource(
			"parrot://status",
			"Model Status",
			mcp.WithResourceDescription("Classifier and chat model status as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStatus(svc),
	)

	s.AddResource(
		mcp.NewResource(
			"parrot://unresolved",
			"Unresolved Queries",
			mcp.WithResourceDescription("Last 20 queries the bot could not answer"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceUnresolved(svc),
	)

	return s
}

func mcpPredict(svc *assistant.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		p := svc.Predict(text)
		return mcpJSON(PredictResponse{
			Kind:    p.Kind.String(),
			Label:   p.Label,
			Reason:  p.Reason,
			Message: p.String(),
		})
	}
}

func mcpRespond(svc *assistant.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		return mcpText(svc.Respond(query).Answer), nil
	}
}

func mcpAddTrainingData(svc *assistant.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		label, err := req.RequireString("label")
		if err != nil {
			return mcpError("label is required"), nil
		}
		if err := svc.AddTrainingData(text, label); err != nil {
			return mcpError(fmt.Sprintf("failed to add example: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Added example for %q (%d total)", label, svc.TrainingData().Len())), nil
	}
}

func mcpAddChatExample(svc *assistant.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}
		added, err := svc.AddExample(question, answer)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to add chat example: %v", err)), nil
		}
		if !added {
			return mcpText("Question already known; kept the existing answer"), nil
		}
		return mcpText("Added chat example"), nil
	}
}

// mcpTrain enqueues a training job. Without a queue it trains inline.
func mcpTrain(svc *assistant.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, err := req.RequireString("target")
		if err != nil {
			return mcpError("target is required"), nil
		}
		var jobType string
		switch target {
		case "classifier":
			jobType = training.JobTrainClassifier
		case "chat":
			jobType = training.JobTrainChat
		default:
			return mcpError(fmt.Sprintf("unknown target %q", target)), nil
		}

		id, err := svc.RequestTraining(jobType, "mcp")
		if err == nil {
			return mcpText(fmt.Sprintf("Queued %s training job %s", target, id)), nil
		}
		if !errors.Is(err, assistant.ErrNoQueue) {
			return mcpError(fmt.Sprintf("failed to queue training: %v", err)), nil
		}

		if jobType == training.JobTrainChat {
			err = svc.TrainChat(ctx)
		} else {
			err = svc.TrainClassifier(ctx)
		}
		if err != nil {
			return mcpError(fmt.Sprintf("training failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Trained %s", target)), nil
	}
}

func mcpStatus(svc *assistant.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(svc.Status())
	}
}

func mcpResourceStatus(svc *assistant.Service) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(svc.Status())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceUnresolved(svc *assistant.Service) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		items, err := svc.Unresolved(20)
		if err != nil {
			return nil, fmt.Errorf("failed to list unresolved queries: %w", err)
		}

		views := make([]InteractionView, len(items))
		for i, it := range items {
			v := interactionView(it)
			if utf8.RuneCountInString(v.Query) > 200 {
				runes := []rune(v.Query)
				v.Query = string(runes[:200]) + "..."
			}
			views[i] = v
		}

		b, err := json.Marshal(views)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
