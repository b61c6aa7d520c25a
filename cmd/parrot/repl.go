package main

import (
	"context"

	"github.com/kalambet/parrot/internal/api"
	"github.com/kalambet/parrot/internal/chat"
	"github.com/kalambet/parrot/internal/classifier"
)

// apiBot answers REPL input through the running server.
type apiBot struct {
	client *apiClient
	ctx    context.Context
}

func (b *apiBot) Predict(text string) classifier.Prediction {
	var resp api.PredictResponse
	if err := b.client.postJSON(b.ctx, "/predict", api.PredictRequest{Text: text}, &resp); err != nil {
		return classifier.Prediction{Kind: classifier.KindError, Reason: err.Error()}
	}
	return predictionFrom(resp)
}

func (b *apiBot) Respond(query string) chat.Response {
	var resp api.RespondResponse
	if err := b.client.postJSON(b.ctx, "/chat/respond", api.RespondRequest{Query: query}, &resp); err != nil {
		return chat.Response{Kind: chat.KindFallback, Answer: err.Error()}
	}
	return responseFrom(resp)
}

func predictionFrom(r api.PredictResponse) classifier.Prediction {
	p := classifier.Prediction{Kind: classifier.KindError, Label: r.Label, Reason: r.Reason}
	for _, k := range []classifier.Kind{classifier.KindLabel, classifier.KindUnknown, classifier.KindUntrained} {
		if k.String() == r.Kind {
			p.Kind = k
		}
	}
	return p
}

func responseFrom(r api.RespondResponse) chat.Response {
	resp := chat.Response{Kind: chat.KindFallback, Answer: r.Answer, Question: r.Question, Distance: r.Distance}
	for _, k := range []chat.Kind{chat.KindExact, chat.KindSimilar} {
		if k.String() == r.Kind {
			resp.Kind = k
		}
	}
	return resp
}
