package ai

import (
	"context"
	"errors"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
)

// ErrNotConfigured is returned by Unavailable.
var ErrNotConfigured = errors.New("ai model is not configured")

// Unavailable stands in for Service when no model credentials are set: every
// generation yields the apology and every image description fails.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, conversation.Key, string, []conversation.Turn) string {
	return GenerationApology
}

func (Unavailable) DescribeImage(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}
