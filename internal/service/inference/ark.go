package inference

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/vqa-lens/backend/internal/service/imagecodec"
	"github.com/zhouzirui/vqa-lens/backend/internal/service/prompt"
)

// ArkEngine drives an eino chat model (Volcengine Ark by default) that
// accepts image parts. The image travels as a data URL and the placeholder
// is removed from the text part.
type ArkEngine struct {
	chatModel model.BaseChatModel
}

var _ Engine = (*ArkEngine)(nil)

// NewArkEngine wraps chatModel.
func NewArkEngine(chatModel model.BaseChatModel) *ArkEngine {
	return &ArkEngine{chatModel: chatModel}
}

func (a *ArkEngine) Name() string { return "ark" }

func (a *ArkEngine) EchoConvention() string { return prompt.EchoConvention }

func (a *ArkEngine) Healthy(context.Context) bool { return a.chatModel != nil }

// Generate implements Engine.
func (a *ArkEngine) Generate(ctx context.Context, req Request) (string, error) {
	png, err := imagecodec.EncodePNG(req.Image)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(strings.Replace(req.Prompt, prompt.Placeholder, "", 1))
	msg := &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
				},
			},
			{
				Type: schema.ChatMessagePartTypeText,
				Text: text,
			},
		},
	}

	var opts []model.Option
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}

	resp, err := a.chatModel.Generate(ctx, []*schema.Message{msg}, opts...)
	if err != nil {
		return "", fmt.Errorf("chat model generate: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("chat model returned no message")
	}
	return prompt.Echo(req.Prompt, resp.Content), nil
}
