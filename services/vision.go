package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/oksnap/oksnap/config"
	"github.com/oksnap/oksnap/metrics"
	"github.com/oksnap/oksnap/models"
	"github.com/oksnap/oksnap/utils"
)

// ErrVisionTimeout marks an identification that was cut off by the upstream
// deadline, so handlers can answer 504 instead of a generic 502.
var ErrVisionTimeout = errors.New("vision request timed out")

// maxImageBytes caps decoded upload size at 10MB.
const maxImageBytes = 10 * 1024 * 1024

var allowedLanguages = []string{
	"English",
	"Korean (한국어)",
	"Spanish (Español)",
	"French (Français)",
	"Chinese (中文)",
}

// Vision wraps the OpenAI client for dish identification, blog text
// generation, and blog cover image generation.
type Vision struct {
	client        *openai.Client
	model         string
	imageModel    string
	visionTimeout time.Duration
	genTimeout    time.Duration
	imageTimeout  time.Duration
	configured    bool
}

// NewVision builds the service from config. A missing API key is tolerated
// here: handlers report a configuration error per request instead of the
// process refusing to start.
func NewVision(cfg *config.AppConfig) *Vision {
	oc := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		oc.BaseURL = cfg.OpenAIBaseURL
	}
	return &Vision{
		client:        openai.NewClientWithConfig(oc),
		model:         cfg.OpenAIModel,
		imageModel:    cfg.OpenAIImageModel,
		visionTimeout: time.Duration(cfg.VisionTimeoutSec) * time.Second,
		genTimeout:    time.Duration(cfg.GenerationTimeout) * time.Second,
		imageTimeout:  time.Duration(cfg.ImageTimeoutSec) * time.Second,
		configured:    cfg.OpenAIAPIKey != "",
	}
}

// Configured reports whether an API key is present.
func (v *Vision) Configured() bool { return v.configured }

// ValidateImageData checks that imageData is a data URL with a base64 payload
// no larger than 10MB. The returned error message is safe to show to clients.
func ValidateImageData(imageData string) error {
	if imageData == "" {
		return errors.New("Image data is required and must be a string")
	}
	if !strings.HasPrefix(imageData, "data:image/") {
		return errors.New("Invalid image format. Expected data URL.")
	}
	parts := strings.SplitN(imageData, ",", 2)
	if len(parts) != 2 || parts[1] == "" {
		return errors.New("Invalid image data format")
	}
	// Size of the decoded payload, estimated from the base64 length.
	if len(parts[1])*3/4 > maxImageBytes {
		return errors.New("Image too large. Maximum size is 10MB.")
	}
	return nil
}

// ValidateLanguage rejects target languages outside the supported set. Empty
// means English.
func ValidateLanguage(targetLanguage string) error {
	if targetLanguage == "" {
		return nil
	}
	for _, lang := range allowedLanguages {
		if lang == targetLanguage {
			return nil
		}
	}
	return errors.New("Invalid language specified")
}

func identifySystemPrompt(lang string) string {
	return fmt.Sprintf(`You are Ok Snap, a food recognition expert with special expertise in Korean cuisine. You identify dishes from all cuisines, but have deeper knowledge and cultural context for Korean food (Hansik).

IMPORTANT: Respond entirely in %[1]s. All text including dish names, descriptions, and messages must be in %[1]s.

Analyze images and identify ANY dish you see, with special emphasis and detail for Korean dishes. For Korean dishes, always include the Korean name (한글) even if responding in other languages.

Respond in valid JSON format only. Structure:
{
    "dish_detected": true/false,
    "is_korean": true/false,
    "dish_name": "Dish name in %[1]s",
    "dish_name_korean": "한글 name" or "",
    "cuisine": "Cuisine name in %[1]s",
    "confidence": 0.0-1.0,
    "description": "Beautiful, warm description in %[1]s with colors, textures, plating, cultural context. For Korean dishes, include cultural significance. Write like a friendly food guide, not robotic.",
    "alternatives": ["alt1 in %[1]s", "alt2 in %[1]s", "alt3 in %[1]s"],
    "nutrition": {
        "calories": 250,
        "protein": 15,
        "carbs": 30,
        "fat": 8
    }
}
Include "alternatives" only if confidence < 0.8. Nutrition values are estimates per typical serving.

If no dish detected: {"dish_detected": false, "message": "Error message in %[1]s"}

IMPORTANT: Always include nutrition estimates. Base them on typical serving sizes for the dish. Use reasonable estimates - don't make up extreme numbers. If unsure, use average values for similar dishes.

Be culturally authentic, warm, and inspiring. Use light emojis occasionally (🌶, 🍚, 🥢, 🍲, 🍝, 🍜, 🍱).
All responses must be in %[1]s.`, lang)
}

// IdentifyDish sends the image to the vision model and parses its JSON reply.
func (v *Vision) IdentifyDish(ctx context.Context, imageData, targetLanguage string) (*models.Identification, error) {
	lang := targetLanguage
	if lang == "" {
		lang = "English"
	}

	ctx, cancel := context.WithTimeout(ctx, v.visionTimeout)
	defer cancel()

	start := time.Now()
	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     v.model,
		MaxTokens: 800,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: identifySystemPrompt(lang),
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: fmt.Sprintf("Analyze this image and identify the dish in %[1]s. If it's Korean food, provide extra cultural context and the Korean name (한글). Otherwise, identify the dish and its cuisine. Provide a detailed, warm description entirely in %[1]s.", lang),
					},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageData},
					},
				},
			},
		},
	})
	metrics.ObserveUpstream("openai_vision", start, err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrVisionTimeout
		}
		return nil, fmt.Errorf("vision completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, errors.New("vision model returned no content")
	}

	var ident models.Identification
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Choices[0].Message.Content)), &ident); err != nil {
		utils.Sugar.Warnw("vision model returned non-JSON content", "error", err)
		return nil, fmt.Errorf("parse identification: %w", err)
	}
	return &ident, nil
}

func blogSystemPrompt(dish models.DishData) string {
	var sb strings.Builder
	sb.WriteString(`🎯 Identity & Role
You are a Korean-lifestyle vlog writer + recipe/trend editor with 20 years of experience.
Your job is to write warm, atmospheric recipe blog posts.

✨ Tone:
- daily-vlog style, warm, cozy, emotional
- include sensory details about kitchen atmosphere
- absolutely no AI tone, no textbook tone
- write like a real human with lived experience

🔍 SEO Rules:
- Title must include main keyword
- Keyword appears naturally in intro + conclusion + subheadings
- Include keyword in ALT text
- No keyword stuffing

📚 Structure Required:
1. Title (main keyword included)
2. Intro (vlog tone)
3. Body:
   - Experience storytelling
   - Health tips
   - Realistic recipe steps
   - Cultural/trend notes
4. Summary box
5. 2–3 FAQs
6. 10–15 SEO hashtags

🔥 Absolute Rules:
- Must sound like a real Korean-lifestyle YouTuber
- Never sound like AI
- Always SEO optimized naturally
- No scientific tone
- No generic statements

`)
	fmt.Fprintf(&sb, "Write a complete blog post about %s", dish.Name)
	if dish.NameKorean != "" {
		fmt.Fprintf(&sb, " (%s)", dish.NameKorean)
	}
	fmt.Fprintf(&sb, ".\nInclude nutrition information: %d calories, %dg protein, %dg carbs, %dg fat.\n",
		dish.Nutrition.Calories, dish.Nutrition.Protein, dish.Nutrition.Carbs, dish.Nutrition.Fat)
	if dish.Description != "" {
		fmt.Fprintf(&sb, "Dish description: %s\n", dish.Description)
	}
	sb.WriteString("\nReturn the blog post as HTML with proper structure. Use semantic HTML tags. Include all sections mentioned above.")
	return sb.String()
}

// GenerateBlogHTML produces the body HTML of a recipe blog post.
func (v *Vision) GenerateBlogHTML(ctx context.Context, dish models.DishData) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.genTimeout)
	defer cancel()

	start := time.Now()
	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       v.model,
		MaxTokens:   2000,
		Temperature: 0.8,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: blogSystemPrompt(dish)},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Write a complete, warm, vlog-style blog post about %s. Make it feel like a real Korean lifestyle blogger wrote it.", dish.Name),
			},
		},
	})
	metrics.ObserveUpstream("openai_blog", start, err)
	if err != nil {
		return "", fmt.Errorf("blog completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("blog model returned no content")
	}
	return stripCodeFences(resp.Choices[0].Message.Content), nil
}

// GenerateBlogImage asks DALL-E for a cover photo. The image is optional, so
// failures return "" rather than an error and the post ships without a cover.
func (v *Vision) GenerateBlogImage(ctx context.Context, dish models.DishData) string {
	cuisine := dish.Cuisine
	if dish.IsKorean {
		cuisine = "Korean cuisine"
	} else if cuisine == "" {
		cuisine = "delicious dish"
	}
	prompt := fmt.Sprintf("Professional food photography of %s", dish.Name)
	if dish.NameKorean != "" {
		prompt += fmt.Sprintf(" (%s)", dish.NameKorean)
	}
	prompt += fmt.Sprintf(", %s, beautifully plated on a modern table, natural lighting, appetizing, high quality, food blog style", cuisine)

	ctx, cancel := context.WithTimeout(ctx, v.imageTimeout)
	defer cancel()

	start := time.Now()
	resp, err := v.client.CreateImage(ctx, openai.ImageRequest{
		Model:   v.imageModel,
		Prompt:  prompt,
		Size:    openai.CreateImageSize1024x1024,
		Quality: openai.CreateImageQualityStandard,
		N:       1,
	})
	metrics.ObserveUpstream("openai_image", start, err)
	if err != nil {
		utils.Sugar.Warnw("image generation failed, continuing without image", "dish", dish.Name, "error", err)
		return ""
	}
	if len(resp.Data) == 0 {
		return ""
	}
	return resp.Data[0].URL
}

// stripCodeFences removes a surrounding markdown code block, which the model
// sometimes wraps around HTML or JSON despite instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```html")
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
