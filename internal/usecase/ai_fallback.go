package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/adbroll/matcher/internal/domain"
	"github.com/adbroll/matcher/internal/metrics"
	"go.uber.org/zap"
)

// aiAnswerRegex matches one answer line: "Video <n>: <index|ninguno>"
var aiAnswerRegex = regexp.MustCompile(`(?i)^\s*video\s+(\d+)\s*:\s*(\d+|ninguno)\s*$`)

const aiSystemPrompt = "Eres un asistente que empareja videos de TikTok Shop con productos de un catálogo. " +
	"Responde únicamente con una línea por video con el formato \"Video N: <número de producto>\" " +
	"o \"Video N: ninguno\" si ningún producto corresponde. No añadas explicaciones."

// AIConfig holds configuration for the AI fallback pass
type AIConfig struct {
	ChunkSize   int
	MaxProducts int
	Timeout     time.Duration
	Confidence  float64
}

// AIMatcher asks a text completion service to pair videos the heuristic pass missed
type AIMatcher struct {
	completer   domain.Completer
	chunkSize   int
	maxProducts int
	timeout     time.Duration
	confidence  float64
	logger      *zap.Logger
}

// NewAIMatcher creates an AI fallback matcher with the given configuration
func NewAIMatcher(completer domain.Completer, config AIConfig, logger *zap.Logger) *AIMatcher {
	chunkSize := config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 20
	}
	maxProducts := config.MaxProducts
	if maxProducts <= 0 {
		maxProducts = 200
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	confidence := config.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.7
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AIMatcher{
		completer:   completer,
		chunkSize:   chunkSize,
		maxProducts: maxProducts,
		timeout:     timeout,
		confidence:  confidence,
		logger:      logger,
	}
}

// Confidence is the score recorded for AI matches
func (a *AIMatcher) Confidence() float64 {
	return a.confidence
}

// Resolve returns, per video ID, the index into products picked by the model.
// Failed chunks and unparsable lines are skipped. A non-nil heartbeat runs
// before every chunk after the first; its error stops the pass.
func (a *AIMatcher) Resolve(
	ctx context.Context,
	videos []domain.Video,
	products []domain.Product,
	heartbeat func(context.Context) error,
) map[string]int {
	resolved := make(map[string]int)
	if len(videos) == 0 || len(products) == 0 {
		return resolved
	}

	offered := products
	if len(offered) > a.maxProducts {
		offered = offered[:a.maxProducts]
	}

	for start := 0; start < len(videos); start += a.chunkSize {
		if ctx.Err() != nil {
			break
		}
		if heartbeat != nil && start > 0 {
			if err := heartbeat(ctx); err != nil {
				a.logger.Warn("AI fallback stopped", zap.Int("chunk_start", start), zap.Error(err))
				break
			}
		}
		end := min(start+a.chunkSize, len(videos))
		chunk := videos[start:end]

		answers, err := a.resolveChunk(ctx, chunk, offered)
		if err != nil {
			metrics.AICallsTotal.WithLabelValues("error").Inc()
			a.logger.Warn("AI fallback chunk skipped",
				zap.Int("chunk_start", start),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err))
			continue
		}
		metrics.AICallsTotal.WithLabelValues("ok").Inc()

		for videoIdx, productIdx := range answers {
			resolved[chunk[videoIdx].ID] = productIdx
		}
	}

	return resolved
}

// resolveChunk runs one bounded completion call and maps its answers to zero-based indexes
func (a *AIMatcher) resolveChunk(ctx context.Context, chunk []domain.Video, products []domain.Product) (map[int]int, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	response, err := a.completer.Complete(callCtx, aiSystemPrompt, BuildAIPrompt(chunk, products))
	if err != nil {
		return nil, err
	}

	answers := ParseAIResponse(response, len(chunk), len(products))
	a.logger.Debug("AI fallback chunk answered",
		zap.Int("videos", len(chunk)),
		zap.Int("answers", len(answers)))
	return answers, nil
}

// BuildAIPrompt enumerates the numbered product list and the numbered video list
func BuildAIPrompt(videos []domain.Video, products []domain.Product) string {
	var b strings.Builder

	b.WriteString("Productos:\n")
	for i, p := range products {
		fmt.Fprintf(&b, "%d. %s", i+1, oneLine(p.Name))
		if p.Category != "" {
			fmt.Fprintf(&b, " (%s)", oneLine(p.Category))
		}
		b.WriteByte('\n')
	}

	b.WriteString("\nVideos:\n")
	for i, v := range videos {
		fmt.Fprintf(&b, "Video %d: %s", i+1, oneLine(v.Title))
		if v.ProductName != "" {
			fmt.Fprintf(&b, " | producto: %s", oneLine(v.ProductName))
		}
		b.WriteByte('\n')
	}

	b.WriteString("\nPara cada video indica el número del producto que aparece en él, o \"ninguno\".")
	return b.String()
}

// ParseAIResponse parses "Video N: <index|ninguno>" lines into zero-based
// video index -> zero-based product index. Lines that do not match or point
// outside either list are dropped. The first answer for a video wins, and a
// "ninguno" answer leaves the video out of the result.
func ParseAIResponse(response string, videoCount, productCount int) map[int]int {
	answers := make(map[int]int)
	answered := make(map[int]bool)

	for _, line := range strings.Split(response, "\n") {
		m := aiAnswerRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		videoNum, err := strconv.Atoi(m[1])
		if err != nil || videoNum < 1 || videoNum > videoCount {
			continue
		}
		if answered[videoNum-1] {
			continue
		}

		if strings.EqualFold(m[2], "ninguno") {
			answered[videoNum-1] = true
			continue
		}
		productNum, err := strconv.Atoi(m[2])
		if err != nil || productNum < 1 || productNum > productCount {
			continue
		}

		answered[videoNum-1] = true
		answers[videoNum-1] = productNum - 1
	}

	return answers
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
