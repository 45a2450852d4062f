package enrich

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/camila-go/networknav-sub000/internal/logger"
	"github.com/camila-go/networknav-sub000/internal/matching"
	"github.com/camila-go/networknav-sub000/internal/moderation"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

//go:embed prompt.md
var promptTemplate string

const (
	// maxOpenerLength drops runaway lines; the prompt asks for under 160.
	maxOpenerLength = 240
	maxLogLength    = 200
)

// ErrNoOpeners means the model answered but nothing survived parsing and
// moderation.
var ErrNoOpeners = errors.New("enrich: no usable openers")

// BreakerConfig configures the circuit breaker around the model.
type BreakerConfig struct {
	Name             string        `mapstructure:"name"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold float64       `mapstructure:"failure_threshold" validate:"gte=0,lte=1"`
	MinRequests      uint32        `mapstructure:"min_requests"`
}

// DefaultBreakerConfig returns the breaker defaults used in production.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "enrichment",
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Openers implements matching.Enricher on top of a content generator.
// Calls go through a circuit breaker so a failing model is skipped quickly
// instead of costing every match its full timeout.
type Openers struct {
	generator contentGenerator
	breaker   *gobreaker.CircuitBreaker
	filter    *moderation.Filter
	logger    *zap.Logger
}

var _ matching.Enricher = (*Openers)(nil)

// NewOpeners wires generator behind a breaker and a moderation filter. A nil
// filter uses moderation.NewFilter.
func NewOpeners(generator contentGenerator, filter *moderation.Filter, cfg BreakerConfig, log *zap.Logger) *Openers {
	if filter == nil {
		filter = moderation.NewFilter()
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("enrich")

	def := DefaultBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = def.MinRequests
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}

	o := &Openers{generator: generator, filter: filter, logger: log}
	o.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return o
}

// State reports the breaker state.
func (o *Openers) State() gobreaker.State {
	return o.breaker.State()
}

// GenerateOpeners asks the model for up to two openers and returns the ones
// that pass moderation.
func (o *Openers) GenerateOpeners(ctx context.Context, oc matching.OpenerContext) ([]string, error) {
	prompt := buildPrompt(oc)

	out, err := o.breaker.Execute(func() (interface{}, error) {
		return o.generator.GenerateContent(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("enrich: breaker %s: %w", o.breaker.Name(), err)
		}
		return nil, fmt.Errorf("enrich: generate: %w", err)
	}
	raw, _ := out.(string)

	o.logger.Debug("generated openers",
		zap.String("candidate", oc.CandidateName),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, maxLogLength)),
	)

	kept, rejected := o.filter.Screen(parseOpeners(raw))
	for _, r := range rejected {
		o.logger.Info("opener rejected by moderation",
			zap.String("candidate", oc.CandidateName),
			zap.String("reason", r.Reason),
			zap.String("term", r.Term),
		)
	}
	if len(kept) == 0 {
		return nil, ErrNoOpeners
	}
	if len(kept) > matching.MaxConversationStarters {
		kept = kept[:matching.MaxConversationStarters]
	}
	return kept, nil
}

func buildPrompt(oc matching.OpenerContext) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "{{REQUESTER}} meets {{CANDIDATE}}{{CANDIDATE_POSITION}} ({{MATCH_TYPE}}).\n{{COMMONALITIES}}\nJSON array of two openers:"
	}

	position := ""
	switch {
	case oc.CandidateRole != "" && oc.CandidateOrg != "":
		position = fmt.Sprintf(", %s at %s", oc.CandidateRole, oc.CandidateOrg)
	case oc.CandidateRole != "":
		position = ", " + oc.CandidateRole
	case oc.CandidateOrg != "":
		position = " from " + oc.CandidateOrg
	}

	var commons strings.Builder
	for _, c := range oc.Commonalities {
		fmt.Fprintf(&commons, "- (%s) %s\n", c.Category, c.Description)
	}
	if commons.Len() == 0 {
		commons.WriteString("- nothing specific yet\n")
	}

	requester := strings.TrimSpace(oc.RequesterName)
	if requester == "" {
		requester = "A fellow attendee"
	}
	candidate := strings.TrimSpace(oc.CandidateName)
	if candidate == "" {
		candidate = "another attendee"
	}

	r := strings.NewReplacer(
		"{{REQUESTER}}", requester,
		"{{CANDIDATE}}", candidate,
		"{{CANDIDATE_POSITION}}", position,
		"{{MATCH_TYPE}}", string(oc.MatchType),
		"{{COMMONALITIES}}", strings.TrimRight(commons.String(), "\n"),
	)
	return r.Replace(template)
}

// parseOpeners reads a JSON array of strings. Anything else falls back to
// one opener per non-empty line with list markers and quotes stripped.
func parseOpeners(raw string) []string {
	cleaned := extractJSON(raw)

	var lines []string
	clean := strings.TrimSpace
	if err := json.Unmarshal([]byte(cleaned), &lines); err != nil {
		lines = strings.Split(cleaned, "\n")
		clean = cleanLine
	}

	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = clean(l)
		if l == "" || utf8.RuneCountInString(l) > maxOpenerLength {
			continue
		}
		out = append(out, l)
	}
	return out
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)

func cleanLine(l string) string {
	l = listMarker.ReplaceAllString(l, "")
	l = strings.TrimSuffix(strings.TrimSpace(l), ",")
	l = strings.Trim(l, "\"“”")
	return strings.TrimSpace(l)
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
