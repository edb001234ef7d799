package ingest

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"riskdesk/internal/model"
	"riskdesk/internal/store"
)

const (
	gdeltDocAPI         = "https://api.gdeltproject.org"
	gdeltShockThreshold = 5.0
	gdeltSnapTTL        = 600 * time.Second
)

// Article is one GDELT document with its tone vector unpacked.
type Article struct {
	URL           string
	Title         string
	SeenDate      string
	Domain        string
	Language      string
	SourceCountry string
	ToneAvg       float64
	TonePos       float64
	ToneNeg       float64
	Polarity      float64
}

type gdeltResponse struct {
	Articles []struct {
		URL           string `json:"url"`
		Title         string `json:"title"`
		SeenDate      string `json:"seendate"`
		Domain        string `json:"domain"`
		Language      string `json:"language"`
		SourceCountry string `json:"sourcecountry"`
		Tone          string `json:"tone"`
	} `json:"articles"`
}

// GDELTPoller watches global news for the configured keywords and turns
// negative tone into a shock score. Crossing the threshold from below emits a
// SHOCK_SPIKE event once, not on every poll while elevated.
type GDELTPoller struct {
	client   *pollerClient
	store    store.Store
	bus      Emitter
	keywords []string
	log      zerolog.Logger

	mu        sync.Mutex
	lastShock float64
}

func NewGDELTPoller(st store.Store, bus Emitter, keywords []string, log zerolog.Logger) *GDELTPoller {
	return &GDELTPoller{
		client:   newPollerClient("gdelt", gdeltDocAPI, 20*time.Second, 2*time.Second),
		store:    st,
		bus:      bus,
		keywords: keywords,
		log:      log,
	}
}

func (p *GDELTPoller) Poll(ctx context.Context) error {
	quoted := make([]string, len(p.keywords))
	for i, kw := range p.keywords {
		quoted[i] = fmt.Sprintf("%q", kw)
	}

	var out gdeltResponse
	err := p.client.get(ctx, "/api/v2/doc/doc", map[string]string{
		"query":      strings.Join(quoted, " OR "),
		"mode":       "ArtList",
		"maxrecords": "50",
		"format":     "json",
		"sort":       "DateDesc",
	}, &out)
	if err != nil {
		return fmt.Errorf("gdelt fetch: %w", err)
	}
	if len(out.Articles) == 0 {
		p.log.Warn().Msg("gdelt returned no articles")
		return nil
	}

	articles := make([]Article, 0, len(out.Articles))
	for _, a := range out.Articles {
		art := Article{
			URL:           a.URL,
			Title:         a.Title,
			SeenDate:      a.SeenDate,
			Domain:        a.Domain,
			Language:      a.Language,
			SourceCountry: a.SourceCountry,
		}
		art.ToneAvg, art.TonePos, art.ToneNeg, art.Polarity = parseTone(a.Tone)
		articles = append(articles, art)
	}

	score := ShockScore(articles)
	err = p.store.Set("gdelt:latest", map[string]interface{}{
		"article_count": len(articles),
		"shock_score":   score,
		"ts":            model.NowUTC().Format(time.RFC3339Nano),
	}, gdeltSnapTTL)
	if err != nil {
		return err
	}

	p.mu.Lock()
	prev := p.lastShock
	p.lastShock = score
	p.mu.Unlock()

	if score >= gdeltShockThreshold && prev < gdeltShockThreshold {
		p.log.Info().Float64("shock_score", score).Msg("news shock spike detected")
		p.bus.Emit(model.EventShockSpike, "gdelt_ingest", map[string]interface{}{
			"shock_score": score,
			"threshold":   gdeltShockThreshold,
			"previous":    prev,
		})
	}
	return nil
}

// ShockScore is the mean absolute negative tone scaled up by article volume.
func ShockScore(articles []Article) float64 {
	if len(articles) == 0 {
		return 0
	}
	var sumNeg float64
	for _, a := range articles {
		sumNeg += a.ToneNeg
	}
	avgNeg := math.Abs(sumNeg / float64(len(articles)))
	score := avgNeg * (1 + float64(len(articles))/100.0)
	return math.Round(score*1000) / 1000
}

// parseTone unpacks the comma-separated GDELT tone vector
// (avg,pos,neg,polarity,activity,selfref,words).
func parseTone(s string) (avg, pos, neg, polarity float64) {
	parts := strings.Split(s, ",")
	vals := make([]float64, 4)
	for i := 0; i < 4 && i < len(parts); i++ {
		if f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64); err == nil {
			vals[i] = f
		}
	}
	return vals[0], vals[1], vals[2], vals[3]
}
