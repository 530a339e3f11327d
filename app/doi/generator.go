package doi

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/openscholar/exchange/app/cfg"
	"github.com/openscholar/exchange/app/database"
)

// ErrCollisionExhausted signals repeated identifier collisions. This points
// at a systemic problem rather than transient failure, so callers must not
// retry automatically.
var ErrCollisionExhausted = errors.New("exhausted DOI generation attempts")

const maxGenerateAttempts = 5

// Generator mints candidate external identifiers and verifies their
// uniqueness against the repository before accepting them.
type Generator struct {
	articleRepo database.ArticleRepository
	entropy     io.Reader
	clock       func() time.Time
}

func NewGenerator(articleRepo database.ArticleRepository) *Generator {
	return &Generator{
		articleRepo: articleRepo,
		entropy:     rand.Reader,
		clock:       time.Now,
	}
}

// Run produces a unique DOI for the article: registry prefix, publication
// year, a short value derived from the article's own id, and fresh random
// entropy. Collisions regenerate with new entropy up to the attempt bound.
func (g *Generator) Run(article *database.Article) (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		candidate, err := g.candidate(article)
		if err != nil {
			return "", err
		}

		existing, err := g.articleRepo.GetArticleByDOI(candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check DOI uniqueness: %w", err)
		}
		if existing == nil {
			return candidate, nil
		}

		slog.Warn("DOI candidate collision, regenerating", "article", article.ID, "candidate", candidate, "attempt", attempt+1)
	}

	return "", ErrCollisionExhausted
}

func (g *Generator) candidate(article *database.Article) (string, error) {
	year := g.clock().UTC().Year()
	if article.PublishedAt != nil {
		year = article.PublishedAt.UTC().Year()
	}

	short := strings.ReplaceAll(article.ID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}

	buf := make([]byte, 4)
	if _, err := io.ReadFull(g.entropy, buf); err != nil {
		return "", fmt.Errorf("failed to read entropy: %w", err)
	}

	return fmt.Sprintf("%s/%d.%s-%s", cfg.Get().DOIPrefix, year, short, hex.EncodeToString(buf)), nil
}
