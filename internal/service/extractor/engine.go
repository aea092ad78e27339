// Package extractor turns a rendered project detail page into a ProjectRecord.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/nexconsult/rera-harvester/internal/metrics"
	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrContainerMissing means the page never rendered the detail cards.
var ErrContainerMissing = errors.New("detail container missing")

const containerSelector = "div.form-card"

// Engine runs every block concurrently against one page snapshot.
type Engine struct {
	blocks []Block
	logger *logrus.Logger
}

// NewEngine creates an engine with the default blocks.
func NewEngine(logger *logrus.Logger) *Engine {
	e, err := NewEngineWithBlocks(DefaultBlocks(), logger)
	if err != nil {
		panic(err)
	}
	return e
}

// NewEngineWithBlocks creates an engine over custom blocks. Every declared
// field must be a record column owned by exactly one block.
func NewEngineWithBlocks(blocks []Block, logger *logrus.Logger) (*Engine, error) {
	owner := make(map[string]string)
	for _, b := range blocks {
		for _, f := range b.Fields {
			if !models.IsRecordColumn(f) || f == models.FieldProjectID {
				return nil, fmt.Errorf("block %s declares unknown field %q", b.Name, f)
			}
			if prev, ok := owner[f]; ok {
				return nil, fmt.Errorf("field %q declared by both %s and %s", f, prev, b.Name)
			}
			owner[f] = b.Name
		}
	}
	return &Engine{blocks: blocks, logger: logger}, nil
}

// Blocks returns the engine's blocks.
func (e *Engine) Blocks() []Block { return e.blocks }

type blockResult struct {
	block Block
	out   Fields
	err   error
}

// Extract parses an HTML snapshot and extracts the record for projectID.
func (e *Engine) Extract(ctx context.Context, projectID int, html string) (*models.ProjectRecord, error) {
	doc, err := ParseDocument(strings.NewReader(html), "text/html; charset=utf-8")
	if err != nil {
		return nil, err
	}
	return e.ExtractDocument(ctx, projectID, doc)
}

// ExtractDocument extracts from an already parsed page. Only a missing detail
// container is fatal; failing blocks leave their fields null.
func (e *Engine) ExtractDocument(ctx context.Context, projectID int, doc *goquery.Document) (*models.ProjectRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc.Find(containerSelector).Length() == 0 {
		return nil, ErrContainerMissing
	}

	start := time.Now()
	loc := NewLocator(doc)
	results := make([]blockResult, len(e.blocks))

	var wg sync.WaitGroup
	for i, b := range e.blocks {
		wg.Add(1)
		go func(i int, b Block) {
			defer wg.Done()
			results[i] = runBlock(loc, b)
		}(i, b)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	builder := models.NewRecordBuilder(projectID)
	var failed []string
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, r.block.Name)
			metrics.ObserveBlockFailure(r.block.Name)
			e.logger.WithFields(logrus.Fields{
				"project_id": projectID,
				"block":      r.block.Name,
				"partial":    len(r.out),
			}).WithError(r.err).Warn("Extraction block failed")
		}
		e.merge(projectID, r, builder)
	}

	record := builder.Build()
	e.logger.WithFields(logrus.Fields{
		"project_id":    projectID,
		"populated":     record.Populated(),
		"failed_blocks": failed,
		"duration":      time.Since(start),
	}).Debug("Extraction finished")
	return record, nil
}

func (e *Engine) merge(projectID int, r blockResult, builder *models.RecordBuilder) {
	declared := make(map[string]struct{}, len(r.block.Fields))
	for _, f := range r.block.Fields {
		declared[f] = struct{}{}
	}
	for field, value := range r.out {
		if _, ok := declared[field]; !ok {
			e.logger.WithFields(logrus.Fields{
				"project_id": projectID,
				"block":      r.block.Name,
				"field":      field,
			}).Debug("Dropping undeclared field")
			continue
		}
		builder.Set(field, value)
	}
}

// runBlock isolates one block: a panic becomes its error and what it wrote
// before failing is kept.
func runBlock(loc *Locator, b Block) (res blockResult) {
	res = blockResult{block: b, out: make(Fields, len(b.Fields))}
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("block %s panicked: %v", b.Name, r)
		}
	}()
	res.err = b.Extract(loc, res.out)
	return res
}
